package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rl1809/branch-delivery/internal/core/domain"
	"github.com/rl1809/branch-delivery/internal/core/service"
	"github.com/rl1809/branch-delivery/internal/wire"
)

// app carries the per-invocation backend, opened in PersistentPreRunE.
type app struct {
	opts wire.Options
	res  *wire.Resources
	svc  *service.ReconciliationService
}

// NewRootCmd builds the command tree. The returned release func closes
// whatever backend the executed command opened, including on failure.
func NewRootCmd() (*cobra.Command, func()) {
	a := &app{}

	root := &cobra.Command{
		Use:   "deliveryctl",
		Short: "Operate on branch deliveries and the stock ledger",
		Long: `deliveryctl talks to a reconciliation store directly: admit items into a
delivery, record what the receiving branch counted, and settle mismatches.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			res, err := wire.Open(cmd.Context(), a.opts, nil)
			if err != nil {
				return fmt.Errorf("failed to open %s backend: %w", a.opts.Store, err)
			}
			a.res = res
			a.svc = service.NewReconciliationService(res.Store, res.Store, res.Locker, nil, nil)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.Store, "backend", wire.BackendSQLite, "store backend: memory, sqlite, mysql or redis")
	flags.StringVar(&a.opts.SQLitePath, "sqlite-path", "deliveryctl.db", "SQLite database file")
	flags.StringVar(&a.opts.MySQLDSN, "mysql-dsn", "root:root@tcp(localhost:3306)/branchdelivery?parseTime=true", "MySQL DSN")
	flags.StringVar(&a.opts.RedisAddr, "redis-addr", "localhost:6379", "Redis address")
	flags.BoolVar(&a.opts.RedisLocks, "redis-locks", false, "coordinate item locks through Redis")

	root.AddCommand(a.stockCmd())
	root.AddCommand(a.deliveryCmd())
	root.AddCommand(a.itemCmd())
	return root, a.release
}

func (a *app) release() {
	if a.res != nil {
		_ = a.res.Close()
		a.res = nil
	}
}

func parseQuantity(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", domain.ErrInvalidQuantity, s)
	}
	return n, nil
}
