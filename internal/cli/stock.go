package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rl1809/branch-delivery/internal/core/domain"
)

func (a *app) stockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Inspect and adjust ledger balances",
	}
	cmd.AddCommand(a.stockSetCmd(), a.stockGetCmd(), a.stockMovementsCmd())
	return cmd
}

func parseStockKey(location, item string) (domain.StockKey, error) {
	id, err := domain.ParseItemIdentity(item)
	if err != nil {
		return domain.StockKey{}, err
	}
	key := domain.StockKey{Location: location, Item: id}
	return key, key.Validate()
}

func (a *app) stockSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [location] [type:key] [quantity]",
		Short: "Set the on-hand quantity of an item at a location",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseStockKey(args[0], args[1])
			if err != nil {
				return err
			}
			qty, err := parseQuantity(args[2])
			if err != nil {
				return err
			}
			if err := a.svc.SetStock(cmd.Context(), key, qty); err != nil {
				return fmt.Errorf("failed to set stock: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s = %d\n", key, qty)
			return nil
		},
	}
}

func (a *app) stockGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [location] [type:key]",
		Short: "Show the on-hand quantity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseStockKey(args[0], args[1])
			if err != nil {
				return err
			}
			qty, err := a.svc.GetStock(cmd.Context(), key)
			if err != nil {
				return fmt.Errorf("failed to read stock: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %d\n", key, qty)
			return nil
		},
	}
}

func (a *app) stockMovementsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "movements [location] [type:key]",
		Short: "List the ledger journal for one balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseStockKey(args[0], args[1])
			if err != nil {
				return err
			}
			mvs, err := a.svc.ListMovements(cmd.Context(), key)
			if err != nil {
				return fmt.Errorf("failed to list movements: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(mvs) == 0 {
				fmt.Fprintln(out, "No movements found")
				return nil
			}
			for _, mv := range mvs {
				fmt.Fprintf(out, "%s  %-8s %+5d  -> %5d  %s\n",
					mv.CreatedAt.Format("2006-01-02 15:04:05"), mv.Reason, mv.Delta, mv.Balance, mv.Reference)
			}
			return nil
		},
	}
}
