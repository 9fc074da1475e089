package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"

	"github.com/rl1809/branch-delivery/internal/core/domain"
	"github.com/rl1809/branch-delivery/internal/port"
)

// MySQLAdapter persists the ledger and deliveries through database/sql. The
// statements stay within what SQLite also accepts, so the adapter runs on an
// in-memory SQLite database in tests and in the CLI's local mode.
type MySQLAdapter struct {
	db  *sql.DB
	now func() time.Time
}

var _ port.Store = (*MySQLAdapter)(nil)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db, now: time.Now}
}

func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Decrement(ctx context.Context, key domain.StockKey, qty int, reference string) (int, error) {
	if qty < 1 {
		return 0, domain.ErrInvalidQuantity
	}
	var balance int
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		balance, err = m.debit(ctx, tx, key, qty, reference)
		return err
	})
	return balance, err
}

func (m *MySQLAdapter) Increment(ctx context.Context, key domain.StockKey, qty int, reference string) (int, error) {
	if qty < 1 {
		return 0, domain.ErrInvalidQuantity
	}
	var balance int
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		balance, err = m.credit(ctx, tx, key, qty, reference)
		return err
	})
	return balance, err
}

func (m *MySQLAdapter) SetStock(ctx context.Context, key domain.StockKey, qty int) error {
	if qty < 0 {
		return domain.ErrInvalidQuantity
	}
	return m.inTx(ctx, func(tx *sql.Tx) error {
		now := m.now()

		// Bumping the version first takes the row lock before we read.
		res, err := tx.ExecContext(ctx, `
			UPDATE stock_ledger SET version = version + 1, updated_at = ?
			WHERE location = ? AND item_type = ? AND item_key = ?`,
			now, key.Location, key.Item.Type, key.Item.Key,
		)
		if err != nil {
			return fmt.Errorf("lock stock: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			if err := m.insertLedgerRow(ctx, tx, key, qty, now); err != nil {
				return err
			}
			if qty == 0 {
				return nil
			}
			return m.journal(ctx, tx, key, 1, qty, qty, domain.MovementSet, "", now)
		}

		prev, version, err := m.balance(ctx, tx, key)
		if err != nil {
			return err
		}
		if prev == qty {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE stock_ledger SET quantity = ?
			WHERE location = ? AND item_type = ? AND item_key = ?`,
			qty, key.Location, key.Item.Type, key.Item.Key,
		); err != nil {
			return fmt.Errorf("set stock: %w", err)
		}
		return m.journal(ctx, tx, key, version, qty-prev, qty, domain.MovementSet, "", now)
	})
}

func (m *MySQLAdapter) Quantity(ctx context.Context, key domain.StockKey) (int, error) {
	qty, _, err := m.balance(ctx, m.db, key)
	return qty, err
}

func (m *MySQLAdapter) Movements(ctx context.Context, key domain.StockKey) ([]domain.StockMovement, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT delta, balance, reason, reference, created_at
		FROM stock_movements
		WHERE location = ? AND item_type = ? AND item_key = ?
		ORDER BY seq`,
		key.Location, key.Item.Type, key.Item.Key,
	)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	var out []domain.StockMovement
	for rows.Next() {
		mv := domain.StockMovement{Key: key}
		if err := rows.Scan(&mv.Delta, &mv.Balance, &mv.Reason, &mv.Reference, &mv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) CreateDelivery(ctx context.Context, d domain.Delivery) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, sender_location, receiver_location, version, completed_at, created_at)
		VALUES (?, ?, ?, 1, NULL, ?)`,
		d.ID, d.SenderLocation, d.ReceiverLocation, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetDelivery(ctx context.Context, id string) (domain.Delivery, error) {
	return m.getDelivery(ctx, m.db, id)
}

func (m *MySQLAdapter) CloseDelivery(ctx context.Context, id string, at time.Time) (domain.Delivery, error) {
	var out domain.Delivery
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		if err := m.lockDelivery(ctx, tx, id); err != nil {
			return err
		}
		d, err := m.getDelivery(ctx, tx, id)
		if err != nil {
			return err
		}
		if d.Closed() {
			out = d
			return nil
		}

		var total, settled int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*), COALESCE(SUM(CASE WHEN status IN (?, ?) THEN 1 ELSE 0 END), 0)
			FROM delivery_items WHERE delivery_id = ?`,
			domain.ItemStatusReceived, domain.ItemStatusReturned, id,
		).Scan(&total, &settled); err != nil {
			return fmt.Errorf("count delivery items: %w", err)
		}
		if total == 0 || settled != total {
			return domain.ErrDeliveryIncomplete
		}

		if _, err := tx.ExecContext(ctx, `UPDATE deliveries SET completed_at = ? WHERE id = ?`, at, id); err != nil {
			return fmt.Errorf("close delivery: %w", err)
		}
		d.CompletedAt = &at
		out = d
		return nil
	})
	return out, err
}

func (m *MySQLAdapter) InsertItem(ctx context.Context, item domain.DeliveryItem) error {
	return m.inTx(ctx, func(tx *sql.Tx) error {
		if err := m.lockDelivery(ctx, tx, item.DeliveryID); err != nil {
			return err
		}
		d, err := m.getDelivery(ctx, tx, item.DeliveryID)
		if err != nil {
			return err
		}
		if d.Closed() {
			return domain.ErrDeliveryClosed
		}

		var dup int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM delivery_items
			WHERE delivery_id = ? AND item_type = ? AND item_key = ?`,
			item.DeliveryID, item.Item.Type, item.Item.Key,
		).Scan(&dup); err != nil {
			return fmt.Errorf("check duplicate item: %w", err)
		}
		if dup > 0 {
			return domain.ErrDuplicateDeliveryItem
		}

		if _, err := m.debit(ctx, tx, item.StockKey(), item.DeclaredQuantity, item.ID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO delivery_items (
				id, delivery_id, item_type, item_key, source_location,
				declared_quantity, received_quantity, returned_quantity,
				status, marked_by, assigned_to, resolution, version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.DeliveryID, item.Item.Type, item.Item.Key, item.SourceLocation,
			item.DeclaredQuantity, item.ReceivedQuantity, item.ReturnedQuantity,
			item.Status, item.MarkedBy, item.AssignedTo, item.Resolution, item.Version,
			item.CreatedAt, item.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return domain.ErrDuplicateDeliveryItem
		}
		if err != nil {
			return fmt.Errorf("insert delivery item: %w", err)
		}
		return nil
	})
}

func (m *MySQLAdapter) UpdateItem(ctx context.Context, item domain.DeliveryItem, expectedVersion int, credit int) error {
	return m.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE delivery_items SET
				received_quantity = ?, returned_quantity = ?, status = ?,
				marked_by = ?, resolution = ?, version = ?, updated_at = ?
			WHERE id = ? AND version = ?`,
			item.ReceivedQuantity, item.ReturnedQuantity, item.Status,
			item.MarkedBy, item.Resolution, item.Version, item.UpdatedAt,
			item.ID, expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("update delivery item: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			if _, err := m.getItem(ctx, tx, item.ID); err != nil {
				return err
			}
			return domain.ErrConcurrentModification
		}

		if credit > 0 {
			if _, err := m.credit(ctx, tx, item.StockKey(), credit, item.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *MySQLAdapter) GetItem(ctx context.Context, id string) (domain.DeliveryItem, error) {
	return m.getItem(ctx, m.db, id)
}

const itemColumns = `id, delivery_id, item_type, item_key, source_location,
	declared_quantity, received_quantity, returned_quantity,
	status, marked_by, assigned_to, resolution, version, created_at, updated_at`

func (m *MySQLAdapter) ListItems(ctx context.Context, f port.ItemFilter) ([]domain.DeliveryItem, error) {
	query := `SELECT ` + itemColumns + ` FROM delivery_items WHERE delivery_id = ?`
	args := []any{f.DeliveryID}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at, id`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query delivery items: %w", err)
	}
	defer rows.Close()

	out := []domain.DeliveryItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) getItem(ctx context.Context, q querier, id string) (domain.DeliveryItem, error) {
	it, err := scanItem(q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM delivery_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DeliveryItem{}, domain.ErrItemNotFound
	}
	return it, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (domain.DeliveryItem, error) {
	var it domain.DeliveryItem
	err := s.Scan(
		&it.ID, &it.DeliveryID, &it.Item.Type, &it.Item.Key, &it.SourceLocation,
		&it.DeclaredQuantity, &it.ReceivedQuantity, &it.ReturnedQuantity,
		&it.Status, &it.MarkedBy, &it.AssignedTo, &it.Resolution, &it.Version,
		&it.CreatedAt, &it.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DeliveryItem{}, err
	}
	if err != nil {
		return domain.DeliveryItem{}, fmt.Errorf("scan delivery item: %w", err)
	}
	return it, nil
}

func (m *MySQLAdapter) getDelivery(ctx context.Context, q querier, id string) (domain.Delivery, error) {
	var (
		d         domain.Delivery
		completed sql.NullTime
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, sender_location, receiver_location, completed_at, created_at
		FROM deliveries WHERE id = ?`, id,
	).Scan(&d.ID, &d.SenderLocation, &d.ReceiverLocation, &completed, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Delivery{}, domain.ErrDeliveryNotFound
	}
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("query delivery: %w", err)
	}
	if completed.Valid {
		d.CompletedAt = &completed.Time
	}
	return d, nil
}

// lockDelivery serializes item admission and closing on one delivery.
func (m *MySQLAdapter) lockDelivery(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `UPDATE deliveries SET version = version + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("lock delivery: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return domain.ErrDeliveryNotFound
	}
	return nil
}

func (m *MySQLAdapter) debit(ctx context.Context, tx *sql.Tx, key domain.StockKey, qty int, reference string) (int, error) {
	now := m.now()
	res, err := tx.ExecContext(ctx, `
		UPDATE stock_ledger
		SET quantity = quantity - ?, version = version + 1, updated_at = ?
		WHERE location = ? AND item_type = ? AND item_key = ? AND quantity >= ?`,
		qty, now, key.Location, key.Item.Type, key.Item.Key, qty,
	)
	if err != nil {
		return 0, fmt.Errorf("debit stock: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return 0, domain.ErrInsufficientStock
	}

	balance, version, err := m.balance(ctx, tx, key)
	if err != nil {
		return 0, err
	}
	return balance, m.journal(ctx, tx, key, version, -qty, balance, domain.MovementDispatch, reference, now)
}

func (m *MySQLAdapter) credit(ctx context.Context, tx *sql.Tx, key domain.StockKey, qty int, reference string) (int, error) {
	now := m.now()
	res, err := tx.ExecContext(ctx, `
		UPDATE stock_ledger
		SET quantity = quantity + ?, version = version + 1, updated_at = ?
		WHERE location = ? AND item_type = ? AND item_key = ?`,
		qty, now, key.Location, key.Item.Type, key.Item.Key,
	)
	if err != nil {
		return 0, fmt.Errorf("credit stock: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		if err := m.insertLedgerRow(ctx, tx, key, qty, now); err != nil {
			return 0, err
		}
		return qty, m.journal(ctx, tx, key, 1, qty, qty, domain.MovementReturn, reference, now)
	}

	balance, version, err := m.balance(ctx, tx, key)
	if err != nil {
		return 0, err
	}
	return balance, m.journal(ctx, tx, key, version, qty, balance, domain.MovementReturn, reference, now)
}

func (m *MySQLAdapter) insertLedgerRow(ctx context.Context, tx *sql.Tx, key domain.StockKey, qty int, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_ledger (location, item_type, item_key, quantity, version, updated_at)
		VALUES (?, ?, ?, ?, 1, ?)`,
		key.Location, key.Item.Type, key.Item.Key, qty, now,
	)
	if isUniqueViolation(err) {
		// another writer created the row first
		return domain.ErrConcurrentModification
	}
	if err != nil {
		return fmt.Errorf("insert stock: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) balance(ctx context.Context, q querier, key domain.StockKey) (int, int, error) {
	var qty, version int
	err := q.QueryRowContext(ctx, `
		SELECT quantity, version FROM stock_ledger
		WHERE location = ? AND item_type = ? AND item_key = ?`,
		key.Location, key.Item.Type, key.Item.Key,
	).Scan(&qty, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("query stock: %w", err)
	}
	return qty, version, nil
}

func (m *MySQLAdapter) journal(ctx context.Context, tx *sql.Tx, key domain.StockKey, seq, delta, balance int, reason domain.MovementReason, reference string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (location, item_type, item_key, seq, delta, balance, reason, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.Location, key.Item.Type, key.Item.Key, seq, delta, balance, reason, reference, at,
	)
	if err != nil {
		return fmt.Errorf("journal movement: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
