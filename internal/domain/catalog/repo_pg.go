package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmguard/pharmguard/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type inventoryRepoPG struct{ pool *pgxpool.Pool }

// NewInventoryRepoPG creates the Postgres inventory repository.
func NewInventoryRepoPG(pool *pgxpool.Pool) InventoryRepository {
	return &inventoryRepoPG{pool: pool}
}

func (r *inventoryRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const medicineCols = `id, name, strength, form, rx_required, stock_qty, unit_price, created_at, updated_at`

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.Name, &m.Strength, &m.Form, &m.RxRequired,
		&m.StockQty, &m.UnitPrice, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *inventoryRepoPG) Create(ctx context.Context, m *Medicine) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medicine (id, name, strength, form, rx_required, stock_qty, unit_price)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, strength = EXCLUDED.strength, form = EXCLUDED.form,
			rx_required = EXCLUDED.rx_required, stock_qty = EXCLUDED.stock_qty,
			unit_price = EXCLUDED.unit_price, updated_at = NOW()`,
		m.ID, m.Name, m.Strength, m.Form, m.RxRequired, m.StockQty, m.UnitPrice)
	return err
}

func (r *inventoryRepoPG) GetByID(ctx context.Context, id string) (*Medicine, error) {
	m, err := scanMedicine(r.conn(ctx).QueryRow(ctx,
		`SELECT `+medicineCols+` FROM medicine WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *inventoryRepoPG) List(ctx context.Context, limit, offset int) ([]*Medicine, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicine`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+medicineCols+` FROM medicine ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

// ApplyStockDelta uses a conditional update so two concurrent decrements can
// never drive stock below zero: the WHERE clause loses the race instead.
func (r *inventoryRepoPG) ApplyStockDelta(ctx context.Context, id string, delta int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medicine SET stock_qty = stock_qty + $2, updated_at = NOW()
		WHERE id = $1 AND stock_qty + $2 >= 0`, id, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInsufficientStock
	}
	return nil
}
