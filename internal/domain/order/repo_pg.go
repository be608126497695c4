package order

import (
	"context"
	"errors"

	"github.com/google/uuid"
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

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

type orderRepoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the Postgres order repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &orderRepoPG{pool: pool}
}

const orderCols = `id, public_id, user_id, medicine_id, quantity, fulfilled_qty,
	disposition, rationale, prescription_ref, status, trace_id, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.PublicID, &o.UserID, &o.MedicineID, &o.Quantity,
		&o.FulfilledQty, &o.Disposition, &o.Rationale, &o.PrescriptionRef,
		&o.Status, &o.TraceID, &o.CreatedAt, &o.UpdatedAt)
	return &o, err
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	row := connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO pharmacy_order
			(id, public_id, user_id, medicine_id, quantity, fulfilled_qty,
			 disposition, rationale, prescription_ref, status, trace_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		o.ID, o.PublicID, o.UserID, o.MedicineID, o.Quantity, o.FulfilledQty,
		o.Disposition, o.Rationale, o.PrescriptionRef, o.Status, o.TraceID)
	return row.Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (r *orderRepoPG) GetByPublicID(ctx context.Context, publicID string) (*Order, error) {
	o, err := scanOrder(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+orderCols+` FROM pharmacy_order WHERE public_id = $1`, publicID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *orderRepoPG) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Order, int, error) {
	c := connFor(ctx, r.pool)

	var total int
	if err := c.QueryRow(ctx,
		`SELECT COUNT(*) FROM pharmacy_order WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := c.Query(ctx, `
		SELECT `+orderCols+` FROM pharmacy_order
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}

func (r *orderRepoPG) UpdateStatus(ctx context.Context, publicID, status string) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE pharmacy_order SET status = $2, updated_at = NOW()
		WHERE public_id = $1`, publicID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type historyRepoPG struct{ pool *pgxpool.Pool }

// NewHistoryRepoPG creates the Postgres purchase history repository.
func NewHistoryRepoPG(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepoPG{pool: pool}
}

func (r *historyRepoPG) Append(ctx context.Context, e *HistoryEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO order_history (id, user_id, medicine_id, quantity, purchase_date)
		VALUES ($1,$2,$3,$4,$5)`,
		e.ID, e.UserID, e.MedicineID, e.Quantity, e.PurchaseDate)
	return err
}

func (r *historyRepoPG) ListByUser(ctx context.Context, userID string) ([]*HistoryEntry, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT id, user_id, medicine_id, quantity, purchase_date
		FROM order_history WHERE user_id = $1 ORDER BY purchase_date`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.MedicineID, &e.Quantity, &e.PurchaseDate); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}

type fulfillmentEventRepoPG struct{ pool *pgxpool.Pool }

// NewFulfillmentEventRepoPG creates the Postgres fulfillment event repository.
func NewFulfillmentEventRepoPG(pool *pgxpool.Pool) FulfillmentEventRepository {
	return &fulfillmentEventRepoPG{pool: pool}
}

func (r *fulfillmentEventRepoPG) Append(ctx context.Context, e *FulfillmentEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	row := connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO fulfillment_event (id, order_public_id, status, payload)
		VALUES ($1,$2,$3,$4)
		RETURNING received_at`,
		e.ID, e.OrderPublicID, e.Status, e.Payload)
	return row.Scan(&e.ReceivedAt)
}

func (r *fulfillmentEventRepoPG) ListByOrder(ctx context.Context, orderPublicID string) ([]*FulfillmentEvent, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT id, order_public_id, status, payload, received_at
		FROM fulfillment_event WHERE order_public_id = $1 ORDER BY received_at`, orderPublicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*FulfillmentEvent
	for rows.Next() {
		var e FulfillmentEvent
		if err := rows.Scan(&e.ID, &e.OrderPublicID, &e.Status, &e.Payload, &e.ReceivedAt); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}

type procurementRepoPG struct{ pool *pgxpool.Pool }

// NewProcurementRepoPG creates the Postgres procurement repository.
func NewProcurementRepoPG(pool *pgxpool.Pool) ProcurementRepository {
	return &procurementRepoPG{pool: pool}
}

func (r *procurementRepoPG) Create(ctx context.Context, p *Procurement) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	row := connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO procurement (id, order_id, medicine_id, quantity, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		p.ID, p.OrderID, p.MedicineID, p.Quantity, p.Status)
	return row.Scan(&p.CreatedAt)
}

func (r *procurementRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Procurement, error) {
	var p Procurement
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT id, order_id, medicine_id, quantity, status, created_at
		FROM procurement WHERE id = $1`, id).
		Scan(&p.ID, &p.OrderID, &p.MedicineID, &p.Quantity, &p.Status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *procurementRepoPG) ListPending(ctx context.Context, limit, offset int) ([]*Procurement, int, error) {
	c := connFor(ctx, r.pool)

	var total int
	if err := c.QueryRow(ctx,
		`SELECT COUNT(*) FROM procurement WHERE status = $1`, ProcurementPending).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := c.Query(ctx, `
		SELECT id, order_id, medicine_id, quantity, status, created_at
		FROM procurement WHERE status = $1
		ORDER BY created_at LIMIT $2 OFFSET $3`,
		ProcurementPending, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Procurement
	for rows.Next() {
		var p Procurement
		if err := rows.Scan(&p.ID, &p.OrderID, &p.MedicineID, &p.Quantity, &p.Status, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &p)
	}
	return items, total, rows.Err()
}

func (r *procurementRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE procurement SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
