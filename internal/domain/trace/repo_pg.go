package trace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

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

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the Postgres trace store.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) Store(ctx context.Context, rec *Record) error {
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("marshal trace steps: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO trace_record (trace_id, user_id, steps, final_disposition, started_at, sealed_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		rec.TraceID, rec.UserID, steps, rec.FinalDisposition, rec.StartedAt, rec.SealedAt)
	return err
}

func (r *repoPG) GetByTraceID(ctx context.Context, traceID string) (*Record, error) {
	var rec Record
	var steps []byte
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT trace_id, user_id, steps, final_disposition, started_at, sealed_at
		FROM trace_record WHERE trace_id = $1`, traceID).
		Scan(&rec.TraceID, &rec.UserID, &steps, &rec.FinalDisposition, &rec.StartedAt, &rec.SealedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(steps, &rec.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal trace steps: %w", err)
	}
	return &rec, nil
}
