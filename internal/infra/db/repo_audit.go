package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepo appends a minimal, additive-only trail of every mutating
// operation (spec §3 Audit Log: never read back by storegate itself).
type AuditRepo struct {
	Pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{Pool: pool}
}

// Record inserts one audit row, outside of any caller's transaction, so a
// later rollback of the data change does not also erase the audit trail's
// record that an attempt was made. revision is nil for operations that
// don't produce one (e.g. bucket deletion).
func (r *AuditRepo) Record(ctx context.Context, tenant, bucket, subject, action, actor string, revision *int64) error {
	_, err := r.Pool.Exec(ctx, `
INSERT INTO audit_log (tenant, bucket, subject, action, revision, actor)
VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6)`, tenant, bucket, subject, action, revision, actor)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// RecordAuditTx is the same write issued on an existing transaction, for
// callers that want the audit row to share the data change's atomicity
// instead of being best-effort.
func RecordAuditTx(ctx context.Context, tx pgx.Tx, tenant, bucket, subject, action, actor string, revision *int64) error {
	_, err := tx.Exec(ctx, `
INSERT INTO audit_log (tenant, bucket, subject, action, revision, actor)
VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6)`, tenant, bucket, subject, action, revision, actor)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}
