package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	id "caregate/pkg/domain"
	dErrors "caregate/pkg/domain-errors"
	txcontext "caregate/pkg/platform/tx"
)

// AggregateTx scopes a mutation to one enrollment aggregate. All writes to a
// case and its audit entries happen inside one boundary: either everything in
// fn persists or nothing does.
type AggregateTx interface {
	RunInAggregate(ctx context.Context, enrollmentID id.EnrollmentID, fn func(ctx context.Context) error) error
}

// shardedAggregateTx distributes aggregate locks across N shards hashed from
// the enrollment ID, keeping contention low while still serializing all
// mutations to the same case. Used with the in-memory stores.
const numAggregateShards = 128

// defaultAggregateTxTimeout bounds how long a case mutation may hold its shard.
const defaultAggregateTxTimeout = 5 * time.Second

type shardedAggregateTx struct {
	shards  [numAggregateShards]sync.Mutex
	timeout time.Duration
}

// NewShardedTx returns the in-memory transaction boundary.
func NewShardedTx() AggregateTx {
	return &shardedAggregateTx{}
}

func (t *shardedAggregateTx) RunInAggregate(ctx context.Context, enrollmentID id.EnrollmentID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultAggregateTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := hashAggregateKey(enrollmentID.String()) % numAggregateShards
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx)
}

// hashAggregateKey uses FNV-1a for even shard distribution.
func hashAggregateKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}

// sqlAggregateTx runs the mutation inside a database transaction. The sql.Tx
// travels in the context so tx-aware stores (enrollment, audit) join it.
type sqlAggregateTx struct {
	db *sql.DB
}

// NewSQLTx returns the postgres-backed transaction boundary.
func NewSQLTx(db *sql.DB) AggregateTx {
	return &sqlAggregateTx{db: db}
}

func (t *sqlAggregateTx) RunInAggregate(ctx context.Context, _ id.EnrollmentID, fn func(ctx context.Context) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin aggregate transaction")
	}

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit aggregate transaction")
	}
	return nil
}
