package database

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// gate admits one holder at a time, waiters are served first come first
// served. Holding a gate hands a fresh child gate down through the context,
// so work the holder fans out is serialized among itself without waiting on
// the gate its parent already holds.
type gate struct {
	sem *semaphore.Weighted
}

func newGate() *gate {
	return &gate{sem: semaphore.NewWeighted(1)}
}

type gateKey struct {
	db *Database
}

// gateFor returns the innermost gate held on this database by ctx, or the
// database's own gate when ctx holds none.
func (d *Database) gateFor(ctx context.Context) *gate {
	if g, ok := ctx.Value(gateKey{db: d}).(*gate); ok {
		return g
	}
	return d.root
}

// Atomic runs fn with exclusive use of the connection. Statements issued with
// the context handed to fn, including from goroutines fn starts, run inside
// the block. Concurrent callers queue in arrival order.
func (d *Database) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	g := d.gateFor(ctx)
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)
	return fn(context.WithValue(ctx, gateKey{db: d}, newGate()))
}
