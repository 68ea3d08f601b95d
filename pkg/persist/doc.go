// Package persist saves store snapshots to a Storage backend and rehydrates
// them on startup.
//
// A snapshot is a JSON envelope:
//
//	{"version": 1, "savedAt": "2024-05-01T10:00:00Z", "state": {"count": 3}}
//
// Rehydration dispatches a single restore action. Values for keys that have
// no slice yet are held by the store until the slice registers, so
// components that register lazily still receive their persisted value.
//
// Usage:
//
//	p := persist.New(reg, persist.NewMemoryStorage(), persist.WithDebounce(time.Second))
//	if err := p.Rehydrate(ctx); err != nil {
//	    return err
//	}
//	p.Start()
//	defer p.Stop(ctx)
//
// Backends:
//   - MemoryStorage: in-process, for tests and development
//   - SQLStorage: any database/sql driver (PostgreSQL, MySQL, SQLite)
//   - S3Storage: an S3 bucket through aws-sdk-go-v2
package persist
