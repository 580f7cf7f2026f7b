// Package uow runs a block of work inside one database transaction.
//
// Every exit path of Run ends the transaction: commit when the callback
// returns nil, rollback on error or panic. Resources registered on the
// Unit (lock leases) are released only after the transaction has ended,
// and after-commit hooks run last, only when the commit succeeded.
package uow

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

type Unit struct {
	tx *gorm.DB

	mu          sync.Mutex
	held        map[string]struct{}
	releases    []func()
	afterCommit []func(context.Context)
	released    bool
}

// DB returns the transaction handle. All statements of the unit must go through it.
func (u *Unit) DB() *gorm.DB {
	return u.tx
}

// Holds reports whether key was already tracked in this unit.
func (u *Unit) Holds(key string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.held[key]
	return ok
}

// Track records key as held and schedules release for when the unit ends.
func (u *Unit) Track(key string, release func()) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.held[key] = struct{}{}
	if release != nil {
		u.releases = append(u.releases, release)
	}
}

// AfterCommit schedules fn to run once the transaction committed.
func (u *Unit) AfterCommit(fn func(context.Context)) {
	if fn == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.afterCommit = append(u.afterCommit, fn)
}

func (u *Unit) release() {
	u.mu.Lock()
	if u.released {
		u.mu.Unlock()
		return
	}
	u.released = true
	releases := u.releases
	u.releases = nil
	u.held = map[string]struct{}{}
	u.mu.Unlock()

	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}
}

// Run executes fn in a transaction on db.
func Run(ctx context.Context, db *gorm.DB, fn func(*Unit) error) error {
	unit := &Unit{held: map[string]struct{}{}}
	defer unit.release()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unit.tx = tx
		return fn(unit)
	})
	unit.release()
	if err != nil {
		return err
	}

	unit.mu.Lock()
	hooks := unit.afterCommit
	unit.mu.Unlock()
	for _, hook := range hooks {
		hook(ctx)
	}
	return nil
}
