package repository

import (
	"context"
	"log"

	"gorm.io/gorm"
)

// Compensations collects undo steps for the sequential fallback. In
// transactional mode they are ignored (rollback covers them); in fallback
// mode they run in reverse on failure, best effort.
type Compensations struct {
	enabled bool
	undos   []func() error
}

func (c *Compensations) Add(undo func() error) {
	if c.enabled {
		c.undos = append(c.undos, undo)
	}
}

func (c *Compensations) run() {
	for i := len(c.undos) - 1; i >= 0; i-- {
		if err := c.undos[i](); err != nil {
			log.Println("settlement compensation failed:", err)
		}
	}
}

// Atomic runs settlement steps as one unit. The capability flag is decided at
// startup (config plus probe), never inferred from a failing transaction at
// runtime: a transaction abort in supported mode fails the whole operation.
type Atomic struct {
	db        *gorm.DB
	supported bool
}

func NewAtomic(db *gorm.DB, supported bool) *Atomic {
	return &Atomic{db: db, supported: supported}
}

// DetectTransactionSupport probes the store with an empty transaction.
func DetectTransactionSupport(db *gorm.DB) bool {
	err := db.Transaction(func(tx *gorm.DB) error { return nil })
	if err != nil {
		log.Println("store does not support transactions, settlement will run sequentially:", err)
		return false
	}
	return true
}

func (a *Atomic) Supported() bool {
	return a.supported
}

func (a *Atomic) Run(ctx context.Context, fn func(tx *gorm.DB, comp *Compensations) error) error {
	if a.supported {
		return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(tx, &Compensations{})
		})
	}

	comp := &Compensations{enabled: true}
	if err := fn(a.db.WithContext(ctx), comp); err != nil {
		comp.run()
		return err
	}
	return nil
}

// DB exposes the underlying handle for non-transactional reads and writes.
func (a *Atomic) DB() *gorm.DB {
	return a.db
}
