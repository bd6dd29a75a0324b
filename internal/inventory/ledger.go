package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
)

var (
	// ErrInsufficientInventory is returned when a hold would exceed capacity.
	ErrInsufficientInventory = errors.New("insufficient inventory")
	// ErrItemNotFound is returned when the ticket type or candidate row does not exist.
	ErrItemNotFound = errors.New("inventory item not found")
)

// Ledger is the only writer of ticket-type counters and candidate tallies.
// Every method runs a single conditional UPDATE inside the caller's transaction.
type Ledger interface {
	Reserve(ctx context.Context, tx *gorm.DB, ticketTypeID uuid.UUID, qty int) error
	Release(ctx context.Context, tx *gorm.DB, ticketTypeID uuid.UUID, qty int) error
	Commit(ctx context.Context, tx *gorm.DB, ticketTypeID uuid.UUID, qty int) error
	AddVotes(ctx context.Context, tx *gorm.DB, candidateID uuid.UUID, count int) error
}

type ledger struct {
	now func() time.Time
}

// NewLedger builds the SQL-backed ledger.
func NewLedger() Ledger {
	return &ledger{now: time.Now}
}

// Reserve increments reserved only when reserved + sold + qty stays within quantity.
func (l *ledger) Reserve(ctx context.Context, tx *gorm.DB, ticketTypeID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory reserve")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE ticket_types
		SET reserved = reserved + ?,
			updated_at = ?
		WHERE id = ? AND reserved + sold + ? <= quantity
	`, qty, l.now().UTC(), ticketTypeID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve inventory")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	exists, err := l.ticketTypeExists(ctx, tx, ticketTypeID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrItemNotFound
	}
	return ErrInsufficientInventory
}

// Release returns held units to availability, clamping reserved at zero.
func (l *ledger) Release(ctx context.Context, tx *gorm.DB, ticketTypeID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory release")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE ticket_types
		SET reserved = CASE WHEN reserved >= ? THEN reserved - ? ELSE 0 END,
			updated_at = ?
		WHERE id = ?
	`, qty, qty, l.now().UTC(), ticketTypeID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release inventory")
	}
	if res.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Commit converts held units to sold. Only units still held are converted so
// reserved never drops below zero and sold never outgrows the hold.
func (l *ledger) Commit(ctx context.Context, tx *gorm.DB, ticketTypeID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory commit")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE ticket_types
		SET sold = sold + CASE WHEN reserved >= ? THEN ? ELSE reserved END,
			reserved = CASE WHEN reserved >= ? THEN reserved - ? ELSE 0 END,
			updated_at = ?
		WHERE id = ?
	`, qty, qty, qty, qty, l.now().UTC(), ticketTypeID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "commit inventory")
	}
	if res.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// AddVotes increments a candidate tally in place.
func (l *ledger) AddVotes(ctx context.Context, tx *gorm.DB, candidateID uuid.UUID, count int) error {
	if count <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "vote count must be positive")
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for vote increment")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE candidates
		SET votes = votes + ?,
			updated_at = ?
		WHERE id = ?
	`, count, l.now().UTC(), candidateID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "record votes")
	}
	if res.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (l *ledger) ticketTypeExists(ctx context.Context, tx *gorm.DB, ticketTypeID uuid.UUID) (bool, error) {
	var count int64
	if err := tx.WithContext(ctx).Table("ticket_types").Where("id = ?", ticketTypeID).Count(&count).Error; err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket type")
	}
	return count > 0, nil
}
