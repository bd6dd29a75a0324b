package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:inventory_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

func seedTicketType(t *testing.T, db *gorm.DB, quantity, reserved, sold int) models.TicketType {
	t.Helper()
	event := models.Event{Title: "Gala", EventCode: "GALA-" + uuid.NewString()[:8], Type: enums.EventTypeTicketing, Status: enums.EventStatusPublished}
	require.NoError(t, db.Create(&event).Error)
	tt := models.TicketType{EventID: event.ID, Name: "Regular", Price: decimal.NewFromInt(50), Quantity: quantity, Reserved: reserved, Sold: sold}
	require.NoError(t, db.Create(&tt).Error)
	return tt
}

func loadTicketType(t *testing.T, db *gorm.DB, id uuid.UUID) models.TicketType {
	t.Helper()
	var tt models.TicketType
	require.NoError(t, db.First(&tt, "id = ?", id).Error)
	return tt
}

func TestReserveWithinCapacity(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger()
	tt := seedTicketType(t, db, 5, 0, 0)

	require.NoError(t, ledger.Reserve(context.Background(), db, tt.ID, 3))
	got := loadTicketType(t, db, tt.ID)
	require.Equal(t, 3, got.Reserved)
	require.Equal(t, 0, got.Sold)
}

func TestReserveBeyondCapacityLeavesStateUntouched(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger()
	tt := seedTicketType(t, db, 5, 2, 2)

	err := ledger.Reserve(context.Background(), db, tt.ID, 2)
	require.True(t, errors.Is(err, ErrInsufficientInventory), "got %v", err)

	got := loadTicketType(t, db, tt.ID)
	require.Equal(t, 2, got.Reserved)
	require.Equal(t, 2, got.Sold)
}

func TestReserveUnknownTicketType(t *testing.T) {
	db := newTestDB(t)
	err := NewLedger().Reserve(context.Background(), db, uuid.New(), 1)
	require.True(t, errors.Is(err, ErrItemNotFound), "got %v", err)
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	db := newTestDB(t)
	tt := seedTicketType(t, db, 5, 0, 0)
	require.Error(t, NewLedger().Reserve(context.Background(), db, tt.ID, 0))
}

func TestConcurrentReservationsNeverExceedCapacity(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger()
	const capacity = 7
	tt := seedTicketType(t, db, capacity, 0, 0)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
	)
	for i := 0; i < 20; i++ {
		qty := i%3 + 1
		wg.Add(1)
		go func(qty int) {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error {
				return ledger.Reserve(context.Background(), tx, tt.ID, qty)
			})
			if err == nil {
				mu.Lock()
				reserved += qty
				mu.Unlock()
			}
		}(qty)
	}
	wg.Wait()

	got := loadTicketType(t, db, tt.ID)
	require.LessOrEqual(t, reserved, capacity)
	require.Equal(t, reserved, got.Reserved)
}

func TestCommitMovesReservedToSold(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger()
	tt := seedTicketType(t, db, 5, 0, 0)
	ctx := context.Background()

	require.NoError(t, ledger.Reserve(ctx, db, tt.ID, 3))
	require.NoError(t, ledger.Commit(ctx, db, tt.ID, 3))

	got := loadTicketType(t, db, tt.ID)
	require.Equal(t, 0, got.Reserved)
	require.Equal(t, 3, got.Sold)
	require.Equal(t, 2, got.Available())
}

func TestCommitAndReleaseClampAtZero(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger()
	ctx := context.Background()

	committed := seedTicketType(t, db, 10, 1, 0)
	require.NoError(t, ledger.Commit(ctx, db, committed.ID, 4))
	got := loadTicketType(t, db, committed.ID)
	require.Equal(t, 0, got.Reserved)
	require.Equal(t, 1, got.Sold)

	released := seedTicketType(t, db, 10, 2, 0)
	require.NoError(t, ledger.Release(ctx, db, released.ID, 5))
	require.NoError(t, ledger.Release(ctx, db, released.ID, 5))
	got = loadTicketType(t, db, released.ID)
	require.Equal(t, 0, got.Reserved)
}

func TestReleaseUnknownTicketType(t *testing.T) {
	db := newTestDB(t)
	err := NewLedger().Release(context.Background(), db, uuid.New(), 1)
	require.True(t, errors.Is(err, ErrItemNotFound))
}

func TestAddVotes(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger()
	event := models.Event{Title: "Awards", EventCode: "AWD-1", Type: enums.EventTypeVoting, Status: enums.EventStatusLive}
	require.NoError(t, db.Create(&event).Error)
	category := models.Category{EventID: event.ID, Name: "Artist of the Year"}
	require.NoError(t, db.Create(&category).Error)
	candidate := models.Candidate{CategoryID: category.ID, EventID: event.ID, Name: "Ama", Code: "AMA01", Votes: 10}
	require.NoError(t, db.Create(&candidate).Error)

	require.NoError(t, ledger.AddVotes(context.Background(), db, candidate.ID, 4))

	var got models.Candidate
	require.NoError(t, db.First(&got, "id = ?", candidate.ID).Error)
	require.EqualValues(t, 14, got.Votes)

	require.True(t, errors.Is(ledger.AddVotes(context.Background(), db, uuid.New(), 1), ErrItemNotFound))
	require.Error(t, ledger.AddVotes(context.Background(), db, candidate.ID, 0))
}
