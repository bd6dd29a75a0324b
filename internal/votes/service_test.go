package votes

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/easevote-backend/internal/events"
	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:votes_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

func seedAwards(t *testing.T, db *gorm.DB, status enums.EventStatus) (models.Event, models.Category) {
	t.Helper()
	cost := decimal.RequireFromString("2")
	event := models.Event{Title: "Campus Awards", EventCode: "CAW", Type: enums.EventTypeVoting, Status: status, CostPerVote: &cost}
	require.NoError(t, db.Create(&event).Error)
	category := models.Category{EventID: event.ID, Name: "Best Dancer"}
	require.NoError(t, db.Create(&category).Error)
	for _, c := range []models.Candidate{
		{Name: "Abena", Code: "BD01", Votes: 25},
		{Name: "Yaw", Code: "BD02", Votes: 75},
		{Name: "Kwame", Code: "BD03", Votes: 0},
	} {
		c.CategoryID = category.ID
		c.EventID = event.ID
		require.NoError(t, db.Create(&c).Error)
	}
	return event, category
}

func TestResultsOrderedByVotes(t *testing.T) {
	db := newTestDB(t)
	event, _ := seedAwards(t, db, enums.EventStatusLive)
	svc, err := NewService(events.NewRepository(db))
	require.NoError(t, err)

	results, err := svc.Results(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), results.TotalVotes)
	require.Len(t, results.Categories, 1)
	candidates := results.Categories[0].Candidates
	require.Len(t, candidates, 3)
	assert.Equal(t, "Yaw", candidates[0].Name)
	assert.Equal(t, 75.0, candidates[0].Percentage)
	assert.Equal(t, "Abena", candidates[1].Name)
	assert.Equal(t, 0.0, candidates[2].Percentage)
}

func TestResultsRejectsTicketingEvents(t *testing.T) {
	db := newTestDB(t)
	event := models.Event{Title: "Gig", EventCode: "GIG", Type: enums.EventTypeTicketing, Status: enums.EventStatusLive}
	require.NoError(t, db.Create(&event).Error)
	svc, err := NewService(events.NewRepository(db))
	require.NoError(t, err)

	_, err = svc.Results(context.Background(), event.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	_, err = svc.Results(context.Background(), uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestNomineeLookup(t *testing.T) {
	db := newTestDB(t)
	event, category := seedAwards(t, db, enums.EventStatusLive)
	svc, err := NewService(events.NewRepository(db))
	require.NoError(t, err)

	nominee, err := svc.Nominee(context.Background(), " bd02 ")
	require.NoError(t, err)
	assert.Equal(t, event.ID, nominee.EventID)
	assert.Equal(t, category.ID, nominee.CategoryID)
	assert.Equal(t, "Yaw", nominee.CandidateName)
	require.NotNil(t, nominee.CostPerVote)
	assert.True(t, decimal.NewFromInt(2).Equal(*nominee.CostPerVote))

	require.NoError(t, db.Model(&models.Event{}).Where("id = ?", event.ID).Update("status", enums.EventStatusEnded).Error)
	_, err = svc.Nominee(context.Background(), "BD02")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
