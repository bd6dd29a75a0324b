package purchases

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/easevote-backend/internal/events"
	"github.com/angelmondragon/easevote-backend/internal/fulfillment"
	"github.com/angelmondragon/easevote-backend/internal/gateways"
	"github.com/angelmondragon/easevote-backend/internal/inventory"
	dbpkg "github.com/angelmondragon/easevote-backend/pkg/db"
	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
	"github.com/angelmondragon/easevote-backend/pkg/outbox"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:purchases_%s?mode=memory&cache=shared", uuid.NewString())
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

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGateway struct {
	mu           sync.Mutex
	name         enums.GatewayName
	initErr      error
	gatewayRef   string
	requests     []gateways.InitializeRequest
	verification *gateways.Verification
	verifyErr    error
	verifiedRefs []string
}

func (g *fakeGateway) Name() enums.GatewayName { return g.name }

func (g *fakeGateway) InitializePayment(ctx context.Context, req gateways.InitializeRequest) (*gateways.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &gateways.InitializeResult{
		CheckoutURL:      "https://pay.example.com/" + req.Reference,
		GatewayReference: g.gatewayRef,
	}, nil
}

func (g *fakeGateway) VerifyPayment(ctx context.Context, reference string) (*gateways.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifiedRefs = append(g.verifiedRefs, reference)
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.verification, nil
}

func (g *fakeGateway) ParseWebhook(context.Context, http.Header, []byte) (*gateways.WebhookEvent, error) {
	return &gateways.WebhookEvent{}, nil
}

// switchableEngine lets a test make fulfillment fail once.
type switchableEngine struct {
	inner fulfillment.Engine
	err   error
}

func (e *switchableEngine) Fulfill(ctx context.Context, tx *gorm.DB, purchase *models.Purchase) ([]string, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.inner.Fulfill(ctx, tx, purchase)
}

// flakyRefRepo fails the first failRefWrites gateway-reference writes.
type flakyRefRepo struct {
	Repository
	failRefWrites int
	refWrites     int
}

func (r *flakyRefRepo) SetGatewayReference(ctx context.Context, id uuid.UUID, ref string) error {
	r.refWrites++
	if r.refWrites <= r.failRefWrites {
		return errors.New("connection reset")
	}
	return r.Repository.SetGatewayReference(ctx, id, ref)
}

type harness struct {
	db          *gorm.DB
	clock       *testClock
	gateway     *fakeGateway
	engine      *switchableEngine
	manager     ReservationManager
	coordinator SettlementCoordinator
	repo        Repository
	managerRepo *flakyRefRepo
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := newTestDB(t)
	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	gw := &fakeGateway{name: enums.GatewayPaystack}
	selector, err := gateways.NewSelector(enums.GatewayPaystack, nil, gw)
	require.NoError(t, err)

	client := dbpkg.NewFromConn(db)
	repo := NewRepository(db)
	ledger := inventory.NewLedger()
	emitter := outbox.NewService(outbox.NewRepository(db), nil)
	inner, err := fulfillment.NewEngine(ledger, emitter)
	require.NoError(t, err)
	engine := &switchableEngine{inner: inner}

	managerRepo := &flakyRefRepo{Repository: repo}
	manager, err := NewReservationManager(ManagerParams{
		Tx:           client,
		Repo:         managerRepo,
		Events:       events.NewRepository(db),
		Ledger:       ledger,
		Gateways:     selector,
		Outbox:       emitter,
		HoldDuration: DefaultHoldDuration,
		CallbackURL:  "http://localhost:3000/payment/callback",
		Now:          clock.Now,
	})
	require.NoError(t, err)

	coordinator, err := NewSettlementCoordinator(CoordinatorParams{
		Tx:          client,
		Repo:        repo,
		Ledger:      ledger,
		Fulfillment: engine,
		Gateways:    selector,
		Outbox:      emitter,
		Now:         clock.Now,
	})
	require.NoError(t, err)

	return &harness{
		db:          db,
		clock:       clock,
		gateway:     gw,
		engine:      engine,
		manager:     manager,
		coordinator: coordinator,
		repo:        repo,
		managerRepo: managerRepo,
	}
}

func (h *harness) seedTicketEvent(t *testing.T, status enums.EventStatus, quantity int, price string) (models.Event, models.TicketType) {
	t.Helper()
	event := models.Event{
		Title:     "Highlife Night",
		EventCode: "HLN" + uuid.NewString()[:6],
		Type:      enums.EventTypeTicketing,
		Status:    status,
	}
	require.NoError(t, h.db.Create(&event).Error)
	tt := models.TicketType{EventID: event.ID, Name: "Regular", Price: decimal.RequireFromString(price), Quantity: quantity}
	require.NoError(t, h.db.Create(&tt).Error)
	return event, tt
}

func (h *harness) seedVoteEvent(t *testing.T, mutate func(*models.Event)) (models.Event, models.Category, models.Candidate) {
	t.Helper()
	cost := decimal.RequireFromString("1.50")
	event := models.Event{
		Title:       "Campus Awards",
		EventCode:   "CA" + uuid.NewString()[:6],
		Type:        enums.EventTypeVoting,
		Status:      enums.EventStatusLive,
		CostPerVote: &cost,
	}
	if mutate != nil {
		mutate(&event)
	}
	require.NoError(t, h.db.Create(&event).Error)
	category := models.Category{EventID: event.ID, Name: "Best Speaker"}
	require.NoError(t, h.db.Create(&category).Error)
	candidate := models.Candidate{CategoryID: category.ID, EventID: event.ID, Name: "Esi", Code: "ES" + uuid.NewString()[:6], Votes: 10}
	require.NoError(t, h.db.Create(&candidate).Error)
	return event, category, candidate
}

func (h *harness) ticketType(t *testing.T, id uuid.UUID) models.TicketType {
	t.Helper()
	var tt models.TicketType
	require.NoError(t, h.db.First(&tt, "id = ?", id).Error)
	return tt
}

func (h *harness) purchase(t *testing.T, reference string) *models.Purchase {
	t.Helper()
	p, err := h.repo.FindByReference(context.Background(), reference)
	require.NoError(t, err)
	return p
}

func (h *harness) outboxTypes(t *testing.T, aggregateID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, h.db.Where("aggregate_id = ?", aggregateID).Order("created_at ASC").Find(&rows).Error)
	types := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		types = append(types, row.EventType)
	}
	return types
}

func customer() Customer {
	return Customer{Email: "ama@example.com", Name: "Ama Mensah", Phone: "0244000000"}
}
