package purchases

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/easevote-backend/internal/gateways"
	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
)

func reserveTickets(t *testing.T, h *harness, quantity, qty int) (*ReservationResult, models.TicketType) {
	t.Helper()
	event, tt := h.seedTicketEvent(t, enums.EventStatusPublished, quantity, "25")
	res, err := h.manager.ReserveTickets(context.Background(), TicketReservationInput{
		EventID:      event.ID,
		TicketTypeID: tt.ID,
		Quantity:     qty,
		Customer:     customer(),
	})
	require.NoError(t, err)
	return res, tt
}

func amountOf(value string) *decimal.Decimal {
	d := decimal.RequireFromString(value)
	return &d
}

func TestSettleSuccessCommitsAndFulfills(t *testing.T) {
	h := newHarness(t)
	res, tt := reserveTickets(t, h, 10, 2)

	out, err := h.coordinator.Settle(context.Background(), SettleInput{
		Reference: res.Reference,
		Verdict:   enums.VerdictSuccess,
		Gateway:   enums.GatewayPaystack,
		Amount:    amountOf("50"),
		Currency:  "GHS",
	})
	require.NoError(t, err)
	assert.True(t, out.Transitioned)
	assert.False(t, out.FulfillmentPending)

	stored := h.purchase(t, res.Reference)
	assert.Equal(t, enums.PurchaseStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	require.NotNil(t, stored.FulfilledAt)
	assert.Len(t, stored.TicketNumbers, 2)

	got := h.ticketType(t, tt.ID)
	assert.Equal(t, 0, got.Reserved)
	assert.Equal(t, 2, got.Sold)

	var tickets int64
	require.NoError(t, h.db.Model(&models.Ticket{}).Where("purchase_id = ?", stored.ID).Count(&tickets).Error)
	assert.Equal(t, int64(2), tickets)
	assert.ElementsMatch(t, []enums.OutboxEventType{enums.EventPurchasePaid, enums.EventTicketsIssued}, h.outboxTypes(t, stored.ID))
}

func TestSettleIsIdempotent(t *testing.T) {
	h := newHarness(t)
	res, tt := reserveTickets(t, h, 10, 3)
	input := SettleInput{Reference: res.Reference, Verdict: enums.VerdictSuccess}

	first, err := h.coordinator.Settle(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, first.Transitioned)

	second, err := h.coordinator.Settle(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, second.Transitioned)
	assert.Equal(t, enums.PurchaseStatusPaid, second.Purchase.Status)

	// a late failure verdict cannot undo a paid purchase
	third, err := h.coordinator.Settle(context.Background(), SettleInput{Reference: res.Reference, Verdict: enums.VerdictFailure})
	require.NoError(t, err)
	assert.False(t, third.Transitioned)

	got := h.ticketType(t, tt.ID)
	assert.Equal(t, 3, got.Sold)
	assert.Equal(t, 0, got.Reserved)
	var tickets int64
	require.NoError(t, h.db.Model(&models.Ticket{}).Count(&tickets).Error)
	assert.Equal(t, int64(3), tickets)
}

func TestSettleConcurrentDeliveriesTransitionOnce(t *testing.T) {
	h := newHarness(t)
	res, tt := reserveTickets(t, h, 10, 4)

	const deliveries = 8
	var wg sync.WaitGroup
	results := make(chan *SettleResult, deliveries)
	errs := make(chan error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.coordinator.Settle(context.Background(), SettleInput{Reference: res.Reference, Verdict: enums.VerdictSuccess})
			if err != nil {
				errs <- err
				return
			}
			results <- out
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("settle: %v", err)
	}
	transitions := 0
	for out := range results {
		if out.Transitioned {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions)
	got := h.ticketType(t, tt.ID)
	assert.Equal(t, 4, got.Sold)
	assert.Equal(t, 0, got.Reserved)
}

func TestSettleFailureReleasesHold(t *testing.T) {
	h := newHarness(t)
	res, tt := reserveTickets(t, h, 10, 2)

	out, err := h.coordinator.Settle(context.Background(), SettleInput{Reference: res.Reference, Verdict: enums.VerdictFailure})
	require.NoError(t, err)
	assert.True(t, out.Transitioned)
	assert.Equal(t, enums.PurchaseStatusFailed, out.Purchase.Status)

	got := h.ticketType(t, tt.ID)
	assert.Equal(t, 0, got.Reserved)
	assert.Equal(t, 0, got.Sold)
	assert.Equal(t, []enums.OutboxEventType{enums.EventPurchaseFailed}, h.outboxTypes(t, out.Purchase.ID))
}

func TestSettleUnderpaymentFails(t *testing.T) {
	h := newHarness(t)
	res, tt := reserveTickets(t, h, 10, 2)

	out, err := h.coordinator.Settle(context.Background(), SettleInput{Reference: res.Reference, Verdict: enums.VerdictSuccess, Amount: amountOf("49.99")})
	require.NoError(t, err)
	assert.Equal(t, enums.PurchaseStatusFailed, out.Purchase.Status)
	assert.Equal(t, 0, h.ticketType(t, tt.ID).Sold)
}

func TestSettleIgnoresOtherGatewaysAndPendingVerdicts(t *testing.T) {
	h := newHarness(t)
	res, _ := reserveTickets(t, h, 10, 1)

	out, err := h.coordinator.Settle(context.Background(), SettleInput{Reference: res.Reference, Verdict: enums.VerdictSuccess, Gateway: enums.GatewayStripe})
	require.NoError(t, err)
	assert.False(t, out.Transitioned)

	out, err = h.coordinator.Settle(context.Background(), SettleInput{Reference: res.Reference, Verdict: enums.VerdictPending})
	require.NoError(t, err)
	assert.False(t, out.Transitioned)
	assert.Equal(t, enums.PurchaseStatusPending, h.purchase(t, res.Reference).Status)
}

func TestSettleUnknownReference(t *testing.T) {
	h := newHarness(t)
	_, err := h.coordinator.Settle(context.Background(), SettleInput{Reference: "EV_1_00000000", Verdict: enums.VerdictSuccess})
	assert.True(t, errors.Is(err, ErrPurchaseNotFound))
}

func TestExpireThenLateSuccessIsNoop(t *testing.T) {
	h := newHarness(t)
	res, tt := reserveTickets(t, h, 10, 2)
	purchase := h.purchase(t, res.Reference)

	closed, err := h.coordinator.Expire(context.Background(), purchase)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = h.coordinator.Expire(context.Background(), h.purchase(t, res.Reference))
	require.NoError(t, err)
	assert.False(t, closed)

	out, err := h.coordinator.Settle(context.Background(), SettleInput{Reference: res.Reference, Verdict: enums.VerdictSuccess})
	require.NoError(t, err)
	assert.False(t, out.Transitioned)
	assert.Equal(t, enums.PurchaseStatusExpired, out.Purchase.Status)

	got := h.ticketType(t, tt.ID)
	assert.Equal(t, 0, got.Reserved)
	assert.Equal(t, 0, got.Sold)
	assert.Equal(t, []enums.OutboxEventType{enums.EventPurchaseExpired}, h.outboxTypes(t, purchase.ID))
}

func TestExpireRacesSettlementWithSingleWinner(t *testing.T) {
	for i := 0; i < 5; i++ {
		h := newHarness(t)
		res, tt := reserveTickets(t, h, 10, 2)
		purchase := h.purchase(t, res.Reference)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := h.coordinator.Expire(context.Background(), purchase)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := h.coordinator.Settle(context.Background(), SettleInput{Reference: res.Reference, Verdict: enums.VerdictSuccess})
			assert.NoError(t, err)
		}()
		wg.Wait()

		final := h.purchase(t, res.Reference)
		got := h.ticketType(t, tt.ID)
		assert.Equal(t, 0, got.Reserved)
		switch final.Status {
		case enums.PurchaseStatusPaid:
			assert.Equal(t, 2, got.Sold)
		case enums.PurchaseStatusExpired:
			assert.Equal(t, 0, got.Sold)
		default:
			t.Fatalf("unexpected status %s", final.Status)
		}
	}
}

func TestVoteSettlementCountsOnce(t *testing.T) {
	h := newHarness(t)
	event, category, candidate := h.seedVoteEvent(t, nil)
	res, err := h.manager.ReserveVotes(context.Background(), VoteReservationInput{
		EventID: event.ID, CategoryID: category.ID, CandidateID: candidate.ID, VoteCount: 4, Customer: customer(),
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := h.coordinator.Settle(context.Background(), SettleInput{Reference: res.Reference, Verdict: enums.VerdictSuccess})
		require.NoError(t, err)
	}

	var reloaded models.Candidate
	require.NoError(t, h.db.First(&reloaded, "id = ?", candidate.ID).Error)
	assert.Equal(t, int64(14), reloaded.Votes)
	stored := h.purchase(t, res.Reference)
	assert.Empty(t, stored.TicketNumbers)
	assert.ElementsMatch(t, []enums.OutboxEventType{enums.EventPurchasePaid, enums.EventVotesRecorded}, h.outboxTypes(t, stored.ID))
}

func TestFulfillmentFailureIsRetriedByReconciliation(t *testing.T) {
	h := newHarness(t)
	res, tt := reserveTickets(t, h, 10, 2)

	h.engine.err = pkgerrors.New(pkgerrors.CodeDependency, "disk full")
	out, err := h.coordinator.Settle(context.Background(), SettleInput{Reference: res.Reference, Verdict: enums.VerdictSuccess})
	require.NoError(t, err)
	assert.True(t, out.Transitioned)
	assert.True(t, out.FulfillmentPending)

	stored := h.purchase(t, res.Reference)
	assert.Equal(t, enums.PurchaseStatusPaid, stored.Status)
	assert.Nil(t, stored.FulfilledAt)
	assert.Equal(t, 2, h.ticketType(t, tt.ID).Sold)

	pending, err := h.repo.ListUnfulfilledPaid(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	h.engine.err = nil
	claimed, err := h.coordinator.CompleteFulfillment(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = h.coordinator.CompleteFulfillment(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	stored = h.purchase(t, res.Reference)
	require.NotNil(t, stored.FulfilledAt)
	assert.Len(t, stored.TicketNumbers, 2)
}

func TestVerifyFlows(t *testing.T) {
	h := newHarness(t)
	res, _ := reserveTickets(t, h, 10, 1)
	ctx := context.Background()

	h.gateway.verification = &gateways.Verification{Verdict: enums.VerdictPending}
	out, err := h.coordinator.Verify(ctx, res.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.PurchaseStatusPending, out.Purchase.Status)
	assert.Equal(t, []string{res.Reference}, h.gateway.verifiedRefs)

	h.gateway.verification = nil
	h.gateway.verifyErr = errors.New("connection reset")
	_, err = h.coordinator.Verify(ctx, res.Reference)
	assert.True(t, errors.Is(err, ErrGatewayVerificationFailed))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))

	h.gateway.verifyErr = nil
	h.gateway.verification = &gateways.Verification{Verdict: enums.VerdictSuccess, Amount: decimal.RequireFromString("25"), Currency: "GHS"}
	out, err = h.coordinator.Verify(ctx, res.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.PurchaseStatusPaid, out.Purchase.Status)
	assert.Equal(t, "Payment verified successfully", out.Message)

	out, err = h.coordinator.Verify(ctx, res.Reference)
	require.NoError(t, err)
	assert.Equal(t, "Payment already verified", out.Message)
	assert.Len(t, h.gateway.verifiedRefs, 3)
}

func TestRepositoryListExpiredPending(t *testing.T) {
	h := newHarness(t)
	first, _ := reserveTickets(t, h, 10, 1)
	h.clock.Advance(time.Hour)
	second, _ := reserveTickets(t, h, 10, 1)

	cutoff := h.clock.Now().Add(-time.Minute)
	expired, err := h.repo.ListExpiredPending(context.Background(), cutoff, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, first.Reference, expired[0].PaymentReference)

	expired, err = h.repo.ListExpiredPending(context.Background(), h.clock.Now().Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, second.Reference, expired[1].PaymentReference)
}
