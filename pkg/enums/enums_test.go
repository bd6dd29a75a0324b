package enums

import "testing"

func TestPurchaseStatusTerminal(t *testing.T) {
	if PurchaseStatusPending.IsTerminal() {
		t.Fatalf("pending must not be terminal")
	}
	for _, status := range []PurchaseStatus{PurchaseStatusPaid, PurchaseStatusFailed, PurchaseStatusExpired, PurchaseStatusCancelled} {
		if !status.IsTerminal() {
			t.Fatalf("expected %s to be terminal", status)
		}
	}
	if PurchaseStatus("BOGUS").IsTerminal() {
		t.Fatalf("unknown status must not be terminal")
	}
}

func TestEventStatusPurchasable(t *testing.T) {
	cases := map[EventStatus]bool{
		EventStatusDraft:     false,
		EventStatusPublished: true,
		EventStatusLive:      true,
		EventStatusEnded:     false,
		EventStatusCancelled: false,
	}
	for status, want := range cases {
		if got := status.Purchasable(); got != want {
			t.Fatalf("%s: expected purchasable=%v got %v", status, want, got)
		}
	}
}

func TestParseGatewayName(t *testing.T) {
	got, err := ParseGatewayName(" Paystack ")
	if err != nil || got != GatewayPaystack {
		t.Fatalf("expected paystack, got %q err=%v", got, err)
	}
	if _, err := ParseGatewayName("appsmobile"); err == nil {
		t.Fatalf("expected error for unsupported gateway")
	}
}

func TestParsePurchaseType(t *testing.T) {
	got, err := ParsePurchaseType("vote")
	if err != nil || got != PurchaseTypeVote {
		t.Fatalf("expected VOTE, got %q err=%v", got, err)
	}
	if _, err := ParsePurchaseType("donation"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOutboxEventTypes(t *testing.T) {
	if !EventPurchaseExpired.IsValid() {
		t.Fatalf("expected purchase_expired to be valid")
	}
	if _, err := ParseOutboxEventType("order_paid"); err == nil {
		t.Fatalf("expected error for unknown event type")
	}
}

func TestOutboxDLQErrorReasons(t *testing.T) {
	for _, reason := range OutboxDLQErrorReasons {
		if !reason.IsValid() {
			t.Fatalf("expected %s to be valid", reason)
		}
	}
	if OutboxDLQErrorReason("timeout").IsValid() {
		t.Fatalf("unknown reason must be invalid")
	}
}
