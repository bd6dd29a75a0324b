package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/easevote-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project string
		name    string
		want    string
	}{
		{"easevote-prod", "ev-purchase-events", "projects/easevote-prod/topics/ev-purchase-events"},
		{"easevote-prod", " projects/other/topics/votes ", "projects/other/topics/votes"},
		{"", "ev-purchase-events", ""},
		{"easevote-prod", "  ", ""},
	}
	for _, tc := range cases {
		if got := topicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("topicResourceName(%q, %q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestTopicNamesDeduplicates(t *testing.T) {
	names := topicNames(config.PubSubConfig{
		PurchasesTopic: "ev-events",
		TicketsTopic:   "ev-events",
		VotesTopic:     "ev-votes",
	})
	if len(names) != 2 || names[0] != "ev-events" || names[1] != "ev-votes" {
		t.Fatalf("unexpected topic names %v", names)
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil); err != errProjectIDRequired {
		t.Fatalf("expected project id error, got %v", err)
	}
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	if c.Publisher("ev-purchase-events") != nil {
		t.Fatalf("expected nil publisher from nil client")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client should be a no-op, got %v", err)
	}
}
