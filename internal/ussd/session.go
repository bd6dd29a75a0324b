package ussd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Dialogue steps.
const (
	stepWelcome        = "welcome"
	stepVoteCode       = "vote_enter_code"
	stepVoteCount      = "vote_enter_count"
	stepVoteConfirm    = "vote_confirm"
	stepTicketCode     = "ticket_enter_code"
	stepTicketType     = "ticket_select_type"
	stepTicketQuantity = "ticket_enter_quantity"
	stepTicketConfirm  = "ticket_confirm"
)

// TicketOption is one numbered ticket tier shown in the menu.
type TicketOption struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available int             `json:"available"`
}

// Session is the dialogue state carried between USSD hops.
type Session struct {
	Step    string `json:"step"`
	Network string `json:"network,omitempty"`

	EventID    uuid.UUID `json:"eventId,omitempty"`
	EventTitle string    `json:"eventTitle,omitempty"`

	CategoryID    uuid.UUID        `json:"categoryId,omitempty"`
	CandidateID   uuid.UUID        `json:"candidateId,omitempty"`
	CandidateName string           `json:"candidateName,omitempty"`
	CostPerVote   *decimal.Decimal `json:"costPerVote,omitempty"`
	VoteCount     int              `json:"voteCount,omitempty"`

	Options  []TicketOption `json:"options,omitempty"`
	Selected *TicketOption  `json:"selected,omitempty"`
	Quantity int            `json:"quantity,omitempty"`

	Amount decimal.Decimal `json:"amount"`
}

// SessionStore persists sessions across requests with a TTL.
type SessionStore interface {
	Load(ctx context.Context, msisdn string) (*Session, error)
	Save(ctx context.Context, msisdn string, session *Session) error
	Delete(ctx context.Context, msisdn string) error
}

type keyValue interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	USSDSessionKey(sessionID string) string
}

type redisSessionStore struct {
	kv  keyValue
	ttl time.Duration
}

// NewRedisSessionStore keys sessions by a hash of the caller's MSISDN.
func NewRedisSessionStore(kv keyValue, ttl time.Duration) (SessionStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &redisSessionStore{kv: kv, ttl: ttl}, nil
}

// Load returns nil without error when no session exists.
func (s *redisSessionStore) Load(ctx context.Context, msisdn string) (*Session, error) {
	raw, err := s.kv.Get(ctx, s.key(msisdn))
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ussd session: %w", err)
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("decode ussd session: %w", err)
	}
	return &session, nil
}

func (s *redisSessionStore) Save(ctx context.Context, msisdn string, session *Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode ussd session: %w", err)
	}
	if err := s.kv.Set(ctx, s.key(msisdn), string(payload), s.ttl); err != nil {
		return fmt.Errorf("save ussd session: %w", err)
	}
	return nil
}

func (s *redisSessionStore) Delete(ctx context.Context, msisdn string) error {
	return s.kv.Del(ctx, s.key(msisdn))
}

func (s *redisSessionStore) key(msisdn string) string {
	return s.kv.USSDSessionKey(SessionID(msisdn))
}

// SessionID hashes the MSISDN so phone numbers never appear in keys.
func SessionID(msisdn string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(msisdn)))
	return hex.EncodeToString(sum[:16])
}
