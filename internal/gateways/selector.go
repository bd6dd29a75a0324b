package gateways

import (
	"context"
	"fmt"
	"sort"

	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

type activeGatewayReader interface {
	ActiveGateway(ctx context.Context) (enums.GatewayName, bool, error)
}

// Selector resolves the gateway used for new purchases and the one recorded on existing purchases.
type Selector struct {
	gateways map[enums.GatewayName]Gateway
	fallback enums.GatewayName
	settings activeGatewayReader
}

// NewSelector registers the configured variants. The fallback is used when no setting is stored.
func NewSelector(fallback enums.GatewayName, settings activeGatewayReader, configured ...Gateway) (*Selector, error) {
	if len(configured) == 0 {
		return nil, fmt.Errorf("at least one payment gateway must be configured: %w", ErrNotConfigured)
	}
	registered := make(map[enums.GatewayName]Gateway, len(configured))
	for _, gw := range configured {
		if gw == nil {
			continue
		}
		registered[gw.Name()] = gw
	}
	if _, ok := registered[fallback]; !ok {
		return nil, fmt.Errorf("default gateway %q: %w", fallback, ErrNotConfigured)
	}
	return &Selector{gateways: registered, fallback: fallback, settings: settings}, nil
}

// Active returns the gateway selected by the payment_gateway setting.
func (s *Selector) Active(ctx context.Context) (Gateway, error) {
	name := s.fallback
	if s.settings != nil {
		stored, ok, err := s.settings.ActiveGateway(ctx)
		if err != nil {
			return nil, fmt.Errorf("read active gateway: %w", err)
		}
		if ok {
			name = stored
		}
	}
	if gw, ok := s.gateways[name]; ok {
		return gw, nil
	}
	return s.ByName(s.fallback)
}

// ByName returns a configured gateway.
func (s *Selector) ByName(name enums.GatewayName) (Gateway, error) {
	gw, ok := s.gateways[name]
	if !ok {
		return nil, fmt.Errorf("gateway %q: %w", name, ErrNotConfigured)
	}
	return gw, nil
}

// Supports reports whether the named gateway has credentials.
func (s *Selector) Supports(name enums.GatewayName) bool {
	_, ok := s.gateways[name]
	return ok
}

// Configured lists the configured gateway names in a stable order.
func (s *Selector) Configured() []enums.GatewayName {
	names := make([]enums.GatewayName, 0, len(s.gateways))
	for name := range s.gateways {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
