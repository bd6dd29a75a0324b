package settings

import (
	"context"
	"fmt"

	"github.com/angelmondragon/easevote-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
)

type gatewaySupport interface {
	Supports(name enums.GatewayName) bool
	Configured() []enums.GatewayName
}

// GatewaySetting is the admin view of the payment gateway setting.
type GatewaySetting struct {
	Active     enums.GatewayName   `json:"active"`
	Configured []enums.GatewayName `json:"configured"`
}

// Service manages the payment gateway setting.
type Service interface {
	GetActiveGateway(ctx context.Context) (*GatewaySetting, error)
	SetActiveGateway(ctx context.Context, raw string) (*GatewaySetting, error)
}

type service struct {
	repo     Repository
	gateways gatewaySupport
	fallback enums.GatewayName
}

func NewService(repo Repository, gateways gatewaySupport, fallback enums.GatewayName) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings repository required")
	}
	if gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	return &service{repo: repo, gateways: gateways, fallback: fallback}, nil
}

func (s *service) GetActiveGateway(ctx context.Context) (*GatewaySetting, error) {
	name, ok, err := s.repo.ActiveGateway(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read payment gateway setting")
	}
	if !ok || !s.gateways.Supports(name) {
		name = s.fallback
	}
	return &GatewaySetting{Active: name, Configured: s.gateways.Configured()}, nil
}

// SetActiveGateway accepts only gateways with credentials. Existing purchases keep their recorded gateway.
func (s *service) SetActiveGateway(ctx context.Context, raw string) (*GatewaySetting, error) {
	name, err := enums.ParseGatewayName(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown payment gateway")
	}
	if !s.gateways.Supports(name) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payment gateway %s is not configured", name))
	}
	if err := s.repo.Upsert(ctx, KeyPaymentGateway, string(name)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment gateway setting")
	}
	return &GatewaySetting{Active: name, Configured: s.gateways.Configured()}, nil
}
