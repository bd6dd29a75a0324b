package purchases

import (
	"errors"

	"github.com/angelmondragon/easevote-backend/internal/inventory"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
)

var (
	ErrEventNotFound             = errors.New("event not found")
	ErrEventNotPurchasable       = errors.New("event is not open for purchases")
	ErrTicketTypeNotFound        = errors.New("ticket type not found")
	ErrCandidateNotFound         = errors.New("candidate not found")
	ErrInsufficientInventory     = inventory.ErrInsufficientInventory
	ErrVoteWindowClosed          = errors.New("voting window is closed")
	ErrVoteCountOutOfRange       = errors.New("vote count out of range")
	ErrVotingNotConfigured       = errors.New("voting not configured")
	ErrGatewayUnavailable        = errors.New("payment gateway unavailable")
	ErrPurchaseNotFound          = errors.New("purchase not found")
	ErrGatewayVerificationFailed = errors.New("payment verification failed")
)

var codeBySentinel = map[error]pkgerrors.Code{
	ErrEventNotFound:             pkgerrors.CodeNotFound,
	ErrEventNotPurchasable:       pkgerrors.CodeStateConflict,
	ErrTicketTypeNotFound:        pkgerrors.CodeNotFound,
	ErrCandidateNotFound:         pkgerrors.CodeNotFound,
	ErrInsufficientInventory:     pkgerrors.CodeConflict,
	ErrVoteWindowClosed:          pkgerrors.CodeStateConflict,
	ErrVoteCountOutOfRange:       pkgerrors.CodeValidation,
	ErrVotingNotConfigured:       pkgerrors.CodeStateConflict,
	ErrGatewayUnavailable:        pkgerrors.CodeDependency,
	ErrPurchaseNotFound:          pkgerrors.CodeNotFound,
	ErrGatewayVerificationFailed: pkgerrors.CodeDependency,
}

// fail wraps a sentinel so errors.Is and the HTTP error mapping both work.
func fail(sentinel error, message string) error {
	code, ok := codeBySentinel[sentinel]
	if !ok {
		code = pkgerrors.CodeInternal
	}
	if message == "" {
		message = sentinel.Error()
	}
	return pkgerrors.Wrap(code, sentinel, message)
}
