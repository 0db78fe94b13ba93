// services/errors.go
package services

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ValidationError — bad input shape or range. Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// AuthorizationError — caller is not the participant/owner the
// transition requires.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string { return e.Msg }

// StateConflictError — challenge is in the wrong status for the requested
// transition ("already completed", "expired", duplicate create, ...).
type StateConflictError struct {
	Msg                 string
	CurrentStatus       string
	ExistingChallengeID string // set by the duplicate guard
}

func (e *StateConflictError) Error() string { return e.Msg }

// InsufficientFundsError reports both balances so callers can explain how
// much is currently committed to other challenges.
type InsufficientFundsError struct {
	Required  int64
	Available int64
	Escrow    int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %d, available %d (%d held in escrow)", e.Required, e.Available, e.Escrow)
}

// SessionInvalidError — game session absent, bound elsewhere, or expired.
// Message always tells the caller to restart the session.
type SessionInvalidError struct {
	Reason string
}

func (e *SessionInvalidError) Error() string { return e.Reason }

// NotFoundError — challenge/session/user/wallet lookup missed.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// ErrDependencyUnavailable wraps store/identity failures we cannot act on.
var ErrDependencyUnavailable = errors.New("dependency unavailable")

// respondError maps the taxonomy onto HTTP statuses with enough context
// for the caller to act. Anything unrecognized is a 500.
func respondError(c *fiber.Ctx, err error) error {
	var (
		valErr   *ValidationError
		authErr  *AuthorizationError
		stateErr *StateConflictError
		fundsErr *InsufficientFundsError
		sessErr  *SessionInvalidError
		nfErr    *NotFoundError
	)
	switch {
	case errors.As(err, &valErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": valErr.Msg})
	case errors.As(err, &authErr):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": authErr.Msg})
	case errors.As(err, &stateErr):
		resp := fiber.Map{"error": stateErr.Msg}
		if stateErr.CurrentStatus != "" {
			resp["current_status"] = stateErr.CurrentStatus
		}
		if stateErr.ExistingChallengeID != "" {
			resp["existing_challenge_id"] = stateErr.ExistingChallengeID
		}
		return c.Status(fiber.StatusConflict).JSON(resp)
	case errors.As(err, &fundsErr):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":             fundsErr.Error(),
			"required":          fundsErr.Required,
			"available_balance": fundsErr.Available,
			"escrow_balance":    fundsErr.Escrow,
		})
	case errors.As(err, &sessErr):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": sessErr.Reason})
	case errors.As(err, &nfErr):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": nfErr.Error()})
	case errors.Is(err, ErrDependencyUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service temporarily unavailable"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
