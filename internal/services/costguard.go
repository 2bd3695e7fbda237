package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"attendify-backend/internal/ratelimit"
)

const globalSemanticKey = "semantic:global"

// CostGuard bounds semantic verifier calls with a global sliding window and a
// per-session budget.
type CostGuard struct {
	global   ratelimit.Limiter
	sessions SessionStore
}

func NewCostGuard(global ratelimit.Limiter, sessions SessionStore) *CostGuard {
	return &CostGuard{global: global, sessions: sessions}
}

// Admit takes one call from both budgets or returns ErrQuotaExceeded. A global
// slot is not handed back when the session budget then denies.
func (g *CostGuard) Admit(ctx context.Context, sessionID uuid.UUID) error {
	ok, err := g.global.Allow(ctx, globalSemanticKey)
	if err != nil {
		return errors.Wrap(err, "global semantic limiter")
	}
	if !ok {
		log.Warn().Str("session_id", sessionID.String()).Msg("global semantic rate limit reached")
		return ErrQuotaExceeded
	}

	ok, err = g.sessions.ConsumeSemanticCall(ctx, sessionID)
	if err != nil {
		return errors.Wrap(err, "session semantic budget")
	}
	if !ok {
		log.Warn().Str("session_id", sessionID.String()).Msg("session semantic budget exhausted")
		return ErrQuotaExceeded
	}
	return nil
}
