package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendify-backend/internal/ratelimit"
)

func TestCostGuardAdmit(t *testing.T) {
	f := newFixture(t)
	s := f.open(OpenSessionInput{MaxSemanticCalls: intPtr(1)})
	global := ratelimit.NewSlidingWindow(2, time.Minute)
	guard := NewCostGuard(global, f.sessions)

	require.NoError(t, guard.Admit(f.ctx, s.ID))
	assert.ErrorIs(t, guard.Admit(f.ctx, s.ID), ErrQuotaExceeded, "session budget spent")

	// The denied call above still used a global slot.
	other := f.open(OpenSessionInput{})
	err := guard.Admit(f.ctx, other.ID)
	assert.ErrorIs(t, err, ErrQuotaExceeded, "global window spent")
	assert.EqualError(t, err, "semantic verification quota exceeded")
}
