package websocket

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type staticTokens map[string]uuid.UUID

func (s staticTokens) VerifyToken(token string) (uuid.UUID, string, error) {
	id, ok := s[token]
	if !ok {
		return uuid.Nil, "", errors.New("invalid token")
	}
	return id, "student", nil
}

func TestHandleWebSocketRejectsMissingOrBadToken(t *testing.T) {
	hub := NewHub(nil, staticTokens{"good": uuid.New()})

	for _, target := range []string{"/ws", "/ws?token=bad"} {
		rr := httptest.NewRecorder()
		hub.HandleWebSocket(rr, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, target)
	}
}

func TestUserChannel(t *testing.T) {
	id := uuid.MustParse("6f1c2a8e-3b7d-4d59-9a1e-2c4b5d6e7f80")
	assert.Equal(t, "user_updates:6f1c2a8e-3b7d-4d59-9a1e-2c4b5d6e7f80", userChannel(id))
}
