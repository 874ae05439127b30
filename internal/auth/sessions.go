// Package auth issues guest sessions. Guests are the only supported
// account type; identity lives in a generated pseudo-email and the
// session map is process-local on purpose (no session persistence).
package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/xaenox/campus-chat/internal/models"
	"github.com/xaenox/campus-chat/internal/storage"
	"go.uber.org/zap"
)

// CookieName carries the session token between requests.
const CookieName = "chat_session"

type Session struct {
	UserID string          `json:"userId"`
	Email  string          `json:"email"`
	Type   models.UserType `json:"type"`
}

type Sessions struct {
	mu      sync.RWMutex
	byToken map[string]*Session
	storage storage.Storage
	logger  *zap.Logger
}

func NewSessions(storage storage.Storage, logger *zap.Logger) *Sessions {
	return &Sessions{
		byToken: make(map[string]*Session),
		storage: storage,
		logger:  logger,
	}
}

// Issue creates a guest user and returns a token for it.
func (s *Sessions) Issue(ctx context.Context) (string, *Session, error) {
	user, err := s.storage.CreateGuestUser(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create guest user: %w", err)
	}

	token := uuid.New().String()
	session := &Session{
		UserID: user.ID,
		Email:  user.Email,
		Type:   user.Type,
	}

	s.mu.Lock()
	s.byToken[token] = session
	s.mu.Unlock()

	s.logger.Info("Issued guest session",
		zap.String("user_id", user.ID),
		zap.String("email", user.Email))
	return token, session, nil
}

// Resolve returns the session for a token, or nil when unknown.
func (s *Sessions) Resolve(ctx context.Context, token string) *Session {
	if token == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byToken[token]
}
