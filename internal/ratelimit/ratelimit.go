// Package ratelimit bounds messages per user per day. The default store
// is a stub that always reports zero; the storage-backed store closes
// that gap when enabled in config.
package ratelimit

import (
	"context"
	"time"

	"github.com/xaenox/campus-chat/internal/models"
	"github.com/xaenox/campus-chat/internal/storage"
)

// Window is the quota accounting period.
const Window = 24 * time.Hour

// DailyQuota maps a user type to its per-day message allowance.
var DailyQuota = map[models.UserType]int{
	models.UserTypeGuest: 100,
}

// Store reports and records per-user message counts inside a window.
type Store interface {
	MessageCount(ctx context.Context, userID string, window time.Duration) (int, error)
	Record(ctx context.Context, userID string) error
}

// Stub never counts anything. It exists so the quota check is wired even
// in builds that do not persist messages.
type Stub struct{}

func (Stub) MessageCount(ctx context.Context, userID string, window time.Duration) (int, error) {
	return 0, nil
}

func (Stub) Record(ctx context.Context, userID string) error {
	return nil
}

// StorageStore counts messages through the shared datastore, so the
// window survives restarts and is shared across instances.
type StorageStore struct {
	counter storage.MessageCounter
}

func NewStorageStore(counter storage.MessageCounter) *StorageStore {
	return &StorageStore{counter: counter}
}

func (s *StorageStore) MessageCount(ctx context.Context, userID string, window time.Duration) (int, error) {
	return s.counter.CountMessagesSince(ctx, userID, time.Now().Add(-window))
}

func (s *StorageStore) Record(ctx context.Context, userID string) error {
	return s.counter.RecordMessage(ctx, userID)
}
