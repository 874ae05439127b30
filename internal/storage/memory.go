package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/campus-chat/internal/models"
)

type MemoryStorage struct {
	mu         sync.RWMutex
	users      map[string]*models.User
	programs   []models.Program
	faqs       []models.FAQ
	schoolInfo []models.SchoolInfo
	messages   map[string][]time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[string]*models.User),
		messages: make(map[string][]time.Time),
	}
}

// Seed helpers used by tests and local development

func (s *MemoryStorage) AddProgram(p models.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	s.programs = append(s.programs, p)
}

func (s *MemoryStorage) AddFAQ(f models.FAQ) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	s.faqs = append(s.faqs, f)
}

func (s *MemoryStorage) AddSchoolInfo(info models.SchoolInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info.ID == "" {
		info.ID = uuid.New().String()
	}
	s.schoolInfo = append(s.schoolInfo, info)
}

func (s *MemoryStorage) SearchPrograms(ctx context.Context, f ProgramFilter) ([]models.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.Program
	for _, p := range s.programs {
		if f.Code != "" && p.Code != f.Code {
			continue
		}
		if f.SearchText != "" && !containsFold(p.Name, f.SearchText) {
			continue
		}
		results = append(results, p)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Code < results[j].Code })
	if f.Limit >= 0 && len(results) > f.Limit {
		results = results[:f.Limit]
	}
	return results, nil
}

func (s *MemoryStorage) SearchFAQs(ctx context.Context, f FAQFilter) ([]models.FAQ, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.FAQ
	for _, q := range s.faqs {
		if !q.IsActive {
			continue
		}
		if f.Category != "" && q.Category != f.Category {
			continue
		}
		if f.SearchText != "" && !containsFold(q.Question, f.SearchText) {
			continue
		}
		results = append(results, q)
	}
	if f.Limit >= 0 && len(results) > f.Limit {
		results = results[:f.Limit]
	}
	return results, nil
}

func (s *MemoryStorage) SearchSchoolInfo(ctx context.Context, f SchoolInfoFilter) ([]models.SchoolInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.SchoolInfo
	for _, info := range s.schoolInfo {
		if f.Key != "" && info.Key != f.Key {
			continue
		}
		if f.SearchText != "" && !containsFold(info.Title, f.SearchText) {
			continue
		}
		results = append(results, info)
	}
	if f.Limit >= 0 && len(results) > f.Limit {
		results = results[:f.Limit]
	}
	return results, nil
}

func (s *MemoryStorage) CreateGuestUser(ctx context.Context) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := &models.User{
		ID:        uuid.New().String(),
		Email:     fmt.Sprintf("guest-%d", time.Now().UnixMilli()),
		Type:      models.UserTypeGuest,
		CreatedAt: time.Now(),
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *MemoryStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, exists := s.users[id]; exists {
		return user, nil
	}
	return nil, nil
}

func (s *MemoryStorage) RecordMessage(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[userID] = append(s.messages[userID], time.Now())
	return nil
}

func (s *MemoryStorage) CountMessagesSince(ctx context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, at := range s.messages[userID] {
		if !at.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
