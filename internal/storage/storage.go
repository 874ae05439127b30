package storage

import (
	"context"
	"time"

	"github.com/xaenox/campus-chat/internal/models"
)

// ProgramFilter narrows a programs search. Zero values mean "no filter".
type ProgramFilter struct {
	Code       string
	SearchText string
	Limit      int
}

// FAQFilter narrows a faqs search. Only active rows are ever returned.
type FAQFilter struct {
	Category   string
	SearchText string
	Limit      int
}

// SchoolInfoFilter narrows a school_info search.
type SchoolInfoFilter struct {
	Key        string
	SearchText string
	Limit      int
}

type Storage interface {
	SearchPrograms(ctx context.Context, f ProgramFilter) ([]models.Program, error)
	SearchFAQs(ctx context.Context, f FAQFilter) ([]models.FAQ, error)
	SearchSchoolInfo(ctx context.Context, f SchoolInfoFilter) ([]models.SchoolInfo, error)

	CreateGuestUser(ctx context.Context) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)

	// Embed MessageCounter interface
	MessageCounter

	Close() error
}

// MessageCounter backs the daily message quota.
type MessageCounter interface {
	RecordMessage(ctx context.Context, userID string) error
	CountMessagesSince(ctx context.Context, userID string, since time.Time) (int, error)
}
