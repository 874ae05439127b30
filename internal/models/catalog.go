package models

import "time"

// UserType distinguishes account tiers for quota purposes.
type UserType string

const (
	UserTypeGuest UserType = "guest"
)

// User is a chat account. Guests get a generated pseudo-email and no
// password.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Type      UserType  `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// Program is a degree program offered by the school.
type Program struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	DegreeType    string    `json:"degree_type"`
	DurationYears int       `json:"duration_years,omitempty"`
	EctsTotal     int       `json:"ects_total,omitempty"`
	Language      string    `json:"language,omitempty"`
	StudyMode     string    `json:"study_mode,omitempty"`
	ShortSummary  string    `json:"short_summary,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FAQ is a frequently asked question. Inactive rows are hidden from the
// query tool unconditionally.
type FAQ struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SchoolInfo is a keyed piece of general school information.
type SchoolInfo struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
