package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/xaenox/campus-chat/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	_, err = s.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (s *PostgresStorage) SearchPrograms(ctx context.Context, f ProgramFilter) ([]models.Program, error) {
	query := `
		SELECT id, code, name, degree_type, duration_years, ects_total, language, study_mode, short_summary, created_at, updated_at
		FROM programs`

	var conditions []string
	var args []interface{}
	if f.Code != "" {
		args = append(args, f.Code)
		conditions = append(conditions, fmt.Sprintf("code = $%d", len(args)))
	}
	if f.SearchText != "" {
		args = append(args, "%"+f.SearchText+"%")
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	query = appendConditions(query, conditions)
	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY code LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying programs: %v", err)
	}
	defer rows.Close()

	var programs []models.Program
	for rows.Next() {
		var p models.Program
		var durationYears, ectsTotal sql.NullInt64
		var language, studyMode, shortSummary sql.NullString
		err := rows.Scan(
			&p.ID,
			&p.Code,
			&p.Name,
			&p.DegreeType,
			&durationYears,
			&ectsTotal,
			&language,
			&studyMode,
			&shortSummary,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning program: %v", err)
		}
		p.DurationYears = int(durationYears.Int64)
		p.EctsTotal = int(ectsTotal.Int64)
		p.Language = language.String
		p.StudyMode = studyMode.String
		p.ShortSummary = shortSummary.String
		programs = append(programs, p)
	}

	return programs, rows.Err()
}

func (s *PostgresStorage) SearchFAQs(ctx context.Context, f FAQFilter) ([]models.FAQ, error) {
	query := `
		SELECT id, category, question, answer, is_active, created_at, updated_at
		FROM faqs`

	// Inactive FAQs are never visible, regardless of caller input.
	conditions := []string{"is_active = TRUE"}
	var args []interface{}
	if f.Category != "" {
		args = append(args, f.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.SearchText != "" {
		args = append(args, "%"+f.SearchText+"%")
		conditions = append(conditions, fmt.Sprintf("question ILIKE $%d", len(args)))
	}
	query = appendConditions(query, conditions)
	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY category, question LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying faqs: %v", err)
	}
	defer rows.Close()

	var faqs []models.FAQ
	for rows.Next() {
		var q models.FAQ
		err := rows.Scan(
			&q.ID,
			&q.Category,
			&q.Question,
			&q.Answer,
			&q.IsActive,
			&q.CreatedAt,
			&q.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning faq: %v", err)
		}
		faqs = append(faqs, q)
	}

	return faqs, rows.Err()
}

func (s *PostgresStorage) SearchSchoolInfo(ctx context.Context, f SchoolInfoFilter) ([]models.SchoolInfo, error) {
	query := `
		SELECT id, key, title, content, created_at, updated_at
		FROM school_info`

	var conditions []string
	var args []interface{}
	if f.Key != "" {
		args = append(args, f.Key)
		conditions = append(conditions, fmt.Sprintf("key = $%d", len(args)))
	}
	if f.SearchText != "" {
		args = append(args, "%"+f.SearchText+"%")
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	query = appendConditions(query, conditions)
	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY key LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying school info: %v", err)
	}
	defer rows.Close()

	var infos []models.SchoolInfo
	for rows.Next() {
		var info models.SchoolInfo
		err := rows.Scan(
			&info.ID,
			&info.Key,
			&info.Title,
			&info.Content,
			&info.CreatedAt,
			&info.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning school info: %v", err)
		}
		infos = append(infos, info)
	}

	return infos, rows.Err()
}

func (s *PostgresStorage) CreateGuestUser(ctx context.Context) (*models.User, error) {
	email := fmt.Sprintf("guest-%d", time.Now().UnixMilli())
	query := `
		INSERT INTO users (email, type)
		VALUES ($1, $2)
		RETURNING id, created_at`

	user := &models.User{
		Email: email,
		Type:  models.UserTypeGuest,
	}
	err := s.db.QueryRowContext(ctx, query, email, models.UserTypeGuest).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error creating guest user: %v", err)
	}

	return user, nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, email, type, created_at
		FROM users
		WHERE id = $1`

	user := &models.User{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Email, &user.Type, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %v", err)
	}

	return user, nil
}

func (s *PostgresStorage) RecordMessage(ctx context.Context, userID string) error {
	query := `INSERT INTO message_log (user_id) VALUES ($1)`

	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("error recording message: %v", err)
	}
	return nil
}

func (s *PostgresStorage) CountMessagesSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM message_log
		WHERE user_id = $1 AND sent_at >= $2`

	var count int
	if err := s.db.QueryRowContext(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting messages: %v", err)
	}
	return count, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func appendConditions(query string, conditions []string) string {
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	return query
}
