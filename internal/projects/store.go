// Package projects persists saved builder projects in Postgres or SQLite.
package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"blossom/internal/logging"
)

var (
	ErrNotFound      = errors.New("project not found")
	ErrInvalidStatus = errors.New("invalid project status")
	ErrMissingUser   = errors.New("project user id is required")
	ErrMissingTitle  = errors.New("project title is required")
)

// Status is the publication state of a project.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// Project is one saved builder session.
type Project struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Code        *string   `json:"code"`
	Thumbnail   *string   `json:"thumbnail"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	UserID      string    `json:"user_id"`
}

// Patch lists the fields Update changes. Nil fields are left alone.
type Patch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *Status `json:"status"`
	Code        *string `json:"code"`
	Thumbnail   *string `json:"thumbnail"`
}

const cacheSize = 1024

// timestamps are stored as fixed-width UTC text so they sort lexically on both backends
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS projects (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'draft',
  code TEXT,
  thumbnail TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_user_id ON projects (user_id);
`

const selectColumns = `SELECT id, user_id, title, description, status, code, thumbnail, created_at, updated_at FROM projects`

type Store struct {
	db       *sql.DB
	postgres bool
	logger   *zap.Logger
	now      func() time.Time

	schemaOnce sync.Once
	schemaErr  error

	cache *lru.Cache[string, Project]
}

// Open connects to dsn. A postgres:// or postgresql:// URL uses pgx; anything else is
// taken as a SQLite file path.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("projects: dsn is required")
	}
	driver := "sqlite"
	postgres := isPostgres(dsn)
	if postgres {
		driver = "pgx"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if !postgres {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	cache, err := lru.New[string, Project](cacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger = logging.OrNop(logger)
	s := &Store{
		db:       db,
		postgres: postgres,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		cache:    cache,
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("project store ready", zap.String("driver", driver))
	return s, nil
}

func isPostgres(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		for _, stmt := range strings.Split(schema, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				s.schemaErr = fmt.Errorf("create projects schema: %w", err)
				return
			}
		}
	})
	return s.schemaErr
}

// rebind turns ? placeholders into $n for Postgres.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Create inserts p with a fresh id and timestamps. An empty status becomes draft.
func (s *Store) Create(ctx context.Context, p Project) (Project, error) {
	if s == nil {
		return Project{}, errors.New("projects: store is nil")
	}
	p.UserID = strings.TrimSpace(p.UserID)
	p.Title = strings.TrimSpace(p.Title)
	if p.UserID == "" {
		return Project{}, ErrMissingUser
	}
	if p.Title == "" {
		return Project{}, ErrMissingTitle
	}
	if p.Status == "" {
		p.Status = StatusDraft
	}
	if !p.Status.Valid() {
		return Project{}, fmt.Errorf("%w: %q", ErrInvalidStatus, p.Status)
	}
	p.ID = uuid.NewString()
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt

	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO projects
  (id, user_id, title, description, status, code, thumbnail, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`),
		p.ID, p.UserID, p.Title, p.Description, string(p.Status),
		nullable(p.Code), nullable(p.Thumbnail),
		p.CreatedAt.Format(timeLayout), p.UpdatedAt.Format(timeLayout))
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}
	s.cache.Add(p.ID, p)
	s.logger.Debug("project created", zap.String("id", p.ID), zap.String("user", p.UserID))
	return p, nil
}

// Get returns the project with id, reading through the cache.
func (s *Store) Get(ctx context.Context, id string) (Project, error) {
	if s == nil {
		return Project{}, errors.New("projects: store is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Project{}, ErrNotFound
	}
	if p, ok := s.cache.Get(id); ok {
		return p, nil
	}
	row := s.db.QueryRowContext(ctx, s.rebind(selectColumns+` WHERE id = ?`), id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("get project %s: %w", id, err)
	}
	s.cache.Add(id, p)
	return p, nil
}

// Update applies patch to the project with id and bumps UpdatedAt.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (Project, error) {
	if s == nil {
		return Project{}, errors.New("projects: store is nil")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return Project{}, fmt.Errorf("%w: %q", ErrInvalidStatus, *patch.Status)
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return Project{}, ErrMissingTitle
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if patch.Title != nil {
		cur.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		cur.Description = *patch.Description
	}
	if patch.Status != nil {
		cur.Status = *patch.Status
	}
	if patch.Code != nil {
		cur.Code = patch.Code
	}
	if patch.Thumbnail != nil {
		cur.Thumbnail = patch.Thumbnail
	}
	cur.UpdatedAt = s.now()

	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE projects
SET title=?, description=?, status=?, code=?, thumbnail=?, updated_at=?
WHERE id=?`),
		cur.Title, cur.Description, string(cur.Status),
		nullable(cur.Code), nullable(cur.Thumbnail),
		cur.UpdatedAt.Format(timeLayout), cur.ID)
	if err != nil {
		s.cache.Remove(cur.ID)
		return Project{}, fmt.Errorf("update project %s: %w", cur.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.cache.Remove(cur.ID)
		return Project{}, ErrNotFound
	}
	s.cache.Add(cur.ID, cur)
	return cur, nil
}

// Delete removes the project with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s == nil {
		return errors.New("projects: store is nil")
	}
	id = strings.TrimSpace(id)
	s.cache.Remove(id)
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM projects WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns a user's projects, most recently created first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Project, error) {
	if s == nil {
		return nil, errors.New("projects: store is nil")
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind(selectColumns+` WHERE user_id = ? ORDER BY created_at DESC, id`),
		strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := []Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (Project, error) {
	var (
		p                    Project
		status               string
		code, thumbnail      sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &status,
		&code, &thumbnail, &createdAt, &updatedAt); err != nil {
		return Project{}, err
	}
	p.Status = Status(status)
	if code.Valid {
		p.Code = &code.String
	}
	if thumbnail.Valid {
		p.Thumbnail = &thumbnail.String
	}
	var err error
	if p.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return Project{}, fmt.Errorf("parse created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return Project{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return p, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
