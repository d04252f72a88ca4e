package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"leoactivation/pkg/api"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// segmentRow maps api.Segment onto the cdp_segments table
type segmentRow struct {
	bun.BaseModel `bun:"table:cdp_segments"`

	Name      string    `bun:"name,pk"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// profileRow maps api.Profile onto the cdp_profiles table.
// 主鍵是 (tenant_id, profile_id)，segments 存成 text array 方便以 ANY 查詢。
type profileRow struct {
	bun.BaseModel `bun:"table:cdp_profiles"`

	TenantID      string         `bun:"tenant_id,pk"`
	ProfileID     string         `bun:"profile_id,pk"`
	Email         string         `bun:"email"`
	MobileNumber  string         `bun:"mobile_number"`
	FirstName     string         `bun:"first_name"`
	LastName      string         `bun:"last_name"`
	JobTitle      string         `bun:"job_title"`
	Segments      []string       `bun:"segments,array"`
	RawAttributes map[string]any `bun:"raw_attributes,type:jsonb"`
	UpdatedAt     time.Time      `bun:"updated_at,notnull,default:current_timestamp"`
}

// PostgresStore is the bun-backed api.Store implementation.
type PostgresStore struct {
	db *bun.DB
}

// NewPostgresStore opens a connection pool against the given DSN and
// verifies connectivity before returning.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping failed: %w", err)
	}

	slog.Info("✅ Postgres store connected")
	return &PostgresStore{db: db}, nil
}

// EnsureSchema creates the backing tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*segmentRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("postgres: create cdp_segments: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*profileRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("postgres: create cdp_profiles: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// CreateSegment implements api.Store
func (s *PostgresStore) CreateSegment(ctx context.Context, name string) (*api.Segment, error) {
	now := time.Now()
	row := segmentRow{Name: name, CreatedAt: now, UpdatedAt: now}

	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (name) DO UPDATE").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: upsert segment %q: %w", name, err)
	}

	return &api.Segment{Name: row.Name, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt}, nil
}

// UpdateSegment implements api.Store
func (s *PostgresStore) UpdateSegment(ctx context.Context, name string) (*api.Segment, error) {
	return s.CreateSegment(ctx, name)
}

// DeleteSegment implements api.Store
func (s *PostgresStore) DeleteSegment(ctx context.Context, name string) error {
	_, err := s.db.NewDelete().
		Model((*segmentRow)(nil)).
		Where("name = ?", name).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("postgres: delete segment %q: %w", name, err)
	}
	return nil
}

// GetSegment implements api.Store
func (s *PostgresStore) GetSegment(ctx context.Context, name string) (*api.Segment, bool, error) {
	var row segmentRow
	err := s.db.NewSelect().
		Model(&row).
		Where("name = ?", name).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres: get segment %q: %w", name, err)
	}
	return &api.Segment{Name: row.Name, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt}, true, nil
}

// ListSegments implements api.Store
func (s *PostgresStore) ListSegments(ctx context.Context) ([]api.Segment, error) {
	var rows []segmentRow
	if err := s.db.NewSelect().Model(&rows).Order("name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("postgres: list segments: %w", err)
	}

	segments := make([]api.Segment, 0, len(rows))
	for _, row := range rows {
		segments = append(segments, api.Segment{Name: row.Name, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt})
	}
	return segments, nil
}

// UpsertProfile implements api.Store.
// Conflict key 是 (tenant_id, profile_id)，非鍵欄位整批覆寫。
func (s *PostgresStore) UpsertProfile(ctx context.Context, p api.Profile) error {
	row := profileRow{
		TenantID:      p.TenantID,
		ProfileID:     p.ProfileID,
		Email:         p.Email,
		MobileNumber:  p.MobileNumber,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		JobTitle:      p.JobTitle,
		Segments:      p.Segments,
		RawAttributes: p.RawAttributes,
		UpdatedAt:     time.Now(),
	}

	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (tenant_id, profile_id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("mobile_number = EXCLUDED.mobile_number").
		Set("first_name = EXCLUDED.first_name").
		Set("last_name = EXCLUDED.last_name").
		Set("job_title = EXCLUDED.job_title").
		Set("segments = EXCLUDED.segments").
		Set("raw_attributes = EXCLUDED.raw_attributes").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("postgres: upsert profile %s/%s: %w", p.TenantID, p.ProfileID, err)
	}
	return nil
}

// ProfilesBySegment implements api.Store
func (s *PostgresStore) ProfilesBySegment(ctx context.Context, segment string) ([]api.Profile, error) {
	var rows []profileRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("? = ANY(segments)", segment).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: profiles by segment %q: %w", segment, err)
	}

	profiles := make([]api.Profile, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, api.Profile{
			TenantID:      row.TenantID,
			ProfileID:     row.ProfileID,
			Email:         row.Email,
			MobileNumber:  row.MobileNumber,
			FirstName:     row.FirstName,
			LastName:      row.LastName,
			JobTitle:      row.JobTitle,
			Segments:      row.Segments,
			RawAttributes: row.RawAttributes,
		})
	}
	return profiles, nil
}

// CountProfiles implements api.Store
func (s *PostgresStore) CountProfiles(ctx context.Context, segment string) (int, error) {
	count, err := s.db.NewSelect().
		Model((*profileRow)(nil)).
		Where("? = ANY(segments)", segment).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: count profiles in %q: %w", segment, err)
	}
	return count, nil
}
