package api

import (
	"context"
	"time"
)

// Segment 代表 CDP 中的一個客群
type Segment struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile 代表一筆客戶檔案（upsert 的最小欄位集）
type Profile struct {
	TenantID      string         `json:"tenant_id"`
	ProfileID     string         `json:"profile_id"`
	Email         string         `json:"email,omitempty"`
	MobileNumber  string         `json:"mobile_number,omitempty"`
	FirstName     string         `json:"first_name,omitempty"`
	LastName      string         `json:"last_name,omitempty"`
	JobTitle      string         `json:"job_title,omitempty"`
	Segments      []string       `json:"segments,omitempty"`
	RawAttributes map[string]any `json:"raw_attributes,omitempty"`
}

// Store defines the persistence contract for segments and profiles.
// 有兩種實作：in-memory（預設與測試用）與 Postgres（bun）。
type Store interface {
	// CreateSegment registers a new segment. Creating an existing
	// segment is treated as an update of its timestamp.
	CreateSegment(ctx context.Context, name string) (*Segment, error)
	// UpdateSegment touches an existing segment.
	UpdateSegment(ctx context.Context, name string) (*Segment, error)
	// DeleteSegment removes a segment. Missing segments are not an error.
	DeleteSegment(ctx context.Context, name string) error
	// GetSegment looks up a segment by name.
	GetSegment(ctx context.Context, name string) (*Segment, bool, error)
	// ListSegments returns all known segments.
	ListSegments(ctx context.Context) ([]Segment, error)

	// UpsertProfile inserts or updates a profile keyed by (tenant, profile).
	UpsertProfile(ctx context.Context, p Profile) error
	// ProfilesBySegment returns all profiles that belong to the segment.
	ProfilesBySegment(ctx context.Context, segment string) ([]Profile, error)
	// CountProfiles returns the number of profiles in the segment.
	CountProfiles(ctx context.Context, segment string) (int, error)
}
