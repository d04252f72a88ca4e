// Package store provides the segment/profile persistence layer.
// MemoryStore 是預設實作（無資料庫時使用），PostgresStore 走 bun + pgdriver。
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"leoactivation/pkg/api"
)

// MemoryStore is the in-memory api.Store implementation.
// 同時也是測試用的替身。
type MemoryStore struct {
	mu       sync.RWMutex
	segments map[string]api.Segment
	profiles map[string]api.Profile // key: tenant|profile
}

// NewMemoryStore 建立空的記憶體存放區
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		segments: make(map[string]api.Segment),
		profiles: make(map[string]api.Profile),
	}
}

func profileKey(tenantID, profileID string) string {
	return tenantID + "|" + profileID
}

// CreateSegment implements api.Store
func (s *MemoryStore) CreateSegment(ctx context.Context, name string) (*api.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	seg, ok := s.segments[name]
	if !ok {
		seg = api.Segment{Name: name, CreatedAt: now}
	}
	seg.UpdatedAt = now
	s.segments[name] = seg
	return &seg, nil
}

// UpdateSegment implements api.Store
func (s *MemoryStore) UpdateSegment(ctx context.Context, name string) (*api.Segment, error) {
	return s.CreateSegment(ctx, name)
}

// DeleteSegment implements api.Store
func (s *MemoryStore) DeleteSegment(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.segments, name)
	return nil
}

// GetSegment implements api.Store
func (s *MemoryStore) GetSegment(ctx context.Context, name string) (*api.Segment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segments[name]
	if !ok {
		return nil, false, nil
	}
	return &seg, true, nil
}

// ListSegments implements api.Store
func (s *MemoryStore) ListSegments(ctx context.Context) ([]api.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	segments := make([]api.Segment, 0, len(s.segments))
	for _, seg := range s.segments {
		segments = append(segments, seg)
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].Name < segments[j].Name })
	return segments, nil
}

// UpsertProfile implements api.Store
func (s *MemoryStore) UpsertProfile(ctx context.Context, p api.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profileKey(p.TenantID, p.ProfileID)] = p
	return nil
}

// ProfilesBySegment implements api.Store
func (s *MemoryStore) ProfilesBySegment(ctx context.Context, segment string) ([]api.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []api.Profile
	for _, p := range s.profiles {
		for _, seg := range p.Segments {
			if strings.EqualFold(seg, segment) {
				matched = append(matched, p)
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return profileKey(matched[i].TenantID, matched[i].ProfileID) < profileKey(matched[j].TenantID, matched[j].ProfileID)
	})
	return matched, nil
}

// CountProfiles implements api.Store
func (s *MemoryStore) CountProfiles(ctx context.Context, segment string) (int, error) {
	profiles, err := s.ProfilesBySegment(ctx, segment)
	if err != nil {
		return 0, err
	}
	return len(profiles), nil
}
