package store

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/engram/internal/model"
)

// ErrInvalidBackup is returned by Import for envelopes without a memories array.
var ErrInvalidBackup = errors.New("invalid backup: no memories array found")

// Export returns the full state as a backup envelope.
func (s *MemoryStore) Export(now time.Time) *model.Backup {
	meta := s.Meta()
	return &model.Backup{
		Memories:   s.Snapshot(),
		Meta:       &meta,
		Briefing:   s.Briefing(),
		ExportedAt: now.UTC(),
		Version:    model.BackupVersion,
	}
}

// Import replaces the collection, meta record and briefing with the backup's.
// A backup without meta starts a fresh meta record.
func (s *MemoryStore) Import(ctx context.Context, b *model.Backup) (int, error) {
	if b == nil || b.Memories == nil {
		return 0, ErrInvalidBackup
	}
	meta := model.Meta{Created: s.now().UTC()}
	if b.Meta != nil {
		meta = *b.Meta
	}

	if err := s.ReplaceAll(ctx, b.Memories); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putJSON(ctx, KeyMeta, meta); err != nil {
		return 0, err
	}
	s.meta = meta
	if err := s.putJSON(ctx, KeyBriefing, b.Briefing); err != nil {
		return 0, err
	}
	s.briefing = b.Briefing
	return len(s.memories), nil
}
