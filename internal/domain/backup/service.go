// Package backup maintains the append-only snapshot log behind the ward
// document: one entry per committed state, the only undo mechanism in the
// system.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/wardtrack/wardtrack/internal/platform/store"
)

// UnknownUser tags backup entries committed without a user context.
const UnknownUser = "unknown"

// Meta is the read-only listing surface of the log.
type Meta struct {
	Timestamp    int64  `json:"timestamp"`
	PatientCount int    `json:"patientCount"`
	NoteCount    int    `json:"noteCount"`
	User         string `json:"user"`
}

// Service wraps the backup store with the log's semantics: best-effort
// appends, newest-first listing, restore-by-timestamp into the live document.
type Service struct {
	backups store.BackupStore
	docs    store.DocumentStore
	log     zerolog.Logger

	now func() time.Time
}

func NewService(backups store.BackupStore, docs store.DocumentStore, logger zerolog.Logger) *Service {
	return &Service{backups: backups, docs: docs, log: logger, now: time.Now}
}

// Append records a snapshot keyed by the current time. Failures are logged
// and swallowed: the backup log must never block or fail the primary save.
// Writes are sequential behind the ward service's lock, so same-millisecond
// key collisions do not occur in practice.
func (s *Service) Append(ctx context.Context, data []byte, user string) {
	if user == "" {
		user = UnknownUser
	}
	e := store.Entry{
		Timestamp: s.now().UnixMilli(),
		User:      user,
		Data:      data,
	}
	if err := s.backups.Append(ctx, e); err != nil {
		s.log.Error().Err(err).Int64("timestamp", e.Timestamp).Msg("backup append failed")
	}
}

// List returns metadata for every entry, newest first. An entry whose
// snapshot no longer parses is listed with zero counts rather than dropped.
func (s *Service) List(ctx context.Context) ([]Meta, error) {
	entries, err := s.backups.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	metas := make([]Meta, 0, len(entries))
	for _, e := range entries {
		m := Meta{Timestamp: e.Timestamp, User: e.User}
		if m.User == "" {
			m.User = UnknownUser
		}
		var doc struct {
			Patients  []json.RawMessage `json:"patients"`
			WardNotes []json.RawMessage `json:"wardNotes"`
		}
		if err := json.Unmarshal(e.Data, &doc); err == nil {
			m.PatientCount = len(doc.Patients)
			m.NoteCount = len(doc.WardNotes)
		}
		metas = append(metas, m)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Timestamp > metas[j].Timestamp })
	return metas, nil
}

// Restore overwrites the live document with the snapshot stored at exactly
// the given timestamp. It reports false, with nothing mutated, when no such
// entry exists. The caller refreshes the ward service afterwards.
func (s *Service) Restore(ctx context.Context, timestamp int64) (bool, error) {
	e, ok, err := s.backups.Get(ctx, timestamp)
	if err != nil {
		return false, fmt.Errorf("get backup %d: %w", timestamp, err)
	}
	if !ok {
		return false, nil
	}
	if err := s.docs.Save(ctx, store.WardDBKey, e.Data); err != nil {
		return false, fmt.Errorf("restore backup %d: %w", timestamp, err)
	}
	return true, nil
}

// Clear empties the log. Resetting the live document does NOT call this:
// history survives a reset.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.backups.Clear(ctx); err != nil {
		return fmt.Errorf("clear backups: %w", err)
	}
	return nil
}
