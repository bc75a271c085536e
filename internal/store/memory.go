package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/versekeeper/versekeeper/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Verses map[string]*models.VerseRecord `json:"verses"`
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store with an in-memory map. When a data directory
// is given, the map is persisted to a JSON snapshot so records survive restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	verses map[string]*models.VerseRecord // key: id

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals the save goroutine to stop
	closeOnce    sync.Once

	now func() time.Time
}

// NewMemoryStore creates a new in-memory store. An empty dataDir disables
// persistence.
func NewMemoryStore(dataDir string) *MemoryStore {
	m := &MemoryStore{
		verses: make(map[string]*models.VerseRecord),
		saveCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
		now:    time.Now,
	}

	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "verses.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop debounces save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			select {
			case <-time.After(500 * time.Millisecond):
			case <-m.doneCh:
				return
			}
			m.saveSnapshot()
		}
	}
}

// saveSnapshot writes all records to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	data, err := json.MarshalIndent(snapshot{Verses: m.verses}, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}
	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Verses != nil {
		m.verses = snap.Verses
	}
	log.Info().Int("verses", len(m.verses)).Str("path", m.snapshotPath).Msg("Snapshot loaded")
}

// ── Verses ──────────────────────────────────────────────────

func (m *MemoryStore) CreateVerse(_ context.Context, rec *models.VerseRecord) error {
	rec.Reference = rec.Reference.Normalize()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := m.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	cp := *rec
	m.mu.Lock()
	m.verses[rec.ID] = &cp
	m.mu.Unlock()

	m.requestSave()
	return nil
}

func (m *MemoryStore) GetVerse(_ context.Context, id string) (*models.VerseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.verses[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "verse", Key: id}
	}
	cp := *rec
	return &cp, nil
}

// ListVerses returns records newest first.
func (m *MemoryStore) ListVerses(_ context.Context, filter ListFilter) ([]models.VerseRecord, error) {
	m.mu.RLock()
	out := make([]models.VerseRecord, 0, len(m.verses))
	for _, rec := range m.verses {
		if filter.Since != nil && rec.CreatedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, *rec)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Offset >= len(out) {
		return []models.VerseRecord{}, nil
	}
	out = out[max(filter.Offset, 0):]
	if limit := filter.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) DeleteVerse(_ context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.verses[id]
	delete(m.verses, id)
	m.mu.Unlock()
	if !ok {
		return &ErrNotFound{Entity: "verse", Key: id}
	}
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateFeedback(_ context.Context, id string, fb models.CachedFeedback) error {
	fb.DirectQuote = strings.TrimSpace(fb.DirectQuote)
	fb.Application = strings.TrimSpace(fb.Application)

	m.mu.Lock()
	rec, ok := m.verses[id]
	if !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "verse", Key: id}
	}
	// Replace the record rather than mutate it so earlier copies stay consistent.
	updated := *rec
	updated.Feedback = fb
	updated.UpdatedAt = m.now().UTC()
	m.verses[id] = &updated
	m.mu.Unlock()

	m.requestSave()
	return nil
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops the save goroutine and forces a final snapshot write.
// Safe to call multiple times.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.doneCh)
		if m.snapshotPath != "" {
			m.saveSnapshot()
		}
		log.Info().Msg("Memory store closed")
	})
	return nil
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }
