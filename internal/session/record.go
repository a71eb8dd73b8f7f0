package session

import (
	"context"
	"sync"
	"time"

	"github.com/uep-dev/uepd/internal/coretypes"
	"github.com/uep-dev/uepd/internal/storage"
)

// recordStoreMetadata mirrors the on-disk "metadata" block in
// memory/session_records.json (spec.md §6).
type recordStoreMetadata struct {
	TotalRecords int       `json:"total_records"`
	LastSaved    time.Time `json:"last_saved"`
	Version      int       `json:"version"`
}

// recordStoreFile is the exact on-disk shape persisted under
// memory/session_records.json.
type recordStoreFile struct {
	Records     map[string]*coretypes.SessionRecord `json:"records"`
	SessionIdx  map[string]string                   `json:"session_index"`
	TypeIdx     map[coretypes.SessionKind][]string  `json:"type_index"`
	Metadata    recordStoreMetadata                 `json:"metadata"`
}

// RecordStore is the Session Manager's append-only history: one
// SessionRecord per session, indexed by record id, by business session id,
// and by session kind. Grounded on original_source/core/session_record.py's
// SessionRecordManager.
type RecordStore struct {
	mu sync.Mutex

	store *storage.Storage
	path  []string

	records    map[string]*coretypes.SessionRecord
	sessionIdx map[string]string
	typeIdx    map[coretypes.SessionKind][]string
}

// NewRecordStore creates a record store persisted via store at path
// (typically []string{"memory", "session_records"}).
func NewRecordStore(store *storage.Storage, path []string) *RecordStore {
	return &RecordStore{
		store:      store,
		path:       path,
		records:    make(map[string]*coretypes.SessionRecord),
		sessionIdx: make(map[string]string),
		typeIdx:    make(map[coretypes.SessionKind][]string),
	}
}

// Load reads the persisted store, if any, replacing in-memory state.
func (r *RecordStore) Load(ctx context.Context) error {
	var file recordStoreFile
	if err := r.store.Get(ctx, r.path, &file); err != nil {
		if err == storage.ErrNotFound {
			return nil
		}
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if file.Records != nil {
		r.records = file.Records
	}
	if file.SessionIdx != nil {
		r.sessionIdx = file.SessionIdx
	}
	if file.TypeIdx != nil {
		r.typeIdx = file.TypeIdx
	}
	return nil
}

func (r *RecordStore) save(ctx context.Context) error {
	file := recordStoreFile{
		Records:    r.records,
		SessionIdx: r.sessionIdx,
		TypeIdx:    r.typeIdx,
		Metadata: recordStoreMetadata{
			TotalRecords: len(r.records),
			LastSaved:    time.Now(),
			Version:      1,
		},
	}
	return r.store.Put(ctx, r.path, file)
}

// RecordTrigger appends a new record for a just-started session.
func (r *RecordStore) RecordTrigger(sessionID string, kind coretypes.SessionKind, triggerSummary, triggerUser string) *coretypes.SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	recordID := generateID()
	rec := &coretypes.SessionRecord{
		RecordID:       recordID,
		Kind:           kind,
		SessionID:      sessionID,
		Status:         coretypes.SessionActive,
		TriggerSummary: triggerSummary,
		TriggerUser:    triggerUser,
		Metadata:       make(map[string]any),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.records[recordID] = rec
	r.sessionIdx[sessionID] = recordID
	r.typeIdx[kind] = append(r.typeIdx[kind], recordID)

	_ = r.save(context.Background())
	return rec
}

// UpdateStatus appends a StatusTransition and updates a record's status.
func (r *RecordStore) UpdateStatus(sessionID string, to coretypes.SessionStatus, details map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recordID, ok := r.sessionIdx[sessionID]
	if !ok {
		return
	}
	rec := r.records[recordID]
	rec.Transitions = append(rec.Transitions, coretypes.StatusTransition{
		From:    rec.Status,
		To:      to,
		At:      time.Now(),
		Details: details,
	})
	rec.Status = to
	rec.UpdatedAt = time.Now()

	_ = r.save(context.Background())
}

// RecordCompletion attaches a CompletionSummary and marks the record completed.
func (r *RecordStore) RecordCompletion(sessionID string, summary *coretypes.CompletionSummary, reason coretypes.SessionEndReason) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recordID, ok := r.sessionIdx[sessionID]
	if !ok {
		return
	}
	rec := r.records[recordID]
	rec.Completion = summary
	rec.Status = coretypes.SessionCompleted
	rec.UpdatedAt = time.Now()
	rec.CompletedAt = time.Now()
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]any)
	}
	rec.Metadata["endReason"] = reason

	_ = r.save(context.Background())
}

// Get retrieves a record by its session id.
func (r *RecordStore) Get(sessionID string) (*coretypes.SessionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recordID, ok := r.sessionIdx[sessionID]
	if !ok {
		return nil, false
	}
	rec, ok := r.records[recordID]
	return rec, ok
}

// ByKind returns every record of the given session kind.
func (r *RecordStore) ByKind(kind coretypes.SessionKind) []*coretypes.SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.typeIdx[kind]
	out := make([]*coretypes.SessionRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := r.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// ActiveSessions returns every record whose status is still active.
func (r *RecordStore) ActiveSessions() []*coretypes.SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*coretypes.SessionRecord
	for _, rec := range r.records {
		if rec.Status == coretypes.SessionActive {
			out = append(out, rec)
		}
	}
	return out
}

// Recent returns up to limit records, most-recently-created first.
func (r *RecordStore) Recent(limit int) []*coretypes.SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*coretypes.SessionRecord, 0, len(r.records))
	for _, rec := range r.records {
		all = append(all, rec)
	}
	// Insertion order isn't guaranteed by map iteration; sort by CreatedAt.
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].CreatedAt.After(all[j-1].CreatedAt); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// CleanupOldRecords deletes completed records older than keepDays.
func (r *RecordStore) CleanupOldRecords(ctx context.Context, keepDays int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -keepDays)
	removed := 0
	for id, rec := range r.records {
		if rec.Status != coretypes.SessionCompleted {
			continue
		}
		if rec.CompletedAt.Before(cutoff) {
			delete(r.records, id)
			delete(r.sessionIdx, rec.SessionID)
			ids := r.typeIdx[rec.Kind]
			for i, tid := range ids {
				if tid == id {
					r.typeIdx[rec.Kind] = append(ids[:i], ids[i+1:]...)
					break
				}
			}
			removed++
		}
	}
	if removed > 0 {
		_ = r.save(ctx)
	}
	return removed
}

// Statistics returns a snapshot count of records per status.
func (r *RecordStore) Statistics() map[coretypes.SessionStatus]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := make(map[coretypes.SessionStatus]int)
	for _, rec := range r.records {
		stats[rec.Status]++
	}
	return stats
}

// recordTrigger/recordCompletion are the Manager's convenience wrappers
// around RecordStore for the lifecycle methods in manager.go.
func (m *Manager) recordTrigger(sessionID string, kind coretypes.SessionKind, triggerSummary, triggerUser string) {
	if m.records == nil {
		return
	}
	m.records.RecordTrigger(sessionID, kind, triggerSummary, triggerUser)
}

func (m *Manager) recordCompletion(sessionID string, kind coretypes.SessionKind, summary *coretypes.CompletionSummary, reason coretypes.SessionEndReason) {
	if m.records == nil {
		return
	}
	m.records.RecordCompletion(sessionID, summary, reason)
}
