package service

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
	"github.com/soumenroys/imotaraapp-sub002/internal/repository"

	"github.com/go-playground/validator/v10"
)

// ChangeNotifier is told when a device changed a user's remote history.
type ChangeNotifier interface {
	NotifyHistoryChanged(userID, originDeviceID string, serverSince int64, recordIDs []string)
}

// HistoryService is the remote side of the sync protocol. An incoming record
// is accepted when nothing is stored for its id or when it carries the stored
// content unchanged. A newer record replaces the stored one only if the
// client edited from that stored version: the pushing device wrote it, or
// the base the client sent for the id matches it. Anything else is rejected
// and the stored version is sent back so the client can classify it.
//
// Requests of one user are serialized so the returned serverSince never
// passes over a write the response did not include.
type HistoryService struct {
	repo     repository.RemoteHistoryRepository
	notifier ChangeNotifier
	validate *validator.Validate

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

func NewHistoryService(repo repository.RemoteHistoryRepository, notifier ChangeNotifier) *HistoryService {
	return &HistoryService{
		repo:     repo,
		notifier: notifier,
		validate: validator.New(),
		users:    make(map[string]*sync.Mutex),
	}
}

func (s *HistoryService) lockUser(userID string) func() {
	s.mu.Lock()
	m, ok := s.users[userID]
	if !ok {
		m = &sync.Mutex{}
		s.users[userID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// writeGuard decides whether a newer incoming record may replace the stored
// one. A nil guard keeps plain last-writer-wins.
type writeGuard struct {
	deviceID string
	bases    map[string]domain.ShadowEntry
}

func (g *writeGuard) allows(stored *domain.RemoteRecord, incoming *domain.EmotionRecord) bool {
	if g == nil {
		return true
	}
	if g.deviceID != "" && stored.DeviceID == g.deviceID {
		return true
	}
	base, ok := g.bases[incoming.ID]
	if !ok {
		return false
	}
	return base.UpdatedAt == stored.Record.UpdatedAt && base.Fingerprint == domain.Fingerprint(stored.Record)
}

type appendResult struct {
	accepted []string
	rejected []*domain.EmotionRecord
	seq      int64
}

// ProcessSync stores the client's changes and answers with everything the
// client has not seen since req.ClientSince.
func (s *HistoryService) ProcessSync(ctx context.Context, userID, deviceID string, req *domain.SyncRequest) (*domain.SyncResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid sync request: %w", err)
	}

	var since int64
	if req.ClientSince != nil {
		since = *req.ClientSince
	}

	unlock := s.lockUser(userID)
	defer unlock()

	// Read before writing so the client's own accepted records are not echoed.
	changed, err := s.repo.ListSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}

	res, err := s.store(ctx, userID, deviceID, req.ClientChanges, &writeGuard{deviceID: deviceID, bases: req.Bases})
	if err != nil {
		return nil, err
	}

	acceptedSet := make(map[string]bool, len(res.accepted))
	for _, id := range res.accepted {
		acceptedSet[id] = true
	}

	serverChanges := make([]*domain.EmotionRecord, 0, len(changed)+len(res.rejected))
	seen := make(map[string]bool, len(changed))
	for _, rr := range changed {
		if acceptedSet[rr.RecordID] || rr.Record == nil {
			continue
		}
		seen[rr.RecordID] = true
		serverChanges = append(serverChanges, rr.Record)
	}
	for _, rec := range res.rejected {
		if !seen[rec.ID] {
			serverChanges = append(serverChanges, rec)
		}
	}

	log.Printf("[History] sync user=%s device=%s accepted=%d rejected=%d returned=%d seq=%d",
		userID, deviceID, len(res.accepted), len(res.rejected), len(serverChanges), res.seq)

	serverSince := res.seq
	return &domain.SyncResponse{
		ServerChanges: serverChanges,
		ServerSince:   &serverSince,
		Accepted:      res.accepted,
	}, nil
}

// Snapshot returns the user's full remote history ordered by sequence.
func (s *HistoryService) Snapshot(ctx context.Context, userID string) ([]*domain.EmotionRecord, error) {
	all, err := s.repo.ListSince(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	records := make([]*domain.EmotionRecord, 0, len(all))
	for _, rr := range all {
		if rr.Record != nil {
			records = append(records, rr.Record)
		}
	}
	return records, nil
}

// Append stores records without a pull, last writer wins. Rejected ids come
// back in ServerChanges with their stored versions.
func (s *HistoryService) Append(ctx context.Context, userID, deviceID string, records []*domain.EmotionRecord) (*domain.SyncResponse, error) {
	for _, rec := range records {
		if rec == nil {
			return nil, fmt.Errorf("invalid record: null entry")
		}
		if err := s.validate.Struct(rec); err != nil {
			return nil, fmt.Errorf("invalid record %s: %w", rec.ID, err)
		}
	}

	unlock := s.lockUser(userID)
	defer unlock()

	res, err := s.store(ctx, userID, deviceID, records, nil)
	if err != nil {
		return nil, err
	}

	serverSince := res.seq
	rejected := res.rejected
	if rejected == nil {
		rejected = []*domain.EmotionRecord{}
	}
	return &domain.SyncResponse{
		ServerChanges: rejected,
		ServerSince:   &serverSince,
		Accepted:      res.accepted,
	}, nil
}

func (s *HistoryService) store(ctx context.Context, userID, deviceID string, incoming []*domain.EmotionRecord, guard *writeGuard) (*appendResult, error) {
	res := &appendResult{accepted: []string{}}

	var toSave []*domain.EmotionRecord
	for _, rec := range dedupeLatest(incoming) {
		stored, err := s.repo.Get(ctx, userID, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read record %s: %w", rec.ID, err)
		}

		if stored == nil || stored.Record == nil {
			toSave = append(toSave, wireCopy(rec))
			res.accepted = append(res.accepted, rec.ID)
			continue
		}

		err = accept(stored, rec, guard)
		if err == nil {
			if stored.Record.UpdatedAt < rec.UpdatedAt {
				toSave = append(toSave, wireCopy(rec))
			}
			res.accepted = append(res.accepted, rec.ID)
			continue
		}

		res.rejected = append(res.rejected, stored.Record)
	}

	seq, err := s.repo.Save(ctx, userID, deviceID, toSave)
	if err != nil {
		return nil, fmt.Errorf("failed to save history: %w", err)
	}
	res.seq = seq

	if len(toSave) > 0 && s.notifier != nil {
		ids := make([]string, 0, len(toSave))
		for _, rec := range toSave {
			ids = append(ids, rec.ID)
		}
		s.notifier.NotifyHistoryChanged(userID, deviceID, seq, ids)
	}
	return res, nil
}

// accept returns a *ConflictError holding the stored record when incoming
// must not replace it.
func accept(stored *domain.RemoteRecord, incoming *domain.EmotionRecord, guard *writeGuard) error {
	cur := stored.Record
	switch {
	case incoming.UpdatedAt == cur.UpdatedAt && domain.Fingerprint(incoming) == domain.Fingerprint(cur):
		return nil
	case incoming.UpdatedAt > cur.UpdatedAt && guard.allows(stored, incoming):
		return nil
	default:
		return &ConflictError{Stored: cur}
	}
}

// dedupeLatest keeps the highest updatedAt per id, preserving first-seen
// order.
func dedupeLatest(records []*domain.EmotionRecord) []*domain.EmotionRecord {
	index := make(map[string]int, len(records))
	out := make([]*domain.EmotionRecord, 0, len(records))
	for _, rec := range records {
		if rec == nil || rec.ID == "" {
			continue
		}
		if i, ok := index[rec.ID]; ok {
			if rec.UpdatedAt > out[i].UpdatedAt {
				out[i] = rec
			}
			continue
		}
		index[rec.ID] = len(out)
		out = append(out, rec)
	}
	return out
}

func wireCopy(rec *domain.EmotionRecord) *domain.EmotionRecord {
	c := rec.Clone()
	c.ClearBookkeeping()
	return c
}
