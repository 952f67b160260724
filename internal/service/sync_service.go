package service

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
	"github.com/soumenroys/imotaraapp-sub002/internal/repository"
	"github.com/soumenroys/imotaraapp-sub002/internal/storage"
)

// HistoryRemote is the push/pull endpoint a sync cycle talks to.
type HistoryRemote interface {
	Sync(ctx context.Context, req *domain.SyncRequest) (*domain.SyncResponse, error)
}

// Connectivity reports whether a sync attempt is worth making.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// SyncService runs sync cycles against the local store: push pending records,
// pull remote changes, classify overlaps, and commit ledger, shadow, token and
// conflicts together. At most one cycle is in flight; starting one cancels the
// previous one, whose writes are then discarded.
type SyncService struct {
	store  storage.KV
	remote HistoryRemote
	conn   Connectivity
	now    repository.Clock

	mu           sync.Mutex
	cycle        uint64
	cancel       context.CancelFunc
	summary      domain.SyncSummary
	listeners    map[int]func(domain.SyncSummary)
	nextListener int
}

func NewSyncService(store storage.KV, remote HistoryRemote, conn Connectivity, now repository.Clock) *SyncService {
	if now == nil {
		now = repository.SystemClock
	}
	return &SyncService{
		store:     store,
		remote:    remote,
		conn:      conn,
		now:       now,
		summary:   domain.SyncSummary{Phase: domain.PhaseIdle},
		listeners: make(map[int]func(domain.SyncSummary)),
	}
}

func (s *SyncService) Summary() domain.SyncSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Subscribe registers fn for every summary transition. The returned func
// removes it.
func (s *SyncService) Subscribe(fn func(domain.SyncSummary)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

type cycleResult struct {
	pushed    int
	pulled    int
	conflicts int
}

// Sync runs one cycle and returns the resulting summary.
func (s *SyncService) Sync(ctx context.Context) (domain.SyncSummary, error) {
	if s.conn != nil && !s.conn.Online(ctx) {
		s.goOffline()
		return s.Summary(), ErrOffline
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	cycleCtx, cancel := context.WithCancel(ctx)
	s.cycle++
	id := s.cycle
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		if s.cycle == id {
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	s.transition(id, func(sum *domain.SyncSummary) {
		sum.Phase = domain.PhaseQueueing
		sum.LastError = ""
	})

	state := repository.NewLocalState(s.store, s.now)

	records, err := state.History.List(cycleCtx)
	if err != nil {
		return s.fail(id, err)
	}
	pending, err := state.Ledger.ComputePending(cycleCtx, records)
	if err != nil {
		return s.fail(id, err)
	}
	since, err := state.Token.Get(cycleCtx)
	if err != nil {
		return s.fail(id, err)
	}
	shadow, err := state.Shadow.Load(cycleCtx)
	if err != nil {
		return s.fail(id, err)
	}

	// Records waiting on a user decision are held back until resolved.
	outgoing := make([]*domain.EmotionRecord, 0, len(pending))
	bases := make(map[string]domain.ShadowEntry)
	for _, rec := range pending {
		if rec.Conflict {
			continue
		}
		wire := rec.Clone()
		wire.ClearBookkeeping()
		outgoing = append(outgoing, wire)
		if base, ok := shadow[rec.ID]; ok {
			bases[rec.ID] = base
		}
	}

	s.transition(id, func(sum *domain.SyncSummary) {
		sum.Phase = domain.PhaseSyncing
		sum.Queued = len(outgoing)
	})

	resp, err := s.remote.Sync(cycleCtx, &domain.SyncRequest{
		ClientSince:   since,
		ClientChanges: outgoing,
		Bases:         bases,
	})
	if err := cycleCtx.Err(); err != nil {
		return s.abort(id, err)
	}
	if err != nil {
		return s.fail(id, err)
	}
	if resp == nil {
		resp = &domain.SyncResponse{}
	}

	if !s.transition(id, func(sum *domain.SyncSummary) { sum.Phase = domain.PhaseResolving }) {
		return s.Summary(), context.Canceled
	}

	var result cycleResult
	err = storage.Update(cycleCtx, s.store, func(tx storage.KV) error {
		if !s.isCurrent(id) {
			return context.Canceled
		}
		return s.commit(cycleCtx, repository.NewLocalState(tx, s.now), outgoing, resp, &result)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return s.abort(id, err)
		}
		return s.fail(id, err)
	}

	s.transition(id, func(sum *domain.SyncSummary) {
		sum.Phase = domain.PhaseDone
		sum.LastSuccessAt = s.now()
		sum.LastError = ""
		sum.Pushed = result.pushed
		sum.Pulled = result.pulled
		sum.Conflicts = result.conflicts
	})
	return s.Summary(), nil
}

// commit merges the response into local state. It runs inside one
// transaction: either everything here lands or nothing does.
func (s *SyncService) commit(ctx context.Context, st *repository.LocalState, sent []*domain.EmotionRecord, resp *domain.SyncResponse, result *cycleResult) error {
	records, err := st.History.List(ctx)
	if err != nil {
		return err
	}
	shadow, err := st.Shadow.Load(ctx)
	if err != nil {
		return err
	}

	localByID := make(map[string]*domain.EmotionRecord, len(records))
	for _, rec := range records {
		localByID[rec.ID] = rec
	}

	acceptedIDs := resp.Accepted
	if acceptedIDs == nil {
		acceptedIDs = make([]string, 0, len(sent))
		for _, rec := range sent {
			acceptedIDs = append(acceptedIDs, rec.ID)
		}
	}
	rejected := make(map[string]bool, len(sent))
	for _, rec := range sent {
		rejected[rec.ID] = true
	}
	for _, id := range acceptedIDs {
		delete(rejected, id)
	}

	now := s.now()
	var (
		applied    []*domain.EmotionRecord
		inSync     []*domain.EmotionRecord
		conflicts  []*domain.HistoryConflict
		conflicted = make(map[string]bool)
	)
	raise := func(local, remote *domain.EmotionRecord, reason domain.ConflictReason, summary string) error {
		conflicted[remote.ID] = true
		conflicts = append(conflicts, &domain.HistoryConflict{
			ID:         domain.ConflictID(remote.ID),
			RecordID:   remote.ID,
			Reason:     reason,
			Local:      local.Clone(),
			Remote:     remote.Clone(),
			Summary:    summary,
			DetectedAt: now,
		})
		yes := true
		return st.History.SetFlags(ctx, remote.ID, repository.RecordFlags{Conflict: &yes})
	}

	for _, remote := range resp.ServerChanges {
		if remote == nil || remote.ID == "" {
			continue
		}
		result.pulled++

		local := localByID[remote.ID]
		if local == nil {
			rec, err := st.History.Upsert(ctx, adoptRemote(remote))
			if err != nil {
				return err
			}
			applied = append(applied, rec)
			continue
		}

		var base *domain.ShadowEntry
		if entry, ok := shadow[remote.ID]; ok {
			base = &entry
		}

		decision := DetectConflict(local, remote, base)
		log.Printf("[Sync] record %s: %s", remote.ID, decision.Summary)

		if decision.Conflict {
			if err := raise(local, remote, decision.Reason, decision.Summary); err != nil {
				return err
			}
			continue
		}

		winner := decision.Winner
		if rejected[remote.ID] && winner == domain.WinnerLocal {
			// The remote refused our copy and will keep refusing it. Identical
			// content settles on the stored version; anything else needs a
			// decision.
			if decision.Reason != domain.ReasonInSync {
				if err := raise(local, remote, decision.Reason, "remote rejected the local version: "+decision.Summary); err != nil {
					return err
				}
				continue
			}
			winner = domain.WinnerRemote
		}

		switch winner {
		case domain.WinnerRemote:
			rec, err := st.History.Upsert(ctx, adoptRemote(remote))
			if err != nil {
				return err
			}
			applied = append(applied, rec)
		case domain.WinnerLocal:
			if decision.Reason == domain.ReasonInSync {
				inSync = append(inSync, remote)
			}
		}
	}

	sentByID := make(map[string]*domain.EmotionRecord, len(sent))
	for _, rec := range sent {
		sentByID[rec.ID] = rec
	}

	var confirmed []*domain.EmotionRecord
	var confirmedIDs []string
	no, yes := false, true
	for _, id := range acceptedIDs {
		rec, ok := sentByID[id]
		if !ok || conflicted[id] {
			continue
		}
		confirmed = append(confirmed, rec)
		confirmedIDs = append(confirmedIDs, id)

		if cur := localByID[id]; cur != nil && cur.Version() == rec.Version() {
			if err := st.History.SetFlags(ctx, id, repository.RecordFlags{
				LocalOnly:       &no,
				Pending:         &no,
				ServerConfirmed: &yes,
			}); err != nil {
				return err
			}
		}
	}
	result.pushed = len(confirmed)

	if err := st.Ledger.MarkPushed(ctx, confirmedIDs, confirmed); err != nil {
		return err
	}

	// Remote versions adopted locally are already on the server.
	appliedIDs := make([]string, 0, len(applied))
	for _, rec := range applied {
		appliedIDs = append(appliedIDs, rec.ID)
	}
	if err := st.Ledger.MarkPushed(ctx, appliedIDs, applied); err != nil {
		return err
	}

	advanced := append(append(append([]*domain.EmotionRecord{}, confirmed...), applied...), inSync...)
	if err := st.Shadow.Advance(ctx, advanced...); err != nil {
		return err
	}

	if err := st.Conflicts.Upsert(ctx, conflicts); err != nil {
		return err
	}

	if resp.ServerSince != nil {
		if err := st.Token.Set(ctx, *resp.ServerSince); err != nil {
			return err
		}
	}

	result.conflicts, err = st.Conflicts.CountUnresolved(ctx)
	return err
}

func adoptRemote(remote *domain.EmotionRecord) *domain.EmotionRecord {
	rec := remote.Clone()
	rec.ClearBookkeeping()
	rec.ServerConfirmed = true
	if rec.Source != domain.SourceMerged {
		rec.Source = domain.SourceRemote
	}
	return rec
}

func (s *SyncService) isCurrent(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycle == id
}

// transition mutates the summary on behalf of cycle id and notifies
// listeners. A superseded cycle changes nothing and gets false.
func (s *SyncService) transition(id uint64, mutate func(*domain.SyncSummary)) bool {
	s.mu.Lock()
	if s.cycle != id {
		s.mu.Unlock()
		return false
	}
	mutate(&s.summary)
	snapshot := s.summary
	listeners := make([]func(domain.SyncSummary), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
	return true
}

func (s *SyncService) fail(id uint64, err error) (domain.SyncSummary, error) {
	log.Printf("[Sync] cycle failed: %v", err)
	s.transition(id, func(sum *domain.SyncSummary) {
		sum.Phase = domain.PhaseError
		sum.LastError = err.Error()
	})
	return s.Summary(), err
}

// abort settles a cancelled cycle back to idle. A superseded cycle leaves
// the summary to its successor.
func (s *SyncService) abort(id uint64, err error) (domain.SyncSummary, error) {
	s.transition(id, func(sum *domain.SyncSummary) {
		sum.Phase = domain.PhaseIdle
	})
	return s.Summary(), err
}

// goOffline cancels any cycle in flight before reporting offline, so that
// cycle cannot report done afterwards.
func (s *SyncService) goOffline() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.cycle++
	id := s.cycle
	s.mu.Unlock()

	s.transition(id, func(sum *domain.SyncSummary) {
		sum.Phase = domain.PhaseOffline
	})
}
