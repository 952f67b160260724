package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

var ErrSeqContention = errors.New("history sequence contention")

// RemoteHistoryRepository is the server-side store of every user's records.
// Each write is stamped with a per-user, strictly increasing sequence number
// that doubles as the incremental sync token.
type RemoteHistoryRepository interface {
	Get(ctx context.Context, userID, recordID string) (*domain.RemoteRecord, error)
	ListSince(ctx context.Context, userID string, since int64) ([]*domain.RemoteRecord, error)
	Save(ctx context.Context, userID, deviceID string, records []*domain.EmotionRecord) (int64, error)
	CurrentSeq(ctx context.Context, userID string) (int64, error)
}

const maxSeqRetries = 5

type CouchDBRemoteHistoryRepository struct {
	db *kivik.DB
}

type historyDoc struct {
	ID       string                `json:"_id"`
	Rev      string                `json:"_rev,omitempty"`
	DocType  string                `json:"doc_type"`
	UserID   string                `json:"user_id"`
	RecordID string                `json:"record_id"`
	Seq      int64                 `json:"seq"`
	DeviceID string                `json:"device_id,omitempty"`
	Record   *domain.EmotionRecord `json:"record"`
}

type seqDoc struct {
	ID      string `json:"_id"`
	Rev     string `json:"_rev,omitempty"`
	DocType string `json:"doc_type"`
	UserID  string `json:"user_id"`
	Seq     int64  `json:"seq"`
}

func NewRemoteHistoryRepository(client *kivik.Client, dbName string) *CouchDBRemoteHistoryRepository {
	return &CouchDBRemoteHistoryRepository{
		db: client.DB(dbName),
	}
}

func historyDocID(userID, recordID string) string {
	return fmt.Sprintf("history:%s:%s", userID, recordID)
}

func seqDocID(userID string) string {
	return fmt.Sprintf("historyseq:%s", userID)
}

func (r *CouchDBRemoteHistoryRepository) Get(ctx context.Context, userID, recordID string) (*domain.RemoteRecord, error) {
	row := r.db.Get(ctx, historyDocID(userID, recordID))

	var doc historyDoc
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get history record: %w", err)
	}

	return docToRemoteRecord(&doc), nil
}

func (r *CouchDBRemoteHistoryRepository) ListSince(ctx context.Context, userID string, since int64) ([]*domain.RemoteRecord, error) {
	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"doc_type": "history_record",
			"user_id":  userID,
			"seq":      map[string]interface{}{"$gt": since},
		},
	}

	rows := r.db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []*domain.RemoteRecord
	for rows.Next() {
		var doc historyDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, docToRemoteRecord(&doc))
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	return records, nil
}

func (r *CouchDBRemoteHistoryRepository) CurrentSeq(ctx context.Context, userID string) (int64, error) {
	doc, err := r.loadSeq(ctx, userID)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

// Save reserves one sequence number per record, then writes the records in
// order. It returns the last sequence number assigned.
func (r *CouchDBRemoteHistoryRepository) Save(ctx context.Context, userID, deviceID string, records []*domain.EmotionRecord) (int64, error) {
	if len(records) == 0 {
		return r.CurrentSeq(ctx, userID)
	}

	first, err := r.reserve(ctx, userID, int64(len(records)))
	if err != nil {
		return 0, err
	}

	seq := first
	for _, rec := range records {
		docID := historyDocID(userID, rec.ID)

		doc := historyDoc{
			ID:       docID,
			DocType:  "history_record",
			UserID:   userID,
			RecordID: rec.ID,
			Seq:      seq,
			DeviceID: deviceID,
			Record:   rec,
		}

		var existing historyDoc
		if err := r.db.Get(ctx, docID).ScanDoc(&existing); err == nil {
			doc.Rev = existing.Rev
		} else if kivik.HTTPStatus(err) != 404 {
			return 0, fmt.Errorf("failed to read history record: %w", err)
		}

		if _, err := r.db.Put(ctx, docID, doc); err != nil {
			return 0, fmt.Errorf("failed to save history record: %w", err)
		}
		seq++
	}

	return seq - 1, nil
}

func (r *CouchDBRemoteHistoryRepository) loadSeq(ctx context.Context, userID string) (*seqDoc, error) {
	var doc seqDoc
	if err := r.db.Get(ctx, seqDocID(userID)).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == 404 {
			return &seqDoc{ID: seqDocID(userID), DocType: "history_seq", UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to read history sequence: %w", err)
	}
	return &doc, nil
}

// reserve bumps the per-user counter by n and returns the first reserved
// number. Concurrent writers are resolved by retrying on a revision conflict.
func (r *CouchDBRemoteHistoryRepository) reserve(ctx context.Context, userID string, n int64) (int64, error) {
	for attempt := 0; attempt < maxSeqRetries; attempt++ {
		doc, err := r.loadSeq(ctx, userID)
		if err != nil {
			return 0, err
		}

		first := doc.Seq + 1
		doc.Seq += n

		_, err = r.db.Put(ctx, doc.ID, doc)
		if err == nil {
			return first, nil
		}
		if kivik.HTTPStatus(err) != 409 {
			return 0, fmt.Errorf("failed to advance history sequence: %w", err)
		}
	}
	return 0, ErrSeqContention
}

func docToRemoteRecord(doc *historyDoc) *domain.RemoteRecord {
	return &domain.RemoteRecord{
		UserID:   doc.UserID,
		RecordID: doc.RecordID,
		Seq:      doc.Seq,
		DeviceID: doc.DeviceID,
		Record:   doc.Record,
	}
}

// MemoryRemoteHistoryRepository keeps everything in process memory. The server
// uses it when DB_DRIVER=memory.
type MemoryRemoteHistoryRepository struct {
	mu      sync.RWMutex
	records map[string]map[string]*domain.RemoteRecord
	seq     map[string]int64
}

func NewMemoryRemoteHistoryRepository() *MemoryRemoteHistoryRepository {
	return &MemoryRemoteHistoryRepository{
		records: make(map[string]map[string]*domain.RemoteRecord),
		seq:     make(map[string]int64),
	}
}

func (r *MemoryRemoteHistoryRepository) Get(ctx context.Context, userID, recordID string) (*domain.RemoteRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rr, ok := r.records[userID][recordID]
	if !ok {
		return nil, nil
	}
	c := *rr
	c.Record = rr.Record.Clone()
	return &c, nil
}

func (r *MemoryRemoteHistoryRepository) ListSince(ctx context.Context, userID string, since int64) ([]*domain.RemoteRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.RemoteRecord
	for _, rr := range r.records[userID] {
		if rr.Seq > since {
			c := *rr
			c.Record = rr.Record.Clone()
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r *MemoryRemoteHistoryRepository) Save(ctx context.Context, userID, deviceID string, records []*domain.EmotionRecord) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.records[userID] == nil {
		r.records[userID] = make(map[string]*domain.RemoteRecord)
	}
	for _, rec := range records {
		r.seq[userID]++
		r.records[userID][rec.ID] = &domain.RemoteRecord{
			UserID:   userID,
			RecordID: rec.ID,
			Seq:      r.seq[userID],
			DeviceID: deviceID,
			Record:   rec.Clone(),
		}
	}
	return r.seq[userID], nil
}

func (r *MemoryRemoteHistoryRepository) CurrentSeq(ctx context.Context, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq[userID], nil
}
