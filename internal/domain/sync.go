package domain

type SyncPhase string

const (
	PhaseIdle      SyncPhase = "idle"
	PhaseQueueing  SyncPhase = "queueing"
	PhaseSyncing   SyncPhase = "syncing"
	PhaseResolving SyncPhase = "resolving"
	PhaseDone      SyncPhase = "done"
	PhaseError     SyncPhase = "error"
	PhaseOffline   SyncPhase = "offline"
)

// SyncSummary is recomputed every cycle and never persisted.
type SyncSummary struct {
	Phase         SyncPhase `json:"phase"`
	LastSuccessAt int64     `json:"lastSuccessAt,omitempty"`
	LastError     string    `json:"lastError,omitempty"`
	Queued        int       `json:"queued"`
	Pushed        int       `json:"pushed"`
	Pulled        int       `json:"pulled"`
	Conflicts     int       `json:"conflicts"`
}

// SyncRequest pushes the client's pending changes. Bases holds, per pushed
// id, the version the client last synced; the remote only lets a change
// replace a stored record that still matches it.
type SyncRequest struct {
	ClientSince   *int64                 `json:"clientSince,omitempty"`
	ClientChanges []*EmotionRecord       `json:"clientChanges" validate:"dive,required"`
	Bases         map[string]ShadowEntry `json:"bases,omitempty"`
}

// SyncResponse carries the remote's changes since ClientSince. Accepted lists
// the pushed ids the remote took; a nil Accepted means every pushed id.
type SyncResponse struct {
	ServerChanges []*EmotionRecord `json:"serverChanges"`
	ServerSince   *int64           `json:"serverSince,omitempty"`
	Accepted      []string         `json:"accepted"`
}

// ShadowEntry is the last-synced base of one record.
type ShadowEntry struct {
	Rev         int64  `json:"rev,omitempty"`
	UpdatedAt   int64  `json:"updatedAt"`
	Fingerprint string `json:"fingerprint"`
}

func ShadowOf(r *EmotionRecord) ShadowEntry {
	return ShadowEntry{
		Rev:         r.Rev,
		UpdatedAt:   r.UpdatedAt,
		Fingerprint: Fingerprint(r),
	}
}

// RemoteRecord is how the remote history service stores a record per user.
// Seq is the per-user change sequence used as the sync token.
type RemoteRecord struct {
	UserID   string         `json:"user_id"`
	RecordID string         `json:"record_id"`
	Seq      int64          `json:"seq"`
	DeviceID string         `json:"device_id,omitempty"`
	Record   *EmotionRecord `json:"record"`
}
