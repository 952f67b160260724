package domain

type ConflictReason string

const (
	ReasonBothDeleted       ConflictReason = "both-deleted"
	ReasonDeleteEdit        ConflictReason = "delete-edit"
	ReasonBothEdited        ConflictReason = "both-edited"
	ReasonNewerRemote       ConflictReason = "newer-remote"
	ReasonNewerLocal        ConflictReason = "newer-local"
	ReasonSameUpdatedAtDiff ConflictReason = "same-updatedAt-diff-content"
	ReasonDuplicateID       ConflictReason = "duplicate-id"
	ReasonInSync            ConflictReason = "in-sync"
)

type Winner string

const (
	WinnerLocal  Winner = "local"
	WinnerRemote Winner = "remote"
	WinnerNone   Winner = "none"
)

type FieldDiff struct {
	Field  string `json:"field"`
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

// ConflictDecision is what the detector returns for one (local, remote, base)
// triple. Conflict is true when the user has to decide.
type ConflictDecision struct {
	RecordID string         `json:"recordId"`
	Reason   ConflictReason `json:"reason"`
	Conflict bool           `json:"conflict"`
	Winner   Winner         `json:"winner"`
	Diff     []FieldDiff    `json:"diff,omitempty"`
	Summary  string         `json:"summary"`
}

type Resolution string

const (
	ResolutionKeptLocal  Resolution = "kept-local"
	ResolutionKeptRemote Resolution = "kept-remote"
	ResolutionMerged     Resolution = "merged"
)

type HistoryConflict struct {
	ID         string         `json:"id"`
	RecordID   string         `json:"recordId"`
	Reason     ConflictReason `json:"reason"`
	Local      *EmotionRecord `json:"local"`
	Remote     *EmotionRecord `json:"remote"`
	Summary    string         `json:"summary,omitempty"`
	DetectedAt int64          `json:"detectedAt"`
	Resolution Resolution     `json:"resolution,omitempty"`
	ResolvedAt int64          `json:"resolvedAt,omitempty"`
	Merged     *EmotionRecord `json:"merged,omitempty"`
}

func ConflictID(recordID string) string {
	return "conflict:" + recordID
}

func (c *HistoryConflict) Resolved() bool {
	return c.Resolution != ""
}

type ConflictResolutionRequest struct {
	Resolution Resolution     `json:"resolution" validate:"required,oneof=kept-local kept-remote merged"`
	Merged     *EmotionRecord `json:"merged,omitempty" validate:"required_if=Resolution merged"`
}
