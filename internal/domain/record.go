package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

type Emotion string

const (
	EmotionJoy      Emotion = "joy"
	EmotionSadness  Emotion = "sadness"
	EmotionAnger    Emotion = "anger"
	EmotionFear     Emotion = "fear"
	EmotionSurprise Emotion = "surprise"
	EmotionDisgust  Emotion = "disgust"
	EmotionNeutral  Emotion = "neutral"
)

func (e Emotion) Valid() bool {
	switch e {
	case EmotionJoy, EmotionSadness, EmotionAnger, EmotionFear, EmotionSurprise, EmotionDisgust, EmotionNeutral:
		return true
	}
	return false
}

type RecordSource string

const (
	SourceLocal  RecordSource = "local"
	SourceRemote RecordSource = "remote"
	SourceMerged RecordSource = "merged"
	SourceChat   RecordSource = "chat"
)

type FollowUp struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

// EmotionRecord is the unit of synchronization. Timestamps are epoch
// milliseconds. Rev is zero when the record carries no revision counter.
type EmotionRecord struct {
	ID        string       `json:"id" validate:"required"`
	Message   string       `json:"message"`
	Emotion   Emotion      `json:"emotion" validate:"required,oneof=joy sadness anger fear surprise disgust neutral"`
	Intensity float64      `json:"intensity" validate:"gte=0,lte=1"`
	CreatedAt int64        `json:"createdAt" validate:"gte=0"`
	UpdatedAt int64        `json:"updatedAt" validate:"gte=0"`
	Rev       int64        `json:"rev,omitempty" validate:"gte=0"`
	Deleted   bool         `json:"deleted,omitempty"`
	Source    RecordSource `json:"source,omitempty" validate:"omitempty,oneof=local remote merged chat"`

	// Local bookkeeping. Never interpreted by the remote side.
	LocalOnly       bool `json:"localOnly,omitempty"`
	Pending         bool `json:"pending,omitempty"`
	Conflict        bool `json:"conflict,omitempty"`
	ServerConfirmed bool `json:"serverConfirmed,omitempty"`

	TopicTags            []string        `json:"topicTags,omitempty"`
	Important            bool            `json:"important,omitempty"`
	FollowUps            []FollowUp      `json:"followUps,omitempty"`
	Choices              []Choice        `json:"choices,omitempty"`
	AppliedChoices       []string        `json:"appliedChoices,omitempty"`
	AppliedChoiceHistory []AppliedChoice `json:"_appliedChoiceHistory,omitempty"`
}

// Version is the value the push ledger compares against.
func (r *EmotionRecord) Version() int64 {
	if r.UpdatedAt > 0 {
		return r.UpdatedAt
	}
	return r.CreatedAt
}

func (r *EmotionRecord) HasApplied(choiceID string) bool {
	for _, id := range r.AppliedChoices {
		if id == choiceID {
			return true
		}
	}
	return false
}

func (r *EmotionRecord) HasTag(tag string) bool {
	for _, t := range r.TopicTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (r *EmotionRecord) Clone() *EmotionRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.TopicTags = cloneStrings(r.TopicTags)
	c.AppliedChoices = cloneStrings(r.AppliedChoices)
	if r.FollowUps != nil {
		c.FollowUps = append([]FollowUp(nil), r.FollowUps...)
	}
	if r.Choices != nil {
		c.Choices = make([]Choice, len(r.Choices))
		for i := range r.Choices {
			c.Choices[i] = r.Choices[i].Clone()
		}
	}
	if r.AppliedChoiceHistory != nil {
		c.AppliedChoiceHistory = make([]AppliedChoice, len(r.AppliedChoiceHistory))
		for i, h := range r.AppliedChoiceHistory {
			h.PrevSnapshot = h.PrevSnapshot.Clone()
			c.AppliedChoiceHistory[i] = h
		}
	}
	return &c
}

// ClearBookkeeping strips local-only sync flags.
func (r *EmotionRecord) ClearBookkeeping() {
	r.LocalOnly = false
	r.Pending = false
	r.Conflict = false
	r.ServerConfirmed = false
}

type recordContent struct {
	Message   string     `json:"message"`
	Emotion   Emotion    `json:"emotion"`
	Intensity float64    `json:"intensity"`
	Deleted   bool       `json:"deleted"`
	TopicTags []string   `json:"topicTags"`
	Important bool       `json:"important"`
	FollowUps []FollowUp `json:"followUps"`
}

// Fingerprint hashes the user-visible content of a record. Timestamps,
// revisions and bookkeeping flags do not contribute.
func Fingerprint(r *EmotionRecord) string {
	if r == nil {
		return ""
	}
	tags := cloneStrings(r.TopicTags)
	sort.Strings(tags)
	if tags == nil {
		tags = []string{}
	}
	followUps := r.FollowUps
	if followUps == nil {
		followUps = []FollowUp{}
	}

	data, _ := json.Marshal(recordContent{
		Message:   r.Message,
		Emotion:   r.Emotion,
		Intensity: r.Intensity,
		Deleted:   r.Deleted,
		TopicTags: tags,
		Important: r.Important,
		FollowUps: followUps,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Visible filters out tombstones.
func Visible(records []*EmotionRecord) []*EmotionRecord {
	out := make([]*EmotionRecord, 0, len(records))
	for _, r := range records {
		if !r.Deleted {
			out = append(out, r)
		}
	}
	return out
}

// RecordPatch carries the fields a caller wants to change. Nil fields are left
// untouched.
type RecordPatch struct {
	Message        *string       `json:"message,omitempty"`
	Emotion        *Emotion      `json:"emotion,omitempty" validate:"omitempty,oneof=joy sadness anger fear surprise disgust neutral"`
	Intensity      *float64      `json:"intensity,omitempty" validate:"omitempty,gte=0,lte=1"`
	UpdatedAt      *int64        `json:"updatedAt,omitempty"`
	Deleted        *bool         `json:"deleted,omitempty"`
	Source         *RecordSource `json:"source,omitempty"`
	TopicTags      *[]string     `json:"topicTags,omitempty"`
	Important      *bool         `json:"important,omitempty"`
	FollowUps      *[]FollowUp   `json:"followUps,omitempty"`
	AppliedChoices *[]string     `json:"appliedChoices,omitempty"`

	AppliedChoiceHistory *[]AppliedChoice `json:"_appliedChoiceHistory,omitempty"`
}

func (p *RecordPatch) Empty() bool {
	return p.Message == nil && p.Emotion == nil && p.Intensity == nil && p.UpdatedAt == nil &&
		p.Deleted == nil && p.Source == nil && p.TopicTags == nil && p.Important == nil &&
		p.FollowUps == nil && p.AppliedChoices == nil && p.AppliedChoiceHistory == nil
}

// Apply copies the patch onto r. It does not touch UpdatedAt or Rev.
func (p *RecordPatch) Apply(r *EmotionRecord) {
	if p.Message != nil {
		r.Message = *p.Message
	}
	if p.Emotion != nil {
		r.Emotion = *p.Emotion
	}
	if p.Intensity != nil {
		r.Intensity = *p.Intensity
	}
	if p.Deleted != nil {
		r.Deleted = *p.Deleted
	}
	if p.Source != nil {
		r.Source = *p.Source
	}
	if p.TopicTags != nil {
		r.TopicTags = cloneStrings(*p.TopicTags)
	}
	if p.Important != nil {
		r.Important = *p.Important
	}
	if p.FollowUps != nil {
		r.FollowUps = append([]FollowUp(nil), (*p.FollowUps)...)
	}
	if p.AppliedChoices != nil {
		r.AppliedChoices = cloneStrings(*p.AppliedChoices)
	}
	if p.AppliedChoiceHistory != nil {
		r.AppliedChoiceHistory = append([]AppliedChoice(nil), (*p.AppliedChoiceHistory)...)
	}
}

type CreateRecordRequest struct {
	Message   string       `json:"message" validate:"required,max=10000"`
	Emotion   Emotion      `json:"emotion" validate:"required,oneof=joy sadness anger fear surprise disgust neutral"`
	Intensity float64      `json:"intensity" validate:"gte=0,lte=1"`
	TopicTags []string     `json:"topicTags,omitempty" validate:"omitempty,dive,required"`
	Source    RecordSource `json:"source,omitempty" validate:"omitempty,oneof=local chat"`
	Choices   []Choice     `json:"choices,omitempty" validate:"omitempty,dive"`
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
