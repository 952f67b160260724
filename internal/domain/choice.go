package domain

type ChoiceAction string

const (
	ActionSetEmotion     ChoiceAction = "SetEmotion"
	ActionSetIntensity   ChoiceAction = "SetIntensity"
	ActionSaveReflection ChoiceAction = "SaveReflection"
	ActionTagTopic       ChoiceAction = "TagTopic"
	ActionMarkImportant  ChoiceAction = "MarkImportant"
	ActionCreateFollowUp ChoiceAction = "CreateFollowUp"
	ActionDismiss        ChoiceAction = "Dismiss"
	ActionCustom         ChoiceAction = "Custom"
)

// MaxChoiceHistory bounds the undo ring buffer on a record.
const MaxChoiceHistory = 10

type ChoicePayload struct {
	Emotion   *Emotion `json:"emotion,omitempty"`
	Intensity *float64 `json:"intensity,omitempty"`
	Topic     string   `json:"topic,omitempty"`
	Text      string   `json:"text,omitempty"`
	Message   *string  `json:"message,omitempty"`
	Important *bool    `json:"important,omitempty"`
	TopicTags []string `json:"topicTags,omitempty"`
}

// Choice is an immutable action descriptor attached to a record by upstream
// analysis. It is consumed at most once per record.
type Choice struct {
	ID             string         `json:"id" validate:"required"`
	Label          string         `json:"label" validate:"required"`
	Action         ChoiceAction   `json:"action" validate:"required,oneof=SetEmotion SetIntensity SaveReflection TagTopic MarkImportant CreateFollowUp Dismiss Custom"`
	Payload        *ChoicePayload `json:"payload,omitempty"`
	Tooltip        string         `json:"tooltip,omitempty"`
	DisabledReason string         `json:"disabledReason,omitempty"`
}

func (c Choice) Clone() Choice {
	if c.Payload == nil {
		return c
	}
	p := *c.Payload
	if p.Emotion != nil {
		v := *p.Emotion
		p.Emotion = &v
	}
	if p.Intensity != nil {
		v := *p.Intensity
		p.Intensity = &v
	}
	if p.Message != nil {
		v := *p.Message
		p.Message = &v
	}
	if p.Important != nil {
		v := *p.Important
		p.Important = &v
	}
	p.TopicTags = cloneStrings(p.TopicTags)
	c.Payload = &p
	return c
}

// Snapshot field names.
const (
	FieldMessage   = "message"
	FieldEmotion   = "emotion"
	FieldIntensity = "intensity"
	FieldTopicTags = "topicTags"
	FieldImportant = "important"
	FieldFollowUps = "followUps"
)

// ChoiceSnapshot holds the pre-change values of the fields a choice touched.
// Fields lists what was captured; a listed field with a nil value was empty.
type ChoiceSnapshot struct {
	Fields    []string   `json:"fields"`
	Message   *string    `json:"message,omitempty"`
	Emotion   *Emotion   `json:"emotion,omitempty"`
	Intensity *float64   `json:"intensity,omitempty"`
	TopicTags []string   `json:"topicTags,omitempty"`
	Important *bool      `json:"important,omitempty"`
	FollowUps []FollowUp `json:"followUps,omitempty"`
	UpdatedAt int64      `json:"updatedAt"`
}

func (s ChoiceSnapshot) Has(field string) bool {
	for _, f := range s.Fields {
		if f == field {
			return true
		}
	}
	return false
}

func (s ChoiceSnapshot) Clone() ChoiceSnapshot {
	c := s
	c.Fields = cloneStrings(s.Fields)
	c.TopicTags = cloneStrings(s.TopicTags)
	if s.FollowUps != nil {
		c.FollowUps = append([]FollowUp(nil), s.FollowUps...)
	}
	if s.Message != nil {
		v := *s.Message
		c.Message = &v
	}
	if s.Emotion != nil {
		v := *s.Emotion
		c.Emotion = &v
	}
	if s.Intensity != nil {
		v := *s.Intensity
		c.Intensity = &v
	}
	if s.Important != nil {
		v := *s.Important
		c.Important = &v
	}
	return c
}

type AppliedChoice struct {
	ChoiceID     string         `json:"choiceId"`
	PrevSnapshot ChoiceSnapshot `json:"prevSnapshot"`
	AppliedAt    int64          `json:"appliedAt"`
}

type ApplyChoiceRequest struct {
	RecordID string `json:"recordId" validate:"required"`
	ChoiceID string `json:"choiceId" validate:"required"`
}
