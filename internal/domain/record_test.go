package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullRecord() *EmotionRecord {
	joy := EmotionJoy
	intensity := 0.9
	msg := "before the walk"
	important := true
	prevEmotion := EmotionSadness
	prevIntensity := 0.3

	return &EmotionRecord{
		ID:        "rec-1",
		Message:   "walked it off",
		Emotion:   EmotionJoy,
		Intensity: 0.75,
		CreatedAt: 1700000000000,
		UpdatedAt: 1700000005000,
		Rev:       4,
		Deleted:   true,
		Source:    SourceMerged,
		TopicTags: []string{"health", "outdoors"},
		Important: true,
		FollowUps: []FollowUp{{ID: "f1", Text: "walk again tomorrow", CreatedAt: 1700000001000}},
		Choices: []Choice{
			{
				ID:     "c1",
				Label:  "Feeling better",
				Action: ActionSetEmotion,
				Payload: &ChoicePayload{
					Emotion:   &joy,
					Intensity: &intensity,
					Topic:     "mood",
					Text:      "note",
					Message:   &msg,
					Important: &important,
					TopicTags: []string{"mood"},
				},
				Tooltip:        "switch to joy",
				DisabledReason: "already applied",
			},
			{ID: "c2", Label: "Dismiss", Action: ActionDismiss},
		},
		AppliedChoices: []string{"c1"},
		AppliedChoiceHistory: []AppliedChoice{{
			ChoiceID:  "c1",
			AppliedAt: 1700000004000,
			PrevSnapshot: ChoiceSnapshot{
				Fields:    []string{FieldEmotion, FieldIntensity, FieldTopicTags, FieldFollowUps},
				Emotion:   &prevEmotion,
				Intensity: &prevIntensity,
				TopicTags: []string{"health"},
				FollowUps: []FollowUp{{ID: "f0", Text: "older", CreatedAt: 1699999999000}},
				UpdatedAt: 1700000003000,
			},
		}},
	}
}

func TestEmotionRecord_JSONRoundTrip(t *testing.T) {
	want := fullRecord()

	data, err := json.Marshal(want)
	require.NoError(t, err)

	var got EmotionRecord
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, want, &got)
	assert.Equal(t, Fingerprint(want), Fingerprint(&got))

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"deleted", "rev", "topicTags", "followUps", "choices", "appliedChoices", "_appliedChoiceHistory"} {
		assert.Contains(t, raw, key)
	}

	var history []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["_appliedChoiceHistory"], &history))
	require.Len(t, history, 1)
	assert.Contains(t, history[0], "prevSnapshot")
	assert.Contains(t, history[0], "choiceId")
}

func TestEmotionRecord_CloneIsDeep(t *testing.T) {
	orig := fullRecord()
	c := orig.Clone()
	require.Equal(t, orig, c)

	c.TopicTags[0] = "changed"
	*c.Choices[0].Payload.Emotion = EmotionAnger
	c.AppliedChoiceHistory[0].PrevSnapshot.FollowUps[0].Text = "changed"

	assert.Equal(t, fullRecord(), orig)
}
