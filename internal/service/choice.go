package service

import (
	"github.com/soumenroys/imotaraapp-sub002/internal/domain"

	"github.com/google/uuid"
)

// ApplyChoice returns a new version of record with choice applied. It never
// mutates its inputs and never performs I/O.
//
// A choice already listed in AppliedChoices is a no-op: the same record is
// returned. Otherwise the touched fields are snapshotted onto the bounded
// undo history, the choice id is recorded and updatedAt moves forward to now
// (or one past the current value when the clock is behind).
func ApplyChoice(record *domain.EmotionRecord, choice domain.Choice, now int64) *domain.EmotionRecord {
	if record == nil || record.HasApplied(choice.ID) {
		return record
	}

	next := record.Clone()
	payload := choice.Payload
	if payload == nil {
		payload = &domain.ChoicePayload{}
	}

	snap := domain.ChoiceSnapshot{UpdatedAt: record.UpdatedAt}

	switch choice.Action {
	case domain.ActionSetEmotion:
		if payload.Emotion != nil && payload.Emotion.Valid() {
			captureEmotion(&snap, record)
			next.Emotion = *payload.Emotion
		}

	case domain.ActionSetIntensity:
		if payload.Intensity != nil {
			captureIntensity(&snap, record)
			next.Intensity = clamp01(*payload.Intensity)
		}

	case domain.ActionTagTopic:
		tags := append([]string{payload.Topic}, payload.TopicTags...)
		captureTags(&snap, record)
		next.TopicTags = mergeTags(next.TopicTags, tags)

	case domain.ActionMarkImportant:
		captureImportant(&snap, record)
		next.Important = true

	case domain.ActionCreateFollowUp:
		text := payload.Text
		if text == "" {
			text = choice.Label
		}
		captureFollowUps(&snap, record)
		next.FollowUps = append(next.FollowUps, followUpFor(record, choice, text, now))

	case domain.ActionSaveReflection:
		if payload.Text != "" {
			captureFollowUps(&snap, record)
			next.FollowUps = append(next.FollowUps, followUpFor(record, choice, payload.Text, now))
		}

	case domain.ActionDismiss:
		// recorded as applied, nothing else changes

	case domain.ActionCustom:
		if payload.Message != nil {
			captureMessage(&snap, record)
			next.Message = *payload.Message
		}
		if payload.Emotion != nil && payload.Emotion.Valid() {
			captureEmotion(&snap, record)
			next.Emotion = *payload.Emotion
		}
		if payload.Intensity != nil {
			captureIntensity(&snap, record)
			next.Intensity = clamp01(*payload.Intensity)
		}
		if payload.Important != nil {
			captureImportant(&snap, record)
			next.Important = *payload.Important
		}
		if payload.Topic != "" || len(payload.TopicTags) > 0 {
			captureTags(&snap, record)
			next.TopicTags = mergeTags(next.TopicTags, append([]string{payload.Topic}, payload.TopicTags...))
		}
	}

	next.AppliedChoiceHistory = append(next.AppliedChoiceHistory, domain.AppliedChoice{
		ChoiceID:     choice.ID,
		PrevSnapshot: snap,
		AppliedAt:    now,
	})
	if n := len(next.AppliedChoiceHistory); n > domain.MaxChoiceHistory {
		next.AppliedChoiceHistory = append([]domain.AppliedChoice(nil), next.AppliedChoiceHistory[n-domain.MaxChoiceHistory:]...)
	}

	next.AppliedChoices = append(next.AppliedChoices, choice.ID)
	next.UpdatedAt = advance(record.UpdatedAt, now)
	return next
}

// UndoLastChoice restores the fields captured by the most recent history
// entry and pops it. AppliedChoices is left as is, so an undone choice stays
// consumed. The second result is false when there is nothing to undo.
func UndoLastChoice(record *domain.EmotionRecord, now int64) (*domain.EmotionRecord, bool) {
	if record == nil || len(record.AppliedChoiceHistory) == 0 {
		return record, false
	}

	next := record.Clone()
	last := next.AppliedChoiceHistory[len(next.AppliedChoiceHistory)-1]
	snap := last.PrevSnapshot

	for _, field := range snap.Fields {
		switch field {
		case domain.FieldMessage:
			next.Message = ""
			if snap.Message != nil {
				next.Message = *snap.Message
			}
		case domain.FieldEmotion:
			if snap.Emotion != nil {
				next.Emotion = *snap.Emotion
			}
		case domain.FieldIntensity:
			next.Intensity = 0
			if snap.Intensity != nil {
				next.Intensity = *snap.Intensity
			}
		case domain.FieldTopicTags:
			next.TopicTags = snap.TopicTags
		case domain.FieldImportant:
			next.Important = snap.Important != nil && *snap.Important
		case domain.FieldFollowUps:
			next.FollowUps = snap.FollowUps
		}
	}

	next.AppliedChoiceHistory = next.AppliedChoiceHistory[:len(next.AppliedChoiceHistory)-1]
	if len(next.AppliedChoiceHistory) == 0 {
		next.AppliedChoiceHistory = nil
	}
	next.UpdatedAt = advance(record.UpdatedAt, now)
	return next, true
}

func advance(current, now int64) int64 {
	if now > current {
		return now
	}
	return current + 1
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func mergeTags(existing, add []string) []string {
	out := append([]string(nil), existing...)
	seen := make(map[string]bool, len(out)+len(add))
	for _, t := range out {
		seen[t] = true
	}
	for _, t := range add {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// followUpFor derives the follow-up id from the record and choice so the
// transform stays deterministic.
func followUpFor(record *domain.EmotionRecord, choice domain.Choice, text string, now int64) domain.FollowUp {
	return domain.FollowUp{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(record.ID+"/"+choice.ID)).String(),
		Text:      text,
		CreatedAt: now,
	}
}

func captureMessage(s *domain.ChoiceSnapshot, r *domain.EmotionRecord) {
	if s.Has(domain.FieldMessage) {
		return
	}
	v := r.Message
	s.Message = &v
	s.Fields = append(s.Fields, domain.FieldMessage)
}

func captureEmotion(s *domain.ChoiceSnapshot, r *domain.EmotionRecord) {
	if s.Has(domain.FieldEmotion) {
		return
	}
	v := r.Emotion
	s.Emotion = &v
	s.Fields = append(s.Fields, domain.FieldEmotion)
}

func captureIntensity(s *domain.ChoiceSnapshot, r *domain.EmotionRecord) {
	if s.Has(domain.FieldIntensity) {
		return
	}
	v := r.Intensity
	s.Intensity = &v
	s.Fields = append(s.Fields, domain.FieldIntensity)
}

func captureTags(s *domain.ChoiceSnapshot, r *domain.EmotionRecord) {
	if s.Has(domain.FieldTopicTags) {
		return
	}
	if r.TopicTags != nil {
		s.TopicTags = append([]string(nil), r.TopicTags...)
	}
	s.Fields = append(s.Fields, domain.FieldTopicTags)
}

func captureImportant(s *domain.ChoiceSnapshot, r *domain.EmotionRecord) {
	if s.Has(domain.FieldImportant) {
		return
	}
	v := r.Important
	s.Important = &v
	s.Fields = append(s.Fields, domain.FieldImportant)
}

func captureFollowUps(s *domain.ChoiceSnapshot, r *domain.EmotionRecord) {
	if s.Has(domain.FieldFollowUps) {
		return
	}
	if r.FollowUps != nil {
		s.FollowUps = append([]domain.FollowUp(nil), r.FollowUps...)
	}
	s.Fields = append(s.Fields, domain.FieldFollowUps)
}
