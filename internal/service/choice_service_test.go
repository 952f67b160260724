package service

import (
	"context"
	"testing"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
	"github.com/soumenroys/imotaraapp-sub002/internal/repository"
	"github.com/soumenroys/imotaraapp-sub002/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChoiceFixture(t *testing.T) (*ChoiceService, repository.HistoryRepository, *testClock, *domain.EmotionRecord) {
	t.Helper()
	clock := &testClock{now: 1000}
	history := repository.NewHistoryRepository(storage.NewStore(storage.NewMemory()), clock.Now)

	r, err := history.Create(context.Background(), &domain.CreateRecordRequest{
		Message: "rough meeting",
		Emotion: domain.EmotionAnger,
		Choices: []domain.Choice{
			{ID: "calm", Label: "I feel calmer", Action: domain.ActionSetEmotion, Payload: &domain.ChoicePayload{Emotion: emotionPtr(domain.EmotionNeutral)}},
			{ID: "later", Label: "Remind me", Action: domain.ActionCreateFollowUp, DisabledReason: "reminders are off"},
		},
	})
	require.NoError(t, err)

	return NewChoiceService(history, clock.Now), history, clock, r
}

func TestChoiceService_Apply(t *testing.T) {
	ctx := context.Background()
	svc, history, clock, r := newChoiceFixture(t)
	clock.Set(2000)

	got, err := svc.Apply(ctx, r.ID, "calm")
	require.NoError(t, err)
	assert.Equal(t, domain.EmotionNeutral, got.Emotion)
	assert.Equal(t, []string{"calm"}, got.AppliedChoices)
	assert.Equal(t, int64(2000), got.UpdatedAt)

	stored, err := history.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EmotionNeutral, stored.Emotion)
	assert.Equal(t, "rough meeting", stored.Message)
	assert.Len(t, stored.AppliedChoiceHistory, 1)

	clock.Set(3000)
	again, err := svc.Apply(ctx, r.ID, "calm")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), again.UpdatedAt, "reapplying writes nothing")
}

func TestChoiceService_ApplyErrors(t *testing.T) {
	ctx := context.Background()
	svc, _, _, r := newChoiceFixture(t)

	tests := []struct {
		name     string
		recordID string
		choiceID string
		wantErr  error
	}{
		{"unknown record", "missing", "calm", repository.ErrRecordNotFound},
		{"unknown choice", r.ID, "nope", ErrChoiceNotFound},
		{"disabled choice", r.ID, "later", ErrChoiceDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Apply(ctx, tt.recordID, tt.choiceID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestChoiceService_Undo(t *testing.T) {
	ctx := context.Background()
	svc, _, clock, r := newChoiceFixture(t)

	_, err := svc.Undo(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNothingToUndo)

	clock.Set(2000)
	_, err = svc.Apply(ctx, r.ID, "calm")
	require.NoError(t, err)

	clock.Set(2500)
	got, err := svc.Undo(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EmotionAnger, got.Emotion)
	assert.Equal(t, int64(2500), got.UpdatedAt)
	assert.Empty(t, got.AppliedChoiceHistory)
	assert.Equal(t, []string{"calm"}, got.AppliedChoices)
}

func TestDiffRecords_OnlyChangedFields(t *testing.T) {
	before := baseRecord()
	after := before.Clone()
	after.Important = true
	after.UpdatedAt = 5000

	p := DiffRecords(before, after)

	require.NotNil(t, p.Important)
	assert.True(t, *p.Important)
	require.NotNil(t, p.UpdatedAt)
	assert.Equal(t, int64(5000), *p.UpdatedAt)
	assert.Nil(t, p.Message)
	assert.Nil(t, p.Emotion)
	assert.Nil(t, p.TopicTags)

	assert.True(t, DiffRecords(before, before.Clone()).Empty())
}
