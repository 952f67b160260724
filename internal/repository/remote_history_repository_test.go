package repository

import (
	"context"
	"testing"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
)

func TestMemoryRemoteHistoryRepository_ListSince(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRemoteHistoryRepository()

	seq, err := repo.Save(ctx, "u1", "laptop", []*domain.EmotionRecord{
		{ID: "a", Emotion: domain.EmotionJoy, UpdatedAt: 1},
		{ID: "b", Emotion: domain.EmotionFear, UpdatedAt: 2},
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if seq != 2 {
		t.Errorf("Save() seq = %d, want 2", seq)
	}

	if _, err := repo.Save(ctx, "u2", "phone", []*domain.EmotionRecord{{ID: "z", UpdatedAt: 1}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	seq, _ = repo.Save(ctx, "u1", "phone", []*domain.EmotionRecord{{ID: "a", Emotion: domain.EmotionAnger, UpdatedAt: 3}})
	if seq != 3 {
		t.Errorf("Save() seq = %d, want 3", seq)
	}

	tests := []struct {
		name  string
		since int64
		want  []string
	}{
		{"from start", 0, []string{"b", "a"}},
		{"after first batch", 2, []string{"a"}},
		{"up to date", 3, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListSince(ctx, "u1", tt.since)
			if err != nil {
				t.Fatalf("ListSince() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ListSince() len = %d, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].RecordID != id {
					t.Errorf("ListSince()[%d] = %s, want %s", i, got[i].RecordID, id)
				}
			}
		})
	}

	rr, _ := repo.Get(ctx, "u1", "a")
	if rr == nil || rr.Record.Emotion != domain.EmotionAnger || rr.DeviceID != "phone" {
		t.Errorf("Get() = %+v, want latest write from phone", rr)
	}
}
