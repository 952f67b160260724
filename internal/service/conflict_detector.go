package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
)

// DetectConflict classifies a (local, remote, base) triple for one record id.
// base is the shadow entry from the last successful sync and may be nil.
// Rules are evaluated in order and the first match wins:
//
//  1. both tombstoned: both-deleted, remote applied
//  2. one tombstoned: delete-edit if the other side changed since base,
//     otherwise the tombstone wins (newer-remote / newer-local)
//  3. identical content: in-sync, the later updatedAt is kept
//  4. no base: duplicate-id
//  5. equal updatedAt: same-updatedAt-diff-content
//  6. both changed since base: both-edited
//  7. only remote changed: newer-remote
//  8. only local changed: newer-local
//  9. otherwise last writer wins on updatedAt
//
// Rules 4 to 6 are conflicts left to the user.
func DetectConflict(local, remote *domain.EmotionRecord, base *domain.ShadowEntry) domain.ConflictDecision {
	d := domain.ConflictDecision{
		RecordID: remote.ID,
		Diff:     diffFields(local, remote),
	}

	localFP := domain.Fingerprint(local)
	remoteFP := domain.Fingerprint(remote)
	localChanged := changedSince(local, localFP, base)
	remoteChanged := changedSince(remote, remoteFP, base)

	switch {
	case local.Deleted && remote.Deleted:
		d.Reason, d.Winner = domain.ReasonBothDeleted, domain.WinnerRemote

	case remote.Deleted:
		if localChanged {
			d.Reason, d.Conflict = domain.ReasonDeleteEdit, true
		} else {
			d.Reason, d.Winner = domain.ReasonNewerRemote, domain.WinnerRemote
		}

	case local.Deleted:
		if remoteChanged {
			d.Reason, d.Conflict = domain.ReasonDeleteEdit, true
		} else {
			d.Reason, d.Winner = domain.ReasonNewerLocal, domain.WinnerLocal
		}

	case localFP == remoteFP:
		d.Reason, d.Winner = domain.ReasonInSync, domain.WinnerLocal
		if remote.UpdatedAt > local.UpdatedAt {
			d.Winner = domain.WinnerRemote
		}

	case base == nil:
		d.Reason, d.Conflict = domain.ReasonDuplicateID, true

	case local.UpdatedAt == remote.UpdatedAt:
		d.Reason, d.Conflict = domain.ReasonSameUpdatedAtDiff, true

	case localChanged && remoteChanged:
		d.Reason, d.Conflict = domain.ReasonBothEdited, true

	case remoteChanged:
		d.Reason, d.Winner = domain.ReasonNewerRemote, domain.WinnerRemote

	case localChanged:
		d.Reason, d.Winner = domain.ReasonNewerLocal, domain.WinnerLocal

	case remote.UpdatedAt > local.UpdatedAt:
		d.Reason, d.Winner = domain.ReasonNewerRemote, domain.WinnerRemote

	default:
		d.Reason, d.Winner = domain.ReasonNewerLocal, domain.WinnerLocal
	}

	if d.Conflict {
		d.Winner = domain.WinnerNone
	}
	d.Summary = summarize(d)
	return d
}

// changedSince reports whether side moved away from base. Revisions decide
// when both carry one; content fingerprints decide otherwise.
func changedSince(side *domain.EmotionRecord, fp string, base *domain.ShadowEntry) bool {
	if base == nil {
		return true
	}
	if side.Rev > 0 && base.Rev > 0 && side.Rev != base.Rev {
		return true
	}
	return fp != base.Fingerprint
}

func diffFields(local, remote *domain.EmotionRecord) []domain.FieldDiff {
	var diffs []domain.FieldDiff
	if local.Message != remote.Message {
		diffs = append(diffs, domain.FieldDiff{Field: domain.FieldMessage, Local: local.Message, Remote: remote.Message})
	}
	if local.Emotion != remote.Emotion {
		diffs = append(diffs, domain.FieldDiff{Field: domain.FieldEmotion, Local: string(local.Emotion), Remote: string(remote.Emotion)})
	}
	if local.Intensity != remote.Intensity {
		diffs = append(diffs, domain.FieldDiff{
			Field:  domain.FieldIntensity,
			Local:  strconv.FormatFloat(local.Intensity, 'f', -1, 64),
			Remote: strconv.FormatFloat(remote.Intensity, 'f', -1, 64),
		})
	}
	if local.UpdatedAt != remote.UpdatedAt {
		diffs = append(diffs, domain.FieldDiff{
			Field:  "updatedAt",
			Local:  strconv.FormatInt(local.UpdatedAt, 10),
			Remote: strconv.FormatInt(remote.UpdatedAt, 10),
		})
	}
	return diffs
}

func summarize(d domain.ConflictDecision) string {
	var b strings.Builder
	b.WriteString(string(d.Reason))

	if len(d.Diff) == 0 {
		return b.String()
	}

	parts := make([]string, 0, len(d.Diff))
	for _, f := range d.Diff {
		if f.Field == domain.FieldMessage {
			parts = append(parts, fmt.Sprintf("message %q vs %q", truncate(f.Local, 40), truncate(f.Remote, 40)))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s vs %s", f.Field, f.Local, f.Remote))
	}
	b.WriteString(": ")
	b.WriteString(strings.Join(parts, "; "))
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
