package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
)

type output struct {
	format string
	w      io.Writer
}

func (o output) json(v interface{}) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o output) record(r *domain.EmotionRecord) error {
	if o.format == "json" {
		return o.json(r)
	}

	fmt.Fprintf(o.w, "ID:        %s\n", r.ID)
	fmt.Fprintf(o.w, "Emotion:   %s (%.2f)\n", r.Emotion, r.Intensity)
	fmt.Fprintf(o.w, "Message:   %s\n", r.Message)
	if len(r.TopicTags) > 0 {
		fmt.Fprintf(o.w, "Topics:    %s\n", strings.Join(r.TopicTags, ", "))
	}
	fmt.Fprintf(o.w, "Updated:   %s\n", formatMillis(r.UpdatedAt))
	fmt.Fprintf(o.w, "State:     %s\n", recordState(r))
	for _, c := range r.Choices {
		mark := " "
		switch {
		case r.HasApplied(c.ID):
			mark = "x"
		case c.DisabledReason != "":
			mark = "-"
		}
		fmt.Fprintf(o.w, "  [%s] %s: %s\n", mark, c.ID, c.Label)
	}
	return nil
}

func (o output) records(rs []*domain.EmotionRecord) error {
	if o.format == "json" {
		return o.json(rs)
	}
	if len(rs) == 0 {
		fmt.Fprintln(o.w, "No records.")
		return nil
	}

	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMOTION\tUPDATED\tSTATE\tMESSAGE")
	for _, r := range rs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Emotion, formatMillis(r.UpdatedAt), recordState(r), truncate(r.Message, 48))
	}
	return tw.Flush()
}

func (o output) conflicts(cs []*domain.HistoryConflict) error {
	if o.format == "json" {
		return o.json(cs)
	}
	if len(cs) == 0 {
		fmt.Fprintln(o.w, "No conflicts.")
		return nil
	}

	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREASON\tDETECTED\tRESOLUTION\tSUMMARY")
	for _, c := range cs {
		resolution := "open"
		if c.Resolved() {
			resolution = string(c.Resolution)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Reason, formatMillis(c.DetectedAt), resolution, c.Summary)
	}
	return tw.Flush()
}

func (o output) summary(s domain.SyncSummary) error {
	if o.format == "json" {
		return o.json(s)
	}

	fmt.Fprintf(o.w, "Phase:      %s\n", s.Phase)
	fmt.Fprintf(o.w, "Pushed:     %d\n", s.Pushed)
	fmt.Fprintf(o.w, "Pulled:     %d\n", s.Pulled)
	fmt.Fprintf(o.w, "Conflicts:  %d\n", s.Conflicts)
	if s.LastSuccessAt > 0 {
		fmt.Fprintf(o.w, "Last sync:  %s\n", formatMillis(s.LastSuccessAt))
	}
	if s.LastError != "" {
		fmt.Fprintf(o.w, "Error:      %s\n", s.LastError)
	}
	return nil
}

func recordState(r *domain.EmotionRecord) string {
	switch {
	case r.Conflict:
		return "conflict"
	case r.Deleted:
		return "deleted"
	case r.Pending:
		return "pending"
	case r.ServerConfirmed:
		return "synced"
	}
	return "local"
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
