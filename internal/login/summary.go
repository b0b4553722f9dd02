package login

import (
	"fmt"
	"strings"
)

// BatchSummary is a view over the outcomes of one run.
type BatchSummary struct {
	RunID    string    `json:"run_id"`
	Outcomes []Outcome `json:"outcomes"`
}

func (s BatchSummary) Succeeded() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Succeeded() {
			n++
		}
	}
	return n
}

func (s BatchSummary) Failed() int { return len(s.Outcomes) - s.Succeeded() }

// Status is FAILURE if any account failed.
func (s BatchSummary) Status() Status {
	if s.Failed() > 0 {
		return StatusFailure
	}
	return StatusSuccess
}

// Lines has one masked line per account, in processing order.
func (s BatchSummary) Lines() []string {
	lines := make([]string, 0, len(s.Outcomes))
	for i, o := range s.Outcomes {
		mark := "✅"
		if !o.Succeeded() {
			mark = "❌"
		}
		line := fmt.Sprintf("%s %d. %s: %s", mark, i+1, MaskIdentity(o.Identity), o.Status)
		if o.Reason != "" {
			line += " (" + o.Reason + ")"
		}
		if o.RetriesUsed > 0 {
			line += fmt.Sprintf(" [retries: %d]", o.RetriesUsed)
		}
		lines = append(lines, line)
	}
	return lines
}

// Text renders the summary notification.
func (s BatchSummary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Auto-login run %s finished: %s\n", shortID(s.RunID), s.Status())
	fmt.Fprintf(&b, "Succeeded: %d, failed: %d, total: %d\n", s.Succeeded(), s.Failed(), len(s.Outcomes))
	for _, l := range s.Lines() {
		b.WriteString("\n")
		b.WriteString(l)
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
