package transcript

import (
	"fmt"
	"strings"
	"time"
)

const headerTimeLayout = "2006-01-02 15:04:05"

// FormatText renders a sealed transcript as a plain-text document with a
// metadata header and one elapsed-timestamped line per finalized segment.
func FormatText(conversationID, language string, startedAt, endedAt time.Time, segments []Segment) []byte {
	lines := []string{
		fmt.Sprintf("Conversation: %s", conversationID),
		fmt.Sprintf("Language: %s", language),
		fmt.Sprintf("Recorded: %s ~ %s (UTC)", startedAt.UTC().Format(headerTimeLayout), endedAt.UTC().Format(headerTimeLayout)),
		"",
	}
	for _, seg := range segments {
		lines = append(lines, fmt.Sprintf("[%s] %s", formatElapsedHMS(seg.Start), seg.Text))
	}
	return []byte(strings.Join(lines, "\n"))
}

// PlainText joins the finalized segment texts, one utterance per line.
// This is the form handed to the report generator.
func PlainText(segments []Segment) string {
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		lines = append(lines, seg.Text)
	}
	return strings.Join(lines, "\n")
}

func formatElapsedHMS(d time.Duration) string {
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
