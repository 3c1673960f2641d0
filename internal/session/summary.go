package session

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mindcache/mindcache/internal/model"
)

// formatSpan renders a duration in the largest non-zero unit:
// days > hours > minutes.
func formatSpan(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours() / 24)
	if days > 0 {
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	hours := int(d.Hours())
	if hours > 0 {
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	minutes := int(d.Minutes())
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

// truncateExcerpt clips content to 100 chars with an ellipsis.
func truncateExcerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 100 {
		return s
	}
	return s[:100] + "..."
}

// composeSummaryText builds the deterministic summary string: memory
// count, span, topics, up to three highest-importance excerpts, and
// importance tallies.
func composeSummaryText(memories []model.Memory, topics []string, span time.Duration, high, medium int) string {
	sorted := make([]model.Memory, len(memories))
	copy(sorted, memories)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Importance > sorted[j].Importance
	})
	topN := sorted
	if len(topN) > 3 {
		topN = topN[:3]
	}
	excerpts := make([]string, len(topN))
	for i, m := range topN {
		excerpts[i] = truncateExcerpt(m.Content)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d memories over %s", len(memories), formatSpan(span))
	if len(topics) > 0 {
		fmt.Fprintf(&b, ". Topics: %s", strings.Join(topics, ", "))
	}
	if len(excerpts) > 0 {
		fmt.Fprintf(&b, ". Highlights: %s", strings.Join(excerpts, " | "))
	}
	fmt.Fprintf(&b, ". %d high, %d medium importance.", high, medium)
	return b.String()
}

func meanImportance(memories []model.Memory) float32 {
	if len(memories) == 0 {
		return 0
	}
	var sum float32
	for _, m := range memories {
		sum += m.Importance
	}
	return sum / float32(len(memories))
}

func importanceTallies(memories []model.Memory) (high, medium int) {
	for _, m := range memories {
		switch {
		case m.Importance > 0.7:
			high++
		case m.Importance > 0.4:
			medium++
		}
	}
	return
}
