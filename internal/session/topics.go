package session

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// stopWords is the fixed English stop-word set dropped before scoring.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"being": true, "to": true, "of": true, "in": true, "on": true, "at": true,
	"for": true, "with": true, "by": true, "from": true, "as": true, "that": true,
	"this": true, "these": true, "those": true, "it": true, "its": true, "he": true,
	"she": true, "they": true, "we": true, "you": true, "i": true, "his": true,
	"her": true, "their": true, "our": true, "your": true, "not": true, "no": true,
	"do": true, "does": true, "did": true, "have": true, "has": true, "had": true,
	"will": true, "would": true, "can": true, "could": true, "should": true,
	"about": true, "into": true, "than": true, "then": true, "there": true,
	"here": true, "what": true, "when": true, "where": true, "who": true,
	"which": true, "how": true, "all": true, "any": true, "each": true,
	"few": true, "more": true, "most": true, "some": true, "such": true,
	"just": true, "also": true, "very": true, "so": true,
}

var alnumRun = regexp.MustCompile(`[a-z0-9]{3,}`)

// tokenize lower-cases content and extracts alphanumeric runs of
// length >= 3, dropping stop words.
func tokenize(content string) []string {
	lower := strings.ToLower(content)
	matches := alnumRun.FindAllString(lower, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if !stopWords[m] {
			out = append(out, m)
		}
	}
	return out
}

type termScore struct {
	term  string
	score float64
}

// extractTopics computes tf*idf = tf * ln(N/df) across the documents,
// drops terms with df<=1 or df>=0.8*N, and keeps the top 10 by score.
func extractTopics(documents []string) []string {
	n := len(documents)
	if n == 0 {
		return nil
	}

	docTokens := make([][]string, n)
	df := map[string]int{}
	for i, doc := range documents {
		tokens := tokenize(doc)
		docTokens[i] = tokens
		seen := map[string]bool{}
		for _, t := range tokens {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}

	tf := map[string]int{}
	for _, tokens := range docTokens {
		for _, t := range tokens {
			tf[t]++
		}
	}

	threshold := 0.8 * float64(n)
	var scored []termScore
	for term, freq := range tf {
		d := df[term]
		if d <= 1 || float64(d) >= threshold {
			continue
		}
		score := float64(freq) * math.Log(float64(n)/float64(d))
		scored = append(scored, termScore{term: term, score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].term < scored[j].term
	})

	if len(scored) > 10 {
		scored = scored[:10]
	}
	topics := make([]string, len(scored))
	for i, s := range scored {
		topics[i] = s.term
	}
	return topics
}

// TopKeyPoints returns the top-k non-stop-word tokens by raw frequency
// across the documents. Exported for the decay engine's compression
// metadata, which wants raw frequency rather than the TF-IDF topic
// list this package uses for session summaries.
func TopKeyPoints(documents []string, k int) []string {
	return topKeyPoints(documents, k)
}

func topKeyPoints(documents []string, k int) []string {
	freq := map[string]int{}
	for _, doc := range documents {
		for _, t := range tokenize(doc) {
			freq[t]++
		}
	}
	var scored []termScore
	for term, f := range freq {
		scored = append(scored, termScore{term: term, score: float64(f)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].term < scored[j].term
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.term
	}
	return out
}
