package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// stopwordList feeds the filter below; kept as one blob so additions are a
// word, not a diff of quotes.
const stopwordList = `a an the and or but if then else for to of in on at by with as is are was
were be been being it this that these those from up down over under again further than so such
into about between through during before after above below out off own same too very can will
just not no nor do does did done have has had having there here when where why how what which
who whom all any both each few more most other some`

// FrequencySummarizer produces an extractive preview: sentences are scored by
// how many of the document's recurring topics they touch, and the winners are
// emitted in their original order. It never generates prose.
type FrequencySummarizer struct {
	tokenPattern *regexp.Regexp
	sentenceRe   *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewFrequencySummarizer creates a frequency-based sentence ranker.
func NewFrequencySummarizer() *FrequencySummarizer {
	words := strings.Fields(stopwordList)
	stop := make(map[string]struct{}, len(words))
	for _, w := range words {
		stop[w] = struct{}{}
	}
	return &FrequencySummarizer{
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		sentenceRe:   regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
		stopwords:    stop,
	}
}

// Summarize returns up to maxSentences of the input, scored by topic coverage
// but kept in original document order.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	sentences := s.sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return strings.TrimSpace(text), nil
	}

	// Weight each token by the number of sentences it appears in. Repeating
	// a word inside one sentence says nothing about the document's topic,
	// so tokens are deduplicated per sentence first.
	perSentence := make([][]string, len(sentences))
	df := map[string]float64{}
	for i, sent := range sentences {
		perSentence[i] = s.contentTokens(sent)
		for _, tok := range perSentence[i] {
			df[tok]++
		}
	}
	maxDF := 0.0
	for _, v := range df {
		if v > maxDF {
			maxDF = v
		}
	}
	if maxDF > 0 {
		for k, v := range df {
			df[k] = v / maxDF
		}
	}

	type ranked struct {
		idx   int
		score float64
	}
	const leadBonus = 0.05
	scores := make([]ranked, len(sentences))
	for i := range sentences {
		toks := perSentence[i]
		score := 0.0
		for _, tok := range toks {
			score += df[tok]
		}
		if n := float64(len(toks)); n > 0 {
			// dampen long-sentence bias
			score /= math.Sqrt(n)
		}
		// openings tend to carry the topic; let them break near-ties
		score += leadBonus / float64(i+1)
		scores[i] = ranked{i, score}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}

	selected := make([]int, maxSentences)
	for i := 0; i < maxSentences; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, maxSentences)
	for _, idx := range selected {
		out = append(out, strings.TrimSpace(sentences[idx]))
	}
	return strings.Join(out, " "), nil
}

// contentTokens returns the distinct non-stopword tokens of text in first
// appearance order.
func (s *FrequencySummarizer) contentTokens(text string) []string {
	raw := s.tokenPattern.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, ok := s.stopwords[tok]; ok {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
