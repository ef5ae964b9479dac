// search.go implements a BM25-scored index over documentation sections.
// Queries are tokenized into terms and scored with Okapi BM25, with a boost
// for terms appearing in section titles, so multi-word queries match sections
// containing the terms rather than requiring an exact substring.
package docs

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25 tuning parameters.
const (
	bm25K1     = 1.2
	bm25B      = 0.75
	titleBoost = 2.0 // multiplier for terms found in section titles
	maxResults = 5
)

// index is a BM25-scored inverted index over sections.
type index struct {
	sections   []Section
	postings   map[string][]posting    // term -> section postings
	titleTerms map[string]map[int]bool // term -> section set (terms in titles)
	docLens    []int                   // token count per section
	avgDL      float64
}

// posting records a term's frequency in a single section.
type posting struct {
	doc  int // index into sections
	freq int
}

// result is a single search hit with score and context snippet.
type result struct {
	section Section
	score   float64
	snippet string
}

// newIndex builds an inverted index from the given sections.
func newIndex(sections []Section) *index {
	idx := &index{
		sections:   sections,
		postings:   make(map[string][]posting),
		titleTerms: make(map[string]map[int]bool),
		docLens:    make([]int, len(sections)),
	}

	totalLen := 0
	for i, s := range sections {
		tokens := tokenize(s.Title + "\n" + s.Body)
		idx.docLens[i] = len(tokens)
		totalLen += len(tokens)

		tf := make(map[string]int)
		for _, t := range tokens {
			tf[t]++
		}
		for term, freq := range tf {
			idx.postings[term] = append(idx.postings[term], posting{doc: i, freq: freq})
		}

		for _, t := range tokenize(s.Title) {
			if idx.titleTerms[t] == nil {
				idx.titleTerms[t] = make(map[int]bool)
			}
			idx.titleTerms[t][i] = true
		}
	}

	if len(sections) > 0 {
		idx.avgDL = float64(totalLen) / float64(len(sections))
	}
	return idx
}

// search finds sections matching the query, ranked by BM25 score. Returns up
// to maxResults results.
func (idx *index) search(query string) []result {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var unique []string
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			unique = append(unique, t)
		}
	}

	n := float64(len(idx.sections))
	scores := make(map[int]float64)

	for _, term := range unique {
		posts, ok := idx.postings[term]
		if !ok {
			continue
		}

		df := float64(len(posts))
		idf := math.Log((n-df+0.5)/(df+0.5) + 1.0)

		for _, p := range posts {
			dl := float64(idx.docLens[p.doc])
			tf := float64(p.freq)
			tfNorm := (tf * (bm25K1 + 1)) / (tf + bm25K1*(1-bm25B+bm25B*(dl/idx.avgDL)))

			score := idf * tfNorm
			if idx.titleTerms[term][p.doc] {
				score *= titleBoost
			}

			scores[p.doc] += score
		}
	}

	if len(scores) == 0 {
		return nil
	}

	results := make([]result, 0, len(scores))
	for doc, score := range scores {
		results = append(results, result{
			section: idx.sections[doc],
			score:   score,
			snippet: extractSnippet(idx.sections[doc].Body, seen),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// extractSnippet finds the most relevant part of a section body for the
// query terms: the best 5-line window by distinct-term hits, with one line
// of context on each side. Short bodies are returned whole.
func extractSnippet(body string, queryTerms map[string]bool) string {
	const windowSize = 5

	lines := strings.Split(body, "\n")
	if len(lines) <= windowSize+2 {
		return strings.TrimSpace(body)
	}

	lineScores := make([]int, len(lines))
	for i, line := range lines {
		hit := make(map[string]bool)
		for _, t := range tokenize(line) {
			if queryTerms[t] && !hit[t] {
				lineScores[i]++
				hit[t] = true
			}
		}
	}

	bestStart, bestScore := 0, 0
	for i := 0; i < len(lines); i++ {
		score := 0
		end := min(i+windowSize, len(lines))
		for j := i; j < end; j++ {
			score += lineScores[j]
		}
		if score > bestScore {
			bestScore = score
			bestStart = i
		}
	}

	start := max(bestStart-1, 0)
	end := min(bestStart+windowSize+1, len(lines))
	return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
}

// formatResults formats search results for tool output.
func formatResults(query string, results []result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q. Try a different keyword.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d matching section(s):\n", len(results))

	for _, r := range results {
		fmt.Fprintf(&b, "\n## %s (%s)\n\n%s\n\n===\n", r.section.Title, r.section.File, r.snippet)
	}

	return b.String()
}

// tokenize splits text into lowercase search tokens. Hyphenated words are
// indexed both as a whole ("multi-agent") and as parts ("multi", "agent").
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	var tokens []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		word := strings.Trim(buf.String(), "-")
		buf.Reset()
		if len(word) < 2 {
			return
		}
		tokens = append(tokens, word)
		if strings.Contains(word, "-") {
			for _, part := range strings.Split(word, "-") {
				if len(part) >= 2 {
					tokens = append(tokens, part)
				}
			}
		}
	}

	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			buf.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return tokens
}
