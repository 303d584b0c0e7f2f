package chunker

import (
	"regexp"
	"strings"

	"github.com/nkissick-del/ragflow-scraper-sub000/core"
)

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.*\S)\s*$`)

// Chunker splits normalized document text into overlapping, bounded-size
// spans with heading context. Splitting is a pure function of its inputs.
type Chunker struct {
	maxTokens     int
	overlapTokens int
	counter       TokenCounter
}

// New creates a Chunker. Non-positive maxTokens falls back to 1000; a
// negative overlap is clamped to zero; an overlap at or above maxTokens is
// clamped below it so chunking always makes forward progress. A nil counter
// uses the whitespace approximation.
func New(maxTokens, overlapTokens int, counter TokenCounter) *Chunker {
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= maxTokens {
		overlapTokens = maxTokens - 1
	}
	if counter == nil {
		counter = ApproxCounter{}
	}
	return &Chunker{
		maxTokens:     maxTokens,
		overlapTokens: overlapTokens,
		counter:       counter,
	}
}

// heading is one entry of the trail of section headings above a position.
type heading struct {
	level int
	text  string
}

// trailMark records the heading trail in effect from a token index onward.
type trailMark struct {
	tokenIndex int
	trail      string
}

// Split chunks text into word-boundary-respecting spans of at most maxTokens
// tokens. Consecutive chunks overlap by exactly overlapTokens except at the
// document edges; a heading boundary inside the budget is preferred over the
// raw token limit. A document within budget yields exactly one chunk.
func (c *Chunker) Split(text string) []core.Chunk {
	words, costs, boundaries, marks := c.scan(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []core.Chunk
	start := 0
	for {
		end := c.advance(costs, start)
		if end < len(words) {
			// Break at the last heading boundary inside the window, as long
			// as it leaves the next chunk starting past the current one.
			if b := lastBoundaryWithin(boundaries, c.boundaryFloor(costs, start), end); b > 0 {
				end = b
			}
		}

		body := strings.Join(words[start:end], " ")
		chunks = append(chunks, core.Chunk{
			Index:      len(chunks),
			Text:       body,
			Heading:    trailAt(marks, start),
			TokenCount: sum(costs[start:end]),
		})

		if end >= len(words) {
			break
		}
		next := c.stepBack(costs, end)
		if next <= start {
			// A single word can cost more than the overlap budget; force
			// forward progress so the same span is never emitted twice.
			next = start + 1
		}
		start = next
	}
	return chunks
}

// scan tokenizes text into words, recording per-word token costs, the token
// indexes where heading lines begin, and the heading trail per position.
func (c *Chunker) scan(text string) (words []string, costs []int, boundaries []int, marks []trailMark) {
	var trail []heading
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			level := len(m[1])
			for len(trail) > 0 && trail[len(trail)-1].level >= level {
				trail = trail[:len(trail)-1]
			}
			trail = append(trail, heading{level: level, text: m[2]})
			boundaries = append(boundaries, len(words))
			marks = append(marks, trailMark{tokenIndex: len(words), trail: joinTrail(trail)})
		}
		for _, w := range fields {
			cost := c.counter.Count(w)
			if cost < 1 {
				cost = 1
			}
			words = append(words, w)
			costs = append(costs, cost)
		}
	}
	return
}

// advance returns the largest end index whose token cost fits the budget,
// always consuming at least one word.
func (c *Chunker) advance(costs []int, start int) int {
	budget := c.maxTokens
	end := start
	for end < len(costs) {
		if costs[end] > budget && end > start {
			break
		}
		budget -= costs[end]
		end++
	}
	return end
}

// boundaryFloor returns the smallest end index whose overlap step would still
// start past the current chunk start, in terms of token cost rather than word
// count.
func (c *Chunker) boundaryFloor(costs []int, start int) int {
	covered := 0
	b := start + 1
	for b < len(costs) && covered < c.overlapTokens {
		covered += costs[b]
		b++
	}
	return b
}

// stepBack walks back from end until the overlap token budget is covered.
func (c *Chunker) stepBack(costs []int, end int) int {
	covered := 0
	start := end
	for start > 0 && covered < c.overlapTokens {
		start--
		covered += costs[start]
	}
	return start
}

// lastBoundaryWithin returns the largest boundary b with min <= b < end,
// or 0 when there is none.
func lastBoundaryWithin(boundaries []int, min, end int) int {
	best := 0
	for _, b := range boundaries {
		if b >= min && b < end && b > best {
			best = b
		}
	}
	return best
}

// trailAt returns the heading trail in effect at the given token index.
func trailAt(marks []trailMark, index int) string {
	trail := ""
	for _, m := range marks {
		if m.tokenIndex > index {
			break
		}
		trail = m.trail
	}
	return trail
}

func joinTrail(trail []heading) string {
	parts := make([]string, len(trail))
	for i, h := range trail {
		parts[i] = h.text
	}
	return strings.Join(parts, " > ")
}

func sum(ns []int) int {
	total := 0
	for _, n := range ns {
		total += n
	}
	return total
}
