package objecttracker

import "image"

// Result is the outcome of one tracker update.
type Result struct {
	Rect      image.Rectangle `json:"rect"`
	Succeeded bool            `json:"succeeded"`
}

// History is a FIFO ring of the most recent results, capped at its length.
// Pushing onto a full history evicts the oldest entry.
type History struct {
	buf   []Result
	start int
	n     int
}

// NewHistory returns an empty history holding at most maxLen results.
func NewHistory(maxLen int) *History {
	return &History{buf: make([]Result, max(1, maxLen))}
}

// Push appends r, evicting the oldest result when full.
func (h *History) Push(r Result) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = r
		h.n++
		return
	}
	h.buf[h.start] = r
	h.start = (h.start + 1) % len(h.buf)
}

// Results returns a copy of the history, oldest first.
func (h *History) Results() []Result {
	out := make([]Result, h.n)
	for i := range out {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Last returns the newest result.
func (h *History) Last() (Result, bool) {
	if h.n == 0 {
		return Result{}, false
	}
	return h.buf[(h.start+h.n-1)%len(h.buf)], true
}

// Len returns the number of stored results.
func (h *History) Len() int { return h.n }

// Cap returns the maximum number of stored results.
func (h *History) Cap() int { return len(h.buf) }

// Clear drops every result.
func (h *History) Clear() {
	h.start, h.n = 0, 0
}
