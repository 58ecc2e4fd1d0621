// Package dirty accumulates the lines editors report as changed, so analysis
// can decide between re-deriving only the touched regions of a document and
// starting over.
package dirty

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

const DefaultMaxDirtyLines = 200

// Change is an inclusive span of 0-based lines.
type Change struct {
	StartLine int
	EndLine   int
}

// Extent is the merged dirty state of one document.
type Extent struct {
	Lines  int
	Ranges []Change
	// Full is set when the whole document was replaced.
	Full bool
}

func (e Extent) Empty() bool {
	return !e.Full && e.Lines == 0
}

// Incremental reports whether the extent is small enough to re-derive only
// the dirty regions. Empty and full extents are never incremental.
func (e Extent) Incremental(maxDirtyLines int) bool {
	return !e.Full && e.Lines > 0 && e.Lines < maxDirtyLines
}

type state struct {
	lines *roaring.Bitmap
	full  bool
}

type Tracker struct {
	mu            sync.Mutex
	docs          map[string]*state
	maxDirtyLines int
}

func NewTracker(maxDirtyLines int) *Tracker {
	if maxDirtyLines <= 0 {
		maxDirtyLines = DefaultMaxDirtyLines
	}
	return &Tracker{
		docs:          make(map[string]*state),
		maxDirtyLines: maxDirtyLines,
	}
}

func (t *Tracker) MaxDirtyLines() int {
	return t.maxDirtyLines
}

func (t *Tracker) stateLocked(docID string) *state {
	s, ok := t.docs[docID]
	if !ok {
		s = &state{lines: roaring.New()}
		t.docs[docID] = s
	}
	return s
}

// MarkChanges merges changes into the document's dirty lines. Reversed spans
// are normalized and negative lines are clamped to 0.
func (t *Tracker) MarkChanges(docID string, changes []Change) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stateLocked(docID)
	for _, c := range changes {
		start, end := c.StartLine, c.EndLine
		if end < start {
			start, end = end, start
		}
		start, end = max(start, 0), max(end, 0)
		s.lines.AddRange(uint64(start), uint64(end)+1)
	}
}

// MarkFull records that the whole document changed.
func (t *Tracker) MarkFull(docID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateLocked(docID).full = true
}

// Peek returns the document's extent without clearing it.
func (t *Tracker) Peek(docID string) Extent {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.docs[docID]
	if !ok {
		return Extent{}
	}
	return s.extent()
}

// Take returns the document's extent and clears it.
func (t *Tracker) Take(docID string) Extent {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.docs[docID]
	if !ok {
		return Extent{}
	}
	delete(t.docs, docID)
	return s.extent()
}

// Clear forgets the document.
func (t *Tracker) Clear(docID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.docs, docID)
}

func (s *state) extent() Extent {
	e := Extent{Lines: int(s.lines.GetCardinality()), Full: s.full}

	it := s.lines.Iterator()
	for it.HasNext() {
		line := int(it.Next())
		if n := len(e.Ranges); n > 0 && e.Ranges[n-1].EndLine == line-1 {
			e.Ranges[n-1].EndLine = line
			continue
		}
		e.Ranges = append(e.Ranges, Change{StartLine: line, EndLine: line})
	}
	return e
}
