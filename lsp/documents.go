package lsp

import (
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf16"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/dhamidi/thriftls/dirty"
)

// Document is an open editor buffer. Path is the document id used by the
// analysis engine.
type Document struct {
	URI     protocol.DocumentUri
	Path    string
	Version int32
	Text    string
}

// Documents holds the text of every open document, keyed by path.
type Documents struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

func NewDocuments() *Documents {
	return &Documents{docs: make(map[string]*Document)}
}

func (d *Documents) Open(uri protocol.DocumentUri, version int32, text string) Document {
	doc := &Document{URI: uri, Path: uriToPath(uri), Version: version, Text: text}
	d.mu.Lock()
	d.docs[doc.Path] = doc
	d.mu.Unlock()
	return *doc
}

// Edit is the outcome of applying a batch of content changes.
type Edit struct {
	Document Document
	// Lines are the 0-based line ranges touched by the edits, counted in the
	// text after the edit.
	Lines []dirty.Change
	// Full is set when any change replaced the whole text.
	Full bool
}

// Change applies content changes, in order, to an open document.
func (d *Documents) Change(uri protocol.DocumentUri, version int32, changes []any) (Edit, error) {
	path := uriToPath(uri)
	d.mu.Lock()
	defer d.mu.Unlock()

	doc, ok := d.docs[path]
	if !ok {
		return Edit{}, fmt.Errorf("change %s: document is not open", uri)
	}

	var edit Edit
	text := doc.Text
	for _, c := range changes {
		switch c := c.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			text = c.Text
			edit.Full = true
		case protocol.TextDocumentContentChangeEvent:
			if c.Range == nil {
				text = c.Text
				edit.Full = true
				continue
			}
			var err error
			var lines dirty.Change
			text, lines, err = applyEdit(text, *c.Range, c.Text)
			if err != nil {
				return Edit{}, fmt.Errorf("change %s: %w", uri, err)
			}
			edit.Lines = append(edit.Lines, lines)
		default:
			return Edit{}, fmt.Errorf("change %s: unexpected change event %T", uri, c)
		}
	}

	doc.Text = text
	doc.Version = version
	edit.Document = *doc
	return edit, nil
}

func (d *Documents) Close(uri protocol.DocumentUri) (Document, bool) {
	path := uriToPath(uri)
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[path]
	if !ok {
		return Document{}, false
	}
	delete(d.docs, path)
	return *doc, true
}

func (d *Documents) Get(path string) (Document, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.docs[path]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// Source reads the current text of a document for the analysis engine.
func (d *Documents) Source(path string) (string, int32, bool) {
	doc, ok := d.Get(path)
	return doc.Text, doc.Version, ok
}

// Paths returns the paths of all open documents, sorted.
func (d *Documents) Paths() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	paths := make([]string, 0, len(d.docs))
	for p := range d.docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func applyEdit(text string, r protocol.Range, newText string) (string, dirty.Change, error) {
	start := offsetOf(text, r.Start)
	end := offsetOf(text, r.End)
	if end < start {
		return "", dirty.Change{}, fmt.Errorf("range end %d:%d before start %d:%d",
			r.End.Line, r.End.Character, r.Start.Line, r.Start.Character)
	}
	line := int(r.Start.Line)
	if n := strings.Count(text, "\n"); line > n {
		line = n
	}
	lines := dirty.Change{
		StartLine: line,
		EndLine:   line + strings.Count(newText, "\n"),
	}
	return text[:start] + newText + text[end:], lines, nil
}

// offsetOf converts an LSP position, whose character offset counts UTF-16
// code units, to a byte offset. Positions past the end of a line clamp to
// the line end; positions past the last line clamp to the end of text.
func offsetOf(text string, pos protocol.Position) int {
	i := 0
	for line := 0; line < int(pos.Line); line++ {
		nl := strings.IndexByte(text[i:], '\n')
		if nl < 0 {
			return len(text)
		}
		i += nl + 1
	}
	units := 0
	for j, r := range text[i:] {
		if units >= int(pos.Character) || r == '\n' {
			return i + j
		}
		units += utf16.RuneLen(r)
	}
	return len(text)
}

func uriToPath(uri protocol.DocumentUri) string {
	if strings.HasPrefix(uri, "file://") {
		parsed, err := url.Parse(uri)
		if err != nil {
			return uri
		}
		return filepath.Clean(parsed.Path)
	}
	return uri
}

func pathToURI(path string) protocol.DocumentUri {
	if !filepath.IsAbs(path) {
		return path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}
