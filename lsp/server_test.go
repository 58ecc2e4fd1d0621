package lsp

import (
	"testing"
	"time"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/dhamidi/thriftls/analysis"
	"github.com/dhamidi/thriftls/config"
)

const uriA = "file:///work/a.thrift"

type harness struct {
	ls        *Server
	ctx       *glsp.Context
	published chan protocol.PublishDiagnosticsParams
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Scheduler.Debounce = 0
	ls := NewServer("test", cfg,
		analysis.WithSampler(func() uint64 { return 1 << 20 }),
		analysis.WithStat(func(string) error { return nil }),
	)
	h := &harness{
		ls:        ls,
		published: make(chan protocol.PublishDiagnosticsParams, 16),
	}
	h.ctx = &glsp.Context{
		Notify: func(method string, params any) {
			if method != protocol.ServerTextDocumentPublishDiagnostics {
				return
			}
			select {
			case h.published <- params.(protocol.PublishDiagnosticsParams):
			default:
			}
		},
	}
	if _, err := ls.initialize(h.ctx, &protocol.InitializeParams{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { ls.shutdown(h.ctx) })
	return h
}

// waitFor returns the next diagnostics published for uri, skipping others.
func (h *harness) waitFor(t *testing.T, uri string) protocol.PublishDiagnosticsParams {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case p := <-h.published:
			if p.URI == uri {
				return p
			}
		case <-timeout:
			t.Fatalf("no diagnostics published for %s", uri)
		}
	}
}

func (h *harness) open(t *testing.T, uri, text string) {
	t.Helper()
	err := h.ls.textDocumentDidOpen(h.ctx, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: "thrift", Version: 1, Text: text},
	})
	if err != nil {
		t.Fatalf("didOpen: %v", err)
	}
}

func TestInitializeAppliesOptions(t *testing.T) {
	ls := NewServer("test", config.Default())
	ctx := &glsp.Context{Notify: func(string, any) {}}
	res, err := ls.initialize(ctx, &protocol.InitializeParams{
		InitializationOptions: map[string]any{"thrift": map[string]any{"maxDirtyLines": 7}},
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer ls.shutdown(ctx)

	if got := ls.Engine().Config().MaxDirtyLines; got != 7 {
		t.Errorf("MaxDirtyLines = %d, want 7", got)
	}
	result := res.(protocol.InitializeResult)
	sync := result.Capabilities.TextDocumentSync.(*protocol.TextDocumentSyncOptions)
	if *sync.Change != protocol.TextDocumentSyncKindIncremental {
		t.Errorf("sync kind = %v, want incremental", *sync.Change)
	}
}

func TestDiagnosticsFollowEdits(t *testing.T) {
	h := newHarness(t)
	h.open(t, uriA, "struct A {\n  1: i32 x\n  1: i32 y\n}\n")

	p := h.waitFor(t, uriA)
	if p.Version == nil || *p.Version != 1 {
		t.Errorf("published version = %v, want 1", p.Version)
	}
	if len(p.Diagnostics) != 1 || p.Diagnostics[0].Range.Start.Line != 2 {
		t.Fatalf("diagnostics = %+v, want one on line 2", p.Diagnostics)
	}
	if code := p.Diagnostics[0].Code; code == nil || code.Value != analysis.CodeDuplicateID {
		t.Errorf("code = %+v, want %s", code, analysis.CodeDuplicateID)
	}

	err := h.ls.textDocumentDidChange(h.ctx, &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uriA},
			Version:                2,
		},
		ContentChanges: []any{protocol.TextDocumentContentChangeEvent{Range: rng(2, 2, 2, 3), Text: "2"}},
	})
	if err != nil {
		t.Fatalf("didChange: %v", err)
	}
	p = h.waitFor(t, uriA)
	if *p.Version != 2 || len(p.Diagnostics) != 0 {
		t.Errorf("after fix: version %d diagnostics %+v, want 2 and none", *p.Version, p.Diagnostics)
	}
	if p.Diagnostics == nil {
		t.Error("cleared diagnostics published as null")
	}

	if err := h.ls.textDocumentDidClose(h.ctx, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uriA},
	}); err != nil {
		t.Fatalf("didClose: %v", err)
	}
	p = h.waitFor(t, uriA)
	if p.Version != nil || len(p.Diagnostics) != 0 {
		t.Errorf("close published %+v, want empty unversioned diagnostics", p)
	}
	if _, ok := h.ls.Engine().ASTs.Get("/work/a.thrift", "struct A {\n  1: i32 x\n  2: i32 y\n}\n"); ok {
		t.Error("closed document still cached")
	}
}

func TestFormatting(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name  string
		text  string
		edits int
	}{
		{"unformatted", "struct A {\n1: i32 x\n}\n", 1},
		{"formatted", "struct A {\n  1: i32 x\n}\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.open(t, uriA, tt.text)
			edits, err := h.ls.textDocumentFormatting(h.ctx, &protocol.DocumentFormattingParams{
				TextDocument: protocol.TextDocumentIdentifier{URI: uriA},
			})
			if err != nil {
				t.Fatalf("formatting: %v", err)
			}
			if len(edits) != tt.edits {
				t.Fatalf("got %d edits, want %d", len(edits), tt.edits)
			}
			if tt.edits == 1 {
				if edits[0].NewText != "struct A {\n  1: i32 x\n}\n" {
					t.Errorf("NewText = %q", edits[0].NewText)
				}
				if end := edits[0].Range.End; end.Line != 3 || end.Character != 0 {
					t.Errorf("edit end = %+v, want 3:0", end)
				}
			}
		})
	}
}

func TestDocumentSymbols(t *testing.T) {
	h := newHarness(t)
	h.open(t, uriA, "enum E {\n  A = 1\n}\n\nservice S {\n  void ping()\n}\n")

	res, err := h.ls.textDocumentDocumentSymbol(h.ctx, &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uriA},
	})
	if err != nil {
		t.Fatalf("documentSymbol: %v", err)
	}
	syms := res.([]protocol.DocumentSymbol)
	if len(syms) != 2 {
		t.Fatalf("got %d symbols, want 2", len(syms))
	}
	tests := []struct {
		name  string
		kind  protocol.SymbolKind
		child protocol.SymbolKind
	}{
		{"E", protocol.SymbolKindEnum, protocol.SymbolKindEnumMember},
		{"S", protocol.SymbolKindInterface, protocol.SymbolKindMethod},
	}
	for i, tt := range tests {
		s := syms[i]
		if s.Name != tt.name || s.Kind != tt.kind {
			t.Errorf("symbol %d = %s/%v, want %s/%v", i, s.Name, s.Kind, tt.name, tt.kind)
		}
		if len(s.Children) != 1 || s.Children[0].Kind != tt.child {
			t.Errorf("%s children = %+v, want one of kind %v", tt.name, s.Children, tt.child)
		}
	}
}

func TestConfigurationChangeRebuildsEngine(t *testing.T) {
	h := newHarness(t)
	h.open(t, uriA, "struct A {\n  1: i32 x\n}\n")
	h.waitFor(t, uriA)
	old := h.ls.Engine()

	err := h.ls.workspaceDidChangeConfiguration(h.ctx, &protocol.DidChangeConfigurationParams{
		Settings: map[string]any{"thrift": map[string]any{"maxDirtyLines": -1}},
	})
	if err != nil {
		t.Fatalf("didChangeConfiguration: %v", err)
	}
	if h.ls.Engine() != old {
		t.Error("invalid settings replaced the engine")
	}

	err = h.ls.workspaceDidChangeConfiguration(h.ctx, &protocol.DidChangeConfigurationParams{
		Settings: map[string]any{"thrift": map[string]any{"maxDirtyLines": 10}},
	})
	if err != nil {
		t.Fatalf("didChangeConfiguration: %v", err)
	}
	e := h.ls.Engine()
	if e == old || e.Config().MaxDirtyLines != 10 {
		t.Errorf("engine not rebuilt with maxDirtyLines 10")
	}
	if p := h.waitFor(t, uriA); *p.Version != 1 {
		t.Errorf("reanalysis published version %d, want 1", *p.Version)
	}
}

func TestWholeDocument(t *testing.T) {
	tests := []struct {
		text      string
		line, col int
	}{
		{"", 0, 0},
		{"ab", 0, 2},
		{"ab\n", 1, 0},
		{"a\n😀", 1, 2},
	}
	for _, tt := range tests {
		r := wholeDocument(tt.text)
		if int(r.End.Line) != tt.line || int(r.End.Character) != tt.col {
			t.Errorf("wholeDocument(%q) end = %d:%d, want %d:%d", tt.text, r.End.Line, r.End.Character, tt.line, tt.col)
		}
	}
}
