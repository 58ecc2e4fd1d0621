// Package lsp is the language server: it keeps open documents, turns editor
// changes into dirty lines for the analysis engine and publishes what the
// engine finds.
package lsp

import (
	"context"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"github.com/dhamidi/thriftls/analysis"
	"github.com/dhamidi/thriftls/config"
	"github.com/dhamidi/thriftls/thrift/parser"
)

const lsName = "thriftls"

var log = commonlog.GetLogger("thriftls.lsp")

type Server struct {
	version string
	base    config.Config
	opts    []analysis.Option
	docs    *Documents
	handler protocol.Handler
	server  *server.Server

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	engine  *analysis.Engine
	watcher *IncludeWatcher
	notify  glsp.NotifyFunc
}

// NewServer creates a server whose engine is built from base, overlaid
// with the client's initialization options. opts are passed to every engine
// the server builds.
func NewServer(version string, base config.Config, opts ...analysis.Option) *Server {
	ls := &Server{
		version: version,
		base:    base,
		opts:    opts,
		docs:    NewDocuments(),
	}
	ls.ctx, ls.cancel = context.WithCancel(context.Background())

	ls.handler = protocol.Handler{
		Initialize:                      ls.initialize,
		Initialized:                     ls.initialized,
		Shutdown:                        ls.shutdown,
		SetTrace:                        ls.setTrace,
		TextDocumentDidOpen:             ls.textDocumentDidOpen,
		TextDocumentDidChange:           ls.textDocumentDidChange,
		TextDocumentDidClose:            ls.textDocumentDidClose,
		TextDocumentDidSave:             ls.textDocumentDidSave,
		TextDocumentFormatting:          ls.textDocumentFormatting,
		TextDocumentDocumentSymbol:      ls.textDocumentDocumentSymbol,
		WorkspaceDidChangeConfiguration: ls.workspaceDidChangeConfiguration,
	}

	ls.server = server.NewServer(&ls.handler, lsName, false)

	return ls
}

func (ls *Server) RunStdio() error {
	return ls.server.RunStdio()
}

// Engine returns the current analysis engine, or nil before the client has
// initialized the server.
func (ls *Server) Engine() *analysis.Engine {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.engine
}

func (ls *Server) Documents() *Documents {
	return ls.docs
}

func (ls *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	cfg, err := config.Decode(ls.base, params.InitializationOptions)
	if err != nil {
		log.Warningf("ignoring initialization options: %s", err)
		cfg = ls.base
	}

	ls.mu.Lock()
	ls.notify = ctx.Notify
	ls.mu.Unlock()

	if err := ls.startEngine(cfg); err != nil {
		return nil, err
	}

	if w, err := NewIncludeWatcher(ls.reanalyze); err != nil {
		log.Warningf("include watcher disabled: %s", err)
	} else {
		ls.mu.Lock()
		ls.watcher = w
		ls.mu.Unlock()
		go w.Run(ls.ctx)
	}

	capabilities := ls.handler.CreateServerCapabilities()

	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    syncKindPtr(protocol.TextDocumentSyncKindIncremental),
		Save: &protocol.SaveOptions{
			IncludeText: boolPtr(true),
		},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lsName,
			Version: &ls.version,
		},
	}, nil
}

func (ls *Server) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	log.Infof("client initialized")
	return nil
}

func (ls *Server) shutdown(ctx *glsp.Context) error {
	ls.cancel()
	ls.mu.Lock()
	e, w := ls.engine, ls.watcher
	ls.engine, ls.watcher = nil, nil
	ls.mu.Unlock()

	if e != nil {
		e.Close()
	}
	if w != nil {
		return w.Close()
	}
	return nil
}

func (ls *Server) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

// startEngine builds an engine for cfg, replaces the current one and
// reanalyzes every open document with it.
func (ls *Server) startEngine(cfg config.Config) error {
	e, err := analysis.New(cfg, ls.opts...)
	if err != nil {
		return err
	}
	e.Start(ls.ctx)

	ls.mu.Lock()
	old := ls.engine
	ls.engine = e
	ls.mu.Unlock()

	if old != nil {
		old.Close()
	}
	for _, path := range ls.docs.Paths() {
		e.Dirty.MarkFull(path)
	}
	ls.reanalyze(ls.docs.Paths())
	return nil
}

func (ls *Server) reanalyze(paths []string) {
	for _, path := range paths {
		if doc, ok := ls.docs.Get(path); ok {
			ls.analyze(path, doc.Version, false)
		}
	}
}

func (ls *Server) analyze(path string, version int32, immediate bool) {
	e := ls.Engine()
	if e == nil {
		return
	}
	if !e.Schedule(path, version, immediate, ls.docs.Source, ls.publish) {
		log.Debugf("analysis of %s v%d not scheduled", path, version)
	}
}

// publish sends the diagnostics of res unless the document was closed or
// has moved on, in which case a newer analysis is already owed.
func (ls *Server) publish(res *analysis.Result) {
	doc, ok := ls.docs.Get(res.Doc)
	if !ok || doc.Version != res.Version {
		return
	}

	ls.mu.Lock()
	w, notify := ls.watcher, ls.notify
	ls.mu.Unlock()

	if w != nil {
		w.Track(res.Doc, res.Includes)
	}
	if notify == nil {
		return
	}
	version := protocol.UInteger(res.Version)
	notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         doc.URI,
		Version:     &version,
		Diagnostics: toDiagnostics(res.Diagnostics),
	})
}

func (ls *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	doc := ls.docs.Open(params.TextDocument.URI, params.TextDocument.Version, params.TextDocument.Text)
	if e := ls.Engine(); e != nil {
		e.Dirty.MarkFull(doc.Path)
	}
	ls.analyze(doc.Path, doc.Version, true)
	return nil
}

func (ls *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	edit, err := ls.docs.Change(params.TextDocument.URI, params.TextDocument.Version, params.ContentChanges)
	if err != nil {
		log.Errorf("%s", err)
		return nil
	}
	path := edit.Document.Path
	if e := ls.Engine(); e != nil {
		if edit.Full {
			e.Dirty.MarkFull(path)
		} else {
			e.Dirty.MarkChanges(path, edit.Lines)
		}
	}
	ls.analyze(path, edit.Document.Version, false)
	return nil
}

func (ls *Server) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	doc, ok := ls.docs.Close(params.TextDocument.URI)
	if !ok {
		return nil
	}
	ls.mu.Lock()
	e, w, notify := ls.engine, ls.watcher, ls.notify
	ls.mu.Unlock()

	if e != nil {
		e.Forget(doc.Path)
	}
	if w != nil {
		w.Untrack(doc.Path)
	}
	if notify != nil {
		notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
			URI:         doc.URI,
			Diagnostics: []protocol.Diagnostic{},
		})
	}
	return nil
}

func (ls *Server) textDocumentDidSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	path := uriToPath(params.TextDocument.URI)
	doc, ok := ls.docs.Get(path)
	if !ok {
		return nil
	}
	if params.Text != nil && *params.Text != doc.Text {
		doc = ls.docs.Open(doc.URI, doc.Version, *params.Text)
		if e := ls.Engine(); e != nil {
			e.Dirty.MarkFull(path)
		}
	}
	ls.analyze(path, doc.Version, true)
	return nil
}

func (ls *Server) textDocumentFormatting(ctx *glsp.Context, params *protocol.DocumentFormattingParams) ([]protocol.TextEdit, error) {
	e := ls.Engine()
	doc, ok := ls.docs.Get(uriToPath(params.TextDocument.URI))
	if e == nil || !ok {
		return nil, nil
	}
	formatted := e.Format(doc.Text)
	if formatted == doc.Text {
		return []protocol.TextEdit{}, nil
	}
	return []protocol.TextEdit{{
		Range:   wholeDocument(doc.Text),
		NewText: formatted,
	}}, nil
}

func (ls *Server) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	e := ls.Engine()
	doc, ok := ls.docs.Get(uriToPath(params.TextDocument.URI))
	if e == nil || !ok {
		return nil, nil
	}
	tree := e.ASTs.ParseWithCache(doc.Path, doc.Text, func() *parser.Node {
		return parser.Parse(doc.Text, parser.WithFile(doc.Path))
	})
	return toDocumentSymbols(analysis.Symbols(tree)), nil
}

func (ls *Server) workspaceDidChangeConfiguration(ctx *glsp.Context, params *protocol.DidChangeConfigurationParams) error {
	e := ls.Engine()
	if e == nil {
		return nil
	}
	cfg, err := config.Decode(e.Config(), params.Settings)
	if err != nil {
		log.Warningf("ignoring configuration change: %s", err)
		return nil
	}
	if cfg == e.Config() {
		return nil
	}
	log.Noticef("configuration changed, rebuilding analysis engine")
	return ls.startEngine(cfg)
}

func boolPtr(b bool) *bool {
	return &b
}

func syncKindPtr(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind {
	return &k
}
