// Package ui serves a small status page for a running language server:
// memory use, cache statistics, open documents and tuning suggestions.
package ui

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"

	"github.com/dhamidi/thriftls/analysis"
	"github.com/dhamidi/thriftls/cache"
	"github.com/dhamidi/thriftls/memory"
)

var log = commonlog.GetLogger("thriftls.ui")

//go:embed static all:templates
var embeddedFS embed.FS

type Server struct {
	engine     func() *analysis.Engine
	documents  func() []string
	staticFS   fs.FS
	templateFS fs.FS
	funcMap    template.FuncMap
	mux        *http.ServeMux
}

// NewServer builds the status handler. engine may return nil until the
// client initializes the language server. Templates and static files in
// ui/templates and ui/static below the working directory take precedence
// over the embedded ones.
func NewServer(engine func() *analysis.Engine, documents func() []string) (*Server, error) {
	staticFS := overlayFS("ui/static", mustSub(embeddedFS, "static"))
	templateFS := overlayFS("ui/templates", mustSub(embeddedFS, "templates"))

	funcMap := template.FuncMap{
		"bytes": func(n any) string {
			switch v := n.(type) {
			case int:
				return humanize.IBytes(uint64(max(v, 0)))
			case uint64:
				return humanize.IBytes(v)
			default:
				return fmt.Sprint(n)
			}
		},
		"percent": func(f float64) string {
			return fmt.Sprintf("%.1f%%", f*100)
		},
		"comma": func(n any) string {
			switch v := n.(type) {
			case int:
				return humanize.Comma(int64(v))
			case int64:
				return humanize.Comma(v)
			case uint64:
				return humanize.Comma(int64(v))
			default:
				return fmt.Sprint(n)
			}
		},
		"ago": func(s cache.Stats) string {
			if s.LastCleanup.IsZero() {
				return "never"
			}
			return humanize.Time(s.LastCleanup)
		},
	}

	if _, err := template.New("").Funcs(funcMap).ParseFS(templateFS, "*.html"); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		engine:     engine,
		documents:  documents,
		staticFS:   staticFS,
		templateFS: templateFS,
		funcMap:    funcMap,
		mux:        http.NewServeMux(),
	}

	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	s.mux.HandleFunc("GET /caches", s.handleCaches)
	s.mux.HandleFunc("GET /caches/{name}", s.handleCache)
	s.mux.HandleFunc("POST /pressure", s.handlePressure)
	s.mux.HandleFunc("GET /report", s.handleReport)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, err := template.New("").Funcs(s.funcMap).ParseFS(s.templateFS, "*.html")
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Errorf("render %s: %s", name, err)
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("encode json: %s", err)
	}
}

// current returns the engine or answers 503 when there is none yet.
func (s *Server) current(w http.ResponseWriter) *analysis.Engine {
	e := s.engine()
	if e == nil {
		http.Error(w, "language server not initialized", http.StatusServiceUnavailable)
	}
	return e
}

// StatusData is what the index page shows.
type StatusData struct {
	Usage        uint64
	Peak         uint64
	Budget       uint64
	UsageRatio   float64
	Pressure     string
	Trend        memory.Trend
	Analysis     analysis.Stats
	Queued       int
	Running      int
	Caches       []cache.Stats
	Documents    []string
	Suggestions  []memory.Suggestion
	MaxDirty     int
	Concurrency  int
	DebounceText string
}

func (s *Server) status(e *analysis.Engine) StatusData {
	cfg := e.Config()
	return StatusData{
		Usage:        e.Monitor.CurrentUsage(),
		Peak:         e.Monitor.PeakUsage(),
		Budget:       e.Monitor.Budget(),
		UsageRatio:   e.Monitor.UsageRatio(),
		Pressure:     e.Manager.MemoryPressureLevel().String(),
		Trend:        e.Monitor.Trend(),
		Analysis:     e.Stats(),
		Queued:       e.Scheduler.QueuedCount(),
		Running:      e.Scheduler.RunningCount(),
		Caches:       e.Manager.AllStats(),
		Documents:    s.documents(),
		Suggestions:  e.Monitor.Suggestions(),
		MaxDirty:     cfg.MaxDirtyLines,
		Concurrency:  cfg.Scheduler.Concurrency,
		DebounceText: cfg.Scheduler.Debounce.Std().String(),
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	e := s.current(w)
	if e == nil {
		return
	}
	data := s.status(e)
	if wantsJSON(r) {
		writeJSON(w, data)
		return
	}
	s.render(w, "index.html", data)
}

func (s *Server) handleCaches(w http.ResponseWriter, r *http.Request) {
	e := s.current(w)
	if e == nil {
		return
	}
	stats := e.Manager.AllStats()
	if wantsJSON(r) {
		writeJSON(w, stats)
		return
	}
	s.render(w, "_caches.html", stats)
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	e := s.current(w)
	if e == nil {
		return
	}
	stats, ok := e.Manager.Stats(r.PathValue("name"))
	if !ok {
		http.Error(w, "cache not found", http.StatusNotFound)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, stats)
		return
	}
	s.render(w, "_caches.html", []cache.Stats{stats})
}

// handlePressure runs a memory pressure check now instead of waiting for the
// next periodic one.
func (s *Server) handlePressure(w http.ResponseWriter, r *http.Request) {
	e := s.current(w)
	if e == nil {
		return
	}
	level := e.Manager.CheckPressure()
	if wantsJSON(r) {
		writeJSON(w, map[string]string{"pressure": level.String()})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	e := s.current(w)
	if e == nil {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, e.Monitor.Report())
}

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

type overlayFSType struct {
	primary   fs.FS
	secondary fs.FS
}

func overlayFS(primaryPath string, secondary fs.FS) fs.FS {
	return &overlayFSType{
		primary:   os.DirFS(primaryPath),
		secondary: secondary,
	}
}

func (o *overlayFSType) Open(name string) (fs.File, error) {
	f, err := o.primary.Open(name)
	if err == nil {
		return f, nil
	}
	return o.secondary.Open(name)
}

// ReadDir merges both listings; primary entries win on name clashes.
func (o *overlayFSType) ReadDir(name string) ([]fs.DirEntry, error) {
	entries := make(map[string]fs.DirEntry)
	for _, fsys := range []fs.FS{o.secondary, o.primary} {
		list, err := fs.ReadDir(fsys, name)
		if err != nil {
			continue
		}
		for _, e := range list {
			entries[e.Name()] = e
		}
	}

	result := make([]fs.DirEntry, 0, len(entries))
	for _, e := range entries {
		result = append(result, e)
	}
	slices.SortFunc(result, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return result, nil
}
