package analysis

import (
	"context"
	"time"

	"github.com/dhamidi/thriftls/astcache"
	"github.com/dhamidi/thriftls/dirty"
	"github.com/dhamidi/thriftls/thrift/parser"
)

type Result struct {
	Doc     string
	Version int32
	Tree    *parser.Node

	// Incremental is set when the tree was assembled from region parses.
	Incremental bool
	// Cached is set when the whole-document tree came from the cache.
	Cached   bool
	Reparsed int
	Reused   int

	Diagnostics []Diagnostic
	// Includes are the resolved paths of the document's include headers.
	Includes []string
}

// Analyze parses content as the current text of doc and diagnoses it. The
// document's dirty lines are consumed: a small set re-parses only the
// touched definitions and reuses cached regions for the rest, anything else
// falls back to a cached whole-document parse.
func (e *Engine) Analyze(ctx context.Context, doc, content string) (*Result, error) {
	start := time.Now()
	e.analyses.Add(1)
	extent := e.Dirty.Take(doc)
	res := &Result{Doc: doc}

	if extent.Incremental(e.Dirty.MaxDirtyLines()) {
		if tree, ok := e.ASTs.Get(doc, content); ok {
			e.documentHits.Add(1)
			res.Tree = tree
			res.Cached = true
		} else {
			tree, err := e.parseRegions(ctx, doc, content, extent, res)
			if err != nil {
				e.Dirty.MarkFull(doc)
				return nil, err
			}
			e.ASTs.Set(doc, content, tree)
			res.Tree = tree
			res.Incremental = true
		}
	} else {
		if !extent.Empty() {
			n := e.ASTs.ClearRegionsForDocument(doc)
			log.Debugf("%s: %d dirty lines, dropped %d cached regions", doc, extent.Lines, n)
		}
		parsed := false
		res.Tree = e.ASTs.ParseWithCache(doc, content, func() *parser.Node {
			parsed = true
			return parser.Parse(content, parser.WithFile(doc))
		})
		if parsed {
			e.fullParses.Add(1)
		} else {
			e.documentHits.Add(1)
			res.Cached = true
		}
	}

	diags, includes, err := e.diagnose(ctx, doc, res.Tree)
	if err != nil {
		return nil, err
	}
	res.Diagnostics = diags
	res.Includes = includes
	if e.observer != nil {
		e.observer(res, time.Since(start))
	}
	return res, nil
}

func (e *Engine) parseRegions(ctx context.Context, doc, content string, extent dirty.Extent, res *Result) (*parser.Node, error) {
	root := &parser.Node{
		Kind: parser.KindDocument,
		Span: parser.Span{Start: parser.Position{File: doc, Line: 1, Column: 1}},
	}

	for _, c := range parser.SplitDefinitions(content) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := astcache.Range{StartLine: c.StartLine, EndLine: c.EndLine}
		if !overlaps(extent.Ranges, r) {
			if nodes, ok := e.ASTs.GetRange(doc, r, c.Text); ok {
				root.Children = append(root.Children, nodes...)
				res.Reused++
				continue
			}
		}
		nodes := parser.ParseRegion(c.Text, c.StartLine, parser.WithFile(doc))
		e.ASTs.SetRange(doc, r, c.Text, nodes)
		root.Children = append(root.Children, nodes...)
		res.Reparsed++
	}

	if n := len(root.Children); n > 0 {
		root.Span.End = root.Children[n-1].Span.End
	}
	e.regionsParsed.Add(int64(res.Reparsed))
	e.regionsReused.Add(int64(res.Reused))
	log.Debugf("%s: reparsed %d regions, reused %d", doc, res.Reparsed, res.Reused)
	return root, nil
}

func overlaps(dirtyRanges []dirty.Change, r astcache.Range) bool {
	for _, d := range dirtyRanges {
		if d.StartLine <= r.EndLine && d.EndLine >= r.StartLine {
			return true
		}
	}
	return false
}
