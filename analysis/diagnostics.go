package analysis

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dhamidi/thriftls/thrift/parser"
)

type Severity int

// Severities use the LSP numbering.
const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInformation
	SeverityHint
)

// Position is 0-based, as editors count.
type Position struct {
	Line      int
	Character int
}

type Range struct {
	Start Position
	End   Position
}

type Diagnostic struct {
	Range    Range
	Severity Severity
	Code     string
	Message  string
}

const (
	CodeSyntax          = "syntax"
	CodeDuplicateName   = "duplicate-name"
	CodeDuplicateID     = "duplicate-field-id"
	CodeMissingInclude  = "missing-include"
	DiagnosticsSource   = "thriftls"
	maxSyntaxDiagnostic = 100
)

func toPosition(p parser.Position) Position {
	return Position{Line: max(p.Line-1, 0), Character: max(p.Column-1, 0)}
}

func SpanRange(s parser.Span) Range {
	return Range{Start: toPosition(s.Start), End: toPosition(s.End)}
}

// diagnose reports syntax errors, duplicate names and field ids, and
// includes that do not resolve to a file. It returns the resolved include
// paths alongside.
func (e *Engine) diagnose(ctx context.Context, doc string, tree *parser.Node) ([]Diagnostic, []string, error) {
	var diags []Diagnostic

	for i, n := range tree.Errors() {
		if i == maxSyntaxDiagnostic {
			break
		}
		diags = append(diags, Diagnostic{
			Range:    SpanRange(n.Span),
			Severity: SeverityError,
			Code:     CodeSyntax,
			Message:  syntaxMessage(n.Error),
		})
	}
	diags = append(diags, duplicateNames(tree)...)
	diags = append(diags, duplicateFieldIDs(tree)...)

	var includes []string
	for _, inc := range tree.ChildrenOfKind(parser.KindInclude) {
		lit := inc.FirstChildOfKind(parser.KindLiteral)
		if lit == nil {
			continue
		}
		name := unquote(lit.TokenLiteral())
		if name == "" {
			continue
		}
		path, ok := ResolveInclude(doc, name)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		includes = append(includes, path)
		if err := e.stat(path); err != nil {
			diags = append(diags, Diagnostic{
				Range:    SpanRange(lit.Span),
				Severity: SeverityError,
				Code:     CodeMissingInclude,
				Message:  fmt.Sprintf("included file %q not found", name),
			})
		}
	}
	return diags, includes, nil
}

// ResolveInclude resolves an include relative to the including document. It
// returns false when doc is not a file path.
func ResolveInclude(doc, name string) (string, bool) {
	if filepath.IsAbs(name) {
		return name, true
	}
	if !filepath.IsAbs(doc) {
		return "", false
	}
	return filepath.Join(filepath.Dir(doc), name), true
}

func unquote(lit string) string {
	if len(lit) >= 2 && (lit[0] == '"' || lit[0] == '\'') && lit[len(lit)-1] == lit[0] {
		return lit[1 : len(lit)-1]
	}
	return ""
}

func syntaxMessage(err *parser.Error) string {
	if err == nil {
		return "syntax error"
	}
	switch {
	case err.Got == nil:
		return err.Message
	case err.Got.Kind == parser.TokenEOF:
		return err.Message + ", got end of file"
	default:
		return fmt.Sprintf("%s, got %q", err.Message, err.Got.Literal)
	}
}

func duplicateNames(tree *parser.Node) []Diagnostic {
	var diags []Diagnostic
	seen := make(map[string]bool)
	for _, def := range tree.Children {
		switch def.Kind {
		case parser.KindInclude, parser.KindCppInclude, parser.KindNamespace, parser.KindError:
			continue
		}
		id := def.FirstChildOfKind(parser.KindIdentifier)
		if id == nil {
			continue
		}
		name := id.TokenLiteral()
		if seen[name] {
			diags = append(diags, Diagnostic{
				Range:    SpanRange(id.Span),
				Severity: SeverityError,
				Code:     CodeDuplicateName,
				Message:  fmt.Sprintf("%s is already defined", name),
			})
			continue
		}
		seen[name] = true
	}
	return diags
}

func duplicateFieldIDs(tree *parser.Node) []Diagnostic {
	var diags []Diagnostic
	tree.Walk(func(n *parser.Node) bool {
		switch n.Kind {
		case parser.KindStruct, parser.KindUnion, parser.KindException,
			parser.KindFunction, parser.KindThrows:
		default:
			return true
		}
		owner := n.Name()
		if n.Kind == parser.KindThrows {
			owner = "throws clause"
		}
		seen := make(map[string]bool)
		for _, f := range n.ChildrenOfKind(parser.KindField) {
			id := f.FirstChildOfKind(parser.KindFieldID)
			if id == nil {
				continue
			}
			v := id.TokenLiteral()
			if seen[v] {
				diags = append(diags, Diagnostic{
					Range:    SpanRange(id.Span),
					Severity: SeverityError,
					Code:     CodeDuplicateID,
					Message:  fmt.Sprintf("field id %s is already used in %s", v, owner),
				})
				continue
			}
			seen[v] = true
		}
		return true
	})
	return diags
}
