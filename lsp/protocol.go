package lsp

import (
	"unicode/utf16"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/dhamidi/thriftls/analysis"
	"github.com/dhamidi/thriftls/thrift/parser"
)

func toRange(r analysis.Range) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(r.Start.Line), Character: protocol.UInteger(r.Start.Character)},
		End:   protocol.Position{Line: protocol.UInteger(r.End.Line), Character: protocol.UInteger(r.End.Character)},
	}
}

// toDiagnostics never returns nil: an empty list clears the editor's
// diagnostics for the document.
func toDiagnostics(diags []analysis.Diagnostic) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(diags))
	source := analysis.DiagnosticsSource
	for _, d := range diags {
		severity := protocol.DiagnosticSeverity(d.Severity)
		out = append(out, protocol.Diagnostic{
			Range:    toRange(d.Range),
			Severity: &severity,
			Code:     &protocol.IntegerOrString{Value: d.Code},
			Source:   &source,
			Message:  d.Message,
		})
	}
	return out
}

func toDocumentSymbols(syms []analysis.Symbol) []protocol.DocumentSymbol {
	out := make([]protocol.DocumentSymbol, 0, len(syms))
	for _, s := range syms {
		ds := protocol.DocumentSymbol{
			Name:           s.Name,
			Kind:           symbolKind(s.Kind),
			Range:          toRange(s.Range),
			SelectionRange: toRange(s.SelectionRange),
		}
		if s.Detail != "" {
			detail := s.Detail
			ds.Detail = &detail
		}
		if len(s.Children) > 0 {
			ds.Children = toDocumentSymbols(s.Children)
		}
		out = append(out, ds)
	}
	return out
}

func symbolKind(k parser.NodeKind) protocol.SymbolKind {
	switch k {
	case parser.KindStruct, parser.KindUnion:
		return protocol.SymbolKindStruct
	case parser.KindException:
		return protocol.SymbolKindClass
	case parser.KindEnum, parser.KindSenum:
		return protocol.SymbolKindEnum
	case parser.KindEnumValue:
		return protocol.SymbolKindEnumMember
	case parser.KindService:
		return protocol.SymbolKindInterface
	case parser.KindFunction:
		return protocol.SymbolKindMethod
	case parser.KindField:
		return protocol.SymbolKindField
	case parser.KindConst:
		return protocol.SymbolKindConstant
	case parser.KindTypedef:
		return protocol.SymbolKindTypeParameter
	default:
		return protocol.SymbolKindObject
	}
}

// wholeDocument spans every line of text, so a single edit replaces it.
func wholeDocument(text string) protocol.Range {
	line, col := 0, 0
	for _, r := range text {
		if r == '\n' {
			line++
			col = 0
			continue
		}
		col += utf16.RuneLen(r)
	}
	return protocol.Range{
		End: protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)},
	}
}
