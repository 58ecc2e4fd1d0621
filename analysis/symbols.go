package analysis

import "github.com/dhamidi/thriftls/thrift/parser"

type Symbol struct {
	Name           string
	Kind           parser.NodeKind
	Detail         string
	Range          Range
	SelectionRange Range
	Children       []Symbol
}

// Symbols lists the document's definitions with their members.
func Symbols(tree *parser.Node) []Symbol {
	var out []Symbol
	for _, def := range tree.Children {
		switch def.Kind {
		case parser.KindInclude, parser.KindCppInclude, parser.KindNamespace, parser.KindError:
			continue
		}
		sym, ok := symbolFor(def)
		if !ok {
			continue
		}
		for _, member := range def.Children {
			switch member.Kind {
			case parser.KindField, parser.KindEnumValue, parser.KindFunction:
				if child, ok := symbolFor(member); ok {
					sym.Children = append(sym.Children, child)
				}
			}
		}
		out = append(out, sym)
	}
	return out
}

func symbolFor(n *parser.Node) (Symbol, bool) {
	id := n.FirstChildOfKind(parser.KindIdentifier)
	if id == nil {
		return Symbol{}, false
	}
	sym := Symbol{
		Name:           id.TokenLiteral(),
		Kind:           n.Kind,
		Range:          SpanRange(n.Span),
		SelectionRange: SpanRange(id.Span),
	}
	if typ := n.FirstChildOfKind(parser.KindType); typ != nil {
		sym.Detail = typeString(typ)
	}
	return sym, true
}

func typeString(n *parser.Node) string {
	s := n.TokenLiteral()
	args := n.ChildrenOfKind(parser.KindType)
	if len(args) == 0 {
		return s
	}
	s += "<"
	for i, a := range args {
		if i > 0 {
			s += ", "
		}
		s += typeString(a)
	}
	return s + ">"
}
