package parser

import "strings"

type NodeKind int

const (
	KindError NodeKind = iota

	KindDocument

	// Headers
	KindInclude
	KindCppInclude
	KindNamespace

	// Definitions
	KindConst
	KindTypedef
	KindEnum
	KindEnumValue
	KindSenum
	KindStruct
	KindUnion
	KindException
	KindService
	KindExtends

	// Members
	KindField
	KindFieldID
	KindRequiredness
	KindFunction
	KindOneway
	KindThrows

	KindType
	KindIdentifier
	KindLiteral
	KindConstList
	KindConstMap
	KindConstMapEntry
	KindAnnotations
	KindAnnotation
)

var nodeKindNames = map[NodeKind]string{
	KindError:         "Error",
	KindDocument:      "Document",
	KindInclude:       "Include",
	KindCppInclude:    "CppInclude",
	KindNamespace:     "Namespace",
	KindConst:         "Const",
	KindTypedef:       "Typedef",
	KindEnum:          "Enum",
	KindEnumValue:     "EnumValue",
	KindSenum:         "Senum",
	KindStruct:        "Struct",
	KindUnion:         "Union",
	KindException:     "Exception",
	KindService:       "Service",
	KindExtends:       "Extends",
	KindField:         "Field",
	KindFieldID:       "FieldID",
	KindRequiredness:  "Requiredness",
	KindFunction:      "Function",
	KindOneway:        "Oneway",
	KindThrows:        "Throws",
	KindType:          "Type",
	KindIdentifier:    "Identifier",
	KindLiteral:       "Literal",
	KindConstList:     "ConstList",
	KindConstMap:      "ConstMap",
	KindConstMapEntry: "ConstMapEntry",
	KindAnnotations:   "Annotations",
	KindAnnotation:    "Annotation",
}

func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// IsDefinition reports whether nodes of this kind appear at the top level
// of a document.
func (k NodeKind) IsDefinition() bool {
	switch k {
	case KindInclude, KindCppInclude, KindNamespace,
		KindConst, KindTypedef, KindEnum, KindSenum,
		KindStruct, KindUnion, KindException, KindService:
		return true
	}
	return false
}

type Error struct {
	Message  string
	Expected []TokenKind
	Got      *Token
}

type Node struct {
	Kind     NodeKind
	Span     Span
	Children []*Node
	Token    *Token
	Error    *Error
}

func (n *Node) AddChild(child *Node) {
	if child != nil {
		n.Children = append(n.Children, child)
	}
}

func (n *Node) IsError() bool {
	return n.Kind == KindError
}

func (n *Node) FirstChildOfKind(kind NodeKind) *Node {
	for _, child := range n.Children {
		if child.Kind == kind {
			return child
		}
	}
	return nil
}

func (n *Node) ChildrenOfKind(kind NodeKind) []*Node {
	var result []*Node
	for _, child := range n.Children {
		if child.Kind == kind {
			result = append(result, child)
		}
	}
	return result
}

func (n *Node) TokenLiteral() string {
	if n.Token != nil {
		return n.Token.Literal
	}
	return ""
}

// Name returns the literal of the node's first Identifier child.
func (n *Node) Name() string {
	if id := n.FirstChildOfKind(KindIdentifier); id != nil {
		return id.TokenLiteral()
	}
	return ""
}

// Walk calls fn for n and its descendants in document order until fn
// returns false.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, child := range n.Children {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// Errors returns every error node below n.
func (n *Node) Errors() []*Node {
	var errs []*Node
	n.Walk(func(c *Node) bool {
		if c.IsError() {
			errs = append(errs, c)
		}
		return true
	})
	return errs
}

func (n *Node) String() string {
	return n.stringIndent(0, false)
}

func (n *Node) StringWithPositions() string {
	return n.stringIndent(0, true)
}

func (n *Node) stringIndent(indent int, showPositions bool) string {
	var sb strings.Builder
	n.writeIndent(&sb, indent, showPositions)
	return sb.String()
}

func (n *Node) writeIndent(sb *strings.Builder, indent int, showPositions bool) {
	sb.WriteString(strings.Repeat("  ", indent))
	sb.WriteString(n.Kind.String())
	if showPositions {
		sb.WriteString(" [" + n.Span.Start.String() + "-" + n.Span.End.String() + "]")
	}
	if n.Token != nil {
		sb.WriteString(" " + n.Token.Literal)
	}
	if n.Error != nil {
		sb.WriteString(" ERROR: " + n.Error.Message)
	}
	sb.WriteString("\n")

	for _, child := range n.Children {
		child.writeIndent(sb, indent+1, showPositions)
	}
}
