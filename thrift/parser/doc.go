// Package parser provides an error-tolerant parser for Thrift IDL documents.
//
// # Overview
//
// The lexer turns bytes into tokens, keeping whitespace and comments so
// that tools like the formatter can see them. The parser drops those and
// builds a tree of Nodes. Malformed input never stops the parse: missing
// tokens and unexpected input become Error nodes and parsing resumes at the
// next list separator, closing bracket or top-level keyword.
//
//	Document
//	  Include "shared.thrift"
//	  Struct
//	    Identifier User
//	    Field
//	      FieldID 1
//	      Type i64
//	      Identifier id
//
// # Regions
//
// SplitDefinitions cuts a document into line-aligned chunks, each starting
// at a top-level keyword. ParseRegion parses one chunk with positions
// shifted to where it sits in the document, so the top-level nodes of all
// chunks together match a full parse of the document as long as its braces
// balance. Callers use this to re-parse only the chunks an edit touched.
//
// # Positions
//
// Lines and columns are 1-based. Editors count lines from 0; Chunk lines
// and ParseRegion's startLine use that convention.
package parser
