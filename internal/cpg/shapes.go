package cpg

import (
	"strings"

	"github.com/jward/arbor/internal/lang"
)

// Shape is a bitmask of the syntax-shape categories the builder cares about.
// Mapping raw grammar type strings into these sealed categories keeps the
// per-language surface auditable without spreading string sets through the
// traversal code.
type Shape uint8

const (
	ShapeControl Shape = 1 << iota
	ShapeCall
	ShapeDecl
	ShapeIdent
	ShapeAssign
	ShapeMember
)

// shapeTables maps each language's raw tree-sitter node types to shape
// categories. Only types the builder acts on appear here; everything else is
// plain AST structure.
var shapeTables = map[lang.Lang]map[string]Shape{
	lang.Python: {
		"if_statement":        ShapeControl,
		"for_statement":       ShapeControl,
		"while_statement":     ShapeControl,
		"try_statement":       ShapeControl,
		"except_clause":       ShapeControl,
		"finally_clause":      ShapeControl,
		"else_clause":         ShapeControl,
		"call":                ShapeCall,
		"function_definition": ShapeDecl,
		"class_definition":    ShapeDecl,
		"identifier":          ShapeIdent,
		"assignment":          ShapeAssign,
		"augmented_assignment": ShapeAssign,
		"attribute":           ShapeMember,
	},
	lang.TypeScript: {
		"if_statement":          ShapeControl,
		"for_statement":         ShapeControl,
		"for_in_statement":      ShapeControl,
		"while_statement":       ShapeControl,
		"do_statement":          ShapeControl,
		"switch_statement":      ShapeControl,
		"switch_case":           ShapeControl,
		"else_clause":           ShapeControl,
		"try_statement":         ShapeControl,
		"catch_clause":          ShapeControl,
		"finally_clause":        ShapeControl,
		"call_expression":       ShapeCall,
		"function_declaration":  ShapeDecl,
		"method_definition":     ShapeDecl,
		"class_declaration":     ShapeDecl,
		"variable_declarator":   ShapeDecl | ShapeAssign,
		"identifier":            ShapeIdent,
		"property_identifier":   ShapeIdent,
		"assignment_expression": ShapeAssign,
		"augmented_assignment_expression": ShapeAssign,
		"member_expression":     ShapeMember,
	},
	lang.Go: {
		"if_statement":          ShapeControl,
		"for_statement":         ShapeControl,
		"expression_switch_statement": ShapeControl,
		"type_switch_statement": ShapeControl,
		"select_statement":      ShapeControl,
		"call_expression":       ShapeCall,
		"function_declaration":  ShapeDecl,
		"method_declaration":    ShapeDecl,
		"type_declaration":      ShapeDecl,
		"type_spec":             ShapeDecl,
		"identifier":            ShapeIdent,
		"field_identifier":      ShapeIdent,
		"assignment_statement":  ShapeAssign,
		"short_var_declaration": ShapeAssign,
		"selector_expression":   ShapeMember,
	},
	lang.Java: {
		"if_statement":          ShapeControl,
		"for_statement":         ShapeControl,
		"enhanced_for_statement": ShapeControl,
		"while_statement":       ShapeControl,
		"do_statement":          ShapeControl,
		"switch_expression":     ShapeControl,
		"try_statement":         ShapeControl,
		"catch_clause":          ShapeControl,
		"finally_clause":        ShapeControl,
		"method_invocation":     ShapeCall,
		"object_creation_expression": ShapeCall,
		"method_declaration":    ShapeDecl,
		"constructor_declaration": ShapeDecl,
		"class_declaration":     ShapeDecl,
		"interface_declaration": ShapeDecl,
		"identifier":            ShapeIdent,
		"assignment_expression": ShapeAssign,
		"variable_declarator":   ShapeAssign,
		"field_access":          ShapeMember,
		"scoped_identifier":     ShapeMember,
	},
	lang.Ruby: {
		"if":         ShapeControl,
		"unless":     ShapeControl,
		"while":      ShapeControl,
		"until":      ShapeControl,
		"for":        ShapeControl,
		"case":       ShapeControl,
		"when":       ShapeControl,
		"else":       ShapeControl,
		"begin":      ShapeControl,
		"rescue":     ShapeControl,
		"ensure":     ShapeControl,
		"call":       ShapeCall,
		"method":     ShapeDecl,
		"class":      ShapeDecl,
		"module":     ShapeDecl,
		"identifier": ShapeIdent,
		"constant":   ShapeIdent,
		"assignment": ShapeAssign,
		"operator_assignment": ShapeAssign,
	},
}

func shapeOf(l lang.Lang, kind string) Shape {
	return shapeTables[l][kind]
}

func isControl(l lang.Lang, kind string) bool { return shapeOf(l, kind)&ShapeControl != 0 }
func isCall(l lang.Lang, kind string) bool    { return shapeOf(l, kind)&ShapeCall != 0 }
func isDecl(l lang.Lang, kind string) bool    { return shapeOf(l, kind)&ShapeDecl != 0 }
func isIdent(l lang.Lang, kind string) bool   { return shapeOf(l, kind)&ShapeIdent != 0 }
func isAssign(l lang.Lang, kind string) bool  { return shapeOf(l, kind)&ShapeAssign != 0 }
func isMember(l lang.Lang, kind string) bool  { return shapeOf(l, kind)&ShapeMember != 0 }

// isStatement treats any statement-shaped node as a CFG basic block. This
// conflates "basic block" with "statement" on purpose; the CFG layer is a
// lightweight document-order approximation, not a single-entry/single-exit
// decomposition.
func isStatement(kind string) bool {
	switch kind {
	case "expression_statement", "return_statement", "break_statement", "continue_statement":
		return true
	}
	return strings.HasSuffix(kind, "_statement")
}

// declKind maps a declaration node type to a symbol kind.
func declKind(kind string) string {
	if strings.Contains(kind, "function") || strings.Contains(kind, "method") || kind == "def" {
		return SymbolFunction
	}
	return SymbolType
}
