// Package normalize turns arbitrarily nested, heterogeneously typed records
// into flat documents with sanitized field names.
//
// Format adapters parse their input into a tree of Nodes (one tree per
// record) and hand each tree to Flatten. Flatten walks the tree, sanitizes
// every key with Sanitize, converts every scalar with Coerce and accumulates
// the results into a document.Document.
package normalize

// Node is a parsed semi-structured value: a Scalar, a Sequence or an Object.
// The set of implementations is closed.
type Node interface {
	node()
}

// ScalarKind describes how a scalar's text was typed by its source format.
type ScalarKind int

const (
	// KindString is text that must stay a string (JSON strings, CSV cells).
	KindString ScalarKind = iota

	// KindBool is a boolean typed by the source grammar.
	KindBool

	// KindNumber is a numeric literal typed by the source grammar.
	KindNumber

	// KindLiteral is untyped text whose type is inferred from its content
	// (XML text).
	KindLiteral

	// KindNull is an explicit null. Nulls produce no field.
	KindNull
)

// Scalar is a leaf value. Text holds the literal exactly as the parser
// produced it.
type Scalar struct {
	Kind ScalarKind
	Text string
}

// Sequence is an ordered list of nodes.
type Sequence []Node

// Role is the part a member plays inside an Object.
type Role int

const (
	// RoleChild is an ordinary keyed child.
	RoleChild Role = iota

	// RoleAttribute is an XML attribute; its field name gets AttributeSuffix.
	RoleAttribute

	// RoleText is an element's own text; its value lands at the object's
	// prefix. The member key is ignored.
	RoleText
)

// Member is one entry of an Object.
type Member struct {
	Key   string
	Value Node
	Role  Role
}

// Object is an ordered list of members. Keys may repeat.
type Object []Member

func (Scalar) node()   {}
func (Sequence) node() {}
func (Object) node()   {}

// String returns a KindString scalar.
func String(s string) Scalar { return Scalar{Kind: KindString, Text: s} }

// Literal returns a KindLiteral scalar.
func Literal(s string) Scalar { return Scalar{Kind: KindLiteral, Text: s} }

// Number returns a KindNumber scalar.
func Number(s string) Scalar { return Scalar{Kind: KindNumber, Text: s} }

// Bool returns a KindBool scalar.
func Bool(b bool) Scalar {
	if b {
		return Scalar{Kind: KindBool, Text: "true"}
	}
	return Scalar{Kind: KindBool, Text: "false"}
}

// Null returns a KindNull scalar.
func Null() Scalar { return Scalar{Kind: KindNull} }
