package normalize

import "github.com/JonMunkholm/docingest/internal/document"

// AttributeSuffix is appended to sanitized attribute names so they do not
// collide with a child element of the same name.
const AttributeSuffix = "_attr"

// Flatten converts one record into a flat document.
//
// Nested object keys are sanitized and joined with '_'. A scalar reaching
// a name that already holds a value is appended, making the field
// multi-valued; the same accumulation applies when two different paths
// sanitize to the same name. Sequences of scalars become multi-valued
// fields. Objects and sequences nested inside a sequence are dropped; only
// the sequence's scalar elements are kept.
func Flatten(record Node) document.Document {
	var b document.Builder
	flatten(&b, "", record)
	return b.Build()
}

func flatten(b *document.Builder, prefix string, n Node) {
	switch v := n.(type) {
	case Scalar:
		if val := Coerce(v); val != nil {
			b.Add(prefix, val)
		}

	case Sequence:
		values := make([]any, 0, len(v))
		for _, elem := range v {
			s, ok := elem.(Scalar)
			if !ok {
				continue
			}
			if val := Coerce(s); val != nil {
				values = append(values, val)
			}
		}
		b.AddAll(prefix, values)

	case Object:
		for _, m := range v {
			switch m.Role {
			case RoleText:
				flatten(b, prefix, m.Value)
			case RoleAttribute:
				flatten(b, join(prefix, attributeName(m.Key)), m.Value)
			default:
				flatten(b, join(prefix, Sanitize(m.Key)), m.Value)
			}
		}
	}
}

// attributeName sanitizes an attribute key and appends AttributeSuffix.
func attributeName(key string) string {
	s := Sanitize(key)
	if s == "" {
		return AttributeSuffix[1:]
	}
	return s + AttributeSuffix
}
