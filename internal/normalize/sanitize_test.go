package normalize

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already clean", "title", "title"},
		{"uppercase", "UPPERCASE", "uppercase"},
		{"mixed case keeps digits", "Field1Name2", "field1name2"},
		{"hyphen", "invalid-field", "invalid_field"},
		{"dot", "another.invalid", "another_invalid"},
		{"spaces", "field with spaces", "field_with_spaces"},
		{"repeated underscores", "multiple___underscores", "multiple_underscores"},
		{"leading underscores", "__leading_underscores__", "leading_underscores"},
		{"trailing underscores", "trailing_underscores___", "trailing_underscores"},
		{"mixed separators", "Multi--Field.Name  ", "multi_field_name"},
		{"at signs", "field@with@at", "field_with_at"},
		{"hash", "field#with#hash", "field_with_hash"},
		{"dollar", "field$with$dollar", "field_with_dollar"},
		{"brackets", "field[with]brackets", "field_with_brackets"},
		{"braces", "field{with}braces", "field_with_braces"},
		{"quotes", `field"with"doublequotes`, "field_with_doublequotes"},
		{"backslashes", `field\\with\\backslashes`, "field_with_backslashes"},
		{"pipes and tildes", "field|with~mixed", "field_with_mixed"},
		{"non-ascii letters", "café", "caf"},
		{"only symbols", "@#$%", ""},
		{"empty", "", ""},
		{"underscores only", "___", ""},
		{"camel case", "inStock", "instock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"Multi--Field.Name  ",
		"__x__y__",
		"ÀÉÎ-õü",
		"a.b.c",
		"!!!",
		"field with  spaces",
		"already_clean_123",
		"\x80bad\xffutf8",
	}

	for _, in := range inputs {
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			t.Errorf("Sanitize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		prefix, key, want string
	}{
		{"", "a", "a"},
		{"a", "b", "a_b"},
		{"a", "", "a"},
		{"", "", ""},
	}

	for _, tt := range tests {
		if got := join(tt.prefix, tt.key); got != tt.want {
			t.Errorf("join(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
		}
	}
}
