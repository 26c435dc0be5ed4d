package symclass

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		b    byte
		want Class
	}{
		{' ', Whitespace},
		{'\n', Whitespace},
		{'\t', Whitespace},
		{'(', Delimiter},
		{'/', Delimiter},
		{'%', Delimiter},
		{'A', Regular},
		{'9', Regular},
	}
	for _, c := range cases {
		if got := Classify(c.b); got != c.want {
			t.Errorf("Classify(%q) = %v, want %v", c.b, got, c.want)
		}
	}
}

func TestIsNumeric(t *testing.T) {
	cases := []struct {
		span     string
		ok, real bool
	}{
		{"123", true, false},
		{"-17", true, false},
		{"+17", true, false},
		{"3.14", true, true},
		{"-3.14", true, true},
		{"", false, false},
		{"-", false, false},
		{"1.2.3", false, false},
		{"abc", false, false},
	}
	for _, c := range cases {
		ok, real := IsNumeric([]byte(c.span))
		if ok != c.ok || real != c.real {
			t.Errorf("IsNumeric(%q) = (%v,%v), want (%v,%v)", c.span, ok, real, c.ok, c.real)
		}
	}
}
