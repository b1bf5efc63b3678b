package core

import (
	"errors"
	"reflect"
	"testing"
)

func TestSplitLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"simple", "a;b;c", []string{"a", "b", "c"}},
		{"single field", "12345678901234", []string{"12345678901234"}},
		{"empty line", "", []string{""}},
		{"empty fields", ";;", []string{"", "", ""}},
		{"trailing delimiter", "a;b;", []string{"a", "b", ""}},
		{"quoted fields", `"a";"b"`, []string{"a", "b"}},
		{"delimiter inside quotes", `"12 RUE DE LA PAIX; BAT B";59000`, []string{"12 RUE DE LA PAIX; BAT B", "59000"}},
		{"escaped quote", `"LE ""BON"" COIN";x`, []string{`LE "BON" COIN`, "x"}},
		{"empty quoted field", `"";x`, []string{"", "x"}},
		{"quote inside unquoted field", `L"ATELIER;x`, []string{`L"ATELIER`, "x"}},
		{"text after closing quote", `"AB"CD;x`, []string{"ABCD", "x"}},
		{"whitespace preserved", ` a ; b `, []string{" a ", " b "}},
		{"sirene style row", `"123456789";"00012";"12345678900012";"O";"2001-01-01"`,
			[]string{"123456789", "00012", "12345678900012", "O", "2001-01-01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitLine(tt.line)
			if err != nil {
				t.Fatalf("SplitLine(%q) error = %v", tt.line, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitLine(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestSplitLine_UnterminatedQuote(t *testing.T) {
	for _, line := range []string{`"abc`, `a;"b;c`, `"a""`} {
		_, err := SplitLine(line)
		if !errors.Is(err, ErrUnterminatedQuote) {
			t.Errorf("SplitLine(%q) error = %v, want ErrUnterminatedQuote", line, err)
		}
	}
}

func TestJoinLine(t *testing.T) {
	tests := []struct {
		fields []string
		want   string
	}{
		{[]string{"a", "b"}, "a;b"},
		{[]string{"a;b", "c"}, `"a;b";c`},
		{[]string{`say "hi"`}, `"say ""hi"""`},
		{[]string{"", ""}, ";"},
	}

	for _, tt := range tests {
		if got := JoinLine(tt.fields); got != tt.want {
			t.Errorf("JoinLine(%q) = %q, want %q", tt.fields, got, tt.want)
		}
	}
}

func TestSplitLine_RoundTrip(t *testing.T) {
	lines := []string{
		"a;b;c",
		`"12 RUE; BAT B";59000;"x"`,
		`"LE ""BON"" COIN";;"";z`,
		`siret;codePostalEtablissement`,
		`L"ATELIER;"AB"CD;`,
	}

	for _, line := range lines {
		first, err := SplitLine(line)
		if err != nil {
			t.Fatalf("SplitLine(%q) error = %v", line, err)
		}
		second, err := SplitLine(JoinLine(first))
		if err != nil {
			t.Fatalf("SplitLine(JoinLine(%q)) error = %v", first, err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("round trip of %q: got %q, want %q", line, second, first)
		}
	}
}
