package textutil

import "testing"

func TestNormalizeProductName(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "bread", "bread"},
		{"trims and collapses whitespace", "  tuna \t mayo  ", "tuna mayo"},
		{"strips markup", "<b>bread</b><script>x()</script>", "bread"},
		{"folds full-width ascii", "ＡＢＣ１２３", "ABC123"},
		{"keeps kana and kanji", "ツナマヨおにぎり", "ツナマヨおにぎり"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		if got := NormalizeProductName(tc.in); got != tc.want {
			t.Fatalf("%s: NormalizeProductName(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}
