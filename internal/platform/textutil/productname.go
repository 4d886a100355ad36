package textutil

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/width"
)

var markupStripper = bluemonday.StrictPolicy()

// NormalizeProductName cleans a scanned or imported product name: markup is
// stripped, full-width ASCII is folded to half width, and runs of whitespace
// collapse to single spaces. Katakana and kanji are left untouched.
func NormalizeProductName(raw string) string {
	name := markupStripper.Sanitize(raw)
	name = width.Fold.String(name)
	return strings.Join(strings.Fields(name), " ")
}
