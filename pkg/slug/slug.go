// Package slug turns display names into URL-safe identifiers.
package slug

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

var fold = strings.NewReplacer(
	"à", "a", "á", "a", "â", "a", "ä", "a", "ã", "a", "å", "a", "æ", "ae",
	"ç", "c", "ğ", "g", "ı", "i", "ñ", "n", "ş", "s", "ß", "ss",
	"è", "e", "é", "e", "ê", "e", "ë", "e",
	"ì", "i", "í", "i", "î", "i", "ï", "i",
	"ò", "o", "ó", "o", "ô", "o", "ö", "o", "õ", "o", "ø", "o", "œ", "oe",
	"ù", "u", "ú", "u", "û", "u", "ü", "u",
	"ý", "y", "ÿ", "y",
	"&", " and ",
)

// Make lowercases name, folds accented Latin letters to ASCII and joins the
// remaining alphanumeric runs with single hyphens.
//
//   - "Margherita Pizza" → "margherita-pizza"
//   - "Crème Brûlée!" → "creme-brulee"
//   - "Fish & Chips" → "fish-and-chips"
func Make(name string) string {
	s := fold.Replace(strings.ToLower(strings.TrimSpace(name)))
	return strings.Trim(nonAlnum.ReplaceAllString(s, "-"), "-")
}

// Unique returns Make(name), suffixed with -2, -3 and so on while taken
// reports the candidate as used.
func Unique(name string, taken func(string) bool) string {
	base := Make(name)
	if base == "" {
		base = "item"
	}
	candidate := base
	for n := 2; taken(candidate); n++ {
		candidate = base + "-" + strconv.Itoa(n)
	}
	return candidate
}

// Reference builds a short upper-case reference such as "ORD-1A2B3C4D" from
// the first n letters and digits of id.
func Reference(prefix, id string, n int) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('-')
	for _, r := range id {
		if n == 0 {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
			n--
		}
	}
	return b.String()
}
