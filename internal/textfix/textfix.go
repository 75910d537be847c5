// Package textfix repairs Polish text that was UTF-8 encoded and then
// decoded as Windows-1252 somewhere along the way ("krzaki").
package textfix

import "strings"

// Pair is one mojibake sequence and its repaired form.
type Pair struct {
	Broken string
	Fixed  string
}

// Table lists repairs in match priority order. Multi-letter sequences come
// first and the bare "Å" fallback comes last so it never shadows a longer match.
var Table = []Pair{
	{"Å‚Ã³", "łó"},
	{"Ä…Å‚", "ął"},
	{"Å›Ä‡", "ść"},

	{"Ä…", "ą"},
	{"Ä™", "ę"},
	{"Å‚", "ł"},
	{"Å„", "ń"},
	{"Ã³", "ó"},
	{"Å›", "ś"},
	{"Åº", "ź"},
	{"Å¼", "ż"},
	{"Ä‡", "ć"},

	{"Ä„", "Ą"},
	{"Ä˜", "Ę"},
	{"Åƒ", "Ń"},
	{"Ã“", "Ó"},
	{`Ã"`, "Ó"},
	{"Åš", "Ś"},
	{"Å¹", "Ź"},
	{"Å»", "Ż"},
	{"Ä†", "Ć"},
	{"Å\u0081", "Ł"},

	{"Å", "Ł"},
}

var replacer = newReplacer(Table)

func newReplacer(table []Pair) *strings.Replacer {
	oldnew := make([]string, 0, len(table)*2)
	for _, p := range table {
		oldnew = append(oldnew, p.Broken, p.Fixed)
	}
	return strings.NewReplacer(oldnew...)
}

// FixPolish returns s with every known mojibake sequence replaced.
// Text without mojibake is returned unchanged.
func FixPolish(s string) string {
	if s == "" {
		return s
	}
	return replacer.Replace(s)
}

// Changed is FixPolish that also reports whether anything was replaced.
func Changed(s string) (string, bool) {
	fixed := FixPolish(s)
	return fixed, fixed != s
}
