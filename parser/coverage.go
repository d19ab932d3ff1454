package parser

import "unicode"

// DefaultMinDigitalChars is the visible-rune count at which an estimated
// coverage reaches 1.
const DefaultMinDigitalChars = 50

// Quality summarizes a page's digital text layer.
type Quality struct {
	Chars          int     // visible runes
	PrintableRatio float64 // printable runes / all runes
	Coverage       float64 // glyph coverage, measured or estimated
	Estimated      bool    // Coverage was estimated from text
}

// Usable reports whether the layer passes the quality gate: some visible
// text and at most 15% garbage runes.
func (q Quality) Usable() bool {
	return q.Chars > 0 && q.PrintableRatio >= 0.85
}

// Assess measures the digital layer of rec. With no measured glyph
// coverage, coverage is estimated as the printable ratio scaled by how
// close the page comes to minChars visible runes.
func Assess(rec PageRecord, minChars int) Quality {
	if minChars <= 0 {
		minChars = DefaultMinDigitalChars
	}
	if !rec.HasDigitalTextLayer {
		return Quality{PrintableRatio: 1}
	}
	q := Quality{
		Chars:          visibleRunes(rec.DigitalText),
		PrintableRatio: PrintableRatio(rec.DigitalText),
	}
	if rec.GlyphCoverage != nil {
		q.Coverage = clamp01(*rec.GlyphCoverage)
		return q
	}
	q.Estimated = true
	q.Coverage = q.PrintableRatio * min(1, float64(q.Chars)/float64(minChars))
	return q
}

// PrintableRatio returns the share of printable runes in s. Private-use
// code points, U+FFFD and control characters other than whitespace count
// as garbage; broken font encodings in gazette PDFs produce exactly these.
func PrintableRatio(s string) float64 {
	total, printable := 0, 0
	for _, r := range s {
		total++
		if isGarbageRune(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(printable) / float64(total)
}

func isGarbageRune(r rune) bool {
	switch {
	case r >= 0xE000 && r <= 0xF8FF:
		return true
	case r == 0xFFFD:
		return true
	case r < 0x20 && r != '\n' && r != '\r' && r != '\t':
		return true
	}
	return false
}

func visibleRunes(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) && !isGarbageRune(r) {
			n++
		}
	}
	return n
}

func clamp01(f float64) float64 {
	return max(0, min(1, f))
}
