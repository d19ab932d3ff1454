package parser

import (
	"regexp"
	"strings"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reBullets    = regexp.MustCompile(`[□▪▫●○◆◇■•]`)
	reWatermark  = regexp.MustCompile(`(?i)(https?://)?www\.lawcommission\.gov\.np/?`)
	rePageNumber = regexp.MustCompile(`^(?:[Pp]age\s*)?[0-9०-९]+(?:\s*/\s*[0-9०-९]+)?$`)
	reGazette    = regexp.MustCompile(`^.*नेपाल\s+राजपत्र.*भाग.*$`)
	reSpaces     = regexp.MustCompile(`[ \t\x{00A0}]+`)
)

// Clean normalizes a digital text layer for marker recognition: NFC,
// bullet glyphs, the publisher watermark, bare page-number lines and the
// gazette running header are removed. Line structure is kept.
func Clean(s string) string {
	if s == "" {
		return ""
	}
	s, _, _ = transform.String(norm.NFC, s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = reBullets.ReplaceAllString(s, "")
	s = reWatermark.ReplaceAllString(s, "")

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	blank := false
	for _, ln := range lines {
		ln = strings.TrimSpace(reSpaces.ReplaceAllString(ln, " "))
		if rePageNumber.MatchString(ln) || reGazette.MatchString(ln) {
			continue
		}
		if ln == "" {
			if blank || len(kept) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		kept = append(kept, ln)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
