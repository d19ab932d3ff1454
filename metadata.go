package vidhi

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/brunobiangulo/vidhi/parser"
	"github.com/brunobiangulo/vidhi/structure"
)

const (
	// dateWindow is how far into the text the enactment year is looked for.
	dateWindow  = 500
	maxTitleLen = 200
	preambleKey = "प्रस्तावना"
)

// dateRe matches a Bikram Sambat or Gregorian year, optionally followed by
// month and day ("२०६६", "२०६६।१।२३", "2009-05-06").
var dateRe = regexp.MustCompile(`(?:२०[०-९]{2}|\b20[0-9]{2})(?:[/.।-][0-9०-९]{1,2}[/.।-][0-9०-९]{1,2})?`)

// fillMetadata completes an Act's title, date and preamble from its text
// where the input did not provide them.
func fillMetadata(act *structure.Act, pages []parser.PageText) {
	head := leadingText(pages, dateWindow)

	if act.Title == "" {
		act.Title = firstLine(head)
	}
	if act.Title == "" {
		act.Title = titleFromSourceID(act.SourceID)
	}
	if act.Date == "" {
		act.Date = dateRe.FindString(head)
	}
	act.Preamble = preambleText(act.Preamble)
}

// leadingText returns up to n runes of text from the first readable pages.
func leadingText(pages []parser.PageText, n int) string {
	var b strings.Builder
	count := 0
	for _, p := range pages {
		if p.Provenance == structure.ProvenanceFailed {
			continue
		}
		for _, r := range p.Text {
			if count == n {
				return b.String()
			}
			b.WriteRune(r)
			count++
		}
		if count < n {
			b.WriteByte('\n')
			count++
		}
	}
	return b.String()
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > maxTitleLen {
			line = string(r[:maxTitleLen])
		}
		return line
	}
	return ""
}

// titleFromSourceID turns a file-style source id such as
// "%E0%A4%98%E0%A4%B0%E0%A5%87%E0%A4%B2%E0%A5%81_act" into a readable title.
func titleFromSourceID(id string) string {
	if dec, err := url.PathUnescape(id); err == nil {
		id = dec
	}
	id = strings.NewReplacer("_", " ", "-", " ").Replace(id)
	return strings.Join(strings.Fields(id), " ")
}

// preambleText keeps the part of the pre-marker text that follows the
// preamble heading. Text without the heading is kept as is.
func preambleText(s string) string {
	i := strings.Index(s, preambleKey)
	if i < 0 {
		return strings.TrimSpace(s)
	}
	rest := s[i+len(preambleKey):]
	return strings.TrimSpace(strings.TrimLeft(rest, " :ः-\n"))
}
