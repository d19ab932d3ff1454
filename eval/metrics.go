package eval

import (
	"sort"
	"strings"

	"github.com/brunobiangulo/vidhi/chunker"
	"github.com/brunobiangulo/vidhi/citation"
)

// producedPaths returns every citation path the chunks imply. A chunk
// path contributes all of its ancestors, so chapters and sections without
// their own text still count. The root, the preamble and comprehensive
// suffixes are dropped.
func producedPaths(chunks []chunker.Chunk) map[string]bool {
	out := make(map[string]bool)
	for _, c := range chunks {
		if c.CitationPath == chunker.PreamblePath {
			continue
		}
		segs := strings.Split(strings.TrimSuffix(c.CitationPath, "/Full"), "/")
		for i := 2; i <= len(segs); i++ {
			out[strings.Join(segs[:i], "/")] = true
		}
	}
	return out
}

// pathScores compares produced paths with the gold paths. Missing and
// unexpected are sorted.
func pathScores(produced map[string]bool, expected []string) (precision, recall float64, missing, unexpected []string) {
	gold := make(map[string]bool, len(expected))
	for _, p := range expected {
		gold[p] = true
	}

	hits := 0
	for p := range gold {
		if produced[p] {
			hits++
		} else {
			missing = append(missing, p)
		}
	}
	for p := range produced {
		if !gold[p] {
			unexpected = append(unexpected, p)
		}
	}
	sort.Strings(missing)
	sort.Strings(unexpected)

	switch {
	case len(gold) == 0 && len(produced) == 0:
		return 1, 1, nil, nil
	case len(produced) == 0:
		return 0, 0, missing, nil
	case len(gold) == 0:
		return 0, 1, nil, unexpected
	}
	return float64(hits) / float64(len(produced)), float64(hits) / float64(len(gold)), missing, unexpected
}

func f1(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// anomalyRatio is the anomaly count over structural nodes, as used for the
// review status.
func anomalyRatio(r *citation.Report) float64 {
	if r == nil || r.Stats.Nodes == 0 {
		return 0
	}
	return float64(r.AnomalyCount) / float64(r.Stats.Nodes)
}

func passRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total) * 100
}
