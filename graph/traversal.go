package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/brunobiangulo/vidhi/store"
)

// Direction selects which edges a traversal follows.
type Direction int

const (
	// Incoming follows references into the seeds: what cites them.
	Incoming Direction = iota
	// Outgoing follows references out of the seeds: what they cite.
	Outgoing
	Both
)

// TraversalResult contains the paths reached from the seeds and the edges
// followed to reach them.
type TraversalResult struct {
	Paths []string          `json:"paths"`
	Edges []store.Reference `json:"edges"`
}

// Traverse loads an Act's references and walks them from seeds up to
// maxDepth hops. See Walk.
func Traverse(ctx context.Context, s *store.Store, actID string, seeds []string, maxDepth int, dir Direction) (*TraversalResult, error) {
	refs, err := s.ReferencesForAct(ctx, actID)
	if err != nil {
		return nil, fmt.Errorf("graph.Traverse: loading references: %w", err)
	}
	return Walk(refs, seeds, maxDepth, dir), nil
}

// Walk is a BFS over resolved references. A path covers itself and every
// path below it, so seeding "Act/Dapha ३" also follows references made
// from or to its clauses.
func Walk(refs []store.Reference, seeds []string, maxDepth int, dir Direction) *TraversalResult {
	res := &TraversalResult{}
	if len(seeds) == 0 || maxDepth < 1 {
		return res
	}

	visited := make(map[string]bool)
	queue := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if !visited[s] {
			visited[s] = true
			queue = append(queue, s)
		}
	}
	used := make(map[int]bool)

	for depth := 0; depth < maxDepth && len(queue) > 0; depth++ {
		var next []string
		for _, p := range queue {
			for i, r := range refs {
				if !r.Resolved {
					continue
				}
				var n string
				switch {
				case dir != Incoming && covers(p, r.From):
					n = r.To
				case dir != Outgoing && covers(p, r.To):
					n = r.From
				default:
					continue
				}
				if !used[i] {
					used[i] = true
					res.Edges = append(res.Edges, r)
				}
				if !visited[n] {
					visited[n] = true
					next = append(next, n)
					res.Paths = append(res.Paths, n)
				}
			}
		}
		queue = next
	}
	sort.Strings(res.Paths)
	return res
}

func covers(p, path string) bool {
	return path == p || strings.HasPrefix(path, p+"/")
}
