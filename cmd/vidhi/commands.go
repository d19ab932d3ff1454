package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/vidhi"
	"github.com/brunobiangulo/vidhi/citation"
	"github.com/brunobiangulo/vidhi/export"
	"github.com/brunobiangulo/vidhi/graph"
	"github.com/brunobiangulo/vidhi/parser"
	"github.com/brunobiangulo/vidhi/store"
)

// readOnly opens the store without OCR or the Postgres hand-off.
func readOnly(c *vidhi.Config) {
	c.OCR.Backend = vidhi.BackendNone
	c.Postgres.DSN = ""
}

func structureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "structure",
		Short: "Structure Acts from page-record manifests",
		Long: `Structure one or more Acts from JSON page-record manifests and print
the chunks and health reports as JSON.

Example:
  vidhi structure --manifest gharelu-hinsa.json
  vidhi structure -m a.json -m b.json --no-store --tree
  vidhi structure -m a.json --xlsx review.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manifests, _ := cmd.Flags().GetStringSlice("manifest")
			noStore, _ := cmd.Flags().GetBool("no-store")
			tree, _ := cmd.Flags().GetBool("tree")
			xlsxPath, _ := cmd.Flags().GetString("xlsx")
			if len(manifests) == 0 {
				return fmt.Errorf("--manifest flag is required")
			}

			ins := make([]vidhi.ActInput, 0, len(manifests))
			for _, path := range manifests {
				in, err := readManifest(path)
				if err != nil {
					return err
				}
				ins = append(ins, in)
			}

			eng, err := openEngine(func(c *vidhi.Config) {
				c.SkipStore = c.SkipStore || noStore
				c.KeepTree = c.KeepTree || tree
			})
			if err != nil {
				return err
			}
			defer eng.Close()

			// Acts that failed are reported after the ones that succeeded.
			all, structErr := eng.StructureAll(cmd.Context(), ins)
			results := make([]*vidhi.Result, 0, len(all))
			for _, r := range all {
				if r != nil {
					results = append(results, r)
				}
			}
			if xlsxPath != "" && len(results) > 0 {
				entries := make([]export.Entry, 0, len(results))
				for _, r := range results {
					entries = append(entries, export.FromResult(r.Act, r.Chunks, r.Report))
				}
				if err := writeWorkbook(xlsxPath, entries); err != nil {
					return err
				}
			}
			if len(results) > 0 {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			}
			return structErr
		},
	}
	cmd.Flags().StringSliceP("manifest", "m", nil, "Page-record manifest (JSON); repeatable")
	cmd.Flags().Bool("no-store", false, "Do not persist results to SQLite")
	cmd.Flags().Bool("tree", false, "Include the node tree in the output")
	cmd.Flags().String("xlsx", "", "Also write a review workbook of the results")
	return cmd
}

func readManifest(path string) (vidhi.ActInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return vidhi.ActInput{}, err
	}
	defer f.Close()
	m, err := parser.LoadManifest(f, filepath.Dir(path))
	if err != nil {
		return vidhi.ActInput{}, fmt.Errorf("%s: %w", path, err)
	}
	return vidhi.ActInput{SourceID: m.SourceID, Title: m.Title, Date: m.Date, Pages: m.Pages}, nil
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file.pdf>...",
		Short: "Structure PDF Acts and persist them",
		Long: `Load each PDF, pick the digital text layer or OCR per page, structure
the Act and persist chunks and the health report. Results also go to
Postgres when a DSN is configured.

Example:
  vidhi ingest gharelu-hinsa.pdf --title "घरेलु हिंसा (कसूर र सजाय) ऐन, २०६६"
  vidhi ingest acts/*.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")
			if title != "" && len(args) > 1 {
				return fmt.Errorf("--title applies to a single file")
			}

			eng, err := openEngine(nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			out := cmd.OutOrStdout()
			var failed []string
			for _, path := range args {
				res, err := eng.IngestPDF(cmd.Context(), path, title)
				if err != nil {
					if cmd.Context().Err() != nil {
						return err
					}
					logger.Error("ingest: failed", "path", path, "error", err)
					failed = append(failed, path)
					continue
				}
				r := res.Report
				fmt.Fprintf(out, "%s  %-12s  nodes=%-4d chunks=%-4d anomalies=%-3d ocr=%.2f  %s\n",
					res.Act.ID, r.Status, r.Stats.Nodes, len(res.Chunks), r.AnomalyCount, r.OCRFraction, path)
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d files failed: %s", len(failed), len(args), strings.Join(failed, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringP("title", "t", "", "Act title (default: first line of the Act)")
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "List stored health reports",
		Long: `List health reports of stored Acts, most anomalous first.

Example:
  vidhi report --status needs_review
  vidhi report --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			asJSON, _ := cmd.Flags().GetBool("json")
			if err := checkStatus(status); err != nil {
				return err
			}

			eng, err := openEngine(readOnly)
			if err != nil {
				return err
			}
			defer eng.Close()

			rows, err := eng.Store().Reports(cmd.Context(), citation.Status(status))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rows)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-36s  %-12s  %5s  %9s  %6s  %4s  %s\n", "ACT", "STATUS", "NODES", "ANOMALIES", "EMPTY", "OCR", "TITLE")
			for _, r := range rows {
				partial := ""
				if r.Partial {
					partial = " (partial)"
				}
				fmt.Fprintf(out, "%-36s  %-12s  %5d  %9d  %6d  %.2f  %s%s\n",
					r.ID, r.Status, r.NodeCount, r.AnomalyCount, r.EmptyLeafCount, r.OCRFraction, r.Title, partial)
			}
			return nil
		},
	}
	cmd.Flags().StringP("status", "s", "", "Filter by status (clean, needs_review)")
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a review workbook of stored Acts",
		Long: `Write an xlsx workbook with health reports, chunks and issues of the
stored Acts for human review.

Example:
  vidhi export --out review.xlsx --status needs_review`,
		RunE: func(cmd *cobra.Command, args []string) error {
			outPath, _ := cmd.Flags().GetString("out")
			status, _ := cmd.Flags().GetString("status")
			if outPath == "" {
				return fmt.Errorf("--out flag is required")
			}
			if err := checkStatus(status); err != nil {
				return err
			}

			eng, err := openEngine(readOnly)
			if err != nil {
				return err
			}
			defer eng.Close()

			entries, err := storedEntries(cmd, eng.Store(), citation.Status(status))
			if err != nil {
				return err
			}

			if err := writeWorkbook(outPath, entries); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d acts to %s\n", len(entries), outPath)
			return nil
		},
	}
	cmd.Flags().StringP("out", "o", "", "Output workbook (.xlsx)")
	cmd.Flags().StringP("status", "s", "", "Only export Acts with this status")
	return cmd
}

func writeWorkbook(path string, entries []export.Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteReviewWorkbook(f, entries, logger); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func storedEntries(cmd *cobra.Command, s *store.Store, status citation.Status) ([]export.Entry, error) {
	ctx := cmd.Context()
	rows, err := s.Reports(ctx, status)
	if err != nil {
		return nil, err
	}
	entries := make([]export.Entry, 0, len(rows))
	for _, r := range rows {
		chunks, err := s.ChunksForAct(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("act %s: %w", r.ID, err)
		}
		issues, err := s.IssuesForAct(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("act %s: %w", r.ID, err)
		}
		entries = append(entries, export.FromStored(r, chunks, issues))
	}
	return entries, nil
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over stored chunks",
		Long: `Search stored chunks and print their citation paths.

Example:
  vidhi search "पीडित" --limit 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")

			eng, err := openEngine(readOnly)
			if err != nil {
				return err
			}
			defer eng.Close()

			res, err := eng.Store().SearchChunks(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			out := cmd.OutOrStdout()
			if len(res) == 0 {
				fmt.Fprintln(out, "no results")
				return nil
			}
			for _, r := range res {
				fmt.Fprintf(out, "%.3f  %s  [%s, p.%d, %s %.2f]\n    %s\n",
					r.Score, r.CitationPath, r.Title, r.Page, r.Provenance, r.Confidence, preview(r.Text, 160))
			}
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 10, "Maximum results")
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func refsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refs <act-id|source-id> [path...]",
		Short: "Show cross references of a stored Act",
		Long: `Print the cross references of a stored Act. With citation paths, walk
the reference graph from those paths instead.

Example:
  vidhi refs gharelu-hinsa
  vidhi refs gharelu-hinsa "Act/Dapha ३" --incoming --depth 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			depth, _ := cmd.Flags().GetInt("depth")
			incoming, _ := cmd.Flags().GetBool("incoming")
			outgoing, _ := cmd.Flags().GetBool("outgoing")
			asJSON, _ := cmd.Flags().GetBool("json")

			eng, err := openEngine(readOnly)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx := cmd.Context()
			actID := args[0]
			if _, err := eng.Store().GetAct(ctx, actID); errors.Is(err, store.ErrActNotFound) {
				actID = vidhi.ActID(args[0])
			} else if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				refs, err := eng.Store().ReferencesForAct(ctx, actID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, refs)
				}
				for _, r := range refs {
					to := r.To
					if !r.Resolved {
						to = "(unresolved)"
					}
					fmt.Fprintf(out, "%s  ->  %s  [%s]\n", r.From, to, r.Text)
				}
				return nil
			}

			dir := graph.Both
			switch {
			case incoming && !outgoing:
				dir = graph.Incoming
			case outgoing && !incoming:
				dir = graph.Outgoing
			}
			res, err := graph.Traverse(ctx, eng.Store(), actID, args[1:], depth, dir)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, res)
			}
			for _, p := range res.Paths {
				fmt.Fprintln(out, p)
			}
			return nil
		},
	}
	cmd.Flags().Int("depth", 1, "Maximum hops to follow")
	cmd.Flags().Bool("incoming", false, "Only follow references into the paths")
	cmd.Flags().Bool("outgoing", false, "Only follow references out of the paths")
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func checkStatus(s string) error {
	switch citation.Status(s) {
	case "", citation.Clean, citation.NeedsReview:
		return nil
	}
	return errors.New("--status must be clean or needs_review")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "…"
	}
	return s
}
