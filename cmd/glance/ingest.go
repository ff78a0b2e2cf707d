package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/4thel00z/glance/internal"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func NewIngestCmd(svc servicesFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Add a document or a directory of documents to the index",
		Long: `Ingest text, markdown and PDF files. Images inside PDFs are described by
the configured model and indexed next to the page text.

For a directory every supported file below it is ingested, skipping hidden
directories and anything matched by .glanceignore.`,
		Args: cobra.ExactArgs(1),
		RunE: makeIngestRunner(svc),
	}

	cmd.Flags().StringSlice("include", nil, "Only ingest files matching these globs (e.g. 'docs/**')")
	cmd.Flags().StringSlice("exclude", nil, "Extra ignore patterns, gitignore syntax")
	cmd.Flags().Bool("replace", false, "Replace chunks from earlier ingestions of the same files")
	return cmd
}

type ingestFileResult struct {
	Path          string `json:"path"`
	Chunks        int    `json:"chunks"`
	Captions      int    `json:"captions"`
	ImagesSkipped int    `json:"images_skipped"`
	PagesSkipped  int    `json:"pages_skipped"`
	Summary       string `json:"summary"`
	Error         string `json:"error,omitempty"`
}

func makeIngestRunner(svc servicesFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		include, _ := cmd.Flags().GetStringSlice("include")
		exclude, _ := cmd.Flags().GetStringSlice("exclude")
		replace, _ := cmd.Flags().GetBool("replace")
		asJSON := jsonOutput(cmd)

		s, err := svc(cmd)
		if err != nil {
			return err
		}

		var bar *progressbar.ProgressBar
		input := internal.IngestInput{
			Path:    args[0],
			Include: include,
			Exclude: exclude,
			Replace: replace,
		}
		if !asJSON {
			input.Progress = func(done, total int, path string) {
				if bar == nil {
					bar = progressbar.NewOptions(total,
						progressbar.OptionSetWriter(cmd.ErrOrStderr()),
						progressbar.OptionShowCount(),
						progressbar.OptionClearOnFinish(),
					)
				}
				bar.Describe(filepath.Base(path))
				_ = bar.Set(done)
			}
		}

		out, err := s.Ingest.Execute(cmd.Context(), input)
		if bar != nil {
			_ = bar.Finish()
		}
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}

		failed := 0
		results := make([]ingestFileResult, 0, len(out.Results))
		for _, r := range out.Results {
			res := ingestFileResult{
				Path:          r.Path,
				Chunks:        r.Report.Chunks,
				Captions:      r.Report.Captions,
				ImagesSkipped: r.Report.ImagesSkipped,
				PagesSkipped:  r.Report.PagesSkipped,
				Summary:       internal.IngestSummary(r),
			}
			if r.Err != nil {
				res.Error = r.Err.Error()
				if !errors.Is(r.Err, internal.ErrNoContent) && !errors.Is(r.Err, internal.ErrUnsupportedFormat) {
					failed++
				}
			}
			results = append(results, res)
		}

		if asJSON {
			if err := writeJSON(cmd, results); err != nil {
				return err
			}
		} else {
			printIngestResults(cmd, results)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(results))
		}
		return nil
	}
}

func printIngestResults(cmd *cobra.Command, results []ingestFileResult) {
	w := cmd.OutOrStdout()

	switch len(results) {
	case 0:
		fmt.Fprintln(w, internal.NoContentSummary)
	case 1:
		fmt.Fprintln(w, results[0].Summary)
	default:
		total := 0
		for _, r := range results {
			fmt.Fprintf(w, "%s: %s\n", r.Path, r.Summary)
			total += r.Chunks
		}
		fmt.Fprintf(w, "Ingested %d chunks from %d files.\n", total, len(results))
	}
}
