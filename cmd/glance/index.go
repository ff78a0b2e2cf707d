package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewIndexCmd(svc servicesFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the document index",
		Long:  `Inspect, rebuild or clear the vector index of ingested documents.`,
	}

	cmd.AddCommand(
		newIndexStatusCmd(svc),
		newIndexRebuildCmd(svc),
		newIndexClearCmd(svc),
	)

	return cmd
}

type indexStatus struct {
	Dir      string         `json:"dir"`
	Chunks   int            `json:"chunks"`
	Embedder string         `json:"embedder,omitempty"`
	Sources  map[string]int `json:"sources"`
}

func newIndexStatusCmd(svc servicesFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what the index holds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := svc(cmd)
			if err != nil {
				return err
			}

			out := s.Status.Execute()
			embedder := ""
			if out.Identity != nil {
				embedder = out.Identity.String()
			}

			if jsonOutput(cmd) {
				sources := make(map[string]int, len(out.Sources))
				for _, sc := range out.Sources {
					sources[sc.Source] = sc.Chunks
				}
				return writeJSON(cmd, indexStatus{Dir: out.Dir, Chunks: out.Chunks, Embedder: embedder, Sources: sources})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Index:    %s\n", out.Dir)
			fmt.Fprintf(w, "Chunks:   %d\n", out.Chunks)
			if embedder != "" {
				fmt.Fprintf(w, "Embedder: %s\n", embedder)
			}
			for _, sc := range out.Sources {
				fmt.Fprintf(w, "  %6d  %s\n", sc.Chunks, sc.Source)
			}
			return nil
		},
	}
}

func newIndexRebuildCmd(svc servicesFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Re-embed every chunk with the configured embedder",
		Long: `Re-embed all stored chunks. Needed after switching the embeddings
backend or model, which otherwise refuses to mix vectors.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := svc(cmd)
			if err != nil {
				return err
			}

			n, err := s.Rebuild.Execute(cmd.Context())
			if err != nil {
				return fmt.Errorf("rebuild index: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Index rebuilt with %d chunks.\n", n)
			return nil
		},
	}
}

func newIndexClearCmd(svc servicesFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the index",
		RunE:  makeClearRunner(svc),
	}
}

func NewClearCmd(svc servicesFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the document index",
		Long:  `Delete every ingested chunk. Same as 'glance index clear'.`,
		RunE:  makeClearRunner(svc),
	}
}

func makeClearRunner(svc servicesFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		s, err := svc(cmd)
		if err != nil {
			return err
		}

		msg, err := s.Clear.Execute(cmd.Context())
		if err != nil {
			return fmt.Errorf("clear index: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	}
}
