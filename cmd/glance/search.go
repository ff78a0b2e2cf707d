package main

import (
	"fmt"
	"strings"

	"github.com/4thel00z/glance/internal"
	"github.com/spf13/cobra"
)

func NewSearchCmd(svc servicesFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the document index",
		Long:  `Show the indexed chunks closest to a query, best match first.`,
		Args:  cobra.MinimumNArgs(1),
		RunE:  makeSearchRunner(svc),
	}

	cmd.Flags().IntP("number", "n", 5, "Maximum results")
	return cmd
}

type searchResult struct {
	Label   string  `json:"label"`
	Source  string  `json:"source"`
	Page    int     `json:"page,omitempty"`
	Kind    string  `json:"kind"`
	Score   float32 `json:"score"`
	Content string  `json:"content"`
}

func makeSearchRunner(svc servicesFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("number")

		s, err := svc(cmd)
		if err != nil {
			return err
		}

		out, err := s.Search.Execute(cmd.Context(), internal.SearchInput{
			Query: strings.Join(args, " "),
			Limit: limit,
		})
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		if jsonOutput(cmd) {
			results := make([]searchResult, 0, len(out.Results))
			for _, r := range out.Results {
				results = append(results, searchResult{
					Label:   r.Label,
					Source:  r.Source,
					Page:    r.Page,
					Kind:    string(r.Kind),
					Score:   r.Score,
					Content: r.Content,
				})
			}
			return writeJSON(cmd, results)
		}

		if len(out.Results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No matches.")
			return nil
		}
		for _, r := range out.Results {
			fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %s\n        %s\n", r.Score, r.Label, preview(r.Content, 100))
		}
		return nil
	}
}
