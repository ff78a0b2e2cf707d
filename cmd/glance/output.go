package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
)

func jsonOutput(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// preview flattens text onto one line and cuts it to n runes.
func preview(text string, n int) string {
	flat := []rune(strings.Join(strings.Fields(text), " "))
	if len(flat) <= n {
		return string(flat)
	}
	return string(flat[:n]) + "..."
}
