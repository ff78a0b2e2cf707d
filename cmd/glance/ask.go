package main

import (
	"fmt"
	"strings"

	"github.com/4thel00z/glance/internal"
	"github.com/spf13/cobra"
)

func NewAskCmd(svc servicesFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question",
		Long: `Ask a question about your screen or your indexed documents.

The screen is captured when the question asks for it ("@screen", "look at
screen", "what is on my screen", ...). Use --screen or --no-screen to decide
explicitly, or --image to answer about an existing screenshot.`,
		Args: cobra.MinimumNArgs(1),
		RunE: makeAskRunner(svc),
	}

	addCaptureFlags(cmd)
	cmd.Flags().String("image", "", "Answer about this image instead of the screen")
	return cmd
}

func addCaptureFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("screen", false, "Always capture the screen")
	cmd.Flags().Bool("no-screen", false, "Never capture the screen")
	cmd.MarkFlagsMutuallyExclusive("screen", "no-screen")
}

func captureMode(cmd *cobra.Command) internal.CaptureMode {
	if on, _ := cmd.Flags().GetBool("screen"); on {
		return internal.CaptureAlways
	}
	if off, _ := cmd.Flags().GetBool("no-screen"); off {
		return internal.CaptureNever
	}
	return internal.CaptureAuto
}

type askResult struct {
	Answer   string `json:"answer"`
	Flagged  bool   `json:"flagged"`
	Captured bool   `json:"captured"`
	OCRText  string `json:"ocr_text,omitempty"`
	Context  string `json:"context,omitempty"`
}

func makeAskRunner(svc servicesFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var img *internal.Image
		if path, _ := cmd.Flags().GetString("image"); path != "" {
			var err error
			img, err = (&internal.FileCapturer{Path: path}).Capture(cmd.Context())
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
		}

		s, err := svc(cmd)
		if err != nil {
			return err
		}

		out, err := s.NewSession().Ask(cmd.Context(), strings.Join(args, " "), captureMode(cmd), img)
		if err != nil {
			return fmt.Errorf("ask: %w", err)
		}

		if jsonOutput(cmd) {
			return writeJSON(cmd, askResult{
				Answer:   out.Answer,
				Flagged:  out.Flagged,
				Captured: out.Captured,
				OCRText:  out.OCRText,
				Context:  out.Context,
			})
		}

		fmt.Fprintln(cmd.OutOrStdout(), out.Answer)
		return nil
	}
}
