package main

import (
	"bufio"
	"fmt"
	"strings"
	"sync"

	"github.com/4thel00z/glance/internal"
	"github.com/spf13/cobra"
)

const chatHelp = `Type a question and press enter. Answers print as they arrive.
  /ingest <path>  add a file or directory to the index
  /reset          forget the conversation
  /clear          clear the index and the conversation
  /quit           wait for running tasks and exit`

func NewChatCmd(svc servicesFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start a conversation that remembers earlier turns",
		Long: `Read questions from stdin, one per line. Each question runs in the
background with the last turns of the conversation as context, so the prompt
stays responsive while answers are drafted and checked.`,
		Args: cobra.NoArgs,
		RunE: makeChatRunner(svc),
	}

	addCaptureFlags(cmd)
	cmd.Flags().Int("workers", internal.DefaultWorkers, "Maximum tasks running at once")
	return cmd
}

func makeChatRunner(svc servicesFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		s, err := svc(cmd)
		if err != nil {
			return err
		}

		workers, _ := cmd.Flags().GetInt("workers")
		mode := captureMode(cmd)
		ctx := cmd.Context()

		session := s.NewSession()
		dispatcher := internal.NewDispatcher(workers, s.Logger())
		defer dispatcher.Wait()

		var mu sync.Mutex
		out := cmd.OutOrStdout()
		show := func(r internal.TaskResult) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(out, "%s\n\n", r.Text)
		}

		show(internal.TaskResult{Text: chatHelp})

		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			switch {
			case line == "":
			case line == "/quit" || line == "/exit":
				return nil
			case line == "/help":
				show(internal.TaskResult{Text: chatHelp})
			case line == "/reset":
				session.Reset()
				show(internal.TaskResult{Text: "Conversation cleared."})
			case line == "/clear":
				// Let running ingestions finish before the index goes away.
				dispatcher.Wait()
				msg, err := s.Clear.Execute(ctx)
				if err != nil {
					msg = fmt.Sprintf("Clear failed: %v", err)
				}
				session.Reset()
				show(internal.TaskResult{Text: msg})
			case strings.HasPrefix(line, "/ingest"):
				path := strings.TrimSpace(strings.TrimPrefix(line, "/ingest"))
				if path == "" {
					show(internal.TaskResult{Text: "usage: /ingest <path>"})
					continue
				}
				dispatcher.Ingest(ctx, s.Ingest, internal.IngestInput{Path: path}, show)
			default:
				dispatcher.Ask(ctx, session, line, mode, nil, show)
			}
		}

		return scanner.Err()
	}
}
