package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/4thel00z/glance/internal"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func NewWatchCmd(svc servicesFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Keep the index in sync with a directory",
		Long: `Watch a directory (default: the working directory) and re-ingest
documents as they are written. Deleted documents are dropped from the index.`,
		Args: cobra.MaximumNArgs(1),
		RunE: makeWatchRunner(svc),
	}

	cmd.Flags().Duration("debounce", 500*time.Millisecond, "Debounce window for batching changes")
	return cmd
}

func makeWatchRunner(svc servicesFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		debounce, _ := cmd.Flags().GetDuration("debounce")

		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		root, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", dir, err)
		}

		s, err := svc(cmd)
		if err != nil {
			return err
		}

		ignore, err := internal.NewIgnoreMatcher(root)
		if err != nil {
			return fmt.Errorf("read ignore file: %w", err)
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer watcher.Close()

		dataPath := s.Scope.DataPath
		if err := addWatchDirs(watcher, root, dataPath); err != nil {
			return fmt.Errorf("add watch dirs: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for document changes...\n", root)

		timer := time.NewTimer(0)
		if !timer.Stop() {
			<-timer.C
		}
		pending := make(map[string]struct{})

		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if shouldIgnoreEvent(event, dataPath) {
					continue
				}
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if err := addWatchDirs(watcher, event.Name, dataPath); err != nil {
							fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
						}
						continue
					}
				}
				if !watchable(event.Name, ignore) {
					continue
				}
				if len(pending) == 0 {
					timer.Reset(debounce)
				}
				pending[event.Name] = struct{}{}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
			case <-timer.C:
				for _, line := range syncFiles(cmd.Context(), s.Ingest, pending) {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				pending = make(map[string]struct{})
			}
		}
	}
}

// syncFiles brings the index in line with the current state of each path and
// returns one report line per path.
func syncFiles(ctx context.Context, uc *internal.IngestUseCase, paths map[string]struct{}) []string {
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	lines := make([]string, 0, len(sorted))
	for _, path := range sorted {
		lines = append(lines, fmt.Sprintf("%s: %s", path, syncFile(ctx, uc, path)))
	}
	return lines
}

func syncFile(ctx context.Context, uc *internal.IngestUseCase, path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := uc.Forget(ctx, path); err != nil {
			return fmt.Sprintf("Removal failed: %v", err)
		}
		return "Removed from index."
	}

	out, err := uc.Execute(ctx, internal.IngestInput{Path: path, Replace: true})
	if err != nil {
		return fmt.Sprintf("Ingestion failed: %v", err)
	}
	return internal.IngestSummary(out.Results[0])
}

func addWatchDirs(watcher *fsnotify.Watcher, root, dataPath string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}

		if info.IsDir() {
			base := filepath.Base(path)
			if path != root && (strings.HasPrefix(base, ".") || path == dataPath) {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
}

func shouldIgnoreEvent(event fsnotify.Event, dataPath string) bool {
	if event.Name == dataPath || strings.HasPrefix(event.Name, dataPath+string(filepath.Separator)) {
		return true
	}

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return true
	}

	return false
}

func watchable(path string, ignore *internal.IgnoreMatcher) bool {
	if strings.HasPrefix(filepath.Base(path), ".") || !internal.IsSupportedFile(path) {
		return false
	}
	return ignore == nil || !ignore.Match(path)
}
