package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/4thel00z/glance/internal"
)

// Executables named glance-<name> on PATH run as `glance <name>`.
const externalPrefix = "glance-"

func findExternal(name string) (string, error) {
	binary := externalPrefix + name
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("unknown command %q: %s not found in PATH", name, binary)
	}
	return path, nil
}

func listExternalCommands() []string {
	seen := make(map[string]bool)
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if name := externalName(dir, entry); name != "" {
				seen[name] = true
			}
		}
	}

	commands := make([]string, 0, len(seen))
	for name := range seen {
		commands = append(commands, name)
	}
	sort.Strings(commands)
	return commands
}

func externalName(dir string, entry os.DirEntry) string {
	if entry.IsDir() || !strings.HasPrefix(entry.Name(), externalPrefix) {
		return ""
	}

	info, err := os.Stat(filepath.Join(dir, entry.Name()))
	if err != nil || info.Mode()&0111 == 0 {
		return ""
	}

	return strings.TrimPrefix(entry.Name(), externalPrefix)
}

func executeExternal(ctx context.Context, name string, args []string, version string) error {
	binaryPath, err := findExternal(name)
	if err != nil {
		return err
	}

	scope := internal.NewScopeResolver().Resolve("")

	cmd := exec.CommandContext(ctx, binaryPath, args...)
	cmd.Env = append(os.Environ(), externalEnv(version, scope)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

// externalEnv tells a plugin where the active scope keeps its data so it can
// read the config or the index without reimplementing scope resolution.
func externalEnv(version string, scope internal.Scope) []string {
	bin, _ := os.Executable()

	return []string{
		"GLANCE_VERSION=" + version,
		"GLANCE_BIN=" + bin,
		"GLANCE_SCOPE=" + string(scope.Type),
		"GLANCE_ROOT=" + scope.Path,
		"GLANCE_DATA_DIR=" + scope.DataPath,
		"GLANCE_INDEX_DIR=" + scope.IndexPath(),
	}
}
