package internal

import (
	"fmt"
	"os"
	"path/filepath"
)

const DataDirName = ".glance"

type ScopeType string

const (
	ScopeGlobal  ScopeType = "global"
	ScopeProject ScopeType = "project"
)

type Scope struct {
	Type     ScopeType
	Path     string // working directory root
	DataPath string // .glance directory path
}

func (s Scope) IndexPath() string {
	return filepath.Join(s.DataPath, "index")
}

func (s Scope) ConfigPath() string {
	return filepath.Join(s.DataPath, "config.yaml")
}

func (s Scope) EnvPath() string {
	return filepath.Join(s.DataPath, ".env")
}

func (s Scope) IgnorePath() string {
	return filepath.Join(s.Path, IgnoreFilename)
}

type ScopeResolver struct {
	homeDir string
}

func NewScopeResolver() *ScopeResolver {
	home, _ := os.UserHomeDir()
	return &ScopeResolver{homeDir: home}
}

func (r *ScopeResolver) Global() Scope {
	return Scope{
		Type:     ScopeGlobal,
		Path:     r.homeDir,
		DataPath: filepath.Join(r.homeDir, DataDirName),
	}
}

func (r *ScopeResolver) Project() (Scope, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return Scope{}, false
	}
	return r.findProjectScope(cwd)
}

func (r *ScopeResolver) findProjectScope(dir string) (Scope, bool) {
	for {
		// The home directory's data dir is the global scope, not a project.
		if dir == r.homeDir {
			return Scope{}, false
		}

		dataPath := filepath.Join(dir, DataDirName)
		info, err := os.Stat(dataPath)
		if err == nil && info.IsDir() {
			return Scope{Type: ScopeProject, Path: dir, DataPath: dataPath}, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Scope{}, false
		}
		dir = parent
	}
}

func (r *ScopeResolver) Resolve(explicit string) Scope {
	if explicit == string(ScopeGlobal) {
		return r.Global()
	}
	if scope, ok := r.Project(); ok {
		return scope
	}
	return r.Global()
}

// Init creates the data directory for a scope. Project scopes are rooted at
// dir; the global scope ignores it.
func (r *ScopeResolver) Init(scopeType ScopeType, dir string) (Scope, error) {
	var scope Scope
	switch scopeType {
	case ScopeGlobal:
		scope = r.Global()
	case ScopeProject:
		abs, err := filepath.Abs(dir)
		if err != nil {
			return Scope{}, fmt.Errorf("resolve dir: %w", err)
		}
		scope = Scope{Type: ScopeProject, Path: abs, DataPath: filepath.Join(abs, DataDirName)}
	default:
		return Scope{}, fmt.Errorf("unknown scope: %s", scopeType)
	}

	if err := os.MkdirAll(scope.DataPath, 0755); err != nil {
		return Scope{}, fmt.Errorf("create %s: %w", scope.DataPath, err)
	}

	return scope, nil
}
