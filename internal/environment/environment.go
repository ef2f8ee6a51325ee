// Package environment provisions and tears down the per-script isolated
// interpreter tree the Execution Engine runs scripts inside (spec.md §4.3).
// Each script gets its own directory under the data root containing an
// interpreter-specific virtual environment, so one script's dependencies
// never leak into another's.
package environment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/scriptyard/scriptyard/internal/logger"
)

var (
	// ErrOutsideDataRoot is returned when a computed script directory would
	// fall outside the configured data root, refusing to ever touch a path
	// outside it.
	ErrOutsideDataRoot = errors.New("environment: path escapes data root")
	// ErrUnknownInterpreter is returned when no Interpreter is registered
	// for a script's requested interpreter name.
	ErrUnknownInterpreter = errors.New("environment: unknown interpreter")
)

// Interpreter adapts a target scripting language to the Environment
// Manager's provisioning protocol. Concrete adapters (python.go) hide the
// language-specific tooling (venv, pip) behind this interface, in the
// spirit of the teacher's own pluggable executor design.
type Interpreter interface {
	// Name identifies the interpreter, e.g. "python3.11".
	Name() string
	// Provision creates or refreshes the isolated environment rooted at
	// dir so that it satisfies requirements (language-native format, e.g.
	// a requirements.txt body).
	Provision(ctx context.Context, dir string, requirements string) error
	// Command builds the subprocess invocation to execute scriptPath
	// inside the environment rooted at dir, with extraEnv appended to the
	// child's environment.
	Command(ctx context.Context, dir string, scriptPath string, extraEnv []string) (name string, args []string, env []string)
}

// Manager owns the on-disk layout of every script's environment.
type Manager struct {
	dataRoot     string
	interpreters map[string]Interpreter
	log          logger.Logger
}

// NewManager creates a Manager rooted at dataRoot, which must already exist.
func NewManager(dataRoot string, log logger.Logger) *Manager {
	return &Manager{
		dataRoot:     filepath.Clean(dataRoot),
		interpreters: make(map[string]Interpreter),
		log:          log,
	}
}

// Register adds an Interpreter under its own Name().
func (m *Manager) Register(i Interpreter) {
	m.interpreters[i.Name()] = i
}

// Interpreter looks up a registered Interpreter by name.
func (m *Manager) Interpreter(name string) (Interpreter, error) {
	i, ok := m.interpreters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInterpreter, name)
	}
	return i, nil
}

// ScriptDir returns the directory reserved for a script, keyed by its slug
// per spec.md §4.3's `scripts/<folder?>/<slug>/` layout. Folder nesting
// itself is a Store/UI concept only (Folder is a tree node over Scripts,
// not over the filesystem); the on-disk tree stays a flat
// `scripts/<slug>-<id>/`, with the script id appended here, so two scripts
// never contend for the same directory even across folders.
func (m *Manager) ScriptDir(scriptID int64, slug string) (string, error) {
	name := slug + "-" + strconv.FormatInt(scriptID, 10)
	dir := filepath.Join(m.dataRoot, "scripts", name)
	rel, err := filepath.Rel(m.dataRoot, dir)
	if err != nil || rel == ".." || len(rel) >= 2 && rel[:3] == ".."+string(filepath.Separator) {
		return "", ErrOutsideDataRoot
	}
	return dir, nil
}

// State is the persisted provisioning record, cached as .env-state.json
// inside a script's directory so re-provisioning can be skipped when
// requirements haven't changed.
type State struct {
	Interpreter      string `json:"interpreter"`
	RequirementsHash string `json:"requirements_hash"`
	ProvisionedAt    string `json:"provisioned_at"`
}

// Provision ensures scriptID has an up-to-date environment for the given
// interpreter and requirements, skipping the install step entirely when the
// requirements hash and interpreter match the cached state (SPEC_FULL.md
// §4.3's reinstall-skip optimization).
func (m *Manager) Provision(ctx context.Context, scriptID int64, slug, interpreterName, requirements string) error {
	interp, err := m.Interpreter(interpreterName)
	if err != nil {
		return err
	}
	dir, err := m.ScriptDir(scriptID, slug)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("environment: create script dir: %w", err)
	}

	hash := hashRequirements(requirements)
	if cached, err := loadState(dir); err == nil {
		if cached.Interpreter == interpreterName && cached.RequirementsHash == hash {
			if m.log != nil {
				m.log.Debug("environment unchanged, skipping reinstall",
					"script_id", scriptID, "interpreter", interpreterName)
			}
			return nil
		}
	}

	if err := interp.Provision(ctx, dir, requirements); err != nil {
		return fmt.Errorf("environment: provision %s: %w", interpreterName, err)
	}

	return saveState(dir, &State{
		Interpreter:      interpreterName,
		RequirementsHash: hash,
		ProvisionedAt:    nowRFC3339(),
	})
}

// Cleanup removes scriptID's entire environment directory. Refuses to run
// if the computed path would escape the data root.
func (m *Manager) Cleanup(scriptID int64, slug string) error {
	dir, err := m.ScriptDir(scriptID, slug)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("environment: cleanup: %w", err)
	}
	return nil
}

// Inspect returns the cached provisioning state for scriptID, if any.
func (m *Manager) Inspect(scriptID int64, slug string) (*State, error) {
	dir, err := m.ScriptDir(scriptID, slug)
	if err != nil {
		return nil, err
	}
	return loadState(dir)
}

func hashRequirements(requirements string) string {
	sum := sha256.Sum256([]byte(requirements))
	return hex.EncodeToString(sum[:])
}
