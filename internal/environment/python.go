package environment

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// PythonInterpreter provisions a venv-based environment and runs scripts
// with the venv's own python binary.
type PythonInterpreter struct {
	// pythonBin is the system python used to create new venvs, e.g.
	// "python3.11". Defaults to "python3".
	pythonBin string
}

// NewPythonInterpreter creates a PythonInterpreter. An empty pythonBin
// defaults to "python3".
func NewPythonInterpreter(pythonBin string) *PythonInterpreter {
	if pythonBin == "" {
		pythonBin = "python3"
	}
	return &PythonInterpreter{pythonBin: pythonBin}
}

// Name implements Interpreter.
func (p *PythonInterpreter) Name() string {
	return p.pythonBin
}

func (p *PythonInterpreter) venvDir(dir string) string {
	return filepath.Join(dir, ".venv")
}

func (p *PythonInterpreter) venvBin(dir, name string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(p.venvDir(dir), "Scripts", name+".exe")
	}
	return filepath.Join(p.venvDir(dir), "bin", name)
}

// Provision implements Interpreter, following spec.md §4.3's four-step
// protocol: create the .venv/ tree if absent, upgrade pip in-tree, then
// sync it to requirements.txt (the caller's State cache already skips this
// call entirely when the requirements hash is unchanged).
func (p *PythonInterpreter) Provision(ctx context.Context, dir string, requirements string) error {
	venv := p.venvDir(dir)
	if _, err := os.Stat(p.venvBin(dir, "python")); err != nil {
		cmd := exec.CommandContext(ctx, p.pythonBin, "-m", "venv", venv)
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("create venv: %w", err)
		}
	}

	upgradePip := exec.CommandContext(ctx, p.venvBin(dir, "pip"), "install", "--disable-pip-version-check", "--upgrade", "pip")
	upgradePip.Stdout = os.Stderr
	upgradePip.Stderr = os.Stderr
	if err := upgradePip.Run(); err != nil {
		return fmt.Errorf("upgrade pip: %w", err)
	}

	reqPath := filepath.Join(dir, "requirements.txt")
	if err := os.WriteFile(reqPath, []byte(requirements), 0o644); err != nil {
		return fmt.Errorf("write requirements.txt: %w", err)
	}
	if requirements == "" {
		return nil
	}

	pip := p.venvBin(dir, "pip")
	cmd := exec.CommandContext(ctx, pip, "install", "--disable-pip-version-check", "-r", reqPath)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pip install: %w", err)
	}
	return nil
}

// Command implements Interpreter.
func (p *PythonInterpreter) Command(_ context.Context, dir, scriptPath string, extraEnv []string) (name string, args []string, env []string) {
	name = p.venvBin(dir, "python")
	args = []string{scriptPath}
	env = append(os.Environ(), extraEnv...)
	return name, args, env
}
