package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	builderr "git.home.luguber.info/inful/sitepress/internal/errors"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
)

// Manager handles the working-root directory lifecycle (both scratch and persistent)
type Manager struct {
	baseDir    string
	workDir    string
	persistent bool // If true, use the fixed directory without timestamps
}

// NewManager creates a workspace manager with ephemeral timestamped directories
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{
		baseDir:    baseDir,
		persistent: false,
	}
}

// NewPersistentManager creates a workspace manager backed by a fixed directory
// (baseDir/subdirName) that survives Cleanup(). Incremental builds need the
// working root to persist between runs so intermediate products can be reused.
func NewPersistentManager(baseDir, subdirName string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if subdirName == "" {
		subdirName = "working"
	}
	return &Manager{
		baseDir:    baseDir,
		workDir:    filepath.Join(baseDir, subdirName),
		persistent: true,
	}
}

// Create creates the working directory.
// For ephemeral mode: creates a timestamped directory
// For persistent mode: ensures the fixed directory exists
func (m *Manager) Create() error {
	if m.persistent {
		if err := os.MkdirAll(m.workDir, 0o750); err != nil {
			return builderr.WorkspaceError("create", err)
		}
		slog.Info("Using persistent working directory", logfields.Path(m.workDir))
		return nil
	}

	timestamp := time.Now().Format("20060102-150405")
	workDir := filepath.Join(m.baseDir, fmt.Sprintf("sitepress-%s", timestamp))

	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return builderr.WorkspaceError("create", err)
	}

	m.workDir = workDir
	slog.Info("Created working directory", logfields.Path(workDir))
	return nil
}

// GetPath returns the path to the working directory
func (m *Manager) GetPath() string {
	return m.workDir
}

// Cleanup removes the working directory.
// For persistent mode: does nothing (keeps intermediates for the next run)
// For ephemeral mode: removes the timestamped directory
func (m *Manager) Cleanup() error {
	if m.workDir == "" {
		return nil
	}

	if m.persistent {
		slog.Debug("Skipping cleanup for persistent working directory", logfields.Path(m.workDir))
		return nil
	}

	if err := os.RemoveAll(m.workDir); err != nil {
		return builderr.WorkspaceError("cleanup", err)
	}

	slog.Info("Cleaned up working directory", logfields.Path(m.workDir))
	m.workDir = ""
	return nil
}

// CreateSubdir creates a subdirectory within the working directory
func (m *Manager) CreateSubdir(name string) (string, error) {
	if m.workDir == "" {
		return "", fmt.Errorf("working directory not created")
	}

	subdir := filepath.Join(m.workDir, name)
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", builderr.WorkspaceError("create subdir", err)
	}

	return subdir, nil
}
