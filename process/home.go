// File: process/home.go
package process

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Steward knows where the harness keeps its files and where the daemon
// executable is.
type Steward interface {
	SettingsDir() string
	DaemonExecutable() (string, error)
	// NewWorkDir creates a fresh working directory for one daemon.
	NewWorkDir() (string, error)
}

// DirHomeManager keeps everything under one home directory.
type DirHomeManager struct {
	Home string
	// Executable is the daemon binary; empty means the running binary.
	Executable string
}

// NewDirHomeManager creates a steward rooted at home.
func NewDirHomeManager(home string) *DirHomeManager {
	return &DirHomeManager{Home: home}
}

func (d *DirHomeManager) SettingsDir() string {
	return d.Home
}

func (d *DirHomeManager) DaemonExecutable() (string, error) {
	if d.Executable != "" {
		return d.Executable, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", errors.Wrap(err, "could not locate own executable")
	}
	return exe, nil
}

// NewWorkDir creates a unique directory under Home/daemons.
func (d *DirHomeManager) NewWorkDir() (string, error) {
	parent := filepath.Join(d.Home, "daemons")
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", errors.Wrap(err, "could not create daemons directory")
	}
	dir, err := os.MkdirTemp(parent, "daemon-")
	if err != nil {
		return "", errors.Wrap(err, "could not create daemon working directory")
	}
	return dir, nil
}
