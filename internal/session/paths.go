package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.tgnotion.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tgnotion")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// FilePath returns the gotd session file path holding the MTProto credentials.
func FilePath() string {
	return filepath.Join(BaseDir(), "session.json")
}

// LedgerPath returns the export ledger database path.
func LedgerPath() string {
	return filepath.Join(BaseDir(), "ledger.db")
}

// LockPath returns the single-instance lock file path.
func LockPath() string {
	return filepath.Join(BaseDir(), "LOCK")
}

// LogDir returns the log directory.
func LogDir() string {
	return filepath.Join(BaseDir(), "logs")
}

// LogPath returns the log file path.
func LogPath() string {
	return filepath.Join(LogDir(), "tgnotion.log")
}

// EnsureDirs creates the directory tree with proper permissions.
func EnsureDirs() error {
	for _, d := range []string{BaseDir(), LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
