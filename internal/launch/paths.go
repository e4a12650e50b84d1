package launch

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	EnvInstallDir = "STK_INSTALL_DIR"
	EnvConfigDir  = "STK_CONFIG_DIR"
)

// DefaultInstallDir resolves the application install directory: the
// environment variable wins, then the per-OS well-known locations are
// probed for the relevant executable.
func DefaultInstallDir() (string, error) {
	if v := os.Getenv(EnvInstallDir); v != "" {
		return v, nil
	}
	if runtime.GOOS == "windows" {
		programFiles := os.Getenv("PROGRAMFILES")
		for _, version := range []string{"STK 12", "STK 11", "STK 10"} {
			dir := filepath.Join(programFiles, "AGI", version)
			if fileExists(filepath.Join(dir, "bin", "AgUiApplication.exe")) {
				return dir, nil
			}
		}
		return "", fmt.Errorf("%w: checked %%PROGRAMFILES%%\\AGI", ErrInstallDirNotFound)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInstallDirNotFound, err)
	}
	dir := filepath.Join(home, "stk")
	if fileExists(filepath.Join(dir, "bin", "connectconsole")) {
		return dir, nil
	}
	return "", fmt.Errorf("%w: checked %s", ErrInstallDirNotFound, dir)
}

// DefaultConfigDir resolves the application configuration directory.
func DefaultConfigDir() (string, error) {
	if v := os.Getenv(EnvConfigDir); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "STK"), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
