// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package xdg locates reservd's files under the XDG base directories.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "reservd"

// ConfigDir returns $XDG_CONFIG_HOME/reservd, or ~/.config/reservd when
// XDG_CONFIG_HOME is unset or relative.
func ConfigDir() (string, error) {
	if base := os.Getenv("XDG_CONFIG_HOME"); filepath.IsAbs(base) {
		return filepath.Join(base, appName), nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", oops.Code("XDG_NO_HOME").Errorf("neither XDG_CONFIG_HOME nor HOME is set")
	}
	return filepath.Join(home, ".config", appName), nil
}

// ConfigFile is the YAML file read when --config is not given.
func ConfigFile() (string, error) {
	return inConfigDir("config.yaml")
}

// CertsDir is the default home of the cluster CA and service certificates.
func CertsDir() (string, error) {
	return inConfigDir("certs")
}

func inConfigDir(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// EnsureDir creates path with mode 0700 if missing. An existing non-directory
// at path is an error.
func EnsureDir(path string) error {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return oops.Code("XDG_NOT_A_DIRECTORY").With("path", path).Errorf("%s exists and is not a directory", path)
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.With("path", path).Wrap(err)
	}
	return nil
}
