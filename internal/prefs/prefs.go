// Package prefs persists the player's onboarding state between runs.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

const DefaultServerURL = "http://localhost:8080"

type OnboardingState struct {
	Completed    bool    `yaml:"completed"`
	ServerURL    string  `yaml:"serverUrl,omitempty"`
	User         string  `yaml:"user,omitempty"`
	AutoPlay     bool    `yaml:"autoPlay"`
	SeenRetreats []int64 `yaml:"seenRetreats,omitempty"`
}

func Default() *OnboardingState {
	return &OnboardingState{ServerURL: DefaultServerURL}
}

func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sages", "state.yaml"), nil
}

// Load reads the state file. A missing file yields the defaults.
func Load(path string) (*OnboardingState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read onboarding state: %w", err)
	}

	st := Default()
	if err := yaml.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("decode onboarding state %s: %w", path, err)
	}
	if st.ServerURL == "" {
		st.ServerURL = DefaultServerURL
	}
	return st, nil
}

// Save replaces the state file atomically.
func (s *OnboardingState) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *OnboardingState) Seen(retreatID int64) bool {
	return slices.Contains(s.SeenRetreats, retreatID)
}

// MarkSeen records a finished retreat; it reports whether it was new.
func (s *OnboardingState) MarkSeen(retreatID int64) bool {
	if s.Seen(retreatID) {
		return false
	}
	s.SeenRetreats = append(s.SeenRetreats, retreatID)
	return true
}
