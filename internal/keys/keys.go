// Package keys stores backend API keys in the user's config directory.
package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

const (
	// ConfigDirEnv overrides the config directory.
	ConfigDirEnv = "BANAFIT_CONFIG_DIR"
	appDir       = "banafit"
	fileName     = "keys.json"
)

var (
	ErrKeyNotFound = errors.New("no stored key")
	ErrNoAPIKey    = errors.New("API key required")
)

type Store struct {
	configDir string
}

// Entry is one stored key.
type Entry struct {
	Key     string    `json:"key"`
	SavedAt time.Time `json:"saved_at,omitempty"`
}

type file map[string]Entry

func NewStore(getenv func(string) string) (*Store, error) {
	dir, err := configDir(getenv)
	if err != nil {
		return nil, err
	}
	return &Store{configDir: dir}, nil
}

func NewStoreAt(dir string) *Store {
	return &Store{configDir: dir}
}

func configDir(getenv func(string) string) (string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if dir := getenv(ConfigDirEnv); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appDir), nil
	case "windows":
		appData := getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, appDir), nil
	default:
		configHome := getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, appDir), nil
	}
}

func (s *Store) Path() string {
	return filepath.Join(s.configDir, fileName)
}

func (s *Store) load() (file, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return file{}, nil
	}
	if err != nil {
		return nil, err
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", fileName, err)
	}
	if f == nil {
		f = file{}
	}
	return f, nil
}

// save writes the file owner-readable only.
func (s *Store) save(f file) error {
	if err := os.MkdirAll(s.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", fileName, err)
	}
	return nil
}

func (s *Store) Set(provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrNoAPIKey
	}
	f, err := s.load()
	if err != nil {
		return err
	}
	f[provider] = Entry{Key: key, SavedAt: time.Now().UTC()}
	return s.save(f)
}

// Get returns ErrKeyNotFound when nothing is stored for provider.
func (s *Store) Get(provider string) (string, error) {
	f, err := s.load()
	if err != nil {
		return "", err
	}
	entry, ok := f[provider]
	if !ok {
		return "", fmt.Errorf("%w for %s", ErrKeyNotFound, provider)
	}
	return entry.Key, nil
}

func (s *Store) Delete(provider string) error {
	f, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := f[provider]; !ok {
		return fmt.Errorf("%w for %s", ErrKeyNotFound, provider)
	}
	delete(f, provider)
	return s.save(f)
}

// List returns the providers with a stored key, sorted.
func (s *Store) List() ([]string, error) {
	f, err := s.load()
	if err != nil {
		return nil, err
	}
	providers := make([]string, 0, len(f))
	for p := range f {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers, nil
}

func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// Resolve picks the API key for provider. A flag value wins over a stored
// key, which wins over the environment variable. The second return value
// names where the key came from.
func Resolve(flagKey, provider, envVar string, store *Store, getenv func(string) string) (string, string, error) {
	if key := strings.TrimSpace(flagKey); key != "" {
		return key, "command-line flag", nil
	}

	if store != nil {
		if key, err := store.Get(provider); err == nil && key != "" {
			return key, "stored key (" + store.Path() + ")", nil
		}
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if key := strings.TrimSpace(getenv(envVar)); key != "" {
		return key, fmt.Sprintf("environment variable (%s)", envVar), nil
	}

	return "", "", fmt.Errorf("%w: run 'banafit keys set %s' or set %s", ErrNoAPIKey, provider, envVar)
}
