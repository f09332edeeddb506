package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/zalando/go-keyring"
)

const serviceName = "konnector"

// ErrNotFound reports that no credentials are stored for a platform.
var ErrNotFound = errors.New("credentials not found")

// Credentials holds the secrets for one platform.
type Credentials struct {
	Token         string `json:"token"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

type backend interface {
	load(platform string) (*Credentials, error)
	save(platform string, creds *Credentials) error
	remove(platform string) error
}

// Store keeps credentials in the system keyring, or in a 0600 JSON file
// when no keyring is reachable.
type Store struct {
	backend
	keyring bool
}

// NewStore probes the system keyring and falls back to credentials.json in
// fallbackDir. KONNECTOR_NO_KEYRING skips the probe.
func NewStore(fallbackDir string) *Store {
	file := &Store{backend: newFileBackend(fallbackDir)}
	if os.Getenv("KONNECTOR_NO_KEYRING") != "" {
		return file
	}

	probe := key("probe")
	if err := keyring.Set(serviceName, probe, "probe"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: system keyring unavailable, credentials stored in plaintext at %s\n",
			filepath.Join(fallbackDir, credentialsFile))
		return file
	}
	_ = keyring.Delete(serviceName, probe)
	return &Store{backend: keyringBackend{}, keyring: true}
}

// Load returns the credentials stored for platform, or ErrNotFound.
func (s *Store) Load(platform string) (*Credentials, error) { return s.load(platform) }

// Save stores credentials for platform, replacing any previous ones.
func (s *Store) Save(platform string, creds *Credentials) error { return s.save(platform, creds) }

// Delete removes credentials for platform, or reports ErrNotFound.
func (s *Store) Delete(platform string) error { return s.remove(platform) }

// UsingKeyring reports whether credentials live in the system keyring.
func (s *Store) UsingKeyring() bool { return s.keyring }

func key(platform string) string {
	return "konnector::" + platform
}

type keyringBackend struct{}

func (keyringBackend) load(platform string) (*Credentials, error) {
	data, err := keyring.Get(serviceName, key(platform))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keyring: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal([]byte(data), &creds); err != nil {
		return nil, fmt.Errorf("keyring entry for %s: %w", platform, err)
	}
	return &creds, nil
}

func (keyringBackend) save(platform string, creds *Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return keyring.Set(serviceName, key(platform), string(data))
}

func (keyringBackend) remove(platform string) error {
	err := keyring.Delete(serviceName, key(platform))
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

const credentialsFile = "credentials.json"

// fileBackend keeps every platform's credentials in one JSON object keyed by
// platform name.
type fileBackend struct {
	dir string
}

func newFileBackend(dir string) *fileBackend { return &fileBackend{dir: dir} }

func (f *fileBackend) path() string { return filepath.Join(f.dir, credentialsFile) }

func (f *fileBackend) load(platform string) (*Credentials, error) {
	all, err := f.read()
	if err != nil {
		return nil, err
	}
	creds, ok := all[platform]
	if !ok {
		return nil, ErrNotFound
	}
	return creds, nil
}

func (f *fileBackend) save(platform string, creds *Credentials) error {
	all, err := f.read()
	if err != nil {
		return err
	}
	all[platform] = creds
	return f.write(all)
}

func (f *fileBackend) remove(platform string) error {
	all, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := all[platform]; !ok {
		return ErrNotFound
	}
	delete(all, platform)
	return f.write(all)
}

func (f *fileBackend) read() (map[string]*Credentials, error) {
	all := make(map[string]*Credentials)
	data, err := os.ReadFile(f.path())
	if errors.Is(err, os.ErrNotExist) {
		return all, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("%s: %w", f.path(), err)
	}
	if all == nil {
		all = make(map[string]*Credentials)
	}
	return all, nil
}

// write replaces the file through a temp file in the same directory.
func (f *fileBackend) write(all map[string]*Credentials) error {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, "credentials-*.json.tmp")
	if err != nil {
		return err
	}
	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Chmod(0600)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	if runtime.GOOS == "windows" {
		_ = os.Remove(f.path())
	}
	if err := os.Rename(tmp.Name(), f.path()); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
