// Package auth stores the Clickup and Todoist API tokens and webhook
// secrets outside the config files.
package auth

import (
	"errors"
	"fmt"

	"github.com/basecamp/konnector/internal/config"
	"github.com/basecamp/konnector/internal/output"
	"github.com/basecamp/konnector/internal/platform"
)

// Manager resolves credentials for both platforms.
type Manager struct {
	store *Store
}

// NewManager creates a manager backed by the keyring, falling back to a
// file in the global config directory.
func NewManager() *Manager {
	return &Manager{store: NewStore(config.GlobalConfigDir())}
}

// NewManagerWithStore creates a manager over an existing store.
func NewManagerWithStore(store *Store) *Manager {
	return &Manager{store: store}
}

// Store returns the underlying credential store.
func (m *Manager) Store() *Store {
	return m.store
}

// ParsePlatform validates a platform name given on the command line.
func ParsePlatform(name string) (platform.Platform, error) {
	switch p := platform.Platform(name); p {
	case platform.Clickup, platform.Todoist:
		return p, nil
	}
	return "", output.ErrUsageHint(fmt.Sprintf("unknown platform %q", name), "Use clickup or todoist")
}

// Set stores credentials for p. An empty webhook secret keeps the one
// already stored.
func (m *Manager) Set(p platform.Platform, token, webhookSecret string) error {
	if token == "" {
		return output.ErrUsage("token must not be empty")
	}
	creds := &Credentials{Token: token, WebhookSecret: webhookSecret}
	if webhookSecret == "" {
		if prev, err := m.store.Load(string(p)); err == nil {
			creds.WebhookSecret = prev.WebhookSecret
		}
	}
	return m.store.Save(string(p), creds)
}

// Remove deletes the credentials for p.
func (m *Manager) Remove(p platform.Platform) error {
	err := m.store.Delete(string(p))
	if errors.Is(err, ErrNotFound) {
		return output.ErrNotFound("credentials", string(p))
	}
	return err
}

// Apply fills tokens and webhook secrets the configuration left empty.
// Values from config, env or flags always win over stored ones.
func (m *Manager) Apply(cfg *config.Config) error {
	fill := func(p platform.Platform, token, secret *string) error {
		if *token != "" && *secret != "" {
			return nil
		}
		creds, err := m.store.Load(string(p))
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if *token == "" && creds.Token != "" {
			*token = creds.Token
			cfg.Sources[string(p)+".token"] = "credentials"
		}
		if *secret == "" && creds.WebhookSecret != "" {
			*secret = creds.WebhookSecret
			cfg.Sources[string(p)+".webhook_secret"] = "credentials"
		}
		return nil
	}
	return errors.Join(
		fill(platform.Clickup, &cfg.Clickup.Token, &cfg.Clickup.WebhookSecret),
		fill(platform.Todoist, &cfg.Todoist.Token, &cfg.Todoist.WebhookSecret),
	)
}
