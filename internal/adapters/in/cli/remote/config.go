package remote

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// DefaultServerURL is used when nothing else names a server.
const DefaultServerURL = "http://127.0.0.1:7420"

// ClientConfig is the CLI's on-disk configuration.
type ClientConfig struct {
	Server   string                 `toml:"server,omitempty"`
	Token    string                 `toml:"token,omitempty"`
	TokenEnv string                 `toml:"token_env,omitempty"`
	Active   string                 `toml:"active,omitempty"`
	Targets  map[string]TargetEntry `toml:"targets,omitempty"`
}

// TargetEntry is a saved server in [targets.<name>].
type TargetEntry struct {
	URL      string `toml:"url"`
	Token    string `toml:"token,omitempty"`
	TokenEnv string `toml:"token_env,omitempty"`
}

// DefaultClientConfigPath returns the default client config path.
func DefaultClientConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = os.Getenv("HOME")
	}
	return filepath.Join(configDir, "berth", "client.toml")
}

// LoadClientConfig loads the client configuration. A missing file yields an
// empty config.
func LoadClientConfig(path string) (*ClientConfig, error) {
	if path == "" {
		path = DefaultClientConfigPath()
	}

	config := &ClientConfig{Targets: make(map[string]TargetEntry)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read client config: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if config.Targets == nil {
		config.Targets = make(map[string]TargetEntry)
	}
	return config, nil
}

// SaveClientConfig writes the client configuration with owner-only permissions.
func SaveClientConfig(path string, config *ClientConfig) error {
	if path == "" {
		path = DefaultClientConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal client config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write client config: %w", err)
	}
	return nil
}

// ResolveTarget resolves the server URL and token.
// Precedence: flag > env > active target > top-level config > default.
func ResolveTarget(config *ClientConfig, flagServer, flagToken string) (serverURL, token string) {
	if config == nil {
		config = &ClientConfig{}
	}

	var target *TargetEntry
	if config.Active != "" {
		if t, ok := config.Targets[config.Active]; ok {
			target = &t
		}
	}

	switch {
	case flagServer != "":
		serverURL = flagServer
	case os.Getenv("BERTH_SERVER") != "":
		serverURL = os.Getenv("BERTH_SERVER")
	case target != nil && target.URL != "":
		serverURL = target.URL
	case config.Server != "":
		serverURL = config.Server
	default:
		serverURL = DefaultServerURL
	}

	switch {
	case flagToken != "":
		token = flagToken
	case os.Getenv("BERTH_TOKEN") != "":
		token = os.Getenv("BERTH_TOKEN")
	case target != nil && target.Token != "":
		token = target.Token
	case target != nil && target.TokenEnv != "":
		token = os.Getenv(target.TokenEnv)
	case config.Token != "":
		token = config.Token
	case config.TokenEnv != "":
		token = os.Getenv(config.TokenEnv)
	}

	return serverURL, token
}

// AddTarget saves a named server, replacing any previous entry.
func AddTarget(path, name string, target TargetEntry) error {
	if target.URL == "" {
		return fmt.Errorf("target '%s' needs a URL", name)
	}
	config, err := LoadClientConfig(path)
	if err != nil {
		return err
	}

	config.Targets[name] = target
	return SaveClientConfig(path, config)
}

// RemoveTarget forgets a named server.
func RemoveTarget(path, name string) error {
	config, err := LoadClientConfig(path)
	if err != nil {
		return err
	}

	if _, ok := config.Targets[name]; !ok {
		return fmt.Errorf("target '%s' not found", name)
	}
	delete(config.Targets, name)
	if config.Active == name {
		config.Active = ""
	}
	return SaveClientConfig(path, config)
}

// SetActiveTarget selects the server used by default.
func SetActiveTarget(path, name string) error {
	config, err := LoadClientConfig(path)
	if err != nil {
		return err
	}

	if _, ok := config.Targets[name]; !ok {
		return fmt.Errorf("target '%s' not found", name)
	}
	config.Active = name
	return SaveClientConfig(path, config)
}
