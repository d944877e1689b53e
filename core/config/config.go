// Package config resolves runtime configuration: optional .env file,
// optional YAML file, then environment overrides, in that order of
// increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

const DefaultPath = "fortknox.yaml"

type Config struct {
	Listen        string `yaml:"listen"`
	DBPath        string `yaml:"db_path"`
	ProjectsPath  string `yaml:"projects_path"`
	PolicyPath    string `yaml:"policy_path"`
	RemoteURL     string `yaml:"remote_url"`
	AuditPath     string `yaml:"audit_path"`
	TestMode      bool   `yaml:"test_mode"`
	EngineID      string `yaml:"engine_id"`
	RemoteTimeout int    `yaml:"remote_timeout_seconds"`
	MaxItemChars  int    `yaml:"max_item_chars"`
	CompilePerMin int    `yaml:"compile_per_minute"`
}

func defaults() Config {
	return Config{
		Listen:        "127.0.0.1:8787",
		DBPath:        "fortknox.db",
		EngineID:      "remote",
		RemoteTimeout: 180,
		MaxItemChars:  2000,
		CompilePerMin: 6,
	}
}

// Load resolves configuration. A missing YAML file is fine; a present
// but unparsable one is not.
func Load(path string) (Config, error) {
	// .env is a developer convenience; absence is expected.
	_ = godotenv.Load()

	configuration := defaults()

	trimmedPath := strings.TrimSpace(path)
	if trimmedPath != "" {
		// #nosec G304 -- config path is explicit local user input.
		content, err := os.ReadFile(trimmedPath)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err == nil && len(strings.TrimSpace(string(content))) > 0 {
			if err := yaml.Unmarshal(content, &configuration); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnv(&configuration)
	configuration.normalize()
	return configuration, nil
}

func applyEnv(configuration *Config) {
	if v, ok := lookup("FORTKNOX_LISTEN"); ok {
		configuration.Listen = v
	}
	if v, ok := lookup("FORTKNOX_DB_PATH"); ok {
		configuration.DBPath = v
	}
	if v, ok := lookup("FORTKNOX_PROJECTS_PATH"); ok {
		configuration.ProjectsPath = v
	}
	if v, ok := lookup("FORTKNOX_POLICY_PATH"); ok {
		configuration.PolicyPath = v
	}
	if v, ok := lookup("FORTKNOX_REMOTE_URL"); ok {
		configuration.RemoteURL = v
	}
	if v, ok := lookup("FORTKNOX_AUDIT_PATH"); ok {
		configuration.AuditPath = v
	}
	if v, ok := lookup("FORTKNOX_TESTMODE"); ok {
		configuration.TestMode = v == "1"
	}
	if v, ok := lookup("FORTKNOX_ENGINE_ID"); ok {
		configuration.EngineID = v
	}
	if v, ok := lookupInt("FORTKNOX_REMOTE_TIMEOUT"); ok {
		configuration.RemoteTimeout = v
	}
	if v, ok := lookupInt("FORTKNOX_MAX_ITEM_CHARS"); ok {
		configuration.MaxItemChars = v
	}
	if v, ok := lookupInt("RATE_LIMIT_FORTKNOX_COMPILE_PER_MIN"); ok {
		configuration.CompilePerMin = v
	}
}

func lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func lookupInt(key string) (int, bool) {
	value, ok := lookup(key)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func (configuration *Config) normalize() {
	configuration.Listen = strings.TrimSpace(configuration.Listen)
	configuration.DBPath = strings.TrimSpace(configuration.DBPath)
	configuration.ProjectsPath = strings.TrimSpace(configuration.ProjectsPath)
	configuration.PolicyPath = strings.TrimSpace(configuration.PolicyPath)
	configuration.RemoteURL = strings.TrimSpace(configuration.RemoteURL)
	configuration.AuditPath = strings.TrimSpace(configuration.AuditPath)
	configuration.EngineID = strings.TrimSpace(configuration.EngineID)
	if configuration.EngineID == "" {
		configuration.EngineID = "remote"
	}
	if configuration.RemoteTimeout <= 0 {
		configuration.RemoteTimeout = 180
	}
	if configuration.MaxItemChars < 0 {
		configuration.MaxItemChars = 0
	}
}

// RemoteTimeoutDuration is the remote compile bound as a duration.
func (configuration Config) RemoteTimeoutDuration() time.Duration {
	return time.Duration(configuration.RemoteTimeout) * time.Second
}

// Offline reports whether no compiler backend can be constructed.
func (configuration Config) Offline() bool {
	return !configuration.TestMode && configuration.RemoteURL == ""
}
