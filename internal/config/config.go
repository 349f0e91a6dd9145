package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	SSLModeCommercial = "commercial"
	SSLModeSelfSigned = "self_signed"
	SSLModeAuto       = "auto"
)

type Config struct {
	Port    int    `yaml:"port"`
	APIKey  string `yaml:"api_key"`
	GinMode string `yaml:"gin_mode"`
	DBPath  string `yaml:"db_path"`

	TrustedDir            string   `yaml:"trusted_dir"`
	AllowedWorkspaceRoots []string `yaml:"allowed_workspace_roots"`

	SSLMode            string   `yaml:"ssl_mode"`
	SSLAutoFallback    bool     `yaml:"ssl_auto_fallback"`
	CertFile           string   `yaml:"cert_file"`
	KeyFile            string   `yaml:"key_file"`
	CommercialCertFile string   `yaml:"commercial_cert_file"`
	CommercialKeyFile  string   `yaml:"commercial_key_file"`
	ServerHostname     string   `yaml:"server_hostname"`
	ServerSANIPs       []string `yaml:"server_san_ips"`

	APNSKeyPath     string `yaml:"apns_key_path"`
	APNSKeyID       string `yaml:"apns_key_id"`
	APNSTeamID      string `yaml:"apns_team_id"`
	APNSBundleID    string `yaml:"apns_bundle_id"`
	APNSEnvironment string `yaml:"apns_environment"`

	NotificationServerURL string `yaml:"notification_server_url"`

	BonjourEnabled     bool   `yaml:"bonjour_enabled"`
	BonjourServiceName string `yaml:"bonjour_service_name"`
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func defaults() Config {
	return Config{
		Port:               8443,
		APIKey:             "dev-api-key",
		GinMode:            "release",
		DBPath:             "./data/jobs.db",
		SSLMode:            SSLModeAuto,
		CertFile:           "./certs/self_signed/server.crt",
		KeyFile:            "./certs/self_signed/server.key",
		CommercialCertFile: "./certs/commercial/fullchain.pem",
		CommercialKeyFile:  "./certs/commercial/privkey.pem",
		ServerHostname:     "localhost",
		ServerSANIPs:       []string{"127.0.0.1"},
		APNSEnvironment:    "sandbox",
		BonjourEnabled:     true,
		BonjourServiceName: "RemotePrompt Server",
	}
}

// Load reads the optional YAML config file, then applies environment
// overrides from the process environment.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(osEnv{}, &cfg); err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := defaults()
	if err := applyEnv(env, &cfg); err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(env Env, cfg *Config) error {
	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	if raw := env.Getenv("API_KEY"); raw != "" {
		cfg.APIKey = raw
	}
	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}
	if raw := env.Getenv("DB_PATH"); raw != "" {
		cfg.DBPath = raw
	}
	if raw := env.Getenv("CLAUDE_TRUSTED_DIR"); raw != "" {
		cfg.TrustedDir = raw
	}
	if raw := env.Getenv("ALLOWED_WORKSPACE_ROOTS"); raw != "" {
		cfg.AllowedWorkspaceRoots = splitList(raw)
	}

	if raw := env.Getenv("SSL_MODE"); raw != "" {
		cfg.SSLMode = strings.ToLower(raw)
	}
	if raw := env.Getenv("SSL_AUTO_FALLBACK_ENABLED"); raw != "" {
		cfg.SSLAutoFallback = parseBool(raw)
	}
	if raw := env.Getenv("SSL_CERT_PATH"); raw != "" {
		cfg.CertFile = raw
	}
	if raw := env.Getenv("SSL_KEY_PATH"); raw != "" {
		cfg.KeyFile = raw
	}
	if raw := env.Getenv("COMMERCIAL_CERT_PATH"); raw != "" {
		cfg.CommercialCertFile = raw
	}
	if raw := env.Getenv("COMMERCIAL_KEY_PATH"); raw != "" {
		cfg.CommercialKeyFile = raw
	}
	if raw := env.Getenv("SERVER_HOSTNAME"); raw != "" {
		cfg.ServerHostname = raw
	}
	if raw := env.Getenv("SERVER_SAN_IPS"); raw != "" {
		cfg.ServerSANIPs = splitList(raw)
	}

	if raw := env.Getenv("APNS_KEY_PATH"); raw != "" {
		cfg.APNSKeyPath = raw
	}
	if raw := env.Getenv("APNS_KEY_ID"); raw != "" {
		cfg.APNSKeyID = raw
	}
	if raw := env.Getenv("APNS_TEAM_ID"); raw != "" {
		cfg.APNSTeamID = raw
	}
	if raw := env.Getenv("APNS_BUNDLE_ID"); raw != "" {
		cfg.APNSBundleID = raw
	}
	if raw := env.Getenv("APNS_ENVIRONMENT"); raw != "" {
		cfg.APNSEnvironment = raw
	}

	if raw := env.Getenv("NOTIFICATION_SERVER_URL"); raw != "" {
		cfg.NotificationServerURL = raw
	}

	if raw := env.Getenv("BONJOUR_ENABLED"); raw != "" {
		cfg.BonjourEnabled = parseBool(raw)
	}
	if raw := env.Getenv("BONJOUR_SERVICE_NAME"); raw != "" {
		cfg.BonjourServiceName = raw
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	switch cfg.SSLMode {
	case SSLModeCommercial, SSLModeSelfSigned, SSLModeAuto:
	default:
		return fmt.Errorf("invalid SSL_MODE %q", cfg.SSLMode)
	}
	switch cfg.APNSEnvironment {
	case "sandbox", "production":
	default:
		return fmt.Errorf("invalid APNS_ENVIRONMENT %q", cfg.APNSEnvironment)
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.ToLower(raw))
	return err == nil && v
}
