package config

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	sshutil "ngxwhitelist/internal/ssh"
	"ngxwhitelist/internal/whitelist"
)

// Reload modes.
const (
	ReloadNone    = "none"
	ReloadService = "service"
	ReloadDocker  = "docker"
	ReloadSSH     = "ssh"
)

type Config struct {
	// Inputs
	NginxConfPath string
	RoutesFile    string

	// Generation
	IncludeDir    string
	WhitelistFile string
	SharedFile    string
	ParamLimit    int
	DenyStatus    int
	StrictLimit   bool

	// Install and reload
	Restart         bool
	Remote          bool
	ReloadMode      string
	ReloadCommand   string
	ValidateCommand string
	DockerContainer string
	DockerAction    string

	SSHHost               string
	SSHPort               int
	SSHUser               string
	SSHKeyPath            string
	SSHHostKey            string
	SSHInsecureIgnoreHost bool

	// Ambient
	BackupDir      string
	BackupDays     int
	HistoryDBPath  string
	LogLevel       string
	LogOutput      string
	LogPath        string
	Port           string
	APISecret      string
	TokenExpiry    int
	WebhookURL     string
	WebhookFormat  string
	MetricsEnabled bool
	// AllowInstall lets API and MCP callers install and reload.
	AllowInstall bool
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		NginxConfPath: getEnv("NGINX_CONF_PATH", ""),
		RoutesFile:    getEnv("ROUTES_FILE", ""),

		IncludeDir:    getEnv("NGINX_INCLUDE_DIR", whitelist.DefaultIncludeDir),
		WhitelistFile: getEnv("WHITELIST_FILE", whitelist.WhitelistFileName),
		SharedFile:    getEnv("SHARED_FILE", whitelist.SharedFileName),
		ParamLimit:    getEnvInt("PARAM_LENGTH_LIMIT", whitelist.DefaultLimit),
		DenyStatus:    getEnvInt("DENY_STATUS", whitelist.DefaultDenyStatus),
		StrictLimit:   getEnvBool("STRICT_LIMIT", false),

		Restart:         getEnvBool("RESTART", false),
		ReloadMode:      strings.ToLower(getEnv("RELOAD_MODE", ReloadService)),
		ReloadCommand:   getEnv("RELOAD_COMMAND", "service nginx restart"),
		ValidateCommand: getEnv("VALIDATE_COMMAND", "nginx -t"),
		DockerContainer: getEnv("DOCKER_CONTAINER", "nginx"),
		DockerAction:    getEnv("DOCKER_RELOAD_ACTION", "signal"),

		SSHHost:               getEnv("SSH_HOST", ""),
		SSHPort:               getEnvInt("SSH_PORT", 22),
		SSHUser:               getEnv("SSH_USER", "root"),
		SSHKeyPath:            getEnv("SSH_KEY_PATH", "~/.ssh/id_ed25519"),
		SSHHostKey:            getEnv("SSH_HOST_KEY", ""),
		SSHInsecureIgnoreHost: getEnvBool("SSH_INSECURE_IGNORE_HOST_KEY", false),

		BackupDir:      getEnv("BACKUP_DIR", ""),
		BackupDays:     getEnvInt("BACKUP_RETENTION_DAYS", 30),
		HistoryDBPath:  getEnv("HISTORY_DB_PATH", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogOutput:      getEnv("LOG_OUTPUT", "stderr"),
		LogPath:        getEnv("LOG_PATH", ""),
		Port:           getEnv("APP_PORT", "8089"),
		APISecret:      getEnv("API_SECRET", ""),
		TokenExpiry:    getEnvInt("TOKEN_EXPIRY_HOURS", 24),
		WebhookURL:     getEnv("WEBHOOK_URL", ""),
		WebhookFormat:  getEnv("WEBHOOK_FORMAT", "discord"),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		AllowInstall:   getEnvBool("ALLOW_REMOTE_INSTALL", false),
	}

	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Check rejects settings that are wrong regardless of the command run. Call
// it again after applying command-line overrides.
func (c *Config) Check() error {
	switch c.ReloadMode {
	case ReloadNone, ReloadService, ReloadDocker, ReloadSSH:
	default:
		return fmt.Errorf("invalid RELOAD_MODE %q (use: none|service|docker|ssh)", c.ReloadMode)
	}
	switch c.DockerAction {
	case "signal", "restart":
	default:
		return fmt.Errorf("invalid DOCKER_RELOAD_ACTION %q (use: signal|restart)", c.DockerAction)
	}
	if c.ParamLimit <= 0 {
		return fmt.Errorf("PARAM_LENGTH_LIMIT must be positive, got %d", c.ParamLimit)
	}
	if c.DenyStatus < 100 || c.DenyStatus > 599 {
		return fmt.Errorf("DENY_STATUS must be an HTTP status code, got %d", c.DenyStatus)
	}
	for _, name := range []string{c.WhitelistFile, c.SharedFile} {
		if name == "" || strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("artifact file name %q must be a plain base name", name)
		}
	}
	return nil
}

// Validate reports every required input that is missing, before any file is
// touched.
func (c *Config) Validate() error {
	var missing []string
	if c.NginxConfPath == "" {
		missing = append(missing, "nginx-config")
	}
	if c.RoutesFile == "" {
		missing = append(missing, "routes")
	}
	if len(missing) > 0 {
		return &whitelist.MissingInputError{Fields: missing}
	}
	if (c.Remote || c.ReloadMode == ReloadSSH) && c.SSHHost == "" {
		return &whitelist.MissingInputError{Fields: []string{"ssh-host"}}
	}
	return nil
}

// IncludePath is the absolute path the whitelist includes.
func (c *Config) IncludePath() string {
	return path.Join(c.IncludeDir, c.SharedFile)
}

// SSHTarget describes the remote host from the SSH_* settings.
func (c *Config) SSHTarget() sshutil.Target {
	return sshutil.Target{
		Host:                  c.SSHHost,
		Port:                  c.SSHPort,
		User:                  c.SSHUser,
		KeyPath:               c.SSHKeyPath,
		HostKey:               c.SSHHostKey,
		InsecureIgnoreHostKey: c.SSHInsecureIgnoreHost,
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}
