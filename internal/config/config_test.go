package config

import (
	"errors"
	"strings"
	"testing"

	"ngxwhitelist/internal/whitelist"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NGINX_CONF_PATH", "")
	t.Setenv("RELOAD_MODE", "service")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ParamLimit != 4000 {
		t.Errorf("ParamLimit = %d, want 4000", cfg.ParamLimit)
	}
	if cfg.IncludePath() != "/etc/nginx/shared.conf" {
		t.Errorf("IncludePath = %q", cfg.IncludePath())
	}
	if cfg.DenyStatus != 404 || cfg.WhitelistFile != "include.whitelist" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NGINX_INCLUDE_DIR", "/opt/nginx/conf.d")
	t.Setenv("PARAM_LENGTH_LIMIT", "200")
	t.Setenv("STRICT_LIMIT", "true")
	t.Setenv("RELOAD_MODE", "Docker")
	t.Setenv("SSH_PORT", "2222")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ParamLimit != 200 || !cfg.StrictLimit || cfg.ReloadMode != ReloadDocker {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.IncludePath() != "/opt/nginx/conf.d/shared.conf" {
		t.Errorf("IncludePath = %q", cfg.IncludePath())
	}
	if cfg.SSHTarget().Port != 2222 {
		t.Errorf("SSH port = %d", cfg.SSHTarget().Port)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"RELOAD_MODE":          "telepathy",
		"DOCKER_RELOAD_ACTION": "kill",
		"PARAM_LENGTH_LIMIT":   "-1",
		"DENY_STATUS":          "42",
		"SHARED_FILE":          "../shared.conf",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv("RELOAD_MODE", "service")
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Errorf("%s=%s: expected error", key, val)
			}
		})
	}
}

func TestValidate_ListsMissingInputs(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	var missing *whitelist.MissingInputError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingInputError, got %v", err)
	}
	if strings.Join(missing.Fields, ",") != "nginx-config,routes" {
		t.Errorf("fields = %v", missing.Fields)
	}

	cfg = &Config{NginxConfPath: "nginx.conf", RoutesFile: "-", Remote: true}
	if err := cfg.Validate(); !errors.As(err, &missing) || missing.Fields[0] != "ssh-host" {
		t.Errorf("remote without host: %v", err)
	}

	cfg.SSHHost = "web1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("complete config: %v", err)
	}
}

func TestLoad_BackupAndInstallKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BACKUP_DIR", "/var/backups/whitelister")
	t.Setenv("BACKUP_RETENTION_DAYS", "7")
	t.Setenv("ALLOW_REMOTE_INSTALL", "true")
	t.Setenv("SSH_INSECURE_IGNORE_HOST_KEY", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BackupDir != "/var/backups/whitelister" || cfg.BackupDays != 7 {
		t.Errorf("backup settings = %q/%d", cfg.BackupDir, cfg.BackupDays)
	}
	if !cfg.AllowInstall {
		t.Error("AllowInstall = false, want true")
	}
	if !cfg.SSHTarget().InsecureIgnoreHostKey {
		t.Error("SSHTarget().InsecureIgnoreHostKey = false, want true")
	}
}

func TestCheck_FlagOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.DenyStatus = 5000
	if err := cfg.Check(); err == nil || !strings.Contains(err.Error(), "DENY_STATUS") {
		t.Errorf("Check() = %v, want DENY_STATUS error", err)
	}
	cfg.DenyStatus = 403
	cfg.ParamLimit = 0
	if err := cfg.Check(); err == nil {
		t.Error("Check() accepted a zero limit")
	}
}
