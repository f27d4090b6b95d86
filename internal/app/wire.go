// Package app assembles the pipeline from configuration. Both binaries use
// it so the CLI, the HTTP API and the MCP server behave the same way.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"ngxwhitelist/internal/backup"
	"ngxwhitelist/internal/config"
	"ngxwhitelist/internal/docker"
	"ngxwhitelist/internal/history"
	"ngxwhitelist/internal/install"
	"ngxwhitelist/internal/metrics"
	"ngxwhitelist/internal/notify"
	"ngxwhitelist/internal/pipeline"
	"ngxwhitelist/internal/reload"
	"ngxwhitelist/internal/whitelist"
)

// Deps are the long-lived collaborators built from a Config.
type Deps struct {
	Pipeline *pipeline.Pipeline
	History  *history.Store
	Metrics  *metrics.Registry
	Options  whitelist.Options
	// Checks are dependency probes for health endpoints.
	Checks map[string]func(ctx context.Context) error

	closers []func() error
}

// Close releases everything Build opened.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

// Build wires installer, reloader, history, notifier and metrics from cfg.
func Build(cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	d := &Deps{
		Options: whitelist.Options{
			Limit:       cfg.ParamLimit,
			IncludePath: cfg.IncludePath(),
			DenyStatus:  cfg.DenyStatus,
			StrictLimit: cfg.StrictLimit,
			Logger:      logger,
		},
		Checks: map[string]func(ctx context.Context) error{},
	}

	if cfg.HistoryDBPath != "" {
		store, err := history.Open(cfg.HistoryDBPath)
		if err != nil {
			return nil, err
		}
		d.History = store
		d.closers = append(d.closers, store.Close)
	}

	if cfg.MetricsEnabled {
		d.Metrics = metrics.New()
	}

	var inst install.Installer
	if cfg.Remote {
		inst = install.NewRemoteInstaller(cfg.SSHTarget(), cfg.IncludeDir, logger)
	} else {
		inst = install.NewLocalInstaller(cfg.IncludeDir, logger)
	}

	rl, err := d.reloader(cfg)
	if err != nil {
		d.Close()
		return nil, err
	}

	var bm *backup.Manager
	if cfg.BackupDir != "" {
		bm, err = backup.NewManager(cfg.BackupDir, time.Duration(cfg.BackupDays)*24*time.Hour)
		if err != nil {
			d.Close()
			return nil, err
		}
	}

	var nt notify.Notifier = notify.Discard{}
	if cfg.WebhookURL != "" {
		nt = notify.NewWebhookSender(cfg.WebhookURL, cfg.WebhookFormat)
	}

	d.Pipeline = &pipeline.Pipeline{
		Installer:     inst,
		Reloader:      rl,
		History:       d.History,
		Notifier:      nt,
		Backups:       bm,
		Metrics:       d.Metrics,
		Logger:        logger,
		WhitelistFile: cfg.WhitelistFile,
		SharedFile:    cfg.SharedFile,
	}
	return d, nil
}

func (d *Deps) reloader(cfg *config.Config) (reload.Reloader, error) {
	mode := cfg.ReloadMode
	// A remote install is always reloaded on the remote host.
	if cfg.Remote && mode != config.ReloadNone {
		mode = config.ReloadSSH
	}

	switch mode {
	case config.ReloadNone:
		return reload.Noop{}, nil
	case config.ReloadService:
		return reload.NewServiceReloader(cfg.ValidateCommand, cfg.ReloadCommand), nil
	case config.ReloadSSH:
		return reload.NewSSHReloader(cfg.SSHTarget(), cfg.ValidateCommand, cfg.ReloadCommand), nil
	case config.ReloadDocker:
		cli, err := docker.NewLocalClient()
		if err != nil {
			return nil, fmt.Errorf("failed to create docker client: %w", err)
		}
		d.closers = append(d.closers, cli.Close)
		d.Checks["docker"] = func(ctx context.Context) error {
			return docker.PingLocal(ctx, cli)
		}
		return reload.NewDockerReloader(cli, cfg.DockerContainer, cfg.DockerAction, cfg.ValidateCommand), nil
	}
	return nil, fmt.Errorf("unknown reload mode %q", mode)
}

// SourceReader returns a function reading the configured nginx config, or
// nil when none is configured.
func SourceReader(cfg *config.Config) func() ([]byte, error) {
	if cfg.NginxConfPath == "" {
		return nil
	}
	path := cfg.NginxConfPath
	return func() ([]byte, error) {
		return os.ReadFile(path)
	}
}
