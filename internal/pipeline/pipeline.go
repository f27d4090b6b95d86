// Package pipeline runs generation end to end: generate, optionally diff,
// install, reload, then record and announce the outcome. The CLI, the HTTP
// API and the MCP server all go through it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ngxwhitelist/internal/backup"
	"ngxwhitelist/internal/history"
	"ngxwhitelist/internal/install"
	"ngxwhitelist/internal/metrics"
	"ngxwhitelist/internal/notify"
	"ngxwhitelist/internal/reload"
	"ngxwhitelist/internal/whitelist"
)

// Pipeline holds the collaborators of a run. Only Installer is required for
// installing runs; everything else may be nil.
type Pipeline struct {
	Installer install.Installer
	Reloader  reload.Reloader
	History   *history.Store
	Notifier  notify.Notifier
	Backups   *backup.Manager
	Metrics   *metrics.Registry
	Logger    *slog.Logger

	WhitelistFile string
	SharedFile    string

	// mu serializes installs so concurrent API calls cannot interleave
	// their staged files.
	mu sync.Mutex
}

// Request is one run.
type Request struct {
	Origin   string
	Source   []byte
	Patterns []string
	Options  whitelist.Options
	// Install writes the artifacts; false generates only.
	Install bool
	// Reload runs the reloader after a successful install.
	Reload bool
	// Diff computes a unified diff against the installed files.
	Diff bool
}

// Outcome is what a run produced.
type Outcome struct {
	Run    history.Run
	Result *whitelist.Result
	Diff   string
}

// Files returns the artifacts of a generation result under their configured
// names, whitelist first.
func (p *Pipeline) Files(res *whitelist.Result) []install.File {
	wl, shared := p.WhitelistFile, p.SharedFile
	if wl == "" {
		wl = whitelist.WhitelistFileName
	}
	if shared == "" {
		shared = whitelist.SharedFileName
	}
	return []install.File{
		{Name: wl, Data: res.Whitelist},
		{Name: shared, Data: res.Shared},
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Pipeline) notifier() notify.Notifier {
	if p.Notifier == nil {
		return notify.Discard{}
	}
	return p.Notifier
}

// Run executes req. The returned outcome is non-nil whenever generation got
// far enough to record a run, even if a later step failed.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Outcome, error) {
	log := p.logger()
	if req.Options.Logger == nil {
		req.Options.Logger = log
	}

	start := time.Now()
	res, err := whitelist.Generate(req.Source, req.Patterns, req.Options)
	out := &Outcome{
		Result: res,
		Run:    history.Run{Source: req.Origin, Patterns: len(req.Patterns)},
	}
	if res != nil {
		out.Run.Groups = len(res.Groups)
		out.Run.SharedDirectives = res.SharedDirectives
		out.Run.Warnings = len(res.Warnings)
	}
	p.Metrics.ObserveRun(req.Origin, len(req.Patterns), out.Run.Groups, out.Run.Warnings, time.Since(start), err)
	if err != nil {
		return p.finish(ctx, out, err)
	}

	files := p.Files(res)

	if req.Diff {
		if p.Installer == nil {
			return p.finish(ctx, out, errors.New("diff requires an installer"))
		}
		out.Diff, err = install.Diff(ctx, p.Installer, files)
		if err != nil {
			return p.finish(ctx, out, err)
		}
	}

	if !req.Install {
		return p.finish(ctx, out, nil)
	}
	if p.Installer == nil {
		return p.finish(ctx, out, errors.New("no installer configured"))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out.Run.Destination = p.Installer.Describe()
	if err := p.snapshot(ctx, files); err != nil {
		return p.finish(ctx, out, err)
	}
	err = p.Installer.Install(ctx, files)
	p.Metrics.ObserveInstall(err)
	if err != nil {
		log.Error("install_failed", slog.String("dest", out.Run.Destination), slog.Any("err", err))
		return p.finish(ctx, out, err)
	}
	out.Run.Installed = true

	ev := notify.Event{
		Destination: out.Run.Destination,
		Patterns:    out.Run.Patterns,
		Groups:      out.Run.Groups,
	}

	if req.Reload && p.Reloader != nil {
		err = p.Reloader.Reload(ctx)
		p.Metrics.ObserveReload(p.Reloader.Name(), err)
		if err != nil {
			// Installed files are left in place; the operator decides.
			log.Error("reload_failed", slog.String("reloader", p.Reloader.Name()), slog.Any("err", err))
			if nerr := p.notifier().ReloadFailed(ctx, ev, err); nerr != nil {
				log.Warn("notify_failed", slog.Any("err", nerr))
			}
			return p.finish(ctx, out, err)
		}
		out.Run.Reloaded = true
		log.Info("nginx_reloaded", slog.String("reloader", p.Reloader.Name()))
	}

	ev.Reloaded = out.Run.Reloaded
	if nerr := p.notifier().Installed(ctx, ev); nerr != nil {
		log.Warn("notify_failed", slog.Any("err", nerr))
	}
	return p.finish(ctx, out, nil)
}

// snapshot archives the installed versions of files before they are
// replaced. Caller holds mu.
func (p *Pipeline) snapshot(ctx context.Context, files []install.File) error {
	if p.Backups == nil {
		return nil
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	info, err := p.Backups.Snapshot(ctx, p.Installer, names)
	if err != nil {
		p.logger().Error("backup_failed", slog.Any("err", err))
		return fmt.Errorf("backup installed artifacts: %w", err)
	}
	if info != nil {
		p.logger().Info("backup_created", slog.String("name", info.Name), slog.Int64("size", info.Size))
	}
	if n := p.Backups.CleanOld(); n > 0 {
		p.logger().Info("backups_cleaned", slog.Int("removed", n))
	}
	return nil
}

// Rollback reinstalls the snapshot called name, or the newest one when name
// is empty, and reloads nginx if withReload is set.
func (p *Pipeline) Rollback(ctx context.Context, name string, withReload bool) (string, error) {
	if p.Backups == nil {
		return "", errors.New("backups are not configured")
	}
	if p.Installer == nil {
		return "", errors.New("no installer configured")
	}
	if name == "" {
		latest, err := p.Backups.Latest()
		if err != nil {
			return "", err
		}
		name = latest
	}
	files, err := p.Backups.Load(name)
	if err != nil {
		return name, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.Installer.Install(ctx, files)
	p.Metrics.ObserveInstall(err)
	if err != nil {
		return name, err
	}
	p.logger().Info("rollback_installed", slog.String("backup", name), slog.String("dest", p.Installer.Describe()))

	if withReload && p.Reloader != nil {
		err = p.Reloader.Reload(ctx)
		p.Metrics.ObserveReload(p.Reloader.Name(), err)
		if err != nil {
			return name, err
		}
	}
	return name, nil
}

// finish records the run and passes err through.
func (p *Pipeline) finish(ctx context.Context, out *Outcome, err error) (*Outcome, error) {
	if err != nil {
		out.Run.Error = err.Error()
	}
	rec, herr := p.History.Record(context.WithoutCancel(ctx), out.Run)
	if herr != nil {
		p.logger().Warn("history_record_failed", slog.Any("err", herr))
	}
	out.Run = rec
	return out, err
}
