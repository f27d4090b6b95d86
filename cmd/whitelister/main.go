package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"ngxwhitelist/internal/app"
	"ngxwhitelist/internal/backup"
	"ngxwhitelist/internal/auth"
	"ngxwhitelist/internal/config"
	"ngxwhitelist/internal/history"
	"ngxwhitelist/internal/logging"
	"ngxwhitelist/internal/pipeline"
	"ngxwhitelist/internal/reload"
	"ngxwhitelist/internal/routes"
	"ngxwhitelist/internal/server"
	sshutil "ngxwhitelist/internal/ssh"
	"ngxwhitelist/internal/whitelist"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitUsage
	}

	cmd := "generate"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "generate":
		return runGenerate(cfg, args, stdout, stderr)
	case "serve":
		return runServe(cfg, args, stderr)
	case "token":
		return runToken(cfg, args, stdout, stderr)
	case "hostkey":
		return runHostKey(cfg, args, stdout, stderr)
	case "backups":
		return runBackups(cfg, stdout, stderr)
	case "rollback":
		return runRollback(cfg, args, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q (use: generate|serve|token|hostkey|backups|rollback)\n", cmd)
		return exitUsage
	}
}

func newLogger(cfg *config.Config, stderr io.Writer) (*slog.Logger, func(), bool) {
	logger, closer, err := logging.New(cfg.LogLevel, cfg.LogOutput, cfg.LogPath)
	if err != nil {
		fmt.Fprintf(stderr, "logging: %v\n", err)
		return nil, nil, false
	}
	slog.SetDefault(logger)
	return logger, func() {
		if closer != nil {
			closer.Close()
		}
	}, true
}

func runGenerate(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("whitelister", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.NginxConfPath, "c", cfg.NginxConfPath, "path to the nginx config holding the root location")
	fs.StringVar(&cfg.IncludeDir, "n", cfg.IncludeDir, "nginx include directory the artifacts are installed to")
	fs.StringVar(&cfg.RoutesFile, "routes", cfg.RoutesFile, "file with allowed path patterns, one per line or a JSON array (- for stdin)")
	fs.BoolVar(&cfg.Restart, "r", cfg.Restart, "validate and restart nginx after installing")
	fs.IntVar(&cfg.ParamLimit, "limit", cfg.ParamLimit, "maximum length of one location selector parameter")
	fs.BoolVar(&cfg.StrictLimit, "strict", cfg.StrictLimit, "fail when a single pattern exceeds -limit")
	fs.IntVar(&cfg.DenyStatus, "deny-status", cfg.DenyStatus, "status returned for paths outside the whitelist")
	fs.BoolVar(&cfg.Remote, "remote", cfg.Remote, "install over SFTP to SSH_HOST and reload there")
	dryRun := fs.Bool("dry-run", false, "print the artifacts instead of installing them")
	diff := fs.Bool("diff", false, "print a unified diff against the installed artifacts")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if err := cfg.Check(); err != nil {
		fmt.Fprintf(stderr, "whitelister: %v\n", err)
		return exitUsage
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "whitelister: %v\n", err)
		fs.Usage()
		return exitUsage
	}

	logger, closeLog, ok := newLogger(cfg, stderr)
	if !ok {
		return exitUsage
	}
	defer closeLog()

	source, err := os.ReadFile(cfg.NginxConfPath)
	if err != nil {
		logger.Error("read_nginx_config_failed", slog.String("path", cfg.NginxConfPath), slog.Any("err", err))
		return exitFailure
	}
	patterns, err := routes.LoadFile(cfg.RoutesFile)
	if err != nil {
		logger.Error("read_routes_failed", slog.String("path", cfg.RoutesFile), slog.Any("err", err))
		return exitFailure
	}

	deps, err := app.Build(cfg, logger)
	if err != nil {
		logger.Error("startup_failed", slog.Any("err", err))
		return exitFailure
	}
	defer deps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := deps.Pipeline.Run(ctx, pipeline.Request{
		Origin:   history.SourceCLI,
		Source:   source,
		Patterns: patterns,
		Options:  deps.Options,
		Install:  !*dryRun,
		Reload:   cfg.Restart,
		Diff:     *diff,
	})
	if out != nil && out.Diff != "" {
		fmt.Fprint(stdout, out.Diff)
	}
	if err != nil {
		return reportError(stderr, err)
	}

	if *dryRun && !*diff {
		files := deps.Pipeline.Files(out.Result)
		for _, f := range files {
			fmt.Fprintf(stdout, "# %s\n%s\n", f.Name, f.Data)
		}
	}
	for _, w := range out.Result.Warnings {
		fmt.Fprintf(stderr, "warning: %v\n", w)
	}
	if !*dryRun {
		fmt.Fprintf(stderr, "installed %d location groups to %s\n", len(out.Result.Groups), deps.Pipeline.Installer.Describe())
	}
	return exitOK
}

func reportError(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "whitelister: %v\n", err)

	var missing *whitelist.MissingInputError
	if errors.As(err, &missing) {
		return exitUsage
	}
	var relErr *reload.Error
	if errors.As(err, &relErr) {
		fmt.Fprintln(stderr, "the new artifacts are installed; nginx is still running the previous configuration")
	}
	return exitFailure
}

func runServe(cfg *config.Config, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Port, "port", cfg.Port, "listen port")
	allowInstall := fs.Bool("allow-install", cfg.AllowInstall, "let API callers install and reload")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if err := auth.CheckSecret(cfg.APISecret); err != nil {
		fmt.Fprintf(stderr, "serve: %v (set API_SECRET)\n", err)
		return exitUsage
	}

	logger, closeLog, ok := newLogger(cfg, stderr)
	if !ok {
		return exitUsage
	}
	defer closeLog()

	deps, err := app.Build(cfg, logger)
	if err != nil {
		logger.Error("startup_failed", slog.Any("err", err))
		return exitFailure
	}
	defer deps.Close()

	checks := map[string]server.HealthCheck{}
	for name, c := range deps.Checks {
		checks[name] = c
	}
	srv := &server.Server{
		Pipeline:      deps.Pipeline,
		History:       deps.History,
		Metrics:       deps.Metrics,
		Logger:        logger,
		Secret:        cfg.APISecret,
		Defaults:      deps.Options,
		DefaultSource: app.SourceReader(cfg),
		AllowInstall:  *allowInstall,
		Checks:        checks,
	}
	fiberApp := srv.App()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("shutting_down")
		_ = fiberApp.Shutdown()
	}()

	logger.Info("server_starting", slog.String("port", cfg.Port), slog.Bool("allow_install", *allowInstall))
	if err := fiberApp.Listen(":" + cfg.Port); err != nil {
		logger.Error("server_failed", slog.Any("err", err))
		return exitFailure
	}
	return exitOK
}

func runToken(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("sub", "", "token subject, e.g. the CI job name")
	scopes := fs.String("scopes", auth.ScopeRead+","+auth.ScopeGenerate, "comma-separated scopes")
	hours := fs.Int("hours", cfg.TokenExpiry, "validity in hours")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *subject == "" {
		fmt.Fprintln(stderr, "token: -sub is required")
		return exitUsage
	}

	var list []string
	for _, s := range strings.Split(*scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	tok, err := auth.GenerateToken(*subject, list, cfg.APISecret, *hours)
	if err != nil {
		fmt.Fprintf(stderr, "token: %v\n", err)
		return exitUsage
	}
	fmt.Fprintln(stdout, tok)
	return exitOK
}

func runHostKey(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hostkey", flag.ContinueOnError)
	fs.SetOutput(stderr)
	host := fs.String("host", cfg.SSHHost, "SSH host")
	port := fs.Int("port", cfg.SSHPort, "SSH port")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *host == "" {
		fmt.Fprintln(stderr, "hostkey: -host or SSH_HOST is required")
		return exitUsage
	}
	key, err := sshutil.GetHostKey(*host, *port)
	if err != nil {
		fmt.Fprintf(stderr, "hostkey: %v\n", err)
		return exitFailure
	}
	fmt.Fprintln(stdout, key)
	return exitOK
}

func runBackups(cfg *config.Config, stdout, stderr io.Writer) int {
	if cfg.BackupDir == "" {
		fmt.Fprintln(stderr, "backups: BACKUP_DIR is not set")
		return exitUsage
	}
	bm, err := backup.NewManager(cfg.BackupDir, time.Duration(cfg.BackupDays)*24*time.Hour)
	if err != nil {
		fmt.Fprintf(stderr, "backups: %v\n", err)
		return exitFailure
	}
	list, err := bm.List()
	if err != nil {
		fmt.Fprintf(stderr, "backups: %v\n", err)
		return exitFailure
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tCREATED")
	for _, b := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Name, backup.FormatSize(b.Size), b.CreatedAt.Format(time.RFC3339))
	}
	tw.Flush()
	return exitOK
}

func runRollback(cfg *config.Config, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("rollback", flag.ContinueOnError)
	fs.SetOutput(stderr)
	name := fs.String("name", "", "backup to restore (default: newest)")
	fs.BoolVar(&cfg.Restart, "r", cfg.Restart, "validate and restart nginx after restoring")
	fs.BoolVar(&cfg.Remote, "remote", cfg.Remote, "restore to SSH_HOST over SFTP")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if cfg.BackupDir == "" {
		fmt.Fprintln(stderr, "rollback: BACKUP_DIR is not set")
		return exitUsage
	}

	logger, closeLog, ok := newLogger(cfg, stderr)
	if !ok {
		return exitUsage
	}
	defer closeLog()

	deps, err := app.Build(cfg, logger)
	if err != nil {
		logger.Error("startup_failed", slog.Any("err", err))
		return exitFailure
	}
	defer deps.Close()

	restored, err := deps.Pipeline.Rollback(context.Background(), *name, cfg.Restart)
	if err != nil {
		return reportError(stderr, err)
	}
	fmt.Fprintf(stderr, "restored %s to %s\n", restored, deps.Pipeline.Installer.Describe())
	return exitOK
}
