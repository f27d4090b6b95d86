package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeInputs(t *testing.T) (conf, routesFile string) {
	t.Helper()
	dir := t.TempDir()
	conf = filepath.Join(dir, "nginx.conf")
	routesFile = filepath.Join(dir, "routes.txt")
	if err := os.WriteFile(conf, []byte("http { server { location / { proxy_pass http://app; } } }\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(routesFile, []byte("/login\n/user/<id>\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return conf, routesFile
}

func TestRun_MissingInputs(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NGINX_CONF_PATH", "")
	t.Setenv("ROUTES_FILE", "")

	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != exitUsage {
		t.Fatalf("exit = %d, want %d", code, exitUsage)
	}
	if !strings.Contains(stderr.String(), "nginx-config, routes") {
		t.Errorf("stderr = %q, want both missing fields", stderr.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	var stdout, stderr bytes.Buffer
	if code := run([]string{"frobnicate"}, &stdout, &stderr); code != exitUsage {
		t.Errorf("exit = %d, want %d", code, exitUsage)
	}
}

func TestRun_DryRun(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HISTORY_DB_PATH", "")
	conf, routesFile := writeInputs(t)
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	code := run([]string{"-c", conf, "-routes", routesFile, "-n", dir, "-dry-run"}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{
		"# include.whitelist",
		"location ~ (/login|/user/) {",
		"include " + filepath.Join(dir, "shared.conf") + ";",
		"# shared.conf",
		"proxy_pass http://app;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("dry run wrote %d files", len(entries))
	}
}

func TestRun_Install(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HISTORY_DB_PATH", "")
	conf, routesFile := writeInputs(t)
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-c", conf, "-routes", routesFile, "-n", dir}, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr.String())
	}
	for _, name := range []string{"include.whitelist", "shared.conf"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not installed: %v", name, err)
		}
	}
}

func TestRun_TokenRequiresSubject(t *testing.T) {
	t.Chdir(t.TempDir())
	var stdout, stderr bytes.Buffer
	if code := run([]string{"token"}, &stdout, &stderr); code != exitUsage {
		t.Errorf("exit = %d, want %d", code, exitUsage)
	}
}

func TestRun_FlagOverridesAreChecked(t *testing.T) {
	t.Chdir(t.TempDir())
	conf, routesFile := writeInputs(t)

	for _, args := range [][]string{
		{"-deny-status", "5000"},
		{"-limit", "0"},
	} {
		var stdout, stderr bytes.Buffer
		full := append([]string{"-c", conf, "-routes", routesFile, "-n", t.TempDir(), "-dry-run"}, args...)
		if code := run(full, &stdout, &stderr); code != exitUsage {
			t.Errorf("%v: exit = %d, want %d", args, code, exitUsage)
		}
		if stdout.Len() != 0 {
			t.Errorf("%v: artifacts printed despite invalid flag", args)
		}
	}
}
