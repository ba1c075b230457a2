package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"claimdesk/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	wd, wdErr := os.Getwd()
	if wdErr != nil {
		t.Fatal(wdErr)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())
	cmd := NewRootCommand(config.NewViper())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigShowMasksKey(t *testing.T) {
	t.Setenv("CLAIMDESK_DATABASE_KEY", "service-role-secret")
	t.Setenv("CLAIMDESK_DATABASE_URL", "postgres://db.example.com/postgres")
	out, err := run(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "service-role-secret") {
		t.Fatalf("key leaked: %s", out)
	}
	var shown config.Config
	if err := yaml.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("output is not yaml: %v", err)
	}
	if shown.Database.URL != "postgres://db.example.com/postgres" || shown.Database.Key != "******" {
		t.Fatalf("unexpected database section: %+v", shown.Database)
	}
}

func TestConfigValidate(t *testing.T) {
	if _, err := run(t, "config", "validate"); err == nil || !strings.Contains(err.Error(), "database.url") {
		t.Fatalf("expected missing url error, got %v", err)
	}
	t.Setenv("CLAIMDESK_DATABASE_DRIVER", "memory")
	out, err := run(t, "config", "validate")
	if err != nil || !strings.Contains(out, "configuration ok") {
		t.Fatalf("expected ok, got %q %v", out, err)
	}
}

func TestConfigFileFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("database:\n  driver: sqlite\nhttp:\n  addr: \":7000\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := run(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "driver: sqlite") || !strings.Contains(out, ":7000") {
		t.Fatalf("config file not applied: %s", out)
	}
	if _, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "config", "show"); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil || !strings.HasPrefix(out, "claimdesk ") {
		t.Fatalf("unexpected version output %q %v", out, err)
	}
}

func TestServeRunsUntilCancelled(t *testing.T) {
	cfg := config.Defaults()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.HTTP.ShutdownTimeout = 2 * time.Second
	cfg.Database.Driver = "memory"
	cfg.Blob.Driver = "memory"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	statusCh := make(chan int, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- serve(ctx, cfg, logger, func(addr string) {
			resp, err := http.Get("http://" + addr + "/claims/latest")
			if err != nil {
				statusCh <- 0
			} else {
				_ = resp.Body.Close()
				statusCh <- resp.StatusCode
			}
			cancel()
		})
	}()
	select {
	case status := <-statusCh:
		if status != http.StatusNotFound {
			t.Fatalf("expected 404 from empty store, got %d", status)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not become ready")
	}
	if err := <-errCh; err != nil {
		t.Fatalf("serve: %v", err)
	}
}

func TestServeFailsWithoutStore(t *testing.T) {
	cfg := config.Defaults()
	err := serve(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	if err == nil || !strings.Contains(err.Error(), "open row store") {
		t.Fatalf("expected row store error, got %v", err)
	}
}
