package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"promptjudge/internal/evaluation/progress"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// unsetEnv removes key for the test so an env file can supply it, restoring the previous value afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	prev, had := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unset %s: %v", key, err)
	}
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func TestLoadAppConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
database:
  dsn: "root:root@tcp(localhost:3306)/promptjudge?parseTime=true"
agent:
  serverURL: "http://agents:8000"
minio:
  bucket: "evaluations"
`)

	cfg, err := loadAppConfig(path, "")
	if err != nil {
		t.Fatalf("loadAppConfig failed: %v", err)
	}
	if cfg.Server.Addr != defaultHTTPAddr || cfg.Server.WriteTimeout != defaultWriteTimeout {
		t.Fatalf("server defaults not applied: %+v", cfg.Server)
	}
	if cfg.Progress.Backend != progress.BackendMemory {
		t.Fatalf("expected memory backend, got %q", cfg.Progress.Backend)
	}
	if cfg.Evaluation.ArtifactBucket != "evaluations" {
		t.Fatalf("artifact bucket should follow minio bucket, got %q", cfg.Evaluation.ArtifactBucket)
	}
	if cfg.Evaluation.Timeouts.DB != 3*time.Second {
		t.Fatalf("unexpected db timeout %s", cfg.Evaluation.Timeouts.DB)
	}
}

func TestLoadAppConfigEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
database:
  dsn: "from-yaml"
agent:
  serverURL: "http://from-yaml"
  timeouts:
    deploy: 15m
progress:
  backend: redis
  retention: 2m
`)
	envPath := writeFile(t, dir, ".env", "AGENT_SERVER_URL=http://from-env:9000\nREDIS_ADDR=redis:6379\n")
	unsetEnv(t, envAgentServerURL)
	unsetEnv(t, envRedisAddr)
	t.Setenv(envMySQLDSN, "from-process-env")

	cfg, err := loadAppConfig(path, envPath)
	if err != nil {
		t.Fatalf("loadAppConfig failed: %v", err)
	}
	if cfg.Agent.ServerURL != "http://from-env:9000" {
		t.Fatalf("agent url not overridden: %q", cfg.Agent.ServerURL)
	}
	if cfg.Database.DSN != "from-process-env" {
		t.Fatalf("process env should win over yaml, got %q", cfg.Database.DSN)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("redis addr not overridden: %q", cfg.Redis.Addr)
	}
	if cfg.Agent.Timeouts.Deploy != 15*time.Minute || cfg.Progress.Retention != 2*time.Minute {
		t.Fatalf("durations not parsed: %+v %+v", cfg.Agent.Timeouts, cfg.Progress)
	}
}

func TestLoadAppConfigRequiresEndpoints(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envAgentServerURL, "")
	t.Setenv(envMySQLDSN, "")
	t.Setenv(envRedisAddr, "")

	cases := map[string]string{
		"no agent":      "database:\n  dsn: x\n",
		"no database":   "agent:\n  serverURL: http://a\n",
		"redis backend": "database:\n  dsn: x\nagent:\n  serverURL: http://a\nprogress:\n  backend: redis\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, dir, "config.yaml", content)
			if _, err := loadAppConfig(path, filepath.Join(dir, "missing.env")); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
