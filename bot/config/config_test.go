package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadINI(t *testing.T) {
	path := filepath.Join("..", "..", "config_example.ini")
	conf, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if conf.GetString("SessionDatabase") == "" {
		t.Fatalf("expected SessionDatabase to be present")
	}

	groups := conf.GetStringSlice("WarmupGroups")
	if len(groups) != 2 {
		t.Fatalf("expected WarmupGroups to be parsed, got %v", groups)
	}

	if limits := conf.GroupCacheLimits(); limits.TTLSec != 600 || limits.MaxEntries != 200 {
		t.Fatalf("unexpected group limits: %+v", limits)
	}
}

func TestDefaults(t *testing.T) {
	conf, err := Load(writeConfig(t, "LogLevel = debug\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if conf.GetString("LogLevel") != "debug" {
		t.Errorf("expected LogLevel=debug, got %s", conf.GetString("LogLevel"))
	}
	if conf.GetInt("CacheTTLSec") != 300 {
		t.Errorf("expected CacheTTLSec default 300, got %d", conf.GetInt("CacheTTLSec"))
	}
	if conf.GetInt("CacheMaxEntries") != 500 {
		t.Errorf("expected CacheMaxEntries default 500, got %d", conf.GetInt("CacheMaxEntries"))
	}
	if !conf.GetBool("PersistMappings") {
		t.Errorf("expected PersistMappings default true")
	}
	if conf.GetBool("PersistentFallback") {
		t.Errorf("expected PersistentFallback default false")
	}
	if conf.GetFloat64("SocketRateLimitPerSecond") != 5 {
		t.Errorf("unexpected SocketRateLimitPerSecond: %v", conf.GetFloat64("SocketRateLimitPerSecond"))
	}
	if got := conf.GetStringSlice("WarmupGroups"); len(got) != 0 {
		t.Errorf("expected no warmup groups, got %v", got)
	}
}

func TestCacheSections(t *testing.T) {
	conf, err := Load(writeConfig(t, `CacheTTLSec = 120
CacheMaxEntries = 50

[cache.lid]
ttl_sec = 30
max_entries = abc
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	lid := conf.LIDCacheLimits()
	if lid.TTLSec != 30 {
		t.Errorf("expected lid ttl 30, got %d", lid.TTLSec)
	}
	if lid.MaxEntries != 50 {
		t.Errorf("malformed max_entries should fall back to CacheMaxEntries, got %d", lid.MaxEntries)
	}

	group := conf.GroupCacheLimits()
	if group.TTLSec != 120 || group.MaxEntries != 50 {
		t.Errorf("missing section should use flat keys, got %+v", group)
	}

	if _, ok := conf.GetSection("cache.lid"); !ok {
		t.Error("expected cache.lid section")
	}
	if _, ok := conf.GetSection("cache.group"); ok {
		t.Error("cache.group should be absent")
	}
}

func TestSectionGetters(t *testing.T) {
	conf, err := Load(writeConfig(t, `[extra]
name = value
count = 7
enabled = true
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if conf.GetSectionString("extra", "name") != "value" {
		t.Errorf("GetSectionString failed")
	}
	if conf.GetSectionInt("extra", "count", 0) != 7 {
		t.Errorf("GetSectionInt failed")
	}
	if conf.GetSectionInt("extra", "enabled", 4) != 4 {
		t.Errorf("expected fallback for non-numeric value")
	}
	if conf.GetSectionString("missing", "name") != "" {
		t.Errorf("expected empty string for missing section")
	}
	if conf.GetSectionInt("missing", "count", 9) != 9 {
		t.Errorf("expected fallback for missing section")
	}
}

func TestStringSliceTrimsItems(t *testing.T) {
	conf, err := Load(writeConfig(t, "WarmupGroups = 1@g.us , ,2@g.us,\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	got := conf.GetStringSlice("WarmupGroups")
	if len(got) != 2 || got[0] != "1@g.us" || got[1] != "2@g.us" {
		t.Errorf("unexpected slice: %v", got)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("WAJID_RESOLVECONCURRENCY", "3")
	conf := Default()
	if conf.GetInt("ResolveConcurrency") != 3 {
		t.Errorf("expected env override, got %d", conf.GetInt("ResolveConcurrency"))
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	t.Setenv("WAJID_DATABASE", "/tmp/override.db")
	conf, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if conf.GetString("Database") != "/tmp/override.db" {
		t.Errorf("expected env override, got %q", conf.GetString("Database"))
	}
	if conf.GetInt("CacheMaxEntries") != 500 {
		t.Errorf("expected default CacheMaxEntries, got %d", conf.GetInt("CacheMaxEntries"))
	}
	if limits := conf.LIDCacheLimits(); limits.TTLSec != 300 {
		t.Errorf("expected default lid ttl, got %d", limits.TTLSec)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.ini")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
