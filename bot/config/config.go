package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// Section stores the key-value pairs of one INI section.
type Section map[string]string

// Config wraps viper and provides typed accessors.
type Config struct {
	v        *viper.Viper
	sections map[string]Section
}

// Load reads an INI config file and prepares defaults.
// An empty path yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}

	v := viper.New()
	v.SetEnvPrefix("WAJID")
	v.AutomaticEnv()

	setDefaults(v)

	c := &Config{
		v:        v,
		sections: make(map[string]Section),
	}

	if strings.EqualFold(filepath.Ext(path), ".ini") {
		cfg, err := loadINI(v, path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		loadSections(cfg, c)
		return c, nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return c, nil
}

// Default returns a config holding only defaults and environment overrides.
func Default() *Config {
	v := viper.New()
	v.SetEnvPrefix("WAJID")
	v.AutomaticEnv()
	setDefaults(v)
	return &Config{v: v, sections: make(map[string]Section)}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", "text")
	v.SetDefault("LogSource", false)
	v.SetDefault("LogDir", "")
	v.SetDefault("Database", "data/wajid.db")
	v.SetDefault("SessionDatabase", "data/session.db")
	v.SetDefault("DBMaxOpenConns", 1)
	v.SetDefault("DBMaxIdleConns", 1)
	v.SetDefault("DBConnMaxLifetimeSec", 3600)
	v.SetDefault("GormLogLevel", "warn")
	v.SetDefault("CacheTTLSec", 300)
	v.SetDefault("CacheMaxEntries", 500)
	v.SetDefault("ResolveConcurrency", 8)
	v.SetDefault("PersistMappings", true)
	v.SetDefault("PersistentFallback", false)
	v.SetDefault("MappingRetentionDays", 0)
	v.SetDefault("SocketRateLimitPerSecond", 5.0)
	v.SetDefault("SocketRateLimitBurst", 10)
	v.SetDefault("SocketMaxRetries", 2)
	v.SetDefault("BreakerConsecutiveFailures", 5)
	v.SetDefault("BreakerTimeoutSec", 30)
	v.SetDefault("WarmupGroups", "")
	v.SetDefault("WorkerPoolSize", 4)
	v.SetDefault("ConnectTimeoutSec", 30)
}

// GetString returns a string value.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns an int value.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 returns a float64 value.
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool returns a bool value.
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice returns a comma separated value as a slice. Empty items are dropped.
func (c *Config) GetStringSlice(key string) []string {
	raw := c.v.Get(key)
	var items []string
	switch val := raw.(type) {
	case []string:
		items = val
	case []interface{}:
		for _, item := range val {
			items = append(items, fmt.Sprintf("%v", item))
		}
	default:
		items = strings.Split(c.v.GetString(key), ",")
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// GetSection retrieves a named section.
// Returns the section and true if found, or nil and false if not found.
func (c *Config) GetSection(name string) (Section, bool) {
	sec, ok := c.sections[name]
	return sec, ok
}

// GetSectionString returns a string value from a section.
// Returns empty string if section or key not found.
func (c *Config) GetSectionString(section, key string) string {
	sec, ok := c.sections[section]
	if !ok {
		return ""
	}
	return sec[key]
}

// GetSectionInt returns an int value from a section, or fallback when missing or malformed.
func (c *Config) GetSectionInt(section, key string, fallback int) int {
	val := strings.TrimSpace(c.GetSectionString(section, key))
	if val == "" {
		return fallback
	}
	num, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return num
}

// CacheLimits describes TTL and capacity for one cache keyspace.
type CacheLimits struct {
	TTLSec     int
	MaxEntries int
}

// LIDCacheLimits returns [cache.lid] settings, defaulting to CacheTTLSec and CacheMaxEntries.
func (c *Config) LIDCacheLimits() CacheLimits {
	return c.cacheLimits("cache.lid")
}

// GroupCacheLimits returns [cache.group] settings, defaulting to CacheTTLSec and CacheMaxEntries.
func (c *Config) GroupCacheLimits() CacheLimits {
	return c.cacheLimits("cache.group")
}

func (c *Config) cacheLimits(section string) CacheLimits {
	return CacheLimits{
		TTLSec:     c.GetSectionInt(section, "ttl_sec", c.GetInt("CacheTTLSec")),
		MaxEntries: c.GetSectionInt(section, "max_entries", c.GetInt("CacheMaxEntries")),
	}
}

func loadINI(v *viper.Viper, path string) (*ini.File, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	for _, key := range cfg.Section("").Keys() {
		v.Set(key.Name(), key.Value())
	}

	return cfg, nil
}

func loadSections(cfg *ini.File, c *Config) {
	for _, section := range cfg.Sections() {
		sectionName := section.Name()
		if sectionName == "" || sectionName == ini.DefaultSection {
			continue
		}

		sec := make(Section)
		for _, key := range section.Keys() {
			sec[key.Name()] = key.Value()
		}
		c.sections[sectionName] = sec
	}
}
