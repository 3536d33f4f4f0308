// Package config loads termsync settings from defaults, an optional YAML
// file, and environment variable overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/termsync/termsync/entry"
)

// Version is reported in the User-Agent of remote requests.
const Version = "0.3.0"

// DefaultPath is consulted when no explicit config file path is given.
const DefaultPath = "termsync.yaml"

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "TERMSYNC_CONFIG"

// Config holds every setting the engine reads. YAML keys and environment
// variable names (upper-cased YAML key) match the historical terminal_sync
// settings so existing deployments carry over.
type Config struct {
	// Ghostwriter connection.
	GwURL            string `yaml:"gw_url"`
	GwAPIKeyGraphQL  string `yaml:"gw_api_key_graphql"`
	GwAPIKeyREST     string `yaml:"gw_api_key_rest"`
	GwOplogID        int    `yaml:"gw_oplog_id"`
	GwTimeoutSeconds int    `yaml:"gw_timeout_seconds"`
	GwSSLCheck       bool   `yaml:"gw_ssl_check"`

	// Defaults applied to new entries.
	GwSrcHost  string `yaml:"gw_src_host"`
	GwDestHost string `yaml:"gw_dest_host"`
	Operator   string `yaml:"operator"`

	// Trigger filter and plugin chain.
	Enabled    bool     `yaml:"termsync_enabled"`
	Keywords   []string `yaml:"termsync_keywords"`
	DescToken  string   `yaml:"termsync_desc_token"`
	NologToken string   `yaml:"termsync_nolog_token"`
	Plugins    []string `yaml:"termsync_plugins"`

	// Local archive.
	JSONLogDir     string `yaml:"termsync_json_log_dir"`
	SaveAllLocal   bool   `yaml:"termsync_save_all_local"`
	ArchiveBackend string `yaml:"termsync_archive_backend"` // "dir" or "postgres"
	PostgresDSN    string `yaml:"termsync_postgres_dsn"`

	// Merge policy: protect operator-entered output/comments from being
	// overwritten by a later completion event.
	MergeProtectOutput bool `yaml:"termsync_merge_protect_output"`

	// Server binding.
	ListenHost string `yaml:"termsync_listen_host"`
	ListenPort int    `yaml:"termsync_listen_port"`

	// Storm protection for /commands/ (requests per second, burst).
	RateLimit float64 `yaml:"termsync_rate_limit"`
	RateBurst int     `yaml:"termsync_rate_burst"`

	// Pending-entry index. "memory" is the single-process default; "redis"
	// shares pending entries across server replicas.
	IndexBackend      string `yaml:"termsync_index_backend"`
	RedisAddr         string `yaml:"termsync_redis_addr"`
	RedisPassword     string `yaml:"termsync_redis_password"`
	RedisDB           int    `yaml:"termsync_redis_db"`
	PendingTTLSeconds int    `yaml:"termsync_pending_ttl_seconds"`
}

// defaults returns the built-in configuration.
func defaults() Config {
	return Config{
		GwSrcHost:         entry.LocalHost(),
		GwSSLCheck:        true,
		GwTimeoutSeconds:  10,
		Enabled:           true,
		DescToken:         "#desc",
		NologToken:        "#nolog",
		JSONLogDir:        "logs",
		ArchiveBackend:    "dir",
		ListenHost:        "127.0.0.1",
		ListenPort:        8000,
		RateLimit:         50,
		RateBurst:         100,
		IndexBackend:      "memory",
		RedisAddr:         "localhost:6379",
		PendingTTLSeconds: 86400,
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// $TERMSYNC_CONFIG, or ./termsync.yaml; a missing file is fine), and
// environment variables. The result is validated: a broken configuration
// must stop the process at startup, never degrade a running one.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Defaults plus environment is a supported setup.
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// The description token is an implicit trigger: a command carrying only
	// a description marker must still be logged.
	cfg.Keywords = append(cfg.Keywords, cfg.DescToken)

	return &cfg, nil
}

// applyEnv overrides settings from environment variables named after the
// upper-cased YAML key (GW_URL, TERMSYNC_KEYWORDS, ...). List values are
// comma separated.
func (c *Config) applyEnv() error {
	if v, ok := envString("GW_URL"); ok {
		c.GwURL = v
	}
	if v, ok := envString("GW_API_KEY_GRAPHQL"); ok {
		c.GwAPIKeyGraphQL = v
	}
	if v, ok := envString("GW_API_KEY_REST"); ok {
		c.GwAPIKeyREST = v
	}
	if err := envInt("GW_OPLOG_ID", &c.GwOplogID); err != nil {
		return err
	}
	if err := envInt("GW_TIMEOUT_SECONDS", &c.GwTimeoutSeconds); err != nil {
		return err
	}
	if err := envBool("GW_SSL_CHECK", &c.GwSSLCheck); err != nil {
		return err
	}
	if v, ok := envString("GW_SRC_HOST"); ok {
		c.GwSrcHost = v
	}
	if v, ok := envString("GW_DEST_HOST"); ok {
		c.GwDestHost = v
	}
	if v, ok := envString("OPERATOR"); ok {
		c.Operator = v
	}
	if err := envBool("TERMSYNC_ENABLED", &c.Enabled); err != nil {
		return err
	}
	if v, ok := envString("TERMSYNC_KEYWORDS"); ok {
		c.Keywords = splitList(v)
	}
	if v, ok := envString("TERMSYNC_DESC_TOKEN"); ok {
		c.DescToken = v
	}
	if v, ok := envString("TERMSYNC_NOLOG_TOKEN"); ok {
		c.NologToken = v
	}
	if v, ok := envString("TERMSYNC_PLUGINS"); ok {
		c.Plugins = splitList(v)
	}
	if v, ok := envString("TERMSYNC_JSON_LOG_DIR"); ok {
		c.JSONLogDir = v
	}
	if err := envBool("TERMSYNC_SAVE_ALL_LOCAL", &c.SaveAllLocal); err != nil {
		return err
	}
	if v, ok := envString("TERMSYNC_ARCHIVE_BACKEND"); ok {
		c.ArchiveBackend = v
	}
	if v, ok := envString("TERMSYNC_POSTGRES_DSN"); ok {
		c.PostgresDSN = v
	}
	if err := envBool("TERMSYNC_MERGE_PROTECT_OUTPUT", &c.MergeProtectOutput); err != nil {
		return err
	}
	if v, ok := envString("TERMSYNC_LISTEN_HOST"); ok {
		c.ListenHost = v
	}
	if err := envInt("TERMSYNC_LISTEN_PORT", &c.ListenPort); err != nil {
		return err
	}
	if v, ok := envString("TERMSYNC_INDEX_BACKEND"); ok {
		c.IndexBackend = v
	}
	if v, ok := envString("TERMSYNC_REDIS_ADDR"); ok {
		c.RedisAddr = v
	}
	if v, ok := envString("TERMSYNC_REDIS_PASSWORD"); ok {
		c.RedisPassword = v
	}
	if err := envInt("TERMSYNC_REDIS_DB", &c.RedisDB); err != nil {
		return err
	}
	if err := envInt("TERMSYNC_PENDING_TTL_SECONDS", &c.PendingTTLSeconds); err != nil {
		return err
	}
	return nil
}

// validate enforces the startup contract. Remote logging being unconfigured
// is not an error: the process downgrades to local-only mode and forces
// SaveAllLocal so every entry has a durable copy.
func (c *Config) validate() error {
	if !strings.HasPrefix(strings.TrimSpace(c.DescToken), "#") {
		return errors.New("termsync_desc_token must start with '#' or the shell will execute it as part of the command")
	}
	if !strings.HasPrefix(strings.TrimSpace(c.NologToken), "#") {
		return errors.New("termsync_nolog_token must start with '#' or the shell will execute it as part of the command")
	}
	if c.GwOplogID < 0 {
		return errors.New("gw_oplog_id must be a positive integer")
	}
	if c.GwTimeoutSeconds <= 0 {
		return errors.New("gw_timeout_seconds must be a positive integer")
	}
	switch c.ArchiveBackend {
	case "dir":
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("termsync_archive_backend is postgres but termsync_postgres_dsn is empty")
		}
	default:
		return fmt.Errorf("unknown termsync_archive_backend %q (want dir or postgres)", c.ArchiveBackend)
	}
	switch c.IndexBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown termsync_index_backend %q (want memory or redis)", c.IndexBackend)
	}

	if c.GwURL != "" {
		u, err := url.Parse(c.GwURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid gw_url %q", c.GwURL)
		}
	}

	if !c.RemoteEnabled() {
		switch {
		case c.GwURL == "":
			log.Printf("[config] no Ghostwriter URL; activity will not be logged remotely")
		case c.GwOplogID == 0:
			log.Printf("[config] gw_oplog_id not set; activity will not be logged remotely")
		default:
			log.Printf("[config] no Ghostwriter API key; activity will not be logged remotely")
		}
		log.Printf("[config] local logging enabled as a fallback")
		c.SaveAllLocal = true
	}

	return nil
}

// RemoteEnabled reports whether the configuration is complete enough to
// deliver entries to Ghostwriter.
func (c *Config) RemoteEnabled() bool {
	return c.GwURL != "" && c.GwOplogID > 0 && (c.GwAPIKeyGraphQL != "" || c.GwAPIKeyREST != "")
}

func envString(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	return v, ok
}

func envInt(name string, dst *int) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s is not a valid integer: %q", name, v)
	}
	*dst = n
	return nil
}

func envBool(name string, dst *bool) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		*dst = true
	case "0", "false", "no":
		*dst = false
	default:
		return fmt.Errorf("%s is not a valid boolean: %q", name, v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
