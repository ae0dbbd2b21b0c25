package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/small-frappuccino/discordui/pkg/util"
)

// Prefix is prepended to every variable name below.
const Prefix = "DISCORDUI_"

// Config holds the bot settings read from the environment.
type Config struct {
	Token         string   `env:"TOKEN"`
	ApplicationID string   `env:"APPLICATION_ID"`
	GuildIDs      []string `env:"GUILD_IDS" envSeparator:","`

	// ParseMethod is one of auto, resolve, fetch, cache, raw.
	ParseMethod     string `env:"PARSE_METHOD" envDefault:"auto"`
	AutoDefer       bool   `env:"AUTO_DEFER" envDefault:"false"`
	AutoDeferHidden bool   `env:"AUTO_DEFER_HIDDEN" envDefault:"false"`
	DeleteUnused    bool   `env:"DELETE_UNUSED" envDefault:"false"`
	WaitSync        bool   `env:"WAIT_SYNC" envDefault:"true"`
	// SlowHandler logs a warning for handlers running at least this long.
	SlowHandler time.Duration `env:"SLOW_HANDLER" envDefault:"2s"`

	DBPath string `env:"DB_PATH"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"10"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`

	// SyncRate paces remote create/edit/delete calls (per second).
	SyncRate  float64 `env:"SYNC_RATE" envDefault:"4"`
	SyncBurst int     `env:"SYNC_BURST" envDefault:"2"`

	CacheSize int           `env:"CACHE_SIZE" envDefault:"2048"`
	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"10m"`
}

// Load reads the configuration. The $HOME/.local/bin/.env fallback file is loaded
// first so it can fill in anything missing from the process environment.
func Load(appName string) (*Config, error) {
	util.LoadLocalBinEnv()

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = util.DefaultDBPath(appName)
	}
	cfg.GuildIDs = compact(cfg.GuildIDs)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that env tags cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(c.ParseMethod) {
	case "auto", "resolve", "fetch", "cache", "raw":
	default:
		return fmt.Errorf("invalid %sPARSE_METHOD %q", Prefix, c.ParseMethod)
	}
	if c.SyncRate <= 0 {
		return fmt.Errorf("%sSYNC_RATE must be positive", Prefix)
	}
	if c.SyncBurst < 1 {
		c.SyncBurst = 1
	}
	return nil
}

func compact(ids []string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
