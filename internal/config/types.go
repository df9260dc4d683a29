package config

type Config struct {
	Discord DiscordConfig `json:"discord"`
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Audit   *AuditConfig  `json:"audit,omitempty"`
}

type DiscordConfig struct {
	Token string `json:"token"`

	// Prefix is the command prefix. Defaults to "!".
	// Hot-reloadable.
	Prefix string `json:"prefix,omitempty"`

	// Status is an optional presence text shown by the bot.
	Status string `json:"status,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console,omitempty"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./chungus_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// AuditConfig controls the moderation audit trail.
//
// Enabled is a pointer so we can distinguish "omitted" (default true)
// from an explicit false.
type AuditConfig struct {
	Enabled *bool `json:"enabled,omitempty"`

	// Retention is a Go duration string; entries older than this are
	// pruned. Empty disables pruning.
	Retention string `json:"retention,omitempty"`

	// PruneSchedule is a cron spec (default "17 4 * * *").
	PruneSchedule string `json:"prune_schedule,omitempty"`
}

func (c *Config) Prefix() string {
	if c == nil || c.Discord.Prefix == "" {
		return "!"
	}
	return c.Discord.Prefix
}

func (c *Config) AuditEnabled() bool {
	if c == nil || c.Audit == nil || c.Audit.Enabled == nil {
		return true
	}
	return *c.Audit.Enabled
}
