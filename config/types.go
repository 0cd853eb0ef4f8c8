package config

import (
	"fmt"
	"time"

	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// Defaults applied by SetDefaults.
const (
	DefaultAdminPath      = "thredds/admin/collection/trigger"
	DefaultLocalPath      = "thredds/local/collection/trigger"
	DefaultWorkers        = 4
	DefaultTokenTimeout   = 24 * time.Hour
	DefaultRequestTimeout = 10 * time.Second
	DefaultSettle         = 500 * time.Millisecond
	DefaultUnchangedExit  = 2
	DefaultRedisChannel   = "tdm:events"
)

// Duration is a time.Duration that reads and writes as "10s", "5m" and so on
// in YAML, TOML and JSON.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// JSONSchema describes durations as Go duration strings.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^(0|(\d+(\.\d+)?(ns|us|µs|ms|s|m|h))+)$`,
		Description: "Go duration string, e.g. 500ms, 10s, 5m, 24h",
	}
}

// RebuildConfig describes the external command that rebuilds a collection.
type RebuildConfig struct {
	Command           []string `yaml:"command,omitempty" toml:"command,omitempty" json:"command,omitempty" jsonschema:"description=Rebuild command and arguments; {collection}, {update} and {dir} are substituted"`
	UnchangedExitCode int      `yaml:"unchanged_exit_code,omitempty" toml:"unchanged_exit_code,omitempty" json:"unchanged_exit_code,omitempty" jsonschema:"description=Exit code meaning the rebuild found nothing to change (default: 2)"`
	Dir               string   `yaml:"dir,omitempty" toml:"dir,omitempty" json:"dir,omitempty" jsonschema:"description=Working directory for the rebuild command"`
}

// CollectionConfig describes one collection the daemon keeps up to date.
type CollectionConfig struct {
	Name            string   `yaml:"name" toml:"name" json:"name" jsonschema:"required,description=Collection name used in trigger URLs and as the debounce key"`
	Trigger         *bool    `yaml:"trigger,omitempty" toml:"trigger,omitempty" json:"trigger,omitempty" jsonschema:"description=Send triggers to servers after a rebuild that changed something (default: true)"`
	UpdateType      string   `yaml:"update_type,omitempty" toml:"update_type,omitempty" json:"update_type,omitempty" jsonschema:"enum=nocheck,enum=test,enum=always,enum=never,description=Update type passed to the rebuild (default: test)"`
	Dir             string   `yaml:"dir,omitempty" toml:"dir,omitempty" json:"dir,omitempty" jsonschema:"description=Collection root directory passed to the rebuild as {dir}"`
	Watch           []string `yaml:"watch,omitempty" toml:"watch,omitempty" json:"watch,omitempty" jsonschema:"description=Directories watched for file changes"`
	Include         []string `yaml:"include,omitempty" toml:"include,omitempty" json:"include,omitempty" jsonschema:"description=File name patterns that count as changes (default: all files)"`
	Settle          Duration `yaml:"settle,omitempty" toml:"settle,omitempty" json:"settle,omitempty" jsonschema:"description=Quiet period after a file event before an update is emitted"`
	Rescan          Duration `yaml:"rescan,omitempty" toml:"rescan,omitempty" json:"rescan,omitempty" jsonschema:"description=Interval for periodic update events (0 disables)"`
	UpdateOnStartup bool     `yaml:"update_on_startup,omitempty" toml:"update_on_startup,omitempty" json:"update_on_startup,omitempty" jsonschema:"description=Emit one update event when the daemon starts"`
}

// TriggerEnabled reports whether triggers are sent for this collection.
func (c CollectionConfig) TriggerEnabled() bool {
	return c.Trigger == nil || *c.Trigger
}

// Model converts the configuration into the runtime collection type.
func (c CollectionConfig) Model() models.Collection {
	ut, err := models.ParseUpdateType(c.UpdateType)
	if err != nil {
		ut = models.UpdateTest
	}
	return models.Collection{
		Name:       c.Name,
		Trigger:    c.TriggerEnabled(),
		UpdateType: ut,
		Dir:        c.Dir,
	}
}

// RedisConfig configures the Redis pub/sub event source.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr" json:"addr" jsonschema:"required,description=Redis server address (host:port)"`
	Password string `yaml:"password,omitempty" toml:"password,omitempty" json:"password,omitempty" jsonschema:"description=Redis password"`
	DB       int    `yaml:"db,omitempty" toml:"db,omitempty" json:"db,omitempty" jsonschema:"description=Redis database number"`
	Channel  string `yaml:"channel,omitempty" toml:"channel,omitempty" json:"channel,omitempty" jsonschema:"description=Pub/sub channel carrying update events (default: tdm:events)"`
}

// FanoutConfig tunes trigger delivery.
type FanoutConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" toml:"requests_per_second,omitempty" json:"requests_per_second,omitempty" jsonschema:"description=Upper bound on trigger calls per second (0 means unlimited)"`
}

// Config is the top-level tdm configuration.
type Config struct {
	Servers        []string           `yaml:"servers,omitempty" toml:"servers,omitempty" json:"servers,omitempty" jsonschema:"description=Base URLs of servers that receive triggers"`
	User           string             `yaml:"user,omitempty" toml:"user,omitempty" json:"user,omitempty" jsonschema:"description=User for remote servers"`
	Password       string             `yaml:"password,omitempty" toml:"password,omitempty" json:"password,omitempty" jsonschema:"description=Password for remote servers"`
	AdminPath      string             `yaml:"admin_path,omitempty" toml:"admin_path,omitempty" json:"admin_path,omitempty" jsonschema:"description=Trigger path on remote servers"`
	LocalPath      string             `yaml:"local_path,omitempty" toml:"local_path,omitempty" json:"local_path,omitempty" jsonschema:"description=Trigger path on loopback servers"`
	TriggerFlag    string             `yaml:"trigger_flag,omitempty" toml:"trigger_flag,omitempty" json:"trigger_flag,omitempty" jsonschema:"enum=nocheck,enum=test,enum=always,enum=never,description=Value of the trigger query parameter (default: never)"`
	SendTriggers   *bool              `yaml:"send_triggers,omitempty" toml:"send_triggers,omitempty" json:"send_triggers,omitempty" jsonschema:"description=Global switch for trigger fanout (default: true)"`
	Workers        int                `yaml:"workers,omitempty" toml:"workers,omitempty" json:"workers,omitempty" jsonschema:"minimum=0,description=Number of concurrent rebuilds (default: 4)"`
	TokenTimeout   Duration           `yaml:"token_timeout,omitempty" toml:"token_timeout,omitempty" json:"token_timeout,omitempty" jsonschema:"description=Lifetime of signed tokens (default: 24h)"`
	RequestTimeout Duration           `yaml:"request_timeout,omitempty" toml:"request_timeout,omitempty" json:"request_timeout,omitempty" jsonschema:"description=Timeout for each trigger call (default: 10s)"`
	SecretKeyFile  string             `yaml:"secret_key_file,omitempty" toml:"secret_key_file,omitempty" json:"secret_key_file,omitempty" jsonschema:"description=Where the signing key is written at startup"`
	Rebuild        RebuildConfig      `yaml:"rebuild,omitempty" toml:"rebuild,omitempty" json:"rebuild,omitempty" jsonschema:"description=External rebuild command"`
	Collections    []CollectionConfig `yaml:"collections,omitempty" toml:"collections,omitempty" json:"collections,omitempty" jsonschema:"description=Collections managed by the daemon"`
	Redis          *RedisConfig       `yaml:"redis,omitempty" toml:"redis,omitempty" json:"redis,omitempty" jsonschema:"description=Optional Redis pub/sub event source"`
	Fanout         FanoutConfig       `yaml:"fanout,omitempty" toml:"fanout,omitempty" json:"fanout,omitempty" jsonschema:"description=Trigger delivery tuning"`

	// Extensions captures all other top-level keys (e.g. logging).
	Extensions map[string]interface{} `yaml:",inline" toml:"-" json:"-" jsonschema:"-"`
}

// SendTriggersEnabled reports the global trigger switch.
func (c *Config) SendTriggersEnabled() bool {
	return c.SendTriggers == nil || *c.SendTriggers
}

// Collection looks up a collection by name.
func (c *Config) Collection(name string) (CollectionConfig, bool) {
	for _, coll := range c.Collections {
		if coll.Name == name {
			return coll, true
		}
	}
	return CollectionConfig{}, false
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.AdminPath == "" {
		c.AdminPath = DefaultAdminPath
	}
	if c.LocalPath == "" {
		c.LocalPath = DefaultLocalPath
	}
	if c.TriggerFlag == "" {
		c.TriggerFlag = string(models.UpdateNever)
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.TokenTimeout <= 0 {
		c.TokenTimeout = Duration(DefaultTokenTimeout)
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	if c.Rebuild.UnchangedExitCode == 0 {
		c.Rebuild.UnchangedExitCode = DefaultUnchangedExit
	}
	if c.Redis != nil && c.Redis.Channel == "" {
		c.Redis.Channel = DefaultRedisChannel
	}

	for i := range c.Collections {
		coll := &c.Collections[i]
		if coll.UpdateType == "" {
			coll.UpdateType = string(models.UpdateTest)
		}
		if coll.Settle <= 0 {
			coll.Settle = Duration(DefaultSettle)
		}
	}
}

// Redacted returns a copy that is safe to expose over the control API.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Password != "" {
		out.Password = "********"
	}
	if c.Redis != nil {
		redis := *c.Redis
		if redis.Password != "" {
			redis.Password = "********"
		}
		out.Redis = &redis
	}
	out.Extensions = nil
	return &out
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded tdm.yml into the provided target struct. The target must be a pointer.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// It's not an error if the key doesn't exist.
		// The target struct will simply remain zero-valued.
		return nil
	}

	// Use mapstructure to decode the generic map[string]interface{}
	// into the strongly-typed target struct, keyed by `yaml` tags.
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
