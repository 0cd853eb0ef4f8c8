package config

import (
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/Unidata/tds-sub001/errors"
	"github.com/Unidata/tds-sub001/pkg/paths"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "TDM_CONFIG"

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Format is the on-disk encoding of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the format from the file extension. Anything that is
// not .toml is read as YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

var configNames = []string{
	"tdm.yml",
	"tdm.yaml",
	"tdm.toml",
	".tdm.yml",
	".tdm.yaml",
}

// Load reads a configuration file, merges any override file found next to it,
// applies defaults and validates the result.
func Load(path string) (*Config, error) {
	return LoadWithLogger(path, logrus.NewEntry(discardLogger()))
}

// LoadWithLogger is Load with debug output about the files involved.
func LoadWithLogger(path string, logger *logrus.Entry) (*Config, error) {
	logger.WithField("path", path).Debug("Loading configuration")

	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	for _, overridePath := range overrideFiles(filepath.Dir(path)) {
		if _, err := os.Stat(overridePath); err != nil {
			continue
		}
		logger.WithField("path", overridePath).Debug("Loading override configuration")
		override, err := loadFile(overridePath)
		if err != nil {
			return nil, err
		}
		cfg = mergeConfigs(cfg, override)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(cfg.Redacted()); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}

	return cfg, nil
}

// FindDefault returns the configuration file named by TDM_CONFIG, or the
// first one found from the working directory upward, then in the user
// config directory.
func FindDefault() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}
	return FindConfigFile(cwd)
}

// LoadDefault locates the configuration file with FindDefault and loads it.
func LoadDefault() (*Config, error) {
	path, err := FindDefault()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// LoadFromBytes parses configuration from a byte slice, applies defaults and
// validates it. No override files are consulted.
func LoadFromBytes(data []byte, format Format) (*Config, error) {
	cfg, err := parse(data, format)
	if err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfigFile searches for a tdm configuration file from startDir up to the
// filesystem root, then in the user config directory.
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	for _, name := range configNames[:3] {
		path := filepath.Join(paths.ConfigDir(), name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

func overrideFiles(dir string) []string {
	return []string{
		filepath.Join(dir, "tdm.override.yml"),
		filepath.Join(dir, "tdm.override.yaml"),
		filepath.Join(dir, "tdm.override.toml"),
	}
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := parse(data, FormatFromPath(path))
	if err != nil {
		if te, ok := err.(*errors.TdmError); ok {
			return nil, te.WithDetail("path", path)
		}
		return nil, err
	}
	return cfg, nil
}

// parse decodes data, checks the raw document against the JSON schema and
// returns the typed configuration without defaults.
func parse(data []byte, format Format) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))

	var raw map[string]interface{}
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(expanded, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
	default:
		if err := yaml.Unmarshal(expanded, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
		}
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}

	validator, err := NewSchemaValidator()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create validator")
	}
	if err := validator.Validate(raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigValidation, "schema validation failed")
	}

	var cfg Config
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(expanded, &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
		// go-toml has no inline maps, so extensions are collected by hand.
		cfg.Extensions = unknownKeys(raw)
	default:
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
		}
	}

	return &cfg, nil
}

// knownKeys lists the top-level keys bound to Config fields.
func knownKeys() map[string]bool {
	keys := make(map[string]bool)
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}

func unknownKeys(raw map[string]interface{}) map[string]interface{} {
	known := knownKeys()
	var out map[string]interface{}
	for k, v := range raw {
		if known[k] {
			continue
		}
		if out == nil {
			out = make(map[string]interface{})
		}
		out[k] = v
	}
	return out
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
