package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Unidata/tds-sub001/config"
	"github.com/Unidata/tds-sub001/pkg/paths"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex

	// source of the logging section; nil means config.LoadDefault.
	configured *config.Config
)

// Init makes every logger created afterwards read its settings from cfg
// instead of searching for tdm.yml. Loggers created earlier are rebuilt on
// their next NewLogger call.
func Init(cfg *config.Config) {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	configured = cfg
	loggers = make(map[string]*logrus.Entry)
}

// FilePath returns the default log file for the given day.
func FilePath(day time.Time) string {
	return filepath.Join(paths.LogDir(), fmt.Sprintf("tdm-%s.log", day.Format("2006-01-02")))
}

// LogFile returns the file the file sink writes to on the given day.
func (c Config) LogFile(day time.Time) string {
	if c.File.Path != "" {
		return expandPath(c.File.Path)
	}
	return FilePath(day)
}

// LoadConfig returns the logging section of the active configuration.
func LoadConfig() Config {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	return loadConfig()
}

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	logger := logrus.New()
	logCfg := loadConfig()

	// Configure Level
	levelStr := "info"
	if env := os.Getenv("TDM_LOG_LEVEL"); env != "" {
		levelStr = env
	} else if logCfg.Level != "" {
		levelStr = logCfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if os.Getenv("TDM_LOG_CALLER") == "true" || logCfg.ReportCaller {
		logger.SetReportCaller(true)
	}

	logger.SetFormatter(formatterFor(logCfg.Format.Preset, logCfg.Format))

	var writers []io.Writer

	if !logCfg.File.Disabled {
		if w := openLogFile(logCfg.LogFile(time.Now()), logCfg.File.Path != ""); w != nil {
			// The file sink has its own format, so it gets a dedicated hook
			// when it differs from the console format.
			if logCfg.File.Format == "json" && logCfg.Format.Preset != "json" {
				logger.AddHook(&writerHook{writer: w, formatter: &logrus.JSONFormatter{}})
			} else {
				writers = append(writers, w)
			}
		}
	}

	if shouldLogToStderr(logCfg.Format.StructuredToStderr, logger.GetLevel()) {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

func loadConfig() Config {
	var logCfg Config

	cfg := configured
	if cfg == nil {
		loaded, err := config.LoadDefault()
		if err != nil {
			return logCfg
		}
		cfg = loaded
	}

	if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
		logrus.Warnf("Failed to parse 'logging' config: %v", err)
	}
	return logCfg
}

func formatterFor(preset string, format FormatConfig) logrus.Formatter {
	switch preset {
	case "json":
		return &logrus.JSONFormatter{}
	case "simple":
		return &TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}}
	default:
		return &TextFormatter{Config: format}
	}
}

// shouldLogToStderr resolves the auto/always/never stderr mode.
func shouldLogToStderr(mode string, level logrus.Level) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default:
		// auto: interactive terminals only see logs in debug mode
		isDebug := os.Getenv("TDM_DEBUG") == "1" || level >= logrus.DebugLevel
		isInteractive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
		return isDebug || !isInteractive
	}
}

func openLogFile(path string, explicit bool) io.Writer {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		if explicit {
			logrus.Warnf("Failed to create log directory %s: %v", dir, err)
		}
		return nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if explicit {
			logrus.Warnf("Failed to open log file %s: %v", path, err)
		}
		return nil
	}
	return file
}

// writerHook writes every entry to an extra writer with its own formatter.
type writerHook struct {
	mu        sync.Mutex
	writer    io.Writer
	formatter logrus.Formatter
}

func (h *writerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *writerHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(line)
	return err
}

// expandPath expands tilde in file paths
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
