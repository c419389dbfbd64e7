package echomesh

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hupe1980/echomesh/lifecycle"
	"github.com/hupe1980/echomesh/logging"
)

// Config is the TOML-loadable server configuration.
//
//	instance_name       = "echomesh"
//	enable_lifecycle    = true
//	lifecycle_interval  = "30s"
//	coherence_threshold = 0.3
//	verbose             = false
type Config struct {
	InstanceName       string   `toml:"instance_name"`
	EnableLifecycle    bool     `toml:"enable_lifecycle"`
	LifecycleInterval  duration `toml:"lifecycle_interval"`
	CoherenceThreshold float64  `toml:"coherence_threshold"`
	Verbose            bool     `toml:"verbose"`
}

// duration is a TOML-friendly wrapper parsing "30s"-style strings.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() Config {
	return Config{
		InstanceName:       "echomesh",
		LifecycleInterval:  duration{lifecycle.DefaultInterval},
		CoherenceThreshold: lifecycle.DefaultCoherenceThreshold,
	}
}

// LoadConfig reads a TOML configuration file, layering it over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %q: %w", path, err)
	}
	if cfg.InstanceName == "" {
		cfg.InstanceName = "echomesh"
	}
	if cfg.LifecycleInterval.Duration <= 0 {
		cfg.LifecycleInterval = duration{lifecycle.DefaultInterval}
	}
	if cfg.CoherenceThreshold < 0 || cfg.CoherenceThreshold > 1 {
		return Config{}, fmt.Errorf("load config %q: coherence_threshold %v outside [0,1]", path, cfg.CoherenceThreshold)
	}
	return cfg, nil
}

// apply maps the configuration onto façade options. Verbose installs a
// debug-level slog text logger on stderr; otherwise logging stays NoOp.
func (c Config) apply(o *Options) {
	o.InstanceName = c.InstanceName
	o.EnableLifecycle = c.EnableLifecycle
	o.LifecycleInterval = c.LifecycleInterval.Duration
	o.CoherenceThreshold = c.CoherenceThreshold
	if c.Verbose {
		o.Logger = logging.NewLogger(&logging.LoggerConfig{
			Level:    logging.LogLevelDebug,
			Format:   "text",
			Output:   os.Stderr,
			Instance: c.InstanceName,
		})
	}
}
