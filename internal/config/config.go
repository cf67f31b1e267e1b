package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Compat contains optional compatibility toggles.
//
// These toggles never change the wire format; they only adjust how the
// server interprets a request.
type Compat struct {
	// GlobFilter applies the glob line of a List request to the
	// listing (matched against entry base names). The default keeps
	// the historical behavior: the glob is read off the wire but not
	// applied, so existing clients see unfiltered listings.
	GlobFilter bool `yaml:"glob_filter"`

	// AllowPathEscape disables the sandbox check and joins client
	// paths under the root verbatim, '..' segments included. Only for
	// trusted legacy callers that depend on the permissive join.
	AllowPathEscape bool `yaml:"allow_path_escape"`
}

// Config controls the server behavior. It is intentionally small: one
// listen address, one sandbox root, one log file.
type Config struct {
	// Listen address, e.g. ":7878" or "127.0.0.1:7878".
	Listen string `yaml:"listen"`

	// Root is the directory all client-supplied paths resolve beneath.
	Root string `yaml:"root"`

	// LogFile is the persistent status log. If it cannot be opened,
	// logging degrades to console-only; serving is unaffected.
	LogFile string `yaml:"log_file"`

	Compat Compat `yaml:"compat"`
}

// Default returns the built-in configuration: the well-known port and
// a ./data root next to the process.
func Default() Config {
	return Config{
		Listen:  ":7878",
		Root:    "data",
		LogFile: "astrafs-server.log",
	}
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.Root == "" {
		return fmt.Errorf("root directory must not be empty")
	}
	return nil
}
