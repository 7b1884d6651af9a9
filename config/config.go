// Package config loads the resource limits and debug toggles the
// crystalvm CLI and the vm package's callers use to configure a run,
// read from a TOML file the way the teacher repo's own subsystems load
// their settings.
package config

import (
	"github.com/BurntSushi/toml"
)

// Config holds the tunable knobs for a single VM run. Load starts from
// Default, so fields a file leaves unset keep their default values; a value
// a file does set, including zero, is used as given.
type Config struct {
	StackMax  int  `toml:"stack_max"`
	GlobalMax int  `toml:"global_max"`
	MaxFrames int  `toml:"max_frames"`
	Trace     bool `toml:"trace"`
}

// Default returns the configuration the VM ships with when no file is
// supplied.
func Default() Config {
	return Config{
		StackMax:  256,
		GlobalMax: 256,
		MaxFrames: 256,
		Trace:     false,
	}
}

// Load reads a TOML configuration file at path, starting from Default and
// overriding whichever fields the file sets.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
