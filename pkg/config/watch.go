package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/relaystream/internal/logger"
)

// Watch reloads the configuration file whenever it changes and passes each
// valid result to onChange. Invalid edits are logged and skipped; the
// previous configuration stays in effect.
//
// Only settings that can change at runtime are worth reacting to, such as
// the log level. Everything else needs a restart.
func Watch(configPath string, onChange func(*Config)) error {
	v := NewViper(configPath)
	found, err := readConfigFile(v)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no configuration file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("Ignoring invalid configuration change", "file", e.Name, logger.Err(err))
			return
		}
		logger.Info("Configuration reloaded", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
