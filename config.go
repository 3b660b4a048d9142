package pagi

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// loadConfigFile reads path, decodes it by extension (.json/.toml/.yaml/
// .yml) into a generic map, and applies that map onto s with
// `mapstructure.Decode`, exactly mirroring `air.Air.Serve`'s config-file
// step.
func (s *Server) loadConfigFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	m := map[string]interface{}{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(b, &m)
	case ".toml":
		err = toml.Unmarshal(b, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &m)
	default:
		err = fmt.Errorf("pagi: unsupported configuration file extension: %s", ext)
	}
	if err != nil {
		return err
	}

	return mapstructure.Decode(m, s)
}

// applyValidateEventsEnv sets s.ValidateEvents from the PAGI_VALIDATE_EVENTS
// environment variable when present, per spec.md §6. An explicit
// configuration file value is not overridden unless the environment
// variable is actually set.
func applyValidateEventsEnv(s *Server) {
	v, ok := os.LookupEnv("PAGI_VALIDATE_EVENTS")
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		s.ValidateEvents = true
	case "0", "false", "no", "off", "":
		s.ValidateEvents = false
	}
}
