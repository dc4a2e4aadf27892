package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load config from file into the config struct, config must be a pointer to the config struct.
// The values already set in config are the defaults. Environment variables override
// the file, with "." replaced by "_" (HTTP_PORT for http.port). An empty file name
// loads the defaults and the environment only.
func Load(file string, config any) error {
	v := viper.New()

	m, err := toMap(config)
	if err != nil {
		return err
	}

	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merge config map: %v", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("read config from file %s: %v", file, err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}

// Dump renders config as YAML, using the same keys as Load.
func Dump(config any) ([]byte, error) {
	m, err := toMap(config)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.MergeConfigMap(m); err != nil {
		return nil, fmt.Errorf("merge config map: %v", err)
	}

	b, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("yaml: %v", err)
	}

	return b, nil
}

func toMap(config any) (map[string]any, error) {
	m := make(map[string]any)
	if err := mapstructure.Decode(config, &m); err != nil {
		return nil, fmt.Errorf("mapstructure: %v", err)
	}

	return m, nil
}
