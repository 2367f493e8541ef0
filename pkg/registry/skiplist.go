package registry

import (
	"os"

	"gopkg.in/yaml.v3"
)

// SkipListConfig is the YAML shape of the shippable skip-list file
// (spec §9: "ship the skip-list as a configuration file so operators can
// update it without rebuilding"). Changes apply on next process start.
type SkipListConfig struct {
	Factories []string `yaml:"factories"`
}

// DefaultSkipList is the curated set of factory names known to crash
// during discovery-time instantiation, used when no skiplist.yaml is
// present in the data directory.
var DefaultSkipList = []string{
	"hlssink2",
	"hlssink3",
	"mpegtsmux",
	"glvideomixer",
}

// LoadSkipList reads a skip-list YAML file from path. A missing file, or
// one listing no factories, is not an error: DefaultSkipList is returned.
func LoadSkipList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultSkipList, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg SkipListConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Factories) == 0 {
		return DefaultSkipList, nil
	}
	return cfg.Factories, nil
}
