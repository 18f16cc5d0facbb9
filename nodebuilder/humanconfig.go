package nodebuilder

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"

	"github.com/quorumcontrol/ownable/capability"
	"github.com/quorumcontrol/ownable/storage"
	"github.com/quorumcontrol/ownable/tracing"
)

// HumanConfig is used for parsing an ondisk configuration (toml or yaml) into
// the application-used Config struct.
type HumanConfig struct {
	Namespace     string         `toml:"namespace" yaml:"namespace"`
	ListenAddress string         `toml:"listenAddress" yaml:"listenAddress"`
	TLSDomain     string         `toml:"tlsDomain" yaml:"tlsDomain"`
	CertDirectory string         `toml:"certDirectory" yaml:"certDirectory"`
	CacheSize     int            `toml:"cacheSize" yaml:"cacheSize"`
	Timeout       string         `toml:"timeout" yaml:"timeout"`
	Capabilities  []string       `toml:"capabilities" yaml:"capabilities"`
	TracingSystem string         `toml:"tracingSystem" yaml:"tracingSystem"`
	Storage       storage.Config `toml:"storage" yaml:"storage"`
}

func HumanConfigToConfig(hc HumanConfig) (*Config, error) {
	c := &Config{
		Namespace:     hc.Namespace,
		ListenAddress: hc.ListenAddress,
		TLSDomain:     hc.TLSDomain,
		CertDirectory: hc.CertDirectory,
		CacheSize:     hc.CacheSize,
		Storage:       hc.Storage,
	}
	if c.Namespace == "" {
		c.Namespace = "default"
	}
	if c.CacheSize < 0 {
		return nil, fmt.Errorf("cacheSize must not be negative")
	}

	if hc.Timeout != "" {
		timeout, err := time.ParseDuration(hc.Timeout)
		if err != nil {
			return nil, fmt.Errorf("error parsing timeout: %v", err)
		}
		c.Timeout = timeout
	}

	for _, s := range hc.Capabilities {
		id, err := capability.ParseInterfaceID(s)
		if err != nil {
			return nil, fmt.Errorf("error parsing capability %s: %v", s, err)
		}
		if id == capability.InvalidID {
			return nil, capability.ErrInvalidInterfaceID
		}
		c.Capabilities = append(c.Capabilities, id)
	}

	system, err := tracing.ParseSystem(hc.TracingSystem)
	if err != nil {
		return nil, err
	}
	c.TracingSystem = system

	if strings.ToLower(c.Storage.Kind) == "badger" && c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(configDir(c.Namespace), "storage")
	}

	if c.TLSDomain != "" && c.CertDirectory == "" {
		c.CertDirectory = filepath.Join(configDir(c.Namespace), "certs")
	}

	return c, nil
}

// TomlToConfig will load a config from a toml string
func TomlToConfig(tomlStr string) (*Config, error) {
	var hc HumanConfig
	_, err := toml.Decode(tomlStr, &hc)
	if err != nil {
		return nil, fmt.Errorf("error decoding toml: %v", err)
	}
	return HumanConfigToConfig(hc)
}

// YamlToConfig will load a config from a yaml string
func YamlToConfig(yamlStr string) (*Config, error) {
	var hc HumanConfig
	if err := yaml.UnmarshalStrict([]byte(yamlStr), &hc); err != nil {
		return nil, fmt.Errorf("error decoding yaml: %v", err)
	}
	return HumanConfigToConfig(hc)
}

// LoadConfig reads path and decodes it by extension; anything that isn't
// .yaml or .yml is treated as toml.
func LoadConfig(path string) (*Config, error) {
	bits, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %v", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YamlToConfig(string(bits))
	default:
		return TomlToConfig(string(bits))
	}
}
