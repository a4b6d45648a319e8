// Package servicedef defines the configuration of the inference services the
// harness launches and tests.
package servicedef

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServiceSpec describes one service configuration to test. Model may be
// either a hub model id (e.g. "gpt2") or a local filesystem path to an
// exported model, in which case the launcher builds a derived image with the
// model files layered in. A ServiceSpec is immutable once constructed.
type ServiceSpec struct {
	// Service identifies the test configuration; it is used in container and
	// image names and in test output.
	Service string `yaml:"service"`
	// Model is a hub model id or a local path.
	Model string `yaml:"model"`
	// TrustRemoteCode must be set for models whose hub repository carries
	// custom modeling code.
	TrustRemoteCode bool `yaml:"trust_remote_code,omitempty"`
	// Env is merged into the container environment after the variables the
	// supervisor composes itself.
	Env map[string]string `yaml:"env,omitempty"`
}

func (s ServiceSpec) Validate() error {
	if s.Service == "" {
		return fmt.Errorf("service spec has no service name")
	}
	if s.Model == "" {
		return fmt.Errorf("service spec %q has no model reference", s.Service)
	}
	return nil
}

type servicesFile struct {
	Services []ServiceSpec `yaml:"services"`
}

// LoadServicesFile reads a YAML file listing the service configurations for a
// test run:
//
//	services:
//	  - service: gpt2
//	    model: gpt2
//	  - service: gpt2-local
//	    model: ./data/gpt2
//	    trust_remote_code: false
func LoadServicesFile(path string) ([]ServiceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f servicesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed services file %s: %w", path, err)
	}
	if len(f.Services) == 0 {
		return nil, fmt.Errorf("services file %s defines no services", path)
	}
	for _, s := range f.Services {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("services file %s: %w", path, err)
		}
	}
	return f.Services, nil
}
