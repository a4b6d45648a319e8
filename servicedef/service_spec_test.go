package servicedef

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeServicesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadServicesFile(t *testing.T) {
	path := writeServicesFile(t, `
services:
  - service: gpt2
    model: gpt2
  - service: gpt2-local
    model: ./data/gpt2
    trust_remote_code: true
    env:
      HF_NUM_CORES: "2"
`)

	specs, err := LoadServicesFile(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, ServiceSpec{Service: "gpt2", Model: "gpt2"}, specs[0])
	assert.Equal(t, "gpt2-local", specs[1].Service)
	assert.Equal(t, "./data/gpt2", specs[1].Model)
	assert.True(t, specs[1].TrustRemoteCode)
	assert.Equal(t, map[string]string{"HF_NUM_CORES": "2"}, specs[1].Env)
}

func TestLoadServicesFileRejectsMissingFields(t *testing.T) {
	path := writeServicesFile(t, `
services:
  - service: gpt2
`)
	_, err := LoadServicesFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model reference")
}

func TestLoadServicesFileRejectsEmptyList(t *testing.T) {
	_, err := LoadServicesFile(writeServicesFile(t, "services: []\n"))
	assert.Error(t, err)
}

func TestLoadServicesFileRejectsMalformedYAML(t *testing.T) {
	_, err := LoadServicesFile(writeServicesFile(t, "services: [unclosed\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestLoadServicesFileMissingFile(t *testing.T) {
	_, err := LoadServicesFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, ServiceSpec{Service: "gpt2", Model: "gpt2"}.Validate())
	assert.Error(t, ServiceSpec{Model: "gpt2"}.Validate())
	assert.Error(t, ServiceSpec{Service: "gpt2"}.Validate())
}
