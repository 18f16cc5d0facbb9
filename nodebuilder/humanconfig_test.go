package nodebuilder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumcontrol/ownable/capability"
	"github.com/quorumcontrol/ownable/tracing"
)

func TestTomlLoading(t *testing.T) {
	c, err := LoadConfig("testconfigs/basic.toml")
	require.Nil(t, err)
	assert.Equal(t, "testing", c.Namespace)
	assert.Equal(t, "127.0.0.1:0", c.ListenAddress)
	assert.Equal(t, 64, c.CacheSize)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, "memory", c.Storage.Kind)
	assert.Equal(t, tracing.NoTracing, c.TracingSystem)

	nft, err := capability.ParseInterfaceID("0x80ac58cd")
	require.Nil(t, err)
	assert.Equal(t, []capability.InterfaceID{nft}, c.Capabilities)
}

func TestYamlMatchesToml(t *testing.T) {
	fromToml, err := LoadConfig("testconfigs/basic.toml")
	require.Nil(t, err)
	fromYaml, err := LoadConfig("testconfigs/basic.yaml")
	require.Nil(t, err)
	assert.Equal(t, fromToml, fromYaml)
}

func TestDefaults(t *testing.T) {
	c, err := TomlToConfig(`tracingSystem = "jaeger"`)
	require.Nil(t, err)
	assert.Equal(t, "default", c.Namespace)
	assert.Equal(t, tracing.JaegerTracing, c.TracingSystem)
	assert.Empty(t, c.ListenAddress)
	assert.Zero(t, c.Timeout)
}

func TestFailsWithInvalidTracer(t *testing.T) {
	_, err := LoadConfig("./testconfigs/invalidtracer.toml")
	require.NotNil(t, err)
}

func TestFailsWithInvalidCapability(t *testing.T) {
	_, err := LoadConfig("./testconfigs/invalidcapability.toml")
	require.NotNil(t, err)
}

func TestFailsWithBadInput(t *testing.T) {
	_, err := TomlToConfig(`timeout = "soon"`)
	require.NotNil(t, err)

	_, err = YamlToConfig("unknownField: true")
	require.NotNil(t, err)

	_, err = LoadConfig("testconfigs/missing.toml")
	require.NotNil(t, err)
}

func TestTLSDefaultsCertDirectory(t *testing.T) {
	c, err := TomlToConfig("namespace = \"tls-testing\"\ntlsDomain = \"ownable.example.com\"")
	require.Nil(t, err)
	assert.Equal(t, "ownable.example.com", c.TLSDomain)
	assert.Equal(t, filepath.Join(configDir("tls-testing"), "certs"), c.CertDirectory)
}
