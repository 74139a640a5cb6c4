package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"tcp://mqtt-broker:1883"}, cfg.MQTT.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Bridge.PublishTimeout)

	require.Len(t, cfg.Bridge.Routes, 1)
	r := cfg.Bridge.Routes[0]
	assert.Equal(t, "POST", r.Method)
	assert.Equal(t, "/", r.Path)
	assert.Equal(t, "mytopic-response", r.Topic)
	assert.True(t, r.ClearBody)
	assert.Equal(t, "full", r.Log.Verbosity)
	assert.True(t, r.Log.Multiline)

	assert.False(t, cfg.MySQL.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
http:
  addr: ":9090"
bridge:
  routes:
    - name: plain
      method: POST
      path: /
      topic: other-topic
      clear_body: false
      log:
        verbosity: minimal
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	require.Len(t, cfg.Bridge.Routes, 1)
	assert.Equal(t, "other-topic", cfg.Bridge.Routes[0].Topic)
	assert.False(t, cfg.Bridge.Routes[0].ClearBody)
	assert.Equal(t, "minimal", cfg.Bridge.Routes[0].Log.Verbosity)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadDirectoryAsConfigFails(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestIsMissingFile(t *testing.T) {
	missing := &fs.PathError{Op: "open", Path: "absent.yaml", Err: fs.ErrNotExist}
	assert.True(t, isMissingFile(missing))
	assert.True(t, isMissingFile(fmt.Errorf("read config: %w", missing)))
	assert.True(t, isMissingFile(os.ErrNotExist))

	assert.False(t, isMissingFile(&fs.PathError{Op: "open", Path: "x.yaml", Err: fs.ErrPermission}))
	assert.False(t, isMissingFile(errors.New("no such file or directory")))
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MQTTBRIDGE_HTTP_ADDR", ":7000")
	t.Setenv("MQTTBRIDGE_BRIDGE_PUBLISH_TIMEOUT", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Bridge.PublishTimeout)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	t.Run("no brokers", func(t *testing.T) {
		cfg := base
		cfg.MQTT.Brokers = nil
		assert.ErrorContains(t, cfg.Validate(), "mqtt.brokers")
	})

	t.Run("no routes", func(t *testing.T) {
		cfg := base
		cfg.Bridge.Routes = nil
		assert.ErrorContains(t, cfg.Validate(), "bridge.routes")
	})

	t.Run("twins alone are enough", func(t *testing.T) {
		cfg := base
		cfg.Bridge.Routes = nil
		cfg.Bridge.Twins = []string{"pump-1"}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bad qos", func(t *testing.T) {
		cfg := base
		cfg.Bridge.Routes = []RouteConfig{{Method: "POST", Path: "/", Topic: "t", QoS: 3}}
		assert.ErrorContains(t, cfg.Validate(), "qos")
	})

	t.Run("zero timeout", func(t *testing.T) {
		cfg := base
		cfg.Bridge.PublishTimeout = 0
		assert.ErrorContains(t, cfg.Validate(), "publish_timeout")
	})
}
