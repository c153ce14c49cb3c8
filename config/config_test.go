package config

import (
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

	assert.Equal(t, "0.0.0.0", cfg.Server.Address)
	assert.Equal(t, "8080", cfg.Server.HTTPPort)
	assert.Equal(t, "", cfg.Database.Driver)
	assert.Equal(t, "uploads/videos", cfg.Storage.UploadDir)
	assert.Equal(t, 5*time.Minute, cfg.Device.GracePeriod)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediactl.yaml")
	body := `
server:
  address: 127.0.0.1
  http_port: "9090"
database:
  driver: postgres
  dsn: postgres://u:p@localhost:5432/mediactl?sslmode=disable
logging:
  level: debug
  format: json
storage:
  upload_dir: /var/lib/mediactl/videos
device:
  grace_period: 10m
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Address)
	assert.Equal(t, "9090", cfg.Server.HTTPPort)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/lib/mediactl/videos", cfg.Storage.UploadDir)
	assert.Equal(t, 10*time.Minute, cfg.Device.GracePeriod)
}

func TestLoadBadGracePeriodFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediactl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  grace_period: 0s\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Device.GracePeriod)
}
