package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
)

func TestLoadConfigFromApplicationConfig(t *testing.T) {
	cfg := config.Default()
	cfg.App.Name = " "
	cfg.Observability.LogLevel = "DEBUG"
	cfg.Observability.OtelExporterProtocol = "HTTP"

	obs := LoadConfig(cfg)

	assert.Equal(t, "gamification-worker", obs.ServiceName)
	assert.Equal(t, "debug", obs.LogLevel)
	assert.Equal(t, "http", obs.OtelExporterProtocol)
	assert.True(t, obs.Debug())
}

func TestDebugFollowsEnvironment(t *testing.T) {
	assert.True(t, Config{LogLevel: "info", Environment: "local"}.Debug())
	assert.False(t, Config{LogLevel: "info", Environment: "production"}.Debug())
}
