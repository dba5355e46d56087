package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/config"
)

func TestValidateServiceConfig(t *testing.T) {
	require.Error(t, ValidateServiceConfig(nil))

	cfg := &config.AppConfig{Services: ""}
	require.Error(t, ValidateServiceConfig(cfg))

	cfg.Services = "http,bogus"
	require.Error(t, ValidateServiceConfig(cfg))

	cfg.Services = "http,pipeline"
	require.NoError(t, ValidateServiceConfig(cfg))
}

func TestEnabledServiceNamesStableOrder(t *testing.T) {
	cfg := &config.AppConfig{Services: "reaper,http,scheduler"}

	// Names come out in declaration order, not input order.
	assert.Equal(t, []string{"http", "scheduler", "reaper"}, EnabledServiceNames(cfg))

	assert.Nil(t, EnabledServiceNames(nil))
	assert.Nil(t, EnabledServiceNames(&config.AppConfig{Services: "bogus"}))
}
