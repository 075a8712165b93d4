package config

import (
	"testing"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loaded(t *testing.T, kv map[string]interface{}) *Config {
	t.Helper()
	ko := koanf.New(".")
	require.NoError(t, ko.Load(confmap.Provider(kv, "."), nil))
	c, err := Load(ko)
	require.NoError(t, err)
	return c
}

func TestLoadAppliesDefaults(t *testing.T) {
	c := loaded(t, map[string]interface{}{
		"node":        "node1:20000",
		"bitfinex":    true,
		"local-keys":  "keys.json",
	})
	assert.Equal(t, defaultAWSRegion, c.AWSRegion)
	assert.Equal(t, defaultRPCToken, c.RPCToken)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, defaultPrometheusPort, c.PrometheusPort)
	assert.Equal(t, defaultMaxRatesSaved, c.MaxRatesSaved)
	assert.Equal(t, defaultWarnIncreasePct, c.WarningIncreaseThresholdPct)
	assert.Equal(t, defaultHaltIncreasePct, c.HaltIncreaseThresholdPct)
}

func TestLoadRejectsNoSources(t *testing.T) {
	ko := koanf.New(".")
	require.NoError(t, ko.Load(confmap.Provider(map[string]interface{}{
		"node":       "node1:20000",
		"local-keys": "keys.json",
	}, "."), nil))
	_, err := Load(ko)
	assert.Error(t, err)
}

func TestLoadRejectsNoNodes(t *testing.T) {
	ko := koanf.New(".")
	require.NoError(t, ko.Load(confmap.Provider(map[string]interface{}{
		"bitfinex":   true,
		"local-keys": "keys.json",
	}, "."), nil))
	_, err := Load(ko)
	assert.Error(t, err)
}

func TestLoadRejectsMissingAPIKey(t *testing.T) {
	ko := koanf.New(".")
	require.NoError(t, ko.Load(confmap.Provider(map[string]interface{}{
		"node":            "node1:20000",
		"live-coin-watch": true,
		"local-keys":      "keys.json",
	}, "."), nil))
	_, err := Load(ko)
	assert.Error(t, err)
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCSV("a, b"))
	assert.Nil(t, splitCSV(""))
}
