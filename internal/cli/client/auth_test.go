package client

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthLogin_StoresCredentials(t *testing.T) {
	useTempConfig(t)

	var out bytes.Buffer
	err := runAuthLogin(nil, &out, &GlobalConfig{APIKey: globalKey, APIURL: "http://localhost:8080", Timeout: "2m"})
	require.NoError(t, err)
	assert.Equal(t, "Successfully logged in\n", out.String())

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	require.NotNil(t, config)
	assert.Equal(t, globalKey, config.APIKey)
	assert.Equal(t, "http://localhost:8080", config.APIURL)
	assert.Equal(t, "2m", config.Timeout)
}

func TestAuthLogin_PromptsForKey(t *testing.T) {
	useTempConfig(t)

	var out bytes.Buffer
	err := runAuthLogin(strings.NewReader(testKey+"\n"), &out, &GlobalConfig{APIURL: "http://new.example.com"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Enter API key: ")

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, testKey, config.APIKey)
}

func TestAuthLogin_OverwritesExisting(t *testing.T) {
	useTempConfig(t)
	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: testKey, APIURL: "http://old.example.com"}))

	var out bytes.Buffer
	require.NoError(t, runAuthLogin(nil, &out, &GlobalConfig{APIKey: globalKey, APIURL: "http://new.example.com"}))

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, globalKey, config.APIKey)
	assert.Equal(t, "http://new.example.com", config.APIURL)
}

func TestAuthLogin_RejectsInvalidKey(t *testing.T) {
	useTempConfig(t)

	var out bytes.Buffer
	err := runAuthLogin(nil, &out, &GlobalConfig{APIKey: "zv_nothex", APIURL: defaultAPIURL})
	assert.ErrorContains(t, err, "invalid API key format")

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, config)
}

func TestAuthLogout(t *testing.T) {
	useTempConfig(t)
	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: testKey, APIURL: defaultAPIURL}))

	var out bytes.Buffer
	require.NoError(t, runAuthLogout(&out))
	assert.Equal(t, "Successfully logged out\n", out.String())

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, config)

	require.NoError(t, runAuthLogout(&out))
}

func TestAuthStatus(t *testing.T) {
	t.Run("not authenticated", func(t *testing.T) {
		useTempConfig(t)

		var out bytes.Buffer
		require.NoError(t, runAuthStatus(&out, false))
		assert.Contains(t, out.String(), "Not authenticated")
		assert.Contains(t, out.String(), "zenith auth login")
	})

	t.Run("env source", func(t *testing.T) {
		useTempConfig(t)
		t.Setenv(envAPIKey, envFileKey)
		t.Setenv(envAPIURL, "http://env.example.com")

		var out bytes.Buffer
		require.NoError(t, runAuthStatus(&out, false))
		assert.Contains(t, out.String(), "Source: env_file")
		assert.Contains(t, out.String(), "API URL: http://env.example.com")
		assert.NotContains(t, out.String(), envFileKey)
	})

	t.Run("json from global config", func(t *testing.T) {
		useTempConfig(t)
		require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: globalKey, APIURL: defaultAPIURL}))

		var out bytes.Buffer
		require.NoError(t, runAuthStatus(&out, true))

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.Equal(t, true, result["authenticated"])
		assert.Equal(t, "global_config", result["source"])
		assert.Equal(t, "zv_a1b2...a1b2", result["api_key"])
	})
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "zv_a1b2...a1b2", maskAPIKey(globalKey))
	assert.Equal(t, "***", maskAPIKey("short"))
}
