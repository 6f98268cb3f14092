package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "zv_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	envFileKey = "zv_e1e2e3e4e5e6e1e2e3e4e5e6e1e2e3e4e5e6e1e2e3e4e5e6e1e2e3e4e5e6e1e2"
	globalKey  = "zv_a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2"
)

// useTempConfig points the global config at a fresh directory and clears the
// credential environment variables.
func useTempConfig(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "zenith")
	path := filepath.Join(dir, "config.json")

	oldDir, oldPath := getConfigDirFunc, getConfigPathFunc
	getConfigDirFunc = func() (string, error) { return dir, nil }
	getConfigPathFunc = func() (string, error) { return path, nil }
	t.Cleanup(func() {
		getConfigDirFunc = oldDir
		getConfigPathFunc = oldPath
	})

	t.Setenv(envAPIKey, "")
	t.Setenv(envAPIURL, "")
	return path
}

func TestDefaultConfigPath(t *testing.T) {
	dir, err := GetConfigDir()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir))
	assert.True(t, strings.HasSuffix(dir, "zenith"))

	path, err := GetConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.json"), path)
}

func TestLoadGlobalConfig(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		useTempConfig(t)

		config, err := LoadGlobalConfig()
		require.NoError(t, err)
		assert.Nil(t, config)
	})

	t.Run("invalid json", func(t *testing.T) {
		path := useTempConfig(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("{invalid json}"), 0o600))

		config, err := LoadGlobalConfig()
		assert.Nil(t, config)
		assert.ErrorContains(t, err, "failed to parse config file")
	})
}

func TestSaveGlobalConfig(t *testing.T) {
	path := useTempConfig(t)

	want := &GlobalConfig{APIKey: testKey, APIURL: "http://localhost:8080", Timeout: "90s"}
	require.NoError(t, SaveGlobalConfig(want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]string
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, testKey, onDisk["api_key"])
	assert.Equal(t, "90s", onDisk["timeout"])

	got, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.ErrorContains(t, SaveGlobalConfig(nil), "config cannot be nil")
}

func TestDeleteGlobalConfig(t *testing.T) {
	path := useTempConfig(t)
	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: testKey}))

	require.NoError(t, DeleteGlobalConfig())
	assert.NoFileExists(t, path)

	require.NoError(t, DeleteGlobalConfig())
}

func TestRequestTimeout(t *testing.T) {
	def := time.Minute

	var nilConfig *GlobalConfig
	assert.Equal(t, def, nilConfig.RequestTimeout(def))
	assert.Equal(t, def, (&GlobalConfig{}).RequestTimeout(def))
	assert.Equal(t, def, (&GlobalConfig{Timeout: "soon"}).RequestTimeout(def))
	assert.Equal(t, def, (&GlobalConfig{Timeout: "-5s"}).RequestTimeout(def))
	assert.Equal(t, 90*time.Second, (&GlobalConfig{Timeout: "90s"}).RequestTimeout(def))
}

func TestIsValidAPIKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"valid lowercase", testKey, true},
		{"valid uppercase", "zv_0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF", true},
		{"missing prefix", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", false},
		{"wrong prefix", "abc_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", false},
		{"too short", "zv_0123456789abcdef", false},
		{"too long", testKey + "00", false},
		{"invalid chars", "zv_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdeg", false},
		{"trailing space", testKey[:len(testKey)-1] + " ", false},
		{"only prefix", "zv_", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidAPIKey(tt.key))
		})
	}
}

func TestGetCredentialSource(t *testing.T) {
	t.Run("flags win", func(t *testing.T) {
		useTempConfig(t)
		t.Setenv(envAPIKey, envFileKey)
		t.Setenv(envAPIURL, "http://env:8080")

		source, key, url := GetCredentialSource(testKey, "http://flag:8080")
		assert.Equal(t, SourceFlag, source)
		assert.Equal(t, testKey, key)
		assert.Equal(t, "http://flag:8080", url)
	})

	t.Run("env over global config", func(t *testing.T) {
		useTempConfig(t)
		require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: globalKey, APIURL: "http://global:8080"}))
		t.Setenv(envAPIKey, envFileKey)
		t.Setenv(envAPIURL, "http://env:8080")

		source, key, url := GetCredentialSource("", "")
		assert.Equal(t, SourceEnvFile, source)
		assert.Equal(t, envFileKey, key)
		assert.Equal(t, "http://env:8080", url)
	})

	t.Run("global config", func(t *testing.T) {
		useTempConfig(t)
		require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: globalKey, APIURL: "http://global:8080"}))

		source, key, url := GetCredentialSource("", "")
		assert.Equal(t, SourceGlobalConfig, source)
		assert.Equal(t, globalKey, key)
		assert.Equal(t, "http://global:8080", url)
	})

	t.Run("partial env is not a source", func(t *testing.T) {
		useTempConfig(t)
		t.Setenv(envAPIKey, envFileKey)

		source, key, url := GetCredentialSource("", "")
		assert.Equal(t, SourceNone, source)
		assert.Empty(t, key)
		assert.Empty(t, url)
	})
}
