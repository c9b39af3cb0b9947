package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetCLIState restores the package globals Execute mutates so tests stay
// independent.
func resetCLIState(t *testing.T) {
	t.Helper()

	oldArgs := os.Args
	t.Cleanup(func() {
		os.Args = oldArgs
		cfgFile = ""
		debug = false
		viper.Reset()
	})
	viper.Reset()
}

func TestExecute_ConfigFlagLoadsFile(t *testing.T) {
	resetCLIState(t)

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  version: 9.9.9\n"), 0o644))

	os.Args = []string{"apod-pipeline", "--config", path, "version"}
	require.NoError(t, Execute())

	assert.Equal(t, path, viper.ConfigFileUsed())
	assert.Equal(t, "9.9.9", viper.GetString("app.version"))
}

func TestExecute_DebugFlagRaisesLogLevel(t *testing.T) {
	resetCLIState(t)

	os.Args = []string{"apod-pipeline", "--debug", "version"}
	require.NoError(t, Execute())

	assert.Equal(t, "debug", viper.GetString("logger.level"))
}
