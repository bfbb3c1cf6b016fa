package dotenv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsNoop(t *testing.T) {
	assert.NoError(t, Load(filepath.Join(t.TempDir(), ".env")))
}

func TestLoadValuesAndPreservesExisting(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	content := "" +
		"# comment\n" +
		"FROM_FILE=loaded\n" +
		"QUOTED=\"hello world\"\n" +
		"export EXPORTED=ok\n" +
		"EXISTING=from_file\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o600))

	t.Setenv("EXISTING", "already_set")

	require.NoError(t, Load(envPath))
	assert.Equal(t, "loaded", os.Getenv("FROM_FILE"))
	assert.Equal(t, "hello world", os.Getenv("QUOTED"))
	assert.Equal(t, "ok", os.Getenv("EXPORTED"))
	assert.Equal(t, "already_set", os.Getenv("EXISTING"), "existing values win")
}

func TestParseLine(t *testing.T) {
	cases := []struct {
		line string
		key  string
		val  string
		ok   bool
	}{
		{"FOO=bar", "FOO", "bar", true},
		{"  FOO = bar ", "FOO", "bar", true},
		{"export FOO=bar", "FOO", "bar", true},
		{`FOO="a b"`, "FOO", "a b", true},
		{"FOO='a b'", "FOO", "a b", true},
		{"FOO=", "FOO", "", true},
		{"# FOO=bar", "", "", false},
		{"", "", "", false},
		{"=bar", "", "", false},
		{"no equals", "", "", false},
	}
	for _, tc := range cases {
		key, val, ok := parseLine(tc.line)
		assert.Equal(t, tc.ok, ok, tc.line)
		assert.Equal(t, tc.key, key, tc.line)
		assert.Equal(t, tc.val, val, tc.line)
	}
}
