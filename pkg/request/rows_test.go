package request

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRows(t *testing.T) {
	src := "lat, lon ,radius\n35.2,-80.8,10\n36.1,-79.9,25\n"
	rows, err := LoadRows(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"lat": "35.2", "lon": "-80.8", "radius": "10"}, rows[0])
	assert.Equal(t, "25", rows[1]["radius"])
}

func TestLoadRows_Errors(t *testing.T) {
	_, err := LoadRows(strings.NewReader(""))
	assert.Error(t, err, "empty input has no header")

	_, err = LoadRows(strings.NewReader("a,b\n1,2,3\n"))
	assert.Error(t, err, "field count mismatch")
}

func TestLoadRowsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.csv")
	require.NoError(t, os.WriteFile(path, []byte("number\n1\n2\n"), 0o600))

	rows, err := LoadRowsFile(path)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = LoadRowsFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestRangeRows(t *testing.T) {
	rows := RangeRows("number", 1, 4)
	assert.Equal(t, []Row{{"number": "1"}, {"number": "2"}, {"number": "3"}}, rows)
	assert.Nil(t, RangeRows("number", 5, 5))
}
