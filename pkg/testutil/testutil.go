// Package testutil provides testing utilities for flightprep
package testutil

import (
	"context"
	"embed"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Fixture partitions shipped in testdata. The yearly files are bzip2
// compressed flight records in ISO-8859-1; the lookups are plain CSV.
const (
	Flights1987 = "1987.csv.bz2"
	Flights1988 = "1988.csv.bz2"
	Airports    = "airports.csv"
	Carriers    = "carriers.csv"
)

//go:embed testdata
var fixtures embed.FS

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// Fixture returns the raw bytes of a testdata file
func Fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := fixtures.ReadFile("testdata/" + name)
	require.NoError(t, err, "fixture %s", name)
	return data
}

// StageFixtures copies the named fixtures into dir and returns their paths
func StageFixtures(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, Fixture(t, name), 0o644))
		paths = append(paths, path)
	}
	return paths
}

// WriteCSV writes a small CSV file built from a header and rows of
// comma-joined cells.
func WriteCSV(t *testing.T, dir, name, header string, rows ...string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')
	for _, r := range rows {
		b.WriteString(r)
		b.WriteByte('\n')
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

// FileNames lists the plain file names in dir, sorted
func FileNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}
