package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores the package-level flag variables cobra binds to, so
// each test starts from a clean root command regardless of execution order.
func resetFlags(t *testing.T) {
	t.Helper()
	rootDir = ""
	kvPath = "fsindex.db"
	searchMode = "progressive"
	searchLimit = 100
	t.Cleanup(func() {
		rootDir = ""
		kvPath = "fsindex.db"
	})
}

// runCLI executes the root command with args, capturing both cobra's own
// output stream and the real os.Stdout, since the subcommands print results
// with fmt.Println/fmt.Printf directly rather than through cmd.Print*.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	origStdout := os.Stdout
	os.Stdout = w

	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	runErr := rootCmd.Execute()

	w.Close()
	os.Stdout = origStdout
	var captured bytes.Buffer
	_, _ = captured.ReadFrom(r)

	return buf.String() + captured.String(), runErr
}

func TestRootRequiresRootFlag(t *testing.T) {
	_, err := runCLI(t, "scan")
	assert.Error(t, err)
}

func TestScanCommandIndexesTree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0644))
	kv := filepath.Join(t.TempDir(), "idx.db")

	_, err := runCLI(t, "scan", "--root", root, "--kv", kv)
	require.NoError(t, err)

	_, statErr := os.Stat(kv)
	assert.NoError(t, statErr)
}

func TestStatCommandReportsUnindexedPath(t *testing.T) {
	root := t.TempDir()
	kv := filepath.Join(t.TempDir(), "idx.db")

	out, err := runCLI(t, "stat", "--root", root, "--kv", kv, "does/not/exist")
	require.NoError(t, err)
	assert.Contains(t, out, "not indexed")
}

func TestSearchCommandFindsIndexedFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "report.pdf"), []byte("x"), 0644))
	kv := filepath.Join(t.TempDir(), "idx.db")

	out, err := runCLI(t, "search", "--root", root, "--kv", kv, "--mode", "comprehensive", "report")
	require.NoError(t, err)
	assert.Contains(t, out, "report.pdf")
}
