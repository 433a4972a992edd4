package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/evalmesh/judge"
	"github.com/hupe1980/evalmesh/store"
)

const testSuite = `
name: smoke
instructions: Repeat the question.
criteria: The response repeats the question.
cases:
  - input: "  hello  "
  - input: world
    category: greeting
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunShowList_FileStore(t *testing.T) {
	dir := t.TempDir()
	suite := filepath.Join(dir, "suite.yaml")
	require.NoError(t, os.WriteFile(suite, []byte(testSuite), 0o600))
	storeSpec := "file:" + filepath.Join(dir, "runs")

	out, err := execute(t, "run", "--suite", suite, "--provider", "mock", "--name", "smoke-test",
		"--store", storeSpec, "--judge-model", "a,b,c", "--strategy", "unanimous", "--retries", "1", "--cache", "8")
	require.NoError(t, err, out)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "100.0%")

	fs, err := store.NewFileStore(filepath.Join(dir, "runs"))
	require.NoError(t, err)
	runs, err := fs.List(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "smoke-test", runs[0].Experiment.Name)

	out, err = execute(t, "list", "--store", storeSpec)
	require.NoError(t, err)
	assert.Contains(t, out, runs[0].ID)
	assert.Contains(t, out, "smoke-test")

	out, err = execute(t, "show", "--store", storeSpec, runs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "greeting")

	out, err = execute(t, "show", "--store", storeSpec, "--json", runs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "completed"`)

	_, err = execute(t, "show", "--store", storeSpec, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_WithoutNameIsNotStored(t *testing.T) {
	dir := t.TempDir()
	suite := filepath.Join(dir, "suite.yaml")
	require.NoError(t, os.WriteFile(suite, []byte(testSuite), 0o600))
	storeSpec := "file:" + filepath.Join(dir, "runs")

	_, err := execute(t, "run", "--suite", suite, "--provider", "mock", "--store", storeSpec, "--sequential")
	require.NoError(t, err)

	out, err := execute(t, "list", "--store", storeSpec)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs stored.")
}

func TestRun_Errors(t *testing.T) {
	_, err := execute(t, "run", "--suite", filepath.Join(t.TempDir(), "missing.yaml"), "--provider", "mock")
	assert.ErrorContains(t, err, "failed")

	_, err = execute(t, "run", "--suite", "x.yaml", "--provider", "nope")
	assert.ErrorContains(t, err, "unknown provider")

	_, err = execute(t, "list")
	assert.ErrorContains(t, err, "no store configured")

	_, err = execute(t, "list", "--store", "s3:bucket")
	assert.ErrorContains(t, err, "unknown store kind")
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want judge.Strategy
		err  bool
	}{
		{"unanimous", judge.Unanimous(), false},
		{"majority", judge.Majority(), false},
		{"threshold:0.6", judge.Threshold(0.6), false},
		{"threshold:x", judge.Strategy{}, true},
		{"plurality", judge.Strategy{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseStrategy(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
