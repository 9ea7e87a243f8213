package questions

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRead(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"trailing newline", "What is AppResponse?\nHow do I reset the password?\n", []string{"What is AppResponse?", "How do I reset the password?"}},
		{"no trailing newline", "one\ntwo", []string{"one", "two"}},
		{"crlf", "one\r\ntwo\r\n", []string{"one", "two"}},
		{"blank line is a question", "one\n\nthree\n", []string{"one", "", "three"}},
		{"empty file", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	writeFile(t, path, "q1\nq2\nq3\n")

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2", "q3"}, got)

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), "b\n")
	writeFile(t, filepath.Join(dir, "a.txt"), "a\n")
	writeFile(t, filepath.Join(dir, "nested", "deep", "c.txt"), "c\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dir.txt"), 0o755))

	t.Run("literal path", func(t *testing.T) {
		got, err := Resolve("sample_qs.txt")
		require.NoError(t, err)
		assert.Equal(t, []string{"sample_qs.txt"}, got)
	})

	t.Run("single level", func(t *testing.T) {
		got, err := Resolve(filepath.Join(dir, "*.txt"))
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")}, got)
	})

	t.Run("recursive", func(t *testing.T) {
		got, err := Resolve(filepath.Join(dir, "**", "*.txt"))
		require.NoError(t, err)
		assert.Len(t, got, 3)
		assert.Contains(t, got, filepath.Join(dir, "nested", "deep", "c.txt"))
	})

	t.Run("no match", func(t *testing.T) {
		_, err := Resolve(filepath.Join(dir, "*.csv"))
		assert.Error(t, err)
	})
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "1.txt"), "first\nsecond\n")
	writeFile(t, filepath.Join(dir, "2.txt"), "third\n")

	got, err := LoadAll(filepath.Join(dir, "*.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestWatcher_RerunsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qs.txt")
	writeFile(t, path, "q1\n")

	w, err := NewWatcher([]string{path}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(context.Context) error {
			runs.Add(1)
			return nil
		})
	}()

	// Keep writing new content until the watcher has picked up a change.
	i := 0
	require.Eventually(t, func() bool {
		i++
		_ = os.WriteFile(path, []byte(strings.Repeat("q\n", i+1)), 0o644)
		return runs.Load() > 0
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_UnchangedContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qs.txt")
	writeFile(t, path, "q1\n")

	w, err := NewWatcher([]string{path})
	require.NoError(t, err)
	assert.False(t, w.changed())

	writeFile(t, path, "q1\n")
	assert.False(t, w.changed())

	writeFile(t, path, "q2\n")
	assert.True(t, w.changed())
	assert.False(t, w.changed())
}
