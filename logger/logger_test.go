package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestZerologLogger(t *testing.T) {
	t.Run("writes service, level and fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(&buf, "kryptos", zerolog.InfoLevel)

		l.Info("session registered", Field{Key: "session", Value: 3})
		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "kryptos", lines[0]["service"])
		assert.Equal(t, "info", lines[0]["level"])
		assert.Equal(t, "session registered", lines[0]["message"])
		assert.EqualValues(t, 3, lines[0]["session"])
		assert.Contains(t, lines[0], "time")
	})

	t.Run("drops entries below level", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(&buf, "kryptos", zerolog.WarnLevel)

		l.Debug("noise")
		l.Info("noise")
		l.Warn("kept")
		l.Error("kept")
		assert.Len(t, decodeLines(t, &buf), 2)
	})

	t.Run("With attaches fields without changing the parent", func(t *testing.T) {
		var buf bytes.Buffer
		parent := NewZerologLogger(&buf, "kryptos", zerolog.DebugLevel)
		child := parent.With(Field{Key: "addr", Value: "127.0.0.1:9000"})

		child.Debug("child")
		parent.Debug("parent")
		lines := decodeLines(t, &buf)
		require.Len(t, lines, 2)
		assert.Equal(t, "127.0.0.1:9000", lines[0]["addr"])
		assert.NotContains(t, lines[1], "addr")
		assert.NoError(t, child.Close())
	})
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Info("discarded", Field{Key: "k", Value: "v"})
	assert.NoError(t, l.With().Close())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewFileLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := NewFileLogger("kryptos", dir, zerolog.InfoLevel)
	require.NoError(t, err)

	l.Info("to file")
	require.NoError(t, l.Close())

	name := filepath.Join(dir, "kryptos_"+time.Now().Format(dateLayout)+".log")
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	clock := func() time.Time { return day }

	w, err := newRotatingFile("relay", dir, clock)
	require.NoError(t, err)

	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "relay_2026-03-01.log"), w.Path())

	t.Run("switches file when the date changes", func(t *testing.T) {
		day = day.Add(2 * time.Minute)
		_, err := w.Write([]byte("second\n"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "relay_2026-03-02.log"), w.Path())

		first, err := os.ReadFile(filepath.Join(dir, "relay_2026-03-01.log"))
		require.NoError(t, err)
		assert.Equal(t, "first\n", string(first))
	})

	t.Run("writes after close fail", func(t *testing.T) {
		require.NoError(t, w.Close())
		require.NoError(t, w.Close())
		_, err := w.Write([]byte("late\n"))
		assert.ErrorIs(t, err, ErrClosed)
	})
}
