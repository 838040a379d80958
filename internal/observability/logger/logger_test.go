package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "json", ServiceName: "hangar-test", Output: &buf})

	l.Info("access decision",
		SubjectID("user-1"),
		Roles([]string{"PILOT", "STUDENT"}),
		Decision("deny"),
		Error(errors.New("boom")),
	)
	l.Debug("filtered out")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "access decision", rec["msg"])
	assert.Equal(t, "hangar-test", rec["service"])
	assert.Equal(t, "user-1", rec[KeySubjectID])
	assert.Equal(t, []any{"PILOT", "STUDENT"}, rec[KeyRoles])
	assert.Equal(t, "deny", rec[KeyDecision])
	assert.Equal(t, "boom", rec["error"])
}

func TestFanoutHandler_DeliversToAllEnabled(t *testing.T) {
	var a, b bytes.Buffer
	h := NewFanoutHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	l := slog.New(h)

	l.InfoContext(context.Background(), "hello")
	assert.Contains(t, a.String(), "hello")
	assert.Empty(t, b.String())

	l.Error("bad")
	assert.Contains(t, b.String(), "bad")
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestError_Nil(t *testing.T) {
	assert.Equal(t, "", Error(nil).Value.String())
}
