package uidsource

import (
	"context"
	"io"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, src Source) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var out []string
	for {
		uid, err := src.Next(ctx)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, uid)
	}
}

func TestLineSourceStripsTerminator(t *testing.T) {
	src := NewLineSource(strings.NewReader("ABC123#\nDEF456\r\n\n"), "#")
	require.Equal(t, []string{"ABC123", "DEF456", ""}, collect(t, src))
}

func TestLineSourceWithoutTerminator(t *testing.T) {
	src := NewLineSource(strings.NewReader("ABC123\nXYZ"), "")
	require.Equal(t, []string{"ABC123", "XYZ"}, collect(t, src))
	require.Equal(t, "keyboardWedge", src.Name())
}

func TestLineSourceRespectsContextAndClose(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	src := NewLineSource(pr, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, src.Close())
	_, err = src.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestTerminatorBuffer(t *testing.T) {
	b := newTerminatorBuffer("")
	for _, ch := range "AB1" {
		_, ok := b.Feed(string(ch))
		require.False(t, ok)
	}
	uid, ok := b.Feed("\r")
	require.True(t, ok)
	require.Equal(t, "AB1", uid)

	_, ok = b.Feed("  \r")
	require.False(t, ok, "пустое накопление отбрасывается")

	b = newTerminatorBuffer("##")
	_, ok = b.Feed("X#")
	require.False(t, ok)
	uid, ok = b.Feed("#")
	require.True(t, ok)
	require.Equal(t, "X", uid)
}

func TestSelectFallsBackToLines(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("на Windows перехват доступен")
	}
	src := Select(true, "", strings.NewReader("A\n"), zerolog.Nop())
	_, isLine := src.(*LineSource)
	require.True(t, isLine)
	require.Equal(t, []string{"A"}, collect(t, src))
}
