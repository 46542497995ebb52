//go:build !windows

package uidsource

import (
	"context"
	"io"

	"github.com/rs/zerolog"
)

// HookSource недоступен вне Windows.
type HookSource struct{}

// NewHookSource всегда возвращает ErrUnsupported.
func NewHookSource(string, zerolog.Logger) (*HookSource, error) {
	return nil, ErrUnsupported
}

func (*HookSource) Next(context.Context) (string, error) { return "", io.EOF }

func (*HookSource) Name() string { return "globalHook" }

func (*HookSource) Close() error { return nil }
