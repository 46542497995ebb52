package uidsource

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

type lineResult struct {
	line string
	err  error
}

// LineSource читает идентификаторы построчно, например от считывателя
// в режиме эмуляции клавиатуры.
type LineSource struct {
	terminator string
	lines      chan lineResult
	done       chan struct{}
	closeOnce  sync.Once
}

// NewLineSource запускает чтение из in. Терминатор срезается с конца
// строки, если присутствует.
func NewLineSource(in io.Reader, terminator string) *LineSource {
	s := &LineSource{
		terminator: terminator,
		lines:      make(chan lineResult),
		done:       make(chan struct{}),
	}
	go s.read(in)
	return s
}

func (s *LineSource) read(in io.Reader) {
	defer close(s.lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case s.lines <- lineResult{line: scanner.Text()}:
		case <-s.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case s.lines <- lineResult{err: err}:
		case <-s.done:
		}
	}
}

// Next реализует Source.
func (s *LineSource) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", io.EOF
	case res, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil {
			return "", res.err
		}
		line := strings.TrimRight(res.line, "\r")
		if s.terminator != "" {
			line = strings.TrimSuffix(line, s.terminator)
		}
		return line, nil
	}
}

// Name реализует Source.
func (s *LineSource) Name() string { return "keyboardWedge" }

// Close прекращает выдачу строк. Блокирующее чтение из in не прерывается.
func (s *LineSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
