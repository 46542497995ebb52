package uidsource

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// ErrUnsupported — вариант источника недоступен на этой платформе.
var ErrUnsupported = errors.New("глобальный перехват клавиатуры поддерживается только в Windows")

// Source выдаёт считанные идентификаторы меток.
type Source interface {
	// Next блокируется до следующего считывания. io.EOF означает, что
	// источник исчерпан или закрыт.
	Next(ctx context.Context) (string, error)
	// Name попадает в метаданные отметки.
	Name() string
	Close() error
}

// Select выбирает глобальный перехват клавиатуры, если он включён и
// доступен, иначе построчное чтение из in.
func Select(useHook bool, terminator string, in io.Reader, log zerolog.Logger) Source {
	if useHook {
		hook, err := NewHookSource(terminator, log)
		if err == nil {
			log.Info().Msg("используется глобальный перехват клавиатуры")
			return hook
		}
		log.Warn().Err(err).Msg("перехват клавиатуры недоступен, чтение из stdin")
	}
	return NewLineSource(in, terminator)
}

// terminatorBuffer накапливает символы, пока не встретится терминатор.
type terminatorBuffer struct {
	terminator string
	buf        strings.Builder
}

func newTerminatorBuffer(terminator string) *terminatorBuffer {
	if terminator == "" {
		terminator = "\r"
	}
	return &terminatorBuffer{terminator: terminator}
}

// Feed добавляет символы и возвращает накопленный идентификатор без
// терминатора, когда тот встречен. Пустые накопления отбрасываются.
func (b *terminatorBuffer) Feed(chars string) (string, bool) {
	b.buf.WriteString(chars)
	current := b.buf.String()
	if !strings.HasSuffix(current, b.terminator) {
		return "", false
	}
	b.buf.Reset()
	uid := strings.TrimSuffix(current, b.terminator)
	if strings.TrimSpace(uid) == "" {
		return "", false
	}
	return uid, true
}
