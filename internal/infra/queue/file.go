package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"canteen-rfid/internal/domain"
)

// SpoolFileName — имя файла очереди внутри каталога.
const SpoolFileName = "queue.jsonl"

// SendFunc пытается доставить запись и сообщает, удалась ли доставка.
type SendFunc func(ctx context.Context, rec domain.StampRecord) bool

// FlushResult описывает итог прохода выгрузки.
type FlushResult struct {
	Skipped   bool
	Sent      int
	Remaining int
	Malformed int
}

// FileSpool — локальная очередь неотправленных отметок в формате NDJSON.
// Дописывание и фиксация выгрузки сериализуются через mu, поэтому запись,
// добавленная во время выгрузки, не теряется.
type FileSpool struct {
	path    string
	mu      sync.Mutex
	flushMu sync.Mutex
	log     zerolog.Logger
}

// NewFileSpool открывает очередь в каталоге dir, создавая его при необходимости.
func NewFileSpool(dir string, log zerolog.Logger) (*FileSpool, error) {
	if dir == "" {
		return nil, errors.New("spool dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &FileSpool{
		path: filepath.Join(dir, SpoolFileName),
		log:  log.With().Str("component", "spool").Logger(),
	}, nil
}

// Path возвращает путь к файлу очереди.
func (q *FileSpool) Path() string { return q.path }

// Append дописывает запись в конец очереди.
func (q *FileSpool) Append(rec domain.StampRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')

	q.mu.Lock()
	defer q.mu.Unlock()
	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open spool: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append spool: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync spool: %w", err)
	}
	return f.Close()
}

// Size возвращает размер файла очереди в байтах. Отсутствующий файл — 0.
func (q *FileSpool) Size() int64 {
	info, err := os.Stat(q.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Records возвращает число непустых строк в очереди.
func (q *FileSpool) Records() (int, error) {
	q.mu.Lock()
	data, err := readIfExists(q.path)
	q.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return len(splitLines(data)), nil
}

// Flush пытается отправить все записи очереди по порядку и оставляет в
// файле только неотправленные и нечитаемые строки. Если другой проход
// уже идёт, возвращает Skipped.
func (q *FileSpool) Flush(ctx context.Context, send SendFunc) (FlushResult, error) {
	if !q.flushMu.TryLock() {
		return FlushResult{Skipped: true}, nil
	}
	defer q.flushMu.Unlock()

	q.mu.Lock()
	snapshot, err := readIfExists(q.path)
	q.mu.Unlock()
	if err != nil {
		return FlushResult{}, err
	}
	if len(snapshot) == 0 {
		return FlushResult{}, nil
	}
	offset := int64(len(snapshot))

	var (
		res  FlushResult
		keep [][]byte
	)
	for _, line := range splitLines(snapshot) {
		var rec domain.StampRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			res.Malformed++
			keep = append(keep, line)
			continue
		}
		if ctx.Err() != nil || !send(ctx, rec) {
			keep = append(keep, line)
			continue
		}
		res.Sent++
	}
	res.Remaining = len(keep)
	if res.Sent == 0 {
		return res, nil
	}

	if err := q.commit(keep, offset); err != nil {
		return res, err
	}
	q.log.Debug().Int("sent", res.Sent).Int("remaining", res.Remaining).Msg("очередь выгружена")
	return res, nil
}

// commit заменяет файл очереди строками keep и всем, что было дописано
// после снимка длины offset.
func (q *FileSpool) commit(keep [][]byte, offset int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	tail, err := readTail(q.path, offset)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, line := range keep {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.Write(tail)

	tmp, err := os.CreateTemp(filepath.Dir(q.path), SpoolFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp spool: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		cleanup()
		return fmt.Errorf("write temp spool: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp spool: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp spool: %w", err)
	}
	if err := os.Rename(tmpName, q.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace spool: %w", err)
	}
	return nil
}

func readIfExists(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read spool: %w", err)
	}
	return data, nil
}

func readTail(path string, offset int64) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open spool: %w", err)
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek spool: %w", err)
	}
	tail, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read spool tail: %w", err)
	}
	return tail, nil
}

// splitLines режет данные по переводу строки, отбрасывая пустые строки.
// Строки возвращаются без изменений, включая нечитаемые.
func splitLines(data []byte) [][]byte {
	var out [][]byte
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		out = append(out, line)
	}
	return out
}
