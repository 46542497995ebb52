package readers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"canteen-rfid/internal/domain"
	"canteen-rfid/internal/usecase/stamps"
)

// Register создаёт активный ридер с новым ключом API. Сырой ключ
// возвращается один раз, в базе хранится только его хэш.
func Register(ctx context.Context, repo domain.ReaderRepo, reader domain.Reader) (domain.Reader, string, error) {
	reader.ReaderID = strings.TrimSpace(reader.ReaderID)
	if reader.ReaderID == "" {
		return domain.Reader{}, "", errors.New("readerId is required")
	}
	if _, err := repo.GetReader(ctx, reader.ReaderID); err == nil {
		return domain.Reader{}, "", fmt.Errorf("ридер %s уже существует", reader.ReaderID)
	} else if !errors.Is(err, domain.ErrReaderNotFound) {
		return domain.Reader{}, "", err
	}

	key, err := stamps.GenerateAPIKey()
	if err != nil {
		return domain.Reader{}, "", fmt.Errorf("генерация ключа: %w", err)
	}
	reader.APIKeyHash = stamps.HashAPIKey(key)
	reader.IsActive = true
	created, err := repo.CreateReader(ctx, reader)
	if err != nil {
		return domain.Reader{}, "", err
	}
	return created, key, nil
}

// RotateKey выпускает ридеру новый ключ. Старый перестаёт действовать сразу.
func RotateKey(ctx context.Context, repo domain.ReaderRepo, readerID string) (string, error) {
	key, err := stamps.GenerateAPIKey()
	if err != nil {
		return "", fmt.Errorf("генерация ключа: %w", err)
	}
	if err := repo.UpdateReaderKeyHash(ctx, strings.TrimSpace(readerID), stamps.HashAPIKey(key)); err != nil {
		return "", err
	}
	return key, nil
}
