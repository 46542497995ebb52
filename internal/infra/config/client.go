package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/jsonc"
)

const (
	minPingInterval  = 5 * time.Second
	minFlushInterval = time.Second
)

// ClientConfig — настройки клиента ридера. Файл допускает комментарии.
type ClientConfig struct {
	ServerURL             string `json:"serverUrl"`
	APIKey                string `json:"apiKey"`
	ReaderID              string `json:"readerId"`
	Terminator            string `json:"terminator"`
	PingIntervalSeconds   int    `json:"pingIntervalSeconds"`
	FlushIntervalSeconds  int    `json:"flushIntervalSeconds"`
	UseGlobalKeyboardHook bool   `json:"useGlobalKeyboardHook"`
	QueueDir              string `json:"queueDir"`
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds"`
	MetricsAddr           string `json:"metricsAddr,omitempty"`
	AppEnv                string `json:"appEnv"`
}

// DefaultClientConfig возвращает значения, которые пишутся в новый файл.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerURL:             "http://localhost:5000",
		APIKey:                "CHANGE_ME",
		ReaderID:              "READER-01",
		PingIntervalSeconds:   60,
		FlushIntervalSeconds:  10,
		UseGlobalKeyboardHook: true,
		QueueDir:              "queue",
		RequestTimeoutSeconds: 10,
		AppEnv:                "prod",
	}
}

// LoadClient читает конфиг клиента. Если файла нет, он создаётся со
// значениями по умолчанию и created = true.
func LoadClient(path string) (cfg ClientConfig, created bool, err error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = DefaultClientConfig()
		if err := writeClient(path, cfg); err != nil {
			return ClientConfig{}, false, err
		}
		created = true
	} else if err != nil {
		return ClientConfig{}, false, fmt.Errorf("read client config: %w", err)
	} else {
		cfg = DefaultClientConfig()
		if err := json.Unmarshal(jsonc.ToJSON(raw), &cfg); err != nil {
			return ClientConfig{}, false, fmt.Errorf("parse client config %s: %w", path, err)
		}
	}

	if cfg.QueueDir != "" && !filepath.IsAbs(cfg.QueueDir) {
		cfg.QueueDir = filepath.Join(filepath.Dir(path), cfg.QueueDir)
	}
	return cfg, created, nil
}

func writeClient(path string, cfg ClientConfig) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal client config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write client config: %w", err)
	}
	return nil
}

// Validate проверяет обязательные поля.
func (c ClientConfig) Validate() error {
	switch {
	case c.ServerURL == "":
		return errors.New("serverUrl is required")
	case c.ReaderID == "":
		return errors.New("readerId is required")
	case c.APIKey == "":
		return errors.New("apiKey is required")
	case c.QueueDir == "":
		return errors.New("queueDir is required")
	}
	return nil
}

// PingInterval возвращает интервал проверки связи не меньше 5 секунд.
func (c ClientConfig) PingInterval() time.Duration {
	return max(time.Duration(c.PingIntervalSeconds)*time.Second, minPingInterval)
}

// FlushInterval возвращает интервал выгрузки очереди не меньше секунды.
func (c ClientConfig) FlushInterval() time.Duration {
	if c.FlushIntervalSeconds == 0 {
		return 10 * time.Second
	}
	return max(time.Duration(c.FlushIntervalSeconds)*time.Second, minFlushInterval)
}

// RequestTimeout возвращает таймаут одного запроса к серверу.
func (c ClientConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
