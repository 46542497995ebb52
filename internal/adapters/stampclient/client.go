package stampclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"canteen-rfid/internal/domain"
	"canteen-rfid/internal/infra/metrics"
)

// APIKeyHeader — заголовок с ключом ридера.
const APIKeyHeader = "X-API-KEY"

// ErrRejected — сервер отклонил ключ ридера (401/403).
var ErrRejected = errors.New("сервер отклонил ключ API")

// Client отправляет отметки и проверки связи на сервер приёма.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
	readerID   string
	timeout    time.Duration
	log        zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout ограничивает одну попытку отправки.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

type apiError struct {
	Error string `json:"error"`
}

// New создаёт клиента ридера readerID с ключом apiKey.
func New(baseURL, apiKey, readerID string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
	}
	client := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{},
		apiKey:     apiKey,
		readerID:   readerID,
		timeout:    10 * time.Second,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Send отправляет отметку и возвращает ошибку при любом неуспехе.
func (c *Client) Send(ctx context.Context, rec domain.StampRecord) error {
	return c.post(ctx, "/api/v1/stamps", rec, nil)
}

// Ping сообщает серверу, что ридер на связи.
func (c *Client) Ping(ctx context.Context) (domain.PingResponse, error) {
	var resp domain.PingResponse
	err := c.post(ctx, "/api/v1/readers/ping", domain.PingRequest{ReaderID: c.readerID}, &resp)
	return resp, err
}

// TrySend отправляет отметку и сообщает об успехе. Ошибки не возвращаются,
// а только логируются. Отмена ctx не прерывает уже начатую попытку.
func (c *Client) TrySend(ctx context.Context, rec domain.StampRecord) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	err := c.Send(ctx, rec)
	switch {
	case err == nil:
		metrics.ClientDeliveries.WithLabelValues("ok").Inc()
		return true
	case errors.Is(err, ErrRejected):
		metrics.ClientDeliveries.WithLabelValues("rejected").Inc()
		metrics.ClientRejected.Inc()
		c.log.Error().Err(err).Str("uid", rec.UID).Msg("сервер отклонил отметку, проверьте ключ API")
	default:
		metrics.ClientDeliveries.WithLabelValues("failed").Inc()
		c.log.Debug().Err(err).Str("uid", rec.UID).Msg("отметка не доставлена")
	}
	return false
}

// TryPing выполняет проверку связи и сообщает об успехе.
func (c *Client) TryPing(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	if _, err := c.Ping(ctx); err != nil {
		if errors.Is(err, ErrRejected) {
			metrics.ClientRejected.Inc()
			c.log.Error().Err(err).Msg("сервер отклонил проверку связи")
		} else {
			c.log.Debug().Err(err).Msg("сервер недоступен")
		}
		return false
	}
	return true
}

func (c *Client) post(ctx context.Context, endpoint string, body any, out any) error {
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	start := time.Now()
	err = c.do(req, out)
	metrics.ObserveNetworkRequest("reader_client", strings.TrimPrefix(endpoint, "/api/v1/"), c.baseURL.Host, start, err)
	return err
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	resolved := *c.baseURL
	basePath := strings.TrimSuffix(c.baseURL.Path, "/")
	resolved.Path = path.Clean(basePath + endpoint)
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, resolved.String(), buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stamp api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiError
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr == nil && len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(data))
		}
		return mapAPIError(resp.StatusCode, apiErr)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func mapAPIError(status int, err apiError) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status=%d %s", ErrRejected, status, err.Error)
	default:
		return fmt.Errorf("stamp api error: status=%d message=%s", status, err.Error)
	}
}
