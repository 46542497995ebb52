package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"canteen-rfid/internal/domain"
	httpinfra "canteen-rfid/internal/infra/http"
	"canteen-rfid/internal/infra/metrics"
)

// StampService — операции приёма отметок, которые нужны обработчикам.
type StampService interface {
	Authenticate(ctx context.Context, apiKey string) (domain.Reader, error)
	AddStamp(ctx context.Context, reader domain.Reader, req domain.StampRecord) (domain.Stamp, error)
	Ping(ctx context.Context, reader domain.Reader, req domain.PingRequest) (domain.PingResponse, error)
	LatestStamp(ctx context.Context, reader domain.Reader, readerID string) (domain.Stamp, error)
}

// Handler обслуживает API ридеров.
type Handler struct {
	svc StampService
	log zerolog.Logger
}

// NewHandler создаёт обработчики.
func NewHandler(svc StampService, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log.With().Str("component", "httpapi").Logger()}
}

// Register подключает маршруты к роутеру.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(protected chi.Router) {
		protected.Use(httpinfra.APIKeyMiddleware(h.svc.Authenticate, h.onReject))
		protected.Post("/api/v1/stamps", h.createStamp)
		protected.Post("/api/v1/readers/ping", h.ping)
		protected.Get("/api/v1/readers/{readerId}/latest-stamp", h.latestStamp)
	})
}

func (h *Handler) onReject(r *http.Request, err error) {
	endpoint := strings.TrimPrefix(r.URL.Path, "/api/v1/")
	if strings.HasPrefix(endpoint, "readers/") && strings.HasSuffix(endpoint, "/latest-stamp") {
		endpoint = "latest-stamp"
	}
	metrics.AuthFailures.WithLabelValues(endpoint).Inc()
	if errors.Is(err, domain.ErrUnauthorized) {
		h.log.Warn().Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Msg("неверный ключ API")
		return
	}
	h.log.Error().Err(err).Str("path", r.URL.Path).Msg("ошибка проверки ключа API")
}

func (h *Handler) createStamp(w http.ResponseWriter, r *http.Request) {
	reader, _ := httpinfra.ReaderFromContext(r.Context())
	defer r.Body.Close()
	var req domain.StampRecord
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("некорректное тело запроса"))
		return
	}
	stamp, err := h.svc.AddStamp(r.Context(), reader, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, stamp)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	reader, _ := httpinfra.ReaderFromContext(r.Context())
	defer r.Body.Close()
	var req domain.PingRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpinfra.WriteError(w, http.StatusBadRequest, errors.New("некорректное тело запроса"))
			return
		}
	}
	resp, err := h.svc.Ping(r.Context(), reader, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) latestStamp(w http.ResponseWriter, r *http.Request) {
	reader, _ := httpinfra.ReaderFromContext(r.Context())
	stamp, err := h.svc.LatestStamp(r.Context(), reader, chi.URLParam(r, "readerId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, stamp)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		httpinfra.WriteError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
	case errors.Is(err, domain.ErrReaderMismatch), errors.Is(err, domain.ErrInvalidStamp):
		httpinfra.WriteError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrStampNotFound), errors.Is(err, domain.ErrReaderNotFound), errors.Is(err, domain.ErrUserNotFound):
		httpinfra.WriteError(w, http.StatusNotFound, err)
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", httpinfra.RequestID(r)).Msg("ошибка обработки запроса")
		httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("внутренняя ошибка"))
	}
}
