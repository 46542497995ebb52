package http

import (
	"context"
	"errors"
	"net/http"

	"canteen-rfid/internal/domain"
)

// APIKeyHeader — заголовок, в котором ридер передаёт ключ.
const APIKeyHeader = "X-API-KEY"

// Authenticator находит ридер по сырому ключу.
type Authenticator func(ctx context.Context, apiKey string) (domain.Reader, error)

type readerCtxKey struct{}

// APIKeyMiddleware проверяет ключ ридера и кладёт найденный ридер в контекст.
// onReject вызывается для каждого отклонённого запроса и может быть nil.
func APIKeyMiddleware(auth Authenticator, onReject func(r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reader, err := auth(r.Context(), r.Header.Get(APIKeyHeader))
			if err != nil {
				if onReject != nil {
					onReject(r, err)
				}
				if errors.Is(err, domain.ErrUnauthorized) {
					WriteError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
					return
				}
				WriteError(w, http.StatusInternalServerError, errors.New("внутренняя ошибка"))
				return
			}
			ctx := context.WithValue(r.Context(), readerCtxKey{}, reader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ReaderFromContext возвращает ридер, установленный APIKeyMiddleware.
func ReaderFromContext(ctx context.Context) (domain.Reader, bool) {
	reader, ok := ctx.Value(readerCtxKey{}).(domain.Reader)
	return reader, ok
}
