package handlers

import (
	"crypto/subtle"
	"net/http"

	"treasure-chest/internal/logger"
)

// AdminPasswordHeader заголовок с общим секретом администратора.
const AdminPasswordHeader = "X-Admin-Password"

// RequireAdmin пропускает запрос только с верным X-Admin-Password.
// Пустой пароль в конфигурации закрывает админку полностью.
func RequireAdmin(password string, log *logger.Logger, next http.HandlerFunc) http.HandlerFunc {
	expected := []byte(password)

	return func(w http.ResponseWriter, r *http.Request) {
		provided := []byte(r.Header.Get(AdminPasswordHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
			if log != nil {
				log.WithFields(map[string]interface{}{
					"path":   r.URL.Path,
					"remote": r.RemoteAddr,
				}).Warn("Rejected admin request")
			}
			writeErrorResponse(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next(w, r)
	}
}
