package middleware

import (
	"crypto/subtle"
	"net/http"

	"tradebridge/pkg/crypto"
)

// DebugAuth защищает служебные endpoints (/metrics) через HTTP Basic Auth.
//
// Пароль хранится только в виде bcrypt хеша (DEBUG_PASSWORD_HASH).
// Если учетные данные не заданы, endpoint открыт: это режим
// локального запуска, config.Load не пропускает половинчатую настройку.
//
// Использование:
//
//	router.Handle("/metrics", middleware.DebugAuth(user, hash)(promhttp.Handler()))
func DebugAuth(username, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if username == "" || passwordHash == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok {
				unauthorized(w)
				return
			}

			// Constant-time сравнение имени, bcrypt для пароля
			userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			passMatch := crypto.CheckPasswordMatch(pass, passwordHash)
			if !userMatch || !passMatch {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="tradebridge debug"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
