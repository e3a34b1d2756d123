// Package appcheck gates engine endpoints behind an app attestation
// token. Callers send the token in the X-Firebase-AppCheck header; it is
// verified as a signed JWT and its app id checked against an allow-list.
package appcheck

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const TokenHeader = "X-Firebase-AppCheck"

// Verifier validates attestation tokens. An empty allow-list accepts any
// verified token.
type Verifier struct {
	secret     []byte
	allowedIDs map[string]struct{}
}

// New builds a Verifier from a signing secret and a comma-separated app id
// allow-list. An empty secret yields an unconfigured Verifier whose
// middleware rejects everything with app_check_not_configured.
func New(secret string, allowedIDs string) *Verifier {
	v := &Verifier{allowedIDs: map[string]struct{}{}}
	if strings.TrimSpace(secret) != "" {
		v.secret = []byte(secret)
	}
	for _, id := range strings.Split(allowedIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			v.allowedIDs[id] = struct{}{}
		}
	}
	return v
}

// Configured reports whether a verification secret is present.
func (v *Verifier) Configured() bool { return len(v.secret) > 0 }

// VerifyToken checks signature and app id, returning the app id on
// success.
func (v *Verifier) VerifyToken(tokenStr string) (string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", jwt.ErrTokenUnverifiable
	}
	appID, _ := claims["app_id"].(string)
	return appID, nil
}

// Middleware enforces a valid attestation token on every request.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !v.Configured() {
			deny(w, http.StatusInternalServerError, "app_check_not_configured")
			return
		}
		tokenStr := r.Header.Get(TokenHeader)
		if tokenStr == "" {
			deny(w, http.StatusUnauthorized, "missing_app_check_token")
			return
		}
		appID, err := v.VerifyToken(tokenStr)
		if err != nil {
			log.Warn().Err(err).Msg("app check token verification failed")
			deny(w, http.StatusUnauthorized, "invalid_app_check_token")
			return
		}
		if len(v.allowedIDs) > 0 {
			if _, ok := v.allowedIDs[appID]; !ok {
				deny(w, http.StatusUnauthorized, "app_check_app_id_mismatch")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func deny(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `"}`))
}
