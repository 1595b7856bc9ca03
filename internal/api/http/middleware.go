package http

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"cashback-ledger/internal/config"
	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/idempotency"
	"cashback-ledger/internal/logger"
	"cashback-ledger/internal/security"
)

type contextKey string

const claimsKey contextKey = "claims"

// ClaimsFromContext returns the token claims injected by AuthMiddleware.
func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*security.Claims)
	return claims, ok
}

// routeKey returns "METHOD /path/{template}" for the matched route.
func routeKey(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return r.Method + " " + r.URL.Path
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return r.Method + " " + r.URL.Path
	}
	return r.Method + " " + tpl
}

type AuthMiddleware struct {
	tokenManager security.TokenManager
}

func NewAuthMiddleware(tm security.TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokenManager: tm}
}

// Handler authenticates and authorizes requests by the security level of
// the matched route.
func (a *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		level := config.GetSecurityLevel(routeKey(r))

		if level == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := extractToken(r)
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Token de autenticação não informado.")
			return
		}

		claims, err := a.tokenManager.ValidateToken(token)
		if err != nil {
			logger.Debug("Token rejected", "route", routeKey(r), "error", err)
			writeMessage(w, http.StatusUnauthorized, "Token de autenticação inválido.")
			return
		}

		if msg := checkSecurityLevel(level, claims, mux.Vars(r)); msg != "" {
			writeMessage(w, http.StatusForbidden, msg)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func extractToken(r *http.Request) (string, bool) {
	token := r.Header.Get("Authorization")
	if token == "" {
		return "", false
	}
	// Remove Bearer prefix if present
	if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
		token = token[7:]
	}
	return token, token != ""
}

func checkSecurityLevel(level config.SecurityLevel, claims *security.Claims, vars map[string]string) string {
	switch level {
	case config.SecurityService:
		if claims.Type != security.TokenTypeService {
			return "Token de serviço necessário."
		}
	case config.SecurityAccess:
		if claims.Type != security.TokenTypeAccess {
			return "Token de acesso necessário."
		}
	case config.SecurityTerminal:
		// The org comes from the body; handlers check it with CanActFor.
		if claims.Type != security.TokenTypeAccess && claims.Type != security.TokenTypeService {
			return "Token de acesso necessário."
		}
	default:
		if claims.Type != security.TokenTypeAccess {
			return "Token de acesso necessário."
		}
		orgID := vars["orgId"]
		if orgID == "" || !claims.HasRole(orgID, security.RoleAdmin) {
			return "Acesso restrito a administradores da organização."
		}
	}
	return ""
}

// responseRecorder captures response status and body for idempotency caching.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// IdempotencyMiddleware caches POST responses by Idempotency-Key header.
// 5xx responses are not cached.
func IdempotencyMiddleware(store idempotency.Store) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("Idempotency-Key")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody))
			if err != nil {
				writeError(w, r, domain.BadRequest("Corpo da requisição inválido."))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			key := idempotencyKey(r, header, body)

			cached, err := store.Get(ctx, key)
			if err != nil {
				logger.Warn("Idempotency lookup failed", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if cached != nil {
				replay(w, cached)
				return
			}

			reserved, err := store.Reserve(ctx, key)
			if err != nil {
				logger.Warn("Idempotency reservation failed", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !reserved {
				// The holder may have finished between Get and Reserve.
				if cached, err := store.Get(ctx, key); err == nil && cached != nil {
					replay(w, cached)
					return
				}
				writeMessage(w, http.StatusConflict, "Requisição com a mesma chave de idempotência em andamento.")
				return
			}

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			// The request context may be canceled once the response is written.
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if rec.statusCode >= http.StatusInternalServerError {
				if err := store.Release(saveCtx, key); err != nil {
					logger.Warn("Idempotency release failed", "key", key, "error", err)
				}
				return
			}
			if err := store.Save(saveCtx, key, idempotency.Response{StatusCode: rec.statusCode, Body: rec.body.Bytes()}); err != nil {
				logger.Warn("Idempotency save failed", "key", key, "error", err)
			}
		})
	}
}

const maxIdempotentBody = 1 << 20

// idempotencyKey scopes the client's key by route, caller and request body.
func idempotencyKey(r *http.Request, header string, body []byte) string {
	caller := "anonymous"
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		caller = string(claims.Type) + "/" + claims.Subject
	}
	sum := sha256.Sum256(body)
	return r.URL.Path + ":" + caller + ":" + header + ":" + hex.EncodeToString(sum[:])
}

func replay(w http.ResponseWriter, cached *idempotency.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cached.StatusCode)
	w.Write(cached.Body)
}

// LoggingMiddleware logs every request with its status and latency.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
