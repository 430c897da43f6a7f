package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fundingledger/internal/domain"
)

// TokenClaims carries the caller identity. The subject is the caller id.
type TokenClaims struct {
	Role   string `json:"role"`
	Locale string `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

type callerKey struct{}

var errInvalidToken = errors.New("invalid token")

// SignJWT issues an HS256 token for caller valid for ttl. A zero ttl never expires.
func SignJWT(secret string, caller domain.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		Role: string(caller.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  caller.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyJWT validates signature and expiry and returns the caller.
func VerifyJWT(secret, token string) (*domain.Caller, *TokenClaims, error) {
	claims := new(TokenClaims)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, nil, fmt.Errorf("%w: missing subject", errInvalidToken)
	}
	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown role %q", errInvalidToken, claims.Role)
	}
	return &domain.Caller{ID: claims.Subject, Role: role}, claims, nil
}

// AuthJWT requires a valid bearer token and stores the caller in the context.
func AuthJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing authorization")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid authorization")
				return
			}
			caller, claims, err := VerifyJWT(secret, strings.TrimSpace(parts[1]))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			ctx := ContextWithCaller(r.Context(), *caller)
			if claims.Locale != "" && r.Header.Get("X-Locale") == "" {
				ctx = context.WithValue(ctx, LocaleKey, normalizeLocale(claims.Locale))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose role is not in roles. It must run after AuthJWT.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing caller")
				return
			}
			if !caller.HasRole(roles...) {
				writeError(w, http.StatusForbidden, "forbidden", "role not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func CallerFromContext(ctx context.Context) (domain.Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(domain.Caller)
	return c, ok
}

func ContextWithCaller(ctx context.Context, caller domain.Caller) context.Context {
	if strings.TrimSpace(caller.ID) == "" {
		return ctx
	}
	return context.WithValue(ctx, callerKey{}, caller)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "error": message})
}
