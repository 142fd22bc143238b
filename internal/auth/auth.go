// Package auth authenticates API callers by bearer JWT or static API key.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

// SubjectKey holds the authenticated caller in the request context.
const SubjectKey contextKey = "auth_subject"

// APIKeyHeader carries a static API key.
const APIKeyHeader = "X-API-Key"

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Claims are the JWT claims accepted by the API.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Authenticator validates bearer tokens signed with an HMAC secret and a
// static API key. Either may be unset; Disabled lets every request through.
type Authenticator struct {
	secret   []byte
	apiKey   string
	disabled bool
	log      *zap.Logger
}

func New(jwtSecret, apiKey string, disabled bool, log *zap.Logger) *Authenticator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Authenticator{
		secret:   []byte(strings.TrimSpace(jwtSecret)),
		apiKey:   strings.TrimSpace(apiKey),
		disabled: disabled,
		log:      log,
	}
}

// IssueToken signs an HS256 token for subject valid for ttl.
func (a *Authenticator) IssueToken(subject string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("JWT secret is not configured")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses a bearer token and returns its claims.
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, ErrInvalidCredentials
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}

// Authenticate returns the caller's subject. Websocket clients that cannot set
// headers may pass the token as the "token" query parameter.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	if a.disabled {
		return "anonymous", nil
	}
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		if a.apiKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) == 1 {
			return "api_key", nil
		}
		return "", ErrInvalidCredentials
	}

	token := ""
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		scheme, rest, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", ErrInvalidCredentials
		}
		token = strings.TrimSpace(rest)
	} else if websocketUpgrade(r) {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return "", ErrMissingCredentials
	}
	claims, err := a.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Middleware rejects unauthenticated requests with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := a.Authenticate(r)
		if err != nil {
			a.log.Debug("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="aspbot"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error(), "code": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), SubjectKey, subject)))
	})
}

// Subject returns the authenticated caller stored by Middleware.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(SubjectKey).(string)
	return s
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
