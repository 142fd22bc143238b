package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func protected(a *Authenticator) http.Handler {
	return a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(Subject(r.Context())))
	}))
}

func TestMiddlewareAcceptsBearerToken(t *testing.T) {
	a := New("secret", "", false, nil)
	token, err := a.IssueToken("kiosk-1", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rag", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected(a).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "kiosk-1" {
		t.Fatalf("subject = %q, want kiosk-1", rec.Body.String())
	}
}

func TestMiddlewareAcceptsAPIKey(t *testing.T) {
	a := New("", "k-123", false, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rag", nil)
	req.Header.Set(APIKeyHeader, "k-123")
	rec := httptest.NewRecorder()
	protected(a).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "api_key" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
}

func TestMiddlewareRejects(t *testing.T) {
	a := New("secret", "k-123", false, nil)
	other := New("other-secret", "", false, nil)
	foreign, _ := other.IssueToken("x", time.Minute)
	expired, _ := a.IssueToken("x", -time.Minute)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name   string
		header string
		value  string
	}{
		{name: "missing"},
		{name: "wrong api key", header: APIKeyHeader, value: "nope"},
		{name: "basic scheme", header: "Authorization", value: "Basic Zm9vOmJhcg=="},
		{name: "foreign signature", header: "Authorization", value: "Bearer " + foreign},
		{name: "expired", header: "Authorization", value: "Bearer " + expired},
		{name: "alg none", header: "Authorization", value: "Bearer " + none},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/rag", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			protected(a).ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["code"] != "unauthorized" {
				t.Fatalf("code = %q, want unauthorized", body["code"])
			}
		})
	}
}

func TestWebsocketTokenQueryParameter(t *testing.T) {
	a := New("secret", "", false, nil)
	token, _ := a.IssueToken("browser", time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/interact/ws?token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	if got, err := a.Authenticate(req); err != nil || got != "browser" {
		t.Fatalf("Authenticate() = %q, %v", got, err)
	}

	plain := httptest.NewRequest(http.MethodGet, "/api/v1/rag?token="+token, nil)
	if _, err := a.Authenticate(plain); err == nil {
		t.Fatalf("Authenticate() accepted a query token on a plain request")
	}
}

func TestDisabledLetsEverythingThrough(t *testing.T) {
	a := New("", "", true, nil)
	rec := httptest.NewRecorder()
	protected(a).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
}
