package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	lifehelper "github.com/sengeiou/life-helper-server"
)

type stubValidator struct {
	token string
}

func (s stubValidator) ValidateSessionToken(_ context.Context, token string) (*lifehelper.SessionInfo, error) {
	if token != s.token {
		return nil, lifehelper.ErrUnauthorized
	}
	return &lifehelper.SessionInfo{UserID: "42", Channel: lifehelper.ChannelQRCode}, nil
}

func TestGuard(t *testing.T) {
	var seen *lifehelper.SessionInfo
	h := Guard(stubValidator{token: "good"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"empty token", "Bearer  ", http.StatusUnauthorized},
		{"bad token", "Bearer bad", http.StatusUnauthorized},
		{"good token", "Bearer good", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				require.NotNil(t, seen)
				require.Equal(t, "42", seen.UserID)
			} else {
				require.Nil(t, seen)
			}
		})
	}
}

func TestGuardNilValidator(t *testing.T) {
	h := Guard(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionFromContextMissing(t *testing.T) {
	_, ok := SessionFromContext(context.Background())
	require.False(t, ok)
}

func TestRemoteIP(t *testing.T) {
	require.Equal(t, "192.0.2.1", remoteIP("192.0.2.1:5555"))
	require.Equal(t, "2001:db8::1", remoteIP("[2001:db8::1]:443"))
	require.Equal(t, "192.0.2.9", remoteIP("192.0.2.9"))
	require.Equal(t, "", remoteIP(""))
}
