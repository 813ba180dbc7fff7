package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCORS(t *testing.T) {
	allowed := []string{"https://app.example.com/", " https://staging.example.com "}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name        string
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantMethods bool
	}{
		{"allowed origin", http.MethodGet, "https://app.example.com", http.StatusOK, "https://app.example.com", false},
		{"trimmed origin from config", http.MethodGet, "https://staging.example.com", http.StatusOK, "https://staging.example.com", false},
		{"unknown origin passes through bare", http.MethodGet, "https://evil.example.com", http.StatusOK, "", false},
		{"no origin header", http.MethodGet, "", http.StatusOK, "", false},
		{"preflight allowed", http.MethodOptions, "https://app.example.com", http.StatusNoContent, "https://app.example.com", true},
		{"preflight unknown origin", http.MethodOptions, "https://evil.example.com", http.StatusNoContent, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "http://test/sessions", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()

			CORS(allowed, next).ServeHTTP(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			require.Equal(t, tt.wantOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				require.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
			}
			if tt.wantMethods {
				require.Equal(t, corsAllowMethods, rr.Header().Get("Access-Control-Allow-Methods"))
				require.Equal(t, corsAllowHeaders, rr.Header().Get("Access-Control-Allow-Headers"))
				require.Equal(t, corsMaxAge, rr.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}
