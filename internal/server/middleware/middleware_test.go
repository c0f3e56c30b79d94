package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://dash.example.com/"})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	req.Header.Set("Origin", "https://Dash.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://Dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Retry-After", rec.Header().Get("Access-Control-Expose-Headers"))

	req = httptest.NewRequest(http.MethodOptions, "/api/positions", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))

	// A bare OPTIONS is not a preflight and reaches the router.
	req = httptest.NewRequest(http.MethodOptions, "/api/positions", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth(t *testing.T) {
	h := Auth("s3cret", "/api/webhook")(okHandler)

	cases := []struct {
		name   string
		method string
		path   string
		header map[string]string
		want   int
		msg    string
	}{
		{"missing", http.MethodGet, "/api/positions", nil, http.StatusUnauthorized, "missing api key"},
		{"wrong", http.MethodGet, "/api/positions", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized, "invalid api key"},
		{"bearer", http.MethodGet, "/api/positions", map[string]string{"Authorization": "bearer s3cret"}, http.StatusOK, ""},
		{"header", http.MethodGet, "/api/positions", map[string]string{"X-API-Key": " s3cret "}, http.StatusOK, ""},
		{"public", http.MethodPost, "/api/webhook", nil, http.StatusOK, ""},
		{"preflight", http.MethodOptions, "/api/positions", nil, http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
			if tc.msg != "" {
				assert.JSONEq(t, `{"success":false,"error":"`+tc.msg+`"}`, rec.Body.String())
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:4000"
	assert.Equal(t, "10.1.2.3", clientIP(req))

	req.Header.Set("X-Real-IP", "192.0.2.7")
	assert.Equal(t, "192.0.2.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", " 198.51.100.9 , 10.0.0.1")
	assert.Equal(t, "198.51.100.9", clientIP(req))
}
