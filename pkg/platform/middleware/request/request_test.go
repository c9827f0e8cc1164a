package request

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcregistry/pkg/requestcontext"
)

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = requestcontext.RequestID(r.Context())
	}))

	t.Run("generates UUID when no header provided", func(t *testing.T) {
		w := serve(handler, httptest.NewRequest(http.MethodGet, "/verifiers/count", nil))
		assert.Len(t, captured, 36)
		assert.Equal(t, captured, w.Header().Get("X-Request-ID"))
	})

	t.Run("keeps valid client-provided ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/verifiers/count", nil)
		req.Header.Set("X-Request-ID", "trace.span_1234")
		w := serve(handler, req)
		assert.Equal(t, "trace.span_1234", captured)
		assert.Equal(t, "trace.span_1234", w.Header().Get("X-Request-ID"))
	})

	t.Run("replaces unsafe IDs", func(t *testing.T) {
		for _, id := range []string{
			strings.Repeat("a", MaxRequestIDLength+1),
			"valid\ninjected-log-line",
			"request id",
			`request"id`,
			"request\x00id",
		} {
			req := httptest.NewRequest(http.MethodGet, "/verifiers/count", nil)
			req.Header.Set("X-Request-ID", id)
			w := serve(handler, req)
			assert.NotEqual(t, id, w.Header().Get("X-Request-ID"))
			assert.Len(t, w.Header().Get("X-Request-ID"), 36)
		}
	})
}

func TestClientMetadata(t *testing.T) {
	var ip, ua string
	handler := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:51234"
	req.Header.Set("User-Agent", "verifier-backend/1.2")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	serve(handler, req)

	assert.Equal(t, "192.0.2.10", ip)
	assert.Equal(t, "verifier-backend/1.2", ua)
}

func TestDescribeClient(t *testing.T) {
	t.Run("empty header", func(t *testing.T) {
		desc, bot := describeClient("")
		assert.Equal(t, "unknown", desc)
		assert.False(t, bot)
	})

	t.Run("browser", func(t *testing.T) {
		desc, bot := describeClient("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		assert.Contains(t, desc, "Chrome/120.0.0.0")
		assert.False(t, bot)
	})

	t.Run("crawler", func(t *testing.T) {
		_, bot := describeClient("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
		assert.True(t, bot)
	})
}

func TestLoggerSkipsHealthyHealthChecks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve(handler, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, buf.String())

	serve(handler, httptest.NewRequest(http.MethodGet, "/verifications/count", nil))
	assert.Contains(t, buf.String(), `"path":"/verifications/count"`)
}

func TestBodyLimit(t *testing.T) {
	var readErr error
	handler := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	serve(handler, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	require.Error(t, readErr)

	serve(handler, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123")))
	require.NoError(t, readErr)
}

func TestContentTypeJSON(t *testing.T) {
	handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/verifications", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/plain")
	assert.Equal(t, http.StatusUnsupportedMediaType, serve(handler, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/verifications", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	assert.Equal(t, http.StatusNoContent, serve(handler, req).Code)
}
