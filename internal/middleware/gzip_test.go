package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoJSON отвечает телом запроса, обёрнутым в {"echo": ...}.
func echoJSON(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"echo":` + string(body) + `}`))
}

func compress(t *testing.T, s string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return &buf
}

func readResponse(t *testing.T, res *http.Response) string {
	t.Helper()

	var r io.Reader = res.Body
	if res.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(res.Body)
		require.NoError(t, err)
		defer zr.Close()
		r = zr
	}
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestGzipMiddleware(t *testing.T) {
	const payload = `{"book_id":7,"member_id":1}`

	tests := []struct {
		name           string
		compressBody   bool
		acceptEncoding string
		wantEncoding   string
	}{
		{name: "plain in, plain out", wantEncoding: ""},
		{name: "plain in, gzip out", acceptEncoding: "gzip, deflate", wantEncoding: "gzip"},
		{name: "gzip in, plain out", compressBody: true, wantEncoding: ""},
		{name: "gzip in, gzip out", compressBody: true, acceptEncoding: "gzip", wantEncoding: "gzip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(payload)
			if tt.compressBody {
				body = compress(t, payload)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/borrow", body)
			req.Header.Set("Content-Type", "application/json")
			if tt.compressBody {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			rec := httptest.NewRecorder()

			GzipMiddleware(http.HandlerFunc(echoJSON)).ServeHTTP(rec, req)

			res := rec.Result()
			defer res.Body.Close()

			assert.Equal(t, http.StatusOK, res.StatusCode)
			assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
			assert.Equal(t, tt.wantEncoding, res.Header.Get("Content-Encoding"))
			assert.Equal(t, `{"echo":`+payload+`}`, readResponse(t, res))
		})
	}
}

func TestGzipMiddleware_InvalidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/borrow", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()

	called := false
	GzipMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	})).ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid gzip body")
}
