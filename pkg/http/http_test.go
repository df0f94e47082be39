package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type denyAfter struct{ left int }

func (d *denyAfter) Allow(string) bool {
	d.left--
	return d.left >= 0
}

type routes struct{}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.GET("/ok", func(c echo.Context) error { return SuccessResponse(c, "pong") })
	e.GET("/boom", func(c echo.Context) error { panic("boom") })
	e.GET("/missing", func(c echo.Context) error { return AppErrorResponse(c, NotFoundError("no such thing")) })
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
}

func newTestServer(opts ...ServerOption) *Server {
	reg := prometheus.NewRegistry()
	opts = append([]ServerOption{WithMetrics(true, reg, reg)}, opts...)
	return NewServer([]Handler{routes{}}, opts...)
}

func serve(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServerEnvelope(t *testing.T) {
	s := newTestServer()

	rec := serve(s, "/ok")
	require.Equal(t, http.StatusOK, rec.Code)
	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 200, body.Status)
	assert.Equal(t, "pong", body.Data)

	rec = serve(s, "/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")
}

func TestServerRecoversPanics(t *testing.T) {
	s := newTestServer()
	rec := serve(s, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServerRateLimitSkipsHealth(t *testing.T) {
	s := newTestServer(WithRateLimit(&denyAfter{left: 1}))

	assert.Equal(t, http.StatusOK, serve(s, "/ok").Code)
	rec := serve(s, "/ok")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, serve(s, "/healthz").Code)
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"n":3}`))
	}))
	defer srv.Close()

	c := NewClient()
	var out struct{ N int }
	require.NoError(t, c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, &out))
	assert.Equal(t, 3, out.N)

	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodGet,
		URL:         srv.URL,
		QueryParams: map[string][]string{"fail": {"1"}},
	}, &out)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusTooManyRequests))
	assert.False(t, IsStatus(err, http.StatusNotFound))
}
