package dispatch

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStaticMount(t *testing.T) {
	mount, err := ParseStaticMount("a=b")
	require.NoError(t, err)
	assert.Equal(t, StaticMount{Prefix: "a", Dir: "b"}, mount)

	// Only the first '=' separates prefix from directory
	mount, err = ParseStaticMount("/static=/srv/www=files")
	require.NoError(t, err)
	assert.Equal(t, StaticMount{Prefix: "/static", Dir: "/srv/www=files"}, mount)

	_, err = ParseStaticMount("no-separator")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadStaticMount)
}

func TestFormatPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"", "/", false},
		{"/api", "/api", false},
		{"/api/v1", "/api/v1", false},
		{"/api/", "", true},
		{"api", "", true},
		{"/", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := FormatPath(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrBadPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExplicitRouteBeforeBridge(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterFunc("health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	bridged := false
	d, err := Build(Config{
		Routes:   []Route{{Method: "GET", Path: "/health", Handler: "health"}},
		Resolver: registry,
		Bridge: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bridged = true
			w.WriteHeader(http.StatusAccepted)
		}),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, bridged)

	rec = httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/other", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, bridged)
}

func TestMethodMismatchReachesBridge(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterFunc("health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	d, err := Build(Config{
		Routes:   []Route{{Method: "GET", Path: "/health", Handler: "health"}},
		Resolver: registry,
		Bridge: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}),
	})
	require.NoError(t, err)

	// A method no explicit route claims belongs to the fallback, even on
	// a path that has routes for other methods
	for _, method := range []string{"POST", "OPTIONS", "DELETE"} {
		t.Run(method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			d.ServeHTTP(rec, httptest.NewRequest(method, "/health", nil))
			assert.Equal(t, http.StatusAccepted, rec.Code)
		})
	}

	// The explicit route still wins for its own method
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBridgeScopedToScriptName(t *testing.T) {
	d, err := Build(Config{
		ScriptName: "/api",
		Resolver:   NewRegistry(),
		Bridge: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}),
	})
	require.NoError(t, err)

	tests := []struct {
		path     string
		expected int
	}{
		{"/api", http.StatusAccepted},
		{"/api/users", http.StatusAccepted},
		{"/apiv2", http.StatusNotFound},
		{"/elsewhere", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			d.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			assert.Equal(t, tt.expected, rec.Code)
		})
	}
}

func TestStaticMountServesFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello"), 0644))

	d, err := Build(Config{
		Static:   []StaticMount{{Prefix: "/static", Dir: dir}},
		Resolver: NewRegistry(),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/static/hello.txt", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
}

func TestStaticMountBadPrefix(t *testing.T) {
	_, err := Build(Config{
		Static:   []StaticMount{{Prefix: "static/", Dir: t.TempDir()}},
		Resolver: NewRegistry(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadPath)
}

func TestUnknownHandlerReference(t *testing.T) {
	_, err := Build(Config{
		Routes:   []Route{{Method: "GET", Path: "/x", Handler: "missing"}},
		Resolver: NewRegistry(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownHandler)
}

func TestRoutesWithoutResolver(t *testing.T) {
	_, err := Build(Config{
		Routes: []Route{{Method: "GET", Path: "/x", Handler: "a"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoResolver)
}

func TestConflictingRoutes(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterFunc("a", func(w http.ResponseWriter, r *http.Request) {})

	_, err := Build(Config{
		Routes: []Route{
			{Method: "GET", Path: "/x", Handler: "a"},
			{Method: "GET", Path: "/x", Handler: "a"},
		},
		Resolver: registry,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRouteConflict)
}

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry()
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	registry.Register("h", h)

	resolved, err := registry.Resolve("h")
	require.NoError(t, err)
	assert.NotNil(t, resolved)

	_, err = registry.Resolve("nope")
	assert.True(t, errors.Is(err, ErrUnknownHandler))
}

type recordingLog struct {
	method  string
	path    string
	status  int
	elapsed time.Duration
	calls   int
}

func (r *recordingLog) Access(method, path string, status int, elapsed time.Duration) {
	r.method, r.path, r.status, r.elapsed = method, path, status, elapsed
	r.calls++
}

func TestAccessLogRecordsStatus(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterFunc("teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	sink := &recordingLog{}
	d, err := Build(Config{
		Routes:    []Route{{Method: "GET", Path: "/tea", Handler: "teapot"}},
		Resolver:  registry,
		AccessLog: sink,
	})
	require.NoError(t, err)

	d.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/tea", nil))

	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, "GET", sink.method)
	assert.Equal(t, "/tea", sink.path)
	assert.Equal(t, http.StatusTeapot, sink.status)
}

func TestAccessLogPreservesFlush(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterFunc("stream", func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok, "writer behind the access log must stay flushable")
		w.WriteHeader(http.StatusOK)
		f.Flush()
	})

	d, err := Build(Config{
		Routes:    []Route{{Method: "GET", Path: "/stream", Handler: "stream"}},
		Resolver:  registry,
		AccessLog: &recordingLog{},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/stream", nil))
	assert.True(t, rec.Flushed, "flush must reach the underlying writer")
}
