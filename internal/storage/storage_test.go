package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_SaveGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(Config{BasePath: t.TempDir(), BaseURL: "https://cdn.example.com"})
	require.NoError(t, err)

	ok, err := s.Exists(ctx, "receipts/O1/ref.html")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "receipts/O1/ref.html")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, "receipts/O1/ref.html", strings.NewReader("<p>v1</p>"), "text/html"))
	require.NoError(t, s.Save(ctx, "receipts/O1/ref.html", strings.NewReader("<p>v2</p>"), "text/html"))

	body, err := s.Get(ctx, "receipts/O1/ref.html")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "<p>v2</p>", string(data))

	url, err := s.GetURL(ctx, "receipts/O1/ref.html")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/receipts/O1/ref.html", url)
}

func TestLocalStorage_KeyCannotEscapeRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStorage(Config{BasePath: root})
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "../../outside.html", strings.NewReader("x"), "text/html"))

	ok, err := s.Exists(ctx, "outside.html")
	require.NoError(t, err)
	assert.True(t, ok, "ключ приводится к пути внутри корня")

	assert.Error(t, s.Save(ctx, "/", strings.NewReader("x"), "text/html"))
}

func TestNewStorage(t *testing.T) {
	s, err := NewStorage(Config{})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = NewStorage(Config{Type: "ftp"})
	assert.Error(t, err)

	_, err = NewStorage(Config{Type: "cloudflare_r2"})
	assert.Error(t, err, "без endpoint")
}

// fakeS3 - минимальный S3 для PUT/GET/HEAD в path-style
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = data
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			}
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(data)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestCloudflareR2Storage(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	s, err := NewCloudflareR2Storage(Config{
		Endpoint:  srv.URL,
		Bucket:    "receipts",
		AccessKey: "key",
		SecretKey: "secret",
	})
	require.NoError(t, err)

	ok, err := s.Exists(ctx, "receipts/O1/ref.html")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "receipts/O1/ref.html")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, "receipts/O1/ref.html", strings.NewReader("<p>paid</p>"), "text/html"))
	assert.Contains(t, fake.objects, "/receipts/receipts/O1/ref.html")

	ok, err = s.Exists(ctx, "receipts/O1/ref.html")
	require.NoError(t, err)
	assert.True(t, ok)

	body, err := s.Get(ctx, "receipts/O1/ref.html")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "<p>paid</p>", string(data))

	url, err := s.GetURL(ctx, "receipts/O1/ref.html")
	require.NoError(t, err)
	assert.Equal(t, "https://receipts.r2.dev/receipts/O1/ref.html", url)
}
