package publish

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ignews/internal/pkg/env"
)

func TestLoadConfig(t *testing.T) {
	env.Env = map[string]string{"S3_PUBLISH_ENABLED": "true", "S3_ACCESS_KEY_ID": "key"}
	t.Cleanup(func() { env.Env = nil })

	_, err := LoadConfig()
	assert.Error(t, err, "secret and bucket are required when enabled")

	env.Env["S3_SECRET_ACCESS_KEY"] = "secret"
	env.Env["S3_BUCKET_NAME"] = "pages"
	env.Env["S3_PREFIX"] = "/ignews/"
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, "ignews/posts/preview/a.json", cfg.ObjectKey("/posts/preview/a.json"))

	env.Env = map[string]string{}
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.IsEnabled())
	assert.Equal(t, "posts/x.json", cfg.ObjectKey("posts/x.json"))
}

func TestNewClientDisabled(t *testing.T) {
	_, err := NewClient(context.Background(), &Config{})
	assert.Error(t, err)
}

func TestPublishUploadsObject(t *testing.T) {
	var mu sync.Mutex
	uploads := map[string]string{}
	var contentType, cacheControl string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			uploads[r.URL.Path] = string(body)
			contentType = r.Header.Get("Content-Type")
			cacheControl = r.Header.Get("Cache-Control")
			mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), &Config{
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Region:          "us-east-1",
		BucketName:      "pages",
		EndpointURL:     srv.URL,
		Enabled:         true,
	})
	require.NoError(t, err)

	require.NoError(t, c.Publish(context.Background(), "posts/preview-hello.json", []byte(`{"slug":"hello"}`)))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, uploads["/pages/posts/preview-hello.json"], `{"slug":"hello"}`)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "public, max-age=1800", cacheControl)
}
