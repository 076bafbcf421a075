package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGetHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET, got %s", r.Method)
		}
		switch r.URL.Path {
		case "/ok.json":
			w.Write([]byte(`{"ok":true}`))
		case "/boom.json":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(Config{})
	defer client.Close()
	ctx := context.Background()

	data, err := client.Get(ctx, server.URL+"/ok.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))

	_, err = client.Get(ctx, server.URL+"/missing.json")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	_, err = client.Get(ctx, server.URL+"/boom.json")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestClientPutHTTP(t *testing.T) {
	var gotBody, gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("Expected PUT, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(Config{})
	defer client.Close()

	err := client.Put(context.Background(), server.URL+"/x.json", []byte(`{"a":1}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, gotBody)
	assert.Equal(t, "application/json", gotType)
}

func TestClientLocalFiles(t *testing.T) {
	dir := t.TempDir()
	client := NewClient(Config{})
	ctx := context.Background()

	_, err := client.Get(ctx, filepath.Join(dir, "absent.json"))
	assert.True(t, IsNotFound(err))

	target := filepath.Join(dir, "nested", "deeper", "doc.json")
	require.NoError(t, client.Put(ctx, target, []byte(`[]`), "application/json"))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	data, err = client.Get(ctx, "file://"+target)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
