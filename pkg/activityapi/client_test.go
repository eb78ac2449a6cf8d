package activityapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*activityapi.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := activityapi.New(activityapi.Config{BaseURL: server.URL + "/api", Timeout: 2 * time.Second}, zerolog.Nop())
	require.NoError(t, err)
	return client, server
}

func TestClientDoSendsJSONBody(t *testing.T) {
	var gotContentType string
	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
	})

	var out map[string]any
	err := client.Do(context.Background(), activityapi.Request{Method: http.MethodPost, Path: "/activities", Body: map[string]string{"title": "Beach cleanup"}}, &out)
	require.NoError(t, err)
	require.Equal(t, "application/json", gotContentType)
	require.Equal(t, "Beach cleanup", gotBody["title"])
	require.Equal(t, true, out["success"])
}

func TestClientDoForwardsCorrelationID(t *testing.T) {
	var got string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(activityapi.CorrelationHeader)
		_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
	})

	ctx := activityapi.WithCorrelationID(context.Background(), "req-42")
	require.NoError(t, client.Do(ctx, activityapi.Request{Method: http.MethodGet, Path: "/activities/stats"}, nil))
	require.Equal(t, "req-42", got)
}

func TestClientDoMultipartKeepsBoundaryContentType(t *testing.T) {
	var gotContentType string
	var gotFilename string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		files := r.MultipartForm.File["files"]
		require.Len(t, files, 1)
		gotFilename = files[0].Filename
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	body, err := activityapi.NewFileMultipart("files", "photo.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)

	err = client.Do(context.Background(), activityapi.Request{Method: http.MethodPost, Path: "/activities/upload", Body: body}, nil)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(gotContentType, "multipart/form-data; boundary="))
	require.Equal(t, "photo.png", gotFilename)
}

func TestClientDoHTTPErrorUsesServerMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"message":"title is required"}`))
	})

	err := client.Do(context.Background(), activityapi.Request{Path: "/activities"}, nil)
	var httpErr *activityapi.HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusBadRequest, httpErr.Status)
	require.Equal(t, "title is required", httpErr.Message)
}

func TestClientDoHTTPErrorGenericMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})

	err := client.Do(context.Background(), activityapi.Request{Path: "/activities"}, nil)
	var httpErr *activityapi.HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, "HTTP error, status 502", httpErr.Message)
	require.Equal(t, http.StatusBadGateway, activityapi.StatusCode(err))
}

func TestClientDoNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client, err := activityapi.New(activityapi.Config{BaseURL: baseURL}, zerolog.Nop())
	require.NoError(t, err)

	err = client.Do(context.Background(), activityapi.Request{Path: "/activities"}, nil)
	var netErr *activityapi.NetworkError
	require.True(t, errors.As(err, &netErr), "got %T: %v", err, err)
}

func TestClientDoTimeout(t *testing.T) {
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	err := client.Do(context.Background(), activityapi.Request{Path: "/activities", Timeout: 50 * time.Millisecond}, nil)
	var timeoutErr *activityapi.TimeoutError
	require.True(t, errors.As(err, &timeoutErr), "got %T: %v", err, err)
}

func TestClientDoParseError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":tru`))
	})

	var out map[string]any
	err := client.Do(context.Background(), activityapi.Request{Path: "/activities"}, &out)
	var parseErr *activityapi.ParseError
	require.True(t, errors.As(err, &parseErr))
}

func TestClientNeverRetries(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := client.Do(context.Background(), activityapi.Request{Path: "/activities"}, nil)
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewFileMultipartLength(t *testing.T) {
	body, err := activityapi.NewFileMultipart("files", "clip.mp4", "", []byte("0123456789"))
	require.NoError(t, err)

	data, err := io.ReadAll(body.Body)
	require.NoError(t, err)
	require.Equal(t, body.Length, int64(len(data)))
	require.Contains(t, string(data), "application/octet-stream")
}
