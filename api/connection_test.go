package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastBackoff = []time.Duration{time.Millisecond, time.Millisecond}

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	host := strings.TrimPrefix(server.URL, "http://")
	return ClientFactory(host, "key", time.Second, WithScheme("http"), WithBackoff(fastBackoff)), &calls
}

func TestClientHost_RetriesTransientStatus(t *testing.T) {
	var n int32
	client, calls := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&n, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "ok")
	})

	resp, err := client.Connection.Request(context.Background(), &url.URL{Path: "/query"})
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestClientHost_DoesNotRetryPermanentStatus(t *testing.T) {
	client, calls := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "unknown ticker")
	})

	_, err := client.Connection.Request(context.Background(), &url.URL{Path: "/query"})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, se.Message, "unknown ticker")
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestClientHost_GivesUpAfterSchedule(t *testing.T) {
	client, calls := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Connection.Request(context.Background(), &url.URL{Path: "/query"})

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Temporary())
	assert.Equal(t, int32(len(fastBackoff)+1), atomic.LoadInt32(calls))
}

func TestRetry_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	_, err := Retry(ctx, []time.Duration{time.Hour}, func() (*http.Response, error) {
		attempts++
		cancel()
		return nil, errors.New("connection reset")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
