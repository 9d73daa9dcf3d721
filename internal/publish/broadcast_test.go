package publish

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() Request {
	return Request{
		Event:        "order.created",
		Channels:     []string{"orders", "audit"},
		Payload:      `{"id":42}`,
		ConnectionID: "conn-1",
	}
}

func TestBroadcast_Success(t *testing.T) {
	var gotAuth, gotContentType string
	var gotForm map[string][]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(server.URL, "secret-token")
	res := c.Broadcast(context.Background(), testRequest())

	assert.True(t, res.IsSuccessful)
	assert.Empty(t, res.Message)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	assert.Equal(t, []string{"order.created"}, gotForm["event"])
	assert.Equal(t, []string{"orders", "audit"}, gotForm["channels"])
	assert.Equal(t, []string{`{"id":42}`}, gotForm["payload"])
	assert.Equal(t, []string{"conn-1"}, gotForm["connection_id"])
}

func TestBroadcast_ServerFailures(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusInternalServerError} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(`{"message":"nope"}`))
		}))

		c := NewClient(server.URL, "t")
		res := c.Broadcast(context.Background(), testRequest())

		assert.False(t, res.IsSuccessful, "status %d", status)
		assert.Equal(t, "nope", res.Message, "status %d", status)
		assert.Nil(t, res.Errors, "status %d", status)

		server.Close()
	}
}

func TestBroadcast_ValidationFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"bad","errors":{"channels":["required"]}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "t")
	res := c.Broadcast(context.Background(), testRequest())

	assert.False(t, res.IsSuccessful)
	assert.Equal(t, "bad", res.Message)
	require.Contains(t, res.Errors, "channels")
	assert.Equal(t, []string{"required"}, res.Errors["channels"])
}

func TestBroadcast_UnknownStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	c := NewClient(server.URL, "t")
	res := c.Broadcast(context.Background(), testRequest())

	assert.False(t, res.IsSuccessful)
	assert.Contains(t, res.Message, "418")
}

func TestBroadcast_TransportErrorIsResult(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "t", WithTimeout(200*time.Millisecond))
	res := c.Broadcast(context.Background(), testRequest())

	assert.False(t, res.IsSuccessful)
	assert.NotEmpty(t, res.Message)
}

func TestBroadcast_MalformedErrorBodyFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	c := NewClient(server.URL, "t")
	res := c.Broadcast(context.Background(), testRequest())

	assert.False(t, res.IsSuccessful)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), res.Message)
}
