// Package testhelpers provides common utilities and helper functions for
// testing the chat relay server.
//
// This package contains reusable test utilities that are shared across unit
// and integration tests: creating test servers, making HTTP requests,
// dialing WebSocket connections, and exchanging protocol envelopes.
package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Amila20040220/Real-Time-Chat-Room-Application/internal/protocol"
)

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket creates a WebSocket connection to the specified URL,
// presenting the given origin. It returns the connection or an error.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendEnvelope encodes and sends one protocol envelope over the connection.
func SendEnvelope(t *testing.T, conn *websocket.Conn, env protocol.Envelope) {
	t.Helper()
	payload, err := protocol.Encode(env)
	if err != nil {
		t.Fatalf("Failed to encode envelope: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("Failed to send envelope: %v", err)
	}
}

// ReceiveEnvelope reads and decodes the next envelope from the connection,
// failing the test if nothing arrives within the timeout.
func ReceiveEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration) protocol.Envelope {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read envelope: %v", err)
	}
	env, err := protocol.Decode(raw)
	if err != nil {
		t.Fatalf("Received undecodable envelope %s: %v", raw, err)
	}
	return env
}

// ReceiveType reads envelopes until one of the wanted type arrives, failing
// the test if it does not show up within the timeout.
func ReceiveType(t *testing.T, conn *websocket.Conn, want protocol.Type, timeout time.Duration) protocol.Envelope {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for %q envelope", want)
		}
		env := ReceiveEnvelope(t, conn, remaining)
		if env.Type == want {
			return env
		}
	}
}

// Login performs the login handshake and waits for the ack.
func Login(t *testing.T, conn *websocket.Conn, name string) {
	t.Helper()
	SendEnvelope(t, conn, protocol.Login(name))
	ack := ReceiveType(t, conn, protocol.TypePresence, 2*time.Second)
	if ack.Name != name || ack.Room != "" {
		t.Fatalf("Unexpected login ack: %+v", ack)
	}
}

// JoinRoom joins a room and returns the history envelope replayed to the joiner.
func JoinRoom(t *testing.T, conn *websocket.Conn, room string) protocol.Envelope {
	t.Helper()
	SendEnvelope(t, conn, protocol.Join(room))
	return ReceiveType(t, conn, protocol.TypeHistory, 2*time.Second)
}
