// Package unit contains unit tests for individual components of the chat
// relay server.
//
// These tests focus on testing specific functions and methods in isolation,
// avoiding dependencies on external systems. Unit tests ensure that each
// component behaves correctly under various conditions.
package unit

import (
	"log/slog"
	"testing"
	"time"

	"github.com/Amila20040220/Real-Time-Chat-Room-Application/internal/history"
	"github.com/Amila20040220/Real-Time-Chat-Room-Application/internal/server"
)

func newHub(t *testing.T) *server.Hub {
	t.Helper()
	store, err := history.NewStore(t.TempDir(), slog.Default())
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	return server.NewHub(store)
}

// TestNewHub tests the hub creation function.
// It verifies that NewHub returns a properly initialized Hub
// with all necessary channels and data structures.
func TestNewHub(t *testing.T) {
	hub := newHub(t)

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}

	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()

	// A nil registration must be skipped, not crash the run loop.
	select {
	case hub.GetRegisterChan() <- nil:
	case <-time.After(100 * time.Millisecond):
		t.Error("Failed to send nil registration to hub")
	}
}

// TestHubChannels tests that all hub channels are properly initialized.
// It verifies that the register and unregister channels are not nil and
// accessible through their getter methods.
func TestHubChannels(t *testing.T) {
	hub := newHub(t)

	if hub.GetRegisterChan() == nil {
		t.Error("Register channel is nil")
	}
	if hub.GetUnregisterChan() == nil {
		t.Error("Unregister channel is nil")
	}
}

// TestHubShutdown tests that a running hub shuts down cleanly.
// It verifies that Shutdown returns without hitting its timeout when no
// sessions are connected.
func TestHubShutdown(t *testing.T) {
	hub := newHub(t)

	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	if err := hub.Shutdown(time.Second); err != nil {
		t.Errorf("Shutdown() returned error: %v", err)
	}
}

// TestRoomMembersOfUnknownRoom tests the member snapshot accessor.
// It verifies that a room nobody has joined reports no members.
func TestRoomMembersOfUnknownRoom(t *testing.T) {
	hub := newHub(t)

	if members := hub.RoomMembers("nowhere"); members != nil {
		t.Errorf("Expected no members for unknown room, got %v", members)
	}
}

// TestNewClient tests the client creation function.
// It verifies that NewClient returns a properly initialized Client
// with all necessary fields and channels set up correctly.
func TestNewClient(t *testing.T) {
	hub := newHub(t)

	client := server.NewClient(nil, hub, "127.0.0.1:12345")

	if client == nil {
		t.Fatal("NewClient() returned nil")
	}

	if client.GetSendChan() == nil {
		t.Error("Client send channel is nil")
	}
	if client.Name() != "" {
		t.Errorf("Fresh client should have no display name, got %q", client.Name())
	}
}
