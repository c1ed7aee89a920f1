package testsupport

import (
	"context"
	"testing"

	"mediarelay/internal/config"
	"mediarelay/internal/registry"
)

// MustOpenRegistry opens a registry.Store for tests and registers cleanup.
func MustOpenRegistry(t testing.TB, cfg *config.Config) *registry.Store {
	t.Helper()

	store, err := registry.Open(cfg)
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// AddDestination registers a destination with usable webhook credentials.
func AddDestination(t testing.TB, store *registry.Store, channelID string) registry.Destination {
	t.Helper()

	dest, err := store.Add(context.Background(), registry.Destination{
		ChannelID:    channelID,
		ChannelName:  channelID,
		WebhookID:    "wh-" + channelID,
		WebhookToken: "token-" + channelID,
	})
	if err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return dest
}
