package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "snapshots/page.html", "text/html", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://snapshots/page.html" {
		t.Fatalf("unexpected uri %s", uri)
	}
	stored := string(store.data["snapshots/page.html"])
	if stored != "content" {
		t.Fatalf("expected stored content, got %q", stored)
	}
}
