package embeddings

import (
	"testing"
)

// TestAdapterInterface verifies that Service and FastEmbedProvider satisfy
// Adapter. Fails to compile if either falls out of sync with the interface.
func TestAdapterInterface(t *testing.T) {
	var _ Adapter = (*Service)(nil)
	var _ Adapter = (*FastEmbedProvider)(nil)
}
