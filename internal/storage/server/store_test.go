package server

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/storage"
)

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"missing host", Config{Port: 6334, VectorSize: 8}, true},
		{"invalid port", Config{Host: "localhost", Port: 0, VectorSize: 8}, true},
		{"missing vector size", Config{Host: "localhost", Port: 6334}, true},
		{"valid", Config{Host: "localhost", Port: 6334, VectorSize: 8}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{Host: "localhost", Port: 6334, VectorSize: 8}
	cfg.ApplyDefaults()
	assert.Equal(t, "memories", cfg.CollectionName)
	assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
}

func TestPointID_DeterministicPerUserAndMemory(t *testing.T) {
	userID := uuid.New()
	a := pointID(userID, 1)
	b := pointID(userID, 1)
	c := pointID(userID, 2)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, pointID(uuid.New(), 1))
}

func TestMemoryPayload_RoundTripsViaData(t *testing.T) {
	userID := uuid.New()
	m := &model.Memory{ID: 7, Title: "T", Content: "C", Importance: 5}
	payload, err := memoryPayload(userID, m)
	assert.NoError(t, err)
	assert.Equal(t, userID.String(), payload["user_id"].GetStringValue())
	assert.Equal(t, int64(7), payload["memory_id"].GetIntegerValue())
	assert.False(t, payload["is_obsolete"].GetBoolValue())
	assert.Contains(t, payload["data"].GetStringValue(), `"title":"T"`)
}

func TestUserStore_LinkedIDs_BothDirections(t *testing.T) {
	u := newUserStore()
	u.links[1] = map[int64]bool{2: true}
	assert.ElementsMatch(t, []int64{2}, u.linkedIDs(1))
	assert.ElementsMatch(t, []int64{1}, u.linkedIDs(2))
}

func TestIntersects(t *testing.T) {
	assert.True(t, intersects([]int64{1, 2}, []int64{2, 3}))
	assert.False(t, intersects([]int64{1}, []int64{2}))
	assert.False(t, intersects(nil, []int64{1}))
}

func TestCanonicalEdgeID_OrderIndependent(t *testing.T) {
	a := storage.NodeRef{Type: storage.NodeTypeMemory, ID: 1}
	b := storage.NodeRef{Type: storage.NodeTypeMemory, ID: 2}
	assert.Equal(t, canonicalEdgeID(a, b), canonicalEdgeID(b, a))
}

func TestAllowedType(t *testing.T) {
	assert.True(t, allowedType(nil, storage.NodeTypeMemory))
	assert.True(t, allowedType([]storage.NodeType{storage.NodeTypeMemory}, storage.NodeTypeMemory))
	assert.False(t, allowedType([]storage.NodeType{storage.NodeTypeProject}, storage.NodeTypeMemory))
}

var _ storage.Repository = (*Store)(nil)
