package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpIdCompare(t *testing.T) {
	tests := []struct {
		name string
		a    OpId
		b    OpId
		want int
	}{
		{"lower counter wins", NewOpId("peer-a", 1), NewOpId("peer-a", 2), -1},
		{"higher counter wins", NewOpId("peer-a", 5), NewOpId("peer-a", 2), 1},
		{"equal", NewOpId("peer-a", 3), NewOpId("peer-a", 3), 0},
		{"tie broken by peer_id", NewOpId("peer-a", 3), NewOpId("peer-b", 3), -1},
		{"tie broken by peer_id reversed", NewOpId("peer-b", 3), NewOpId("peer-a", 3), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
		})
	}
}

func TestPropertyValueJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    PropertyValue
	}{
		{"string", StringValue("hello")},
		{"boolean", BooleanValue(true)},
		{"number", NumberValue(3.14)},
		{"integer", IntegerValue(42)},
		{"null", NullValue()},
		{"array", ArrayValue([]PropertyValue{StringValue("a"), IntegerValue(1)})},
		{"object", ObjectValue(map[string]PropertyValue{"k": StringValue("v")})},
		{"opaque", OpaqueValue([]byte{0x01, 0x02, 0x03})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.v)
			require.NoError(t, err)

			var decoded PropertyValue
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, tt.v, decoded)
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	err := NewVertexNotFound("vertex-123")
	assert.True(t, IsVertexNotFound(err))

	wrapped := NewStorageError(err)
	assert.False(t, IsVertexNotFound(wrapped))
}
