package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shardEvent struct {
	Paths []string  `json:"paths"`
	At    time.Time `json:"at"`
}

func TestEncodeDecode(t *testing.T) {
	at := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	msg, err := Encode("shard_1.spdx", shardEvent{Paths: []string{"a.spdx", "b.spdx"}, At: at})
	require.NoError(t, err)
	assert.Equal(t, "shard_1.spdx", string(msg.Key))
	assert.Equal(t, []kafka.Header{{Key: "content-type", Value: []byte("application/json")}}, msg.Headers)

	got, err := DecodeJSON[shardEvent](msg.Value)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.spdx", "b.spdx"}, got.Paths)
	assert.True(t, at.Equal(got.At))
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := Encode("k", func() {})
	assert.Error(t, err)
}

func TestDecodeJSONError(t *testing.T) {
	_, err := DecodeJSON[shardEvent]([]byte("{"))
	assert.ErrorContains(t, err, "decoding kafka message")
}

func TestConsumerOptions(t *testing.T) {
	rc := kafka.ReaderConfig{GroupID: "multiindex-searcher", StartOffset: kafka.LastOffset}
	WithGroupID("multiindex-searcher-host1")(&rc)
	FromFirstOffset()(&rc)
	assert.Equal(t, "multiindex-searcher-host1", rc.GroupID)
	assert.Equal(t, kafka.FirstOffset, rc.StartOffset)
}
