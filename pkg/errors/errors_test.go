package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"out of range helper", OutOfRange("document id", 7, 3), http.StatusBadRequest},
		{"unknown key helper", UnknownKey("title"), http.StatusNotFound},
		{"incompatible helper", Incompatible("shard %d lacks fields", 2), http.StatusUnprocessableEntity},
		{"wrapped shard unavailable", ShardUnavailable("seg_1.spdx", errors.New("bad magic")), http.StatusServiceUnavailable},
		{"wrapped document not found", fmt.Errorf("lookup: %w", ErrDocumentNotFound), http.StatusNotFound},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestHelpersMatchSentinels(t *testing.T) {
	assert.ErrorIs(t, OutOfRange("term id", -1, 4), ErrOutOfRange)
	assert.ErrorIs(t, UnknownKey("docno"), ErrUnknownKey)
	assert.ErrorIs(t, Incompatible("x"), ErrIncompatibleShardCapabilities)

	cause := errors.New("checksum mismatch")
	err := ShardUnavailable("seg_2.spdx", cause)
	assert.ErrorIs(t, err, ErrShardUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "seg_2.spdx")
}

func TestAppErrorMessage(t *testing.T) {
	err := OutOfRange("document id", 5, 3)
	assert.Equal(t, "id out of range: document id 5 outside [0, 3)", err.Error())
}
