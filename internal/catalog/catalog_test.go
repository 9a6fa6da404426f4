package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		wantErr bool
	}{
		{"empty", nil, false},
		{"ordered with gaps", []Entry{{Position: 0, Path: "a"}, {Position: 3, Path: "b"}}, false},
		{"negative position", []Entry{{Position: -1, Path: "a"}}, true},
		{"out of order", []Entry{{Position: 2, Path: "a"}, {Position: 1, Path: "b"}}, true},
		{"duplicate position", []Entry{{Position: 1, Path: "a"}, {Position: 1, Path: "b"}}, true},
		{"duplicate path", []Entry{{Position: 0, Path: "a"}, {Position: 1, Path: "a"}}, true},
		{"empty path", []Entry{{Position: 0, Path: " "}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.entries)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPaths(t *testing.T) {
	entries := []Entry{{Position: 0, Path: "c.spdx"}, {Position: 1, Path: "a.spdx"}}
	assert.Equal(t, []string{"c.spdx", "a.spdx"}, Paths(entries))
	assert.Empty(t, Paths(nil))
}

func TestTransient(t *testing.T) {
	assert.True(t, Transient(errors.New("connection reset by peer")))
	assert.True(t, Transient(&pq.Error{Code: "08006"}))
	assert.False(t, Transient(fmt.Errorf("query: %w", &pq.Error{Code: "42P01"})))
	assert.False(t, Transient(context.Canceled))
}
