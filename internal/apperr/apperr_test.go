package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/klubb/internal/apperr"
)

var errPaid = apperr.Conflict("already paid")

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{name: "Plain", err: errors.New("boom"), want: apperr.KindInternal},
		{name: "Direct", err: apperr.Validation("bad"), want: apperr.KindValidation},
		{name: "Wrapped", err: fmt.Errorf("mark paid %s: %w", "x", errPaid), want: apperr.KindConflict},
		{name: "NotFound", err: apperr.NotFound("gone"), want: apperr.KindNotFound},
		{name: "Nil", err: nil, want: apperr.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.KindOf(tt.err))
		})
	}
}

func TestMessage(t *testing.T) {
	wrapped := fmt.Errorf("deleting request: %w", errPaid)

	assert.Equal(t, "already paid", apperr.Message(wrapped, "internal error"))
	assert.Equal(t, "internal error", apperr.Message(errors.New("pq: broken"), "internal error"))
	assert.True(t, errors.Is(wrapped, errPaid))
}
