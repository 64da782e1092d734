package sigma

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := NewUpstreamError(502, `{"message":"bad gateway"}`)
	assert.Equal(t, "upstream: upstream API returned 502 (status 502)", err.Error())

	auth := NewError(KindAuth, "token exchange returned %d", 401)
	assert.Equal(t, "auth: token exchange returned 401", auth.Error())
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, KindAuth, "ignored"))
}

func TestKindHelpers(t *testing.T) {
	err := NewError(KindInvalidArgument, "missing workbook_id")
	assert.True(t, IsKind(err, KindInvalidArgument))
	assert.False(t, IsKind(err, KindAuth))
	assert.Equal(t, KindInvalidArgument, KindOf(err))

	// Wrapped through fmt still resolves via errors.As.
	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsKind(wrapped, KindInvalidArgument))

	assert.Equal(t, KindUpstream, KindOf(errors.New("plain")))
}
