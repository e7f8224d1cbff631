package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindMatchesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer context: %w", NewError(KindTimeout, "gave up"))

	assert.True(t, IsKind(err, KindTimeout))
	assert.False(t, IsKind(err, KindExternal))
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.True(t, errors.Is(err, &Error{Kind: KindTimeout}))
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, IsKind(errors.New("plain"), KindExternal))
}

func TestErrorString(t *testing.T) {
	require.Equal(t, "TimeoutError: gave up", NewError(KindTimeout, "gave up").Error())
	require.Equal(t, "TimeoutError", (&Error{Kind: KindTimeout}).Error())

	httpErr := NewHTTPError(KindNotAccepted, 422, "no funds")
	assert.Equal(t, 422, httpErr.Status)
}
