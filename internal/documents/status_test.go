package documents

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	posted, err := StatusDraft.Post()
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted)

	reversed, err := posted.Reverse()
	require.NoError(t, err)
	require.Equal(t, StatusReversed, reversed)

	_, err = posted.Post()
	require.ErrorIs(t, err, ErrNotPostable)

	_, err = StatusDraft.Reverse()
	require.ErrorIs(t, err, ErrNotReversible)

	_, err = reversed.Post()
	require.ErrorIs(t, err, ErrNotPostable)
	_, err = reversed.Reverse()
	require.ErrorIs(t, err, ErrNotReversible)

	require.True(t, StatusDraft.Mutable())
	require.False(t, posted.Mutable())
}
