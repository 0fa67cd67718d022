package backup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCancelLinkForwardsWhenNotRequested(t *testing.T) {
	sink := &recordingLink{}
	flag := NewCancelFlag()
	link := NewCancelLink(sink, flag)

	n, err := link.Write([]byte("data"))
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestCancelLinkFailsAfterRequest(t *testing.T) {
	sink := &recordingLink{}
	flag := NewCancelFlag()
	link := NewCancelLink(sink, flag)

	flag.Request()
	_, err := link.Write([]byte("data"))
	require.ErrorIs(t, err, ErrCancelled)
}

func TestCancelLinkNilFlagNeverCancels(t *testing.T) {
	sink := &recordingLink{}
	link := NewCancelLink(sink, nil)
	_, err := link.Write([]byte("data"))
	require.NoError(t, err)
}
