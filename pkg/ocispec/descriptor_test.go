package ocispec

import (
	"testing"

	"github.com/nexusshell/corectl/pkg/corerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDescriptorComputesDigestAndSize(t *testing.T) {
	content := []byte("layer contents")
	d := NewDescriptor(MediaTypeLayer, content)
	assert.Equal(t, int64(len(content)), d.Size)
	assert.NoError(t, Verify(d, content))
}

func TestVerifyRejectsTamperedContent(t *testing.T) {
	content := []byte("original")
	d := NewDescriptor(MediaTypeConfig, content)

	err := Verify(d, []byte("tampered!"))
	require.Error(t, err)
	assert.True(t, corerr.HasReason(err, corerr.ReasonInvalidDigest))
}

func TestVerifyRejectsSizeMismatch(t *testing.T) {
	content := []byte("original")
	d := NewDescriptor(MediaTypeConfig, content)
	d.Size = 999

	err := Verify(d, content)
	require.Error(t, err)
	assert.True(t, corerr.HasReason(err, corerr.ReasonInvalidDigest))
}
