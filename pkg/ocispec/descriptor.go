// Package ocispec implements the on-disk OCI image model and the OCI
// runtime bundle writer: content-addressed descriptors, image
// manifest/config, and the config.json generated for every container
// StorageDriver prepares a rootfs for (§3 Image, §4.6, §6 OCI runtime
// bundle).
package ocispec

import (
	"bytes"

	"github.com/nexusshell/corectl/pkg/corerr"
	digest "github.com/opencontainers/go-digest"
	imagespec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Descriptor is a content-addressed reference to a blob: media type,
// digest and size, self-verifying per §3's Image definition.
type Descriptor = imagespec.Descriptor

// NewDescriptor computes a Descriptor for content under mediaType.
func NewDescriptor(mediaType string, content []byte) Descriptor {
	return Descriptor{
		MediaType: mediaType,
		Digest:    digest.FromBytes(content),
		Size:      int64(len(content)),
	}
}

// Verify checks that content exactly matches d's recorded digest and
// size, returning an InvalidDigest error on mismatch (§8 property: for
// every stored descriptor, sha256(content) == digest and len(content) ==
// size).
func Verify(d Descriptor, content []byte) error {
	if int64(len(content)) != d.Size {
		return corerr.New(corerr.Data, corerr.ReasonInvalidDigest, d.Digest.String(),
			"content size does not match descriptor")
	}
	got := digest.FromBytes(content)
	if got != d.Digest {
		return corerr.New(corerr.Data, corerr.ReasonInvalidDigest, d.Digest.String(),
			"content digest does not match descriptor")
	}
	return nil
}

// VerifyReader is Verify for content already read into memory via a
// bytes.Buffer, avoiding a second full read for callers that already
// buffered the blob while writing it.
func VerifyReader(d Descriptor, buf *bytes.Buffer) error {
	return Verify(d, buf.Bytes())
}
