package ocispec

import (
	"time"

	digest "github.com/opencontainers/go-digest"
	imagespec "github.com/opencontainers/image-spec/specs-go/v1"
)

const (
	MediaTypeManifest   = imagespec.MediaTypeImageManifest
	MediaTypeConfig     = imagespec.MediaTypeImageConfig
	MediaTypeLayer      = imagespec.MediaTypeImageLayerGzip
	MediaTypeLayerPlain = imagespec.MediaTypeImageLayer
)

// Layer is one materialised image layer: its descriptor plus the
// directory on disk holding its unpacked contents.
type Layer struct {
	Descriptor Descriptor
	Path       string // directory tree this layer extracts to
}

// Image is the in-memory model of one OCI image: a manifest, a config
// blob and an ordered list of layer descriptors, per §3's Image
// definition. Reference is the name:tag or name@digest it was
// pulled/tagged as.
type Image struct {
	Reference string
	Manifest  imagespec.Manifest
	Config    imagespec.Image
	Layers    []Layer
}

// NewImage builds an Image from a config and ordered layer list,
// computing the manifest's config and layer descriptors and DiffIDs.
func NewImage(reference string, config imagespec.Image, layers []Layer) (Image, error) {
	configBytes, err := marshalConfig(config)
	if err != nil {
		return Image{}, err
	}
	configDesc := NewDescriptor(MediaTypeConfig, configBytes)

	layerDescs := make([]Descriptor, len(layers))
	for i, l := range layers {
		layerDescs[i] = l.Descriptor
	}

	manifest := imagespec.Manifest{
		SchemaVersion: 2,
		MediaType:     MediaTypeManifest,
		Config:        configDesc,
		Layers:        layerDescs,
	}

	return Image{
		Reference: reference,
		Manifest:  manifest,
		Config:    config,
		Layers:    layers,
	}, nil
}

// AddHistory appends one build-step record to the image config's history,
// matching the `created_by`/`comment`/`empty_layer` fields the OCI image
// config schema carries per build step.
func (img *Image) AddHistory(createdBy, comment string, emptyLayer bool) {
	now := time.Now()
	img.Config.History = append(img.Config.History, imagespec.History{
		Created:    &now,
		CreatedBy:  createdBy,
		Comment:    comment,
		EmptyLayer: emptyLayer,
	})
}

// ConfigDigest returns the digest of the image's config blob as recorded
// in the manifest.
func (img *Image) ConfigDigest() digest.Digest {
	return img.Manifest.Config.Digest
}
