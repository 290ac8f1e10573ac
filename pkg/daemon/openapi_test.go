package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbeddedOpenAPISpecValidates(t *testing.T) {
	assert.NoError(t, validateOpenAPISpec())
}
