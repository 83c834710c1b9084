package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScope(t *testing.T) {
	root := NewStageScope("")
	assert.Equal(t, "", root.ID())
	assert.Equal(t, "sentiment Service", root.PrefixedName("sentiment Service"))

	prod := NewStageScope("prod")
	assert.Equal(t, "prod", prod.ID())
	assert.Equal(t, "prod-sentiment Service", prod.PrefixedName("sentiment Service"))
}

func TestConstructIDs(t *testing.T) {
	assert.Equal(t, "sentiment", FunctionID("sentiment"))
	assert.Equal(t, "sentiment-api", APIID("sentiment"))
	assert.Equal(t, "sentiment-url", OutputID("sentiment"))
	assert.Equal(t, "sentiment-function", FunctionOutputID("sentiment"))
}
