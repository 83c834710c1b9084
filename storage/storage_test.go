package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.NoError(t, c.Validate())
	assert.Equal(t, "1001", c.OwnerUID)
	assert.Equal(t, "1001", c.OwnerGID)
	assert.Equal(t, "750", c.Permissions)
	assert.Equal(t, "/export/models", c.ExportPath)
	assert.True(t, c.Destroy)
	assert.Equal(t, map[string]string{"TRANSFORMERS_CACHE": "/mnt/hf_models_cache"}, c.Env())
}

func TestValidate(t *testing.T) {
	scenarios := []struct {
		name   string
		mutate func(*SharedCache)
	}{
		{"missing uid", func(c *SharedCache) { c.OwnerUID = "" }},
		{"root owner", func(c *SharedCache) { c.OwnerGID = "0" }},
		{"bad mask", func(c *SharedCache) { c.Permissions = "rwx" }},
		{"mask out of range", func(c *SharedCache) { c.Permissions = "789" }},
		{"relative export", func(c *SharedCache) { c.ExportPath = "export/models" }},
		{"mount outside mnt", func(c *SharedCache) { c.MountPath = "/tmp/cache" }},
		{"mount is mnt", func(c *SharedCache) { c.MountPath = "/mnt" }},
		{"no env", func(c *SharedCache) { c.CacheEnv = "" }},
	}
	for _, scenario := range scenarios {
		t.Run(scenario.name, func(t *testing.T) {
			c := Default()
			scenario.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
