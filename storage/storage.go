// Package storage describes the shared model cache: one network file system,
// one access point and the path every compute function mounts it at.
package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const (
	DefaultOwnerUID    = "1001"
	DefaultOwnerGID    = "1001"
	DefaultPermissions = "750"
	DefaultExportPath  = "/export/models"
	DefaultMountPath   = "/mnt/hf_models_cache"
	// DefaultCacheEnv is read by the model loader to find its cache directory.
	DefaultCacheEnv = "TRANSFORMERS_CACHE"
)

var permissionMask = regexp.MustCompile(`^[0-7]{3,4}$`)

// SharedCache is passed by value into every provisioning call so that all
// functions of a deployment agree on one mount.
type SharedCache struct {
	OwnerUID    string `json:"owner_uid"`
	OwnerGID    string `json:"owner_gid"`
	Permissions string `json:"permissions"`
	ExportPath  string `json:"export_path"`
	MountPath   string `json:"mount_path"`
	CacheEnv    string `json:"cache_env"`
	// Destroy removes the file system together with the stack.
	Destroy bool `json:"destroy"`
}

func Default() SharedCache {
	return SharedCache{
		OwnerUID:    DefaultOwnerUID,
		OwnerGID:    DefaultOwnerGID,
		Permissions: DefaultPermissions,
		ExportPath:  DefaultExportPath,
		MountPath:   DefaultMountPath,
		CacheEnv:    DefaultCacheEnv,
		Destroy:     true,
	}
}

func (c SharedCache) Validate() error {
	missing := make([]string, 0)
	for field, v := range map[string]string{
		"owner_uid":   c.OwnerUID,
		"owner_gid":   c.OwnerGID,
		"permissions": c.Permissions,
		"export_path": c.ExportPath,
		"mount_path":  c.MountPath,
		"cache_env":   c.CacheEnv,
	} {
		if v == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("shared cache is missing fields: %s", strings.Join(missing, ", "))
	}
	if c.OwnerUID == "0" || c.OwnerGID == "0" {
		return fmt.Errorf("shared cache must not be owned by root")
	}
	if !permissionMask.MatchString(c.Permissions) {
		return fmt.Errorf("invalid permission mask %q", c.Permissions)
	}
	if !path.IsAbs(c.ExportPath) {
		return fmt.Errorf("export path %q must be absolute", c.ExportPath)
	}
	// Lambda only accepts file system mounts below /mnt.
	if clean := path.Clean(c.MountPath); !strings.HasPrefix(clean, "/mnt/") {
		return fmt.Errorf("mount path %q must be below /mnt/", c.MountPath)
	}
	return nil
}

// Env is the environment that points the model loader at the mounted cache.
func (c SharedCache) Env() map[string]string {
	return map[string]string{c.CacheEnv: c.MountPath}
}
