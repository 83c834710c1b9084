package service

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Name identifies one deployable handler. It keys the compute function, the
// API resource path and the handler registry entry.
type Name string

var validName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

func (n Name) Value() string {
	return string(n)
}

func (n Name) Valid() error {
	if !validName.MatchString(string(n)) {
		return fmt.Errorf("invalid service name %q: must start with a letter and contain only letters, digits, '_' or '-'", string(n))
	}
	return nil
}

// FromPath derives the service name from a handler file: the base filename
// with its extension stripped.
func FromPath(path string) Name {
	base := filepath.Base(path)
	return Name(strings.TrimSuffix(base, filepath.Ext(base)))
}
