// Package discovery enumerates the handler modules under a directory. Each
// discovered file yields one service name; nothing is provisioned here.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hfserverless/lib/service"

	"github.com/samber/lo"
)

// Convention decides which files under the handler directory are handler modules.
type Convention struct {
	Ext            string
	ExcludeSuffix  []string
	ExcludeNames   []string
	SkipDirs       []string
	SkipHiddenDirs bool
}

// DefaultConvention treats every Go source file as a handler module, except
// tests, package docs and the container entry point.
var DefaultConvention = Convention{
	Ext:            ".go",
	ExcludeSuffix:  []string{"_test.go"},
	ExcludeNames:   []string{"main.go", "doc.go"},
	SkipDirs:       []string{"testdata"},
	SkipHiddenDirs: true,
}

func (c Convention) matches(name string) bool {
	if filepath.Ext(name) != c.Ext {
		return false
	}
	if lo.Contains(c.ExcludeNames, name) {
		return false
	}
	for _, suffix := range c.ExcludeSuffix {
		if strings.HasSuffix(name, suffix) {
			return false
		}
	}
	return true
}

func (c Convention) skipDir(name string) bool {
	if c.SkipHiddenDirs && strings.HasPrefix(name, ".") && name != "." {
		return true
	}
	return lo.Contains(c.SkipDirs, name)
}

type Handler struct {
	Name service.Name `json:"name"`
	// Path is the file as found on disk, RelPath is relative to the scanned directory.
	Path    string `json:"path"`
	RelPath string `json:"rel_path"`
}

// DuplicateError is returned when two handler files map to the same service name.
type DuplicateError struct {
	Name  service.Name
	Paths []string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate service name %q: defined by %s", e.Name, strings.Join(e.Paths, " and "))
}

// Scan walks dir recursively and returns one Handler per matching file, sorted
// by service name. A missing or empty directory is not an error.
func Scan(dir string, conv Convention) ([]Handler, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Handler{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat handler dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("handler dir %s is not a directory", dir)
	}

	seen := make(map[service.Name]string)
	handlers := make([]Handler, 0)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && conv.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !conv.matches(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := service.FromPath(path)
		if err := name.Valid(); err != nil {
			return fmt.Errorf("handler %s: %w", rel, err)
		}
		if prev, ok := seen[name]; ok {
			return &DuplicateError{Name: name, Paths: []string{prev, rel}}
		}
		seen[name] = rel
		handlers = append(handlers, Handler{Name: name, Path: path, RelPath: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(handlers, func(i, j int) bool {
		return handlers[i].Name < handlers[j].Name
	})
	return handlers, nil
}

func Names(handlers []Handler) []service.Name {
	return lo.Map(handlers, func(h Handler, _ int) service.Name {
		return h.Name
	})
}

// MismatchError lists handler files that no registered handler serves. Such a
// file would deploy a function whose container cannot start.
type MismatchError struct {
	Unregistered []Handler
}

func (e *MismatchError) Error() string {
	files := lo.Map(e.Unregistered, func(h Handler, _ int) string {
		return fmt.Sprintf("%s (%s)", h.RelPath, h.Name)
	})
	return fmt.Sprintf("no handler registered for %s", strings.Join(files, ", "))
}

// Match checks every discovered handler against the names registered in the
// binary. Registered names without a file are returned, they are not deployed.
func Match(handlers []Handler, registered []service.Name) ([]service.Name, error) {
	var unregistered []Handler
	for _, h := range handlers {
		if !lo.Contains(registered, h.Name) {
			unregistered = append(unregistered, h)
		}
	}
	found := Names(handlers)
	undiscovered := lo.Filter(registered, func(name service.Name, _ int) bool {
		return !lo.Contains(found, name)
	})
	if len(unregistered) > 0 {
		return undiscovered, &MismatchError{Unregistered: unregistered}
	}
	return undiscovered, nil
}
