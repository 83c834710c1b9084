package discovery

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"hfserverless/lib/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root string, rel string) {
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("package inference\n"), 0644))
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "sentiment.go")
	touch(t, root, "sentiment_test.go")
	touch(t, root, "doc.go")
	touch(t, root, "nlp/summarize.go")
	touch(t, root, "bootstrap/main.go")
	touch(t, root, "models/sst2.json")
	touch(t, root, "testdata/fixture.go")
	touch(t, root, ".cache/hidden.go")
	touch(t, root, "Dockerfile")

	handlers, err := Scan(root, DefaultConvention)
	require.NoError(t, err)
	assert.Equal(t, []service.Name{"sentiment", "summarize"}, Names(handlers))
	assert.Equal(t, filepath.Join("nlp", "summarize.go"), handlers[1].RelPath)
	assert.Equal(t, filepath.Join(root, "nlp", "summarize.go"), handlers[1].Path)
}

func TestScan_EmptyAndMissing(t *testing.T) {
	handlers, err := Scan(t.TempDir(), DefaultConvention)
	require.NoError(t, err)
	assert.Empty(t, handlers)

	handlers, err = Scan(filepath.Join(t.TempDir(), "does-not-exist"), DefaultConvention)
	require.NoError(t, err)
	assert.Empty(t, handlers)
}

func TestScan_NotADirectory(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "sentiment.go")
	_, err := Scan(filepath.Join(root, "sentiment.go"), DefaultConvention)
	assert.Error(t, err)
}

func TestScan_Duplicate(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a/sentiment.go")
	touch(t, root, "b/sentiment.go")

	_, err := Scan(root, DefaultConvention)
	require.Error(t, err)
	var dup *DuplicateError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, service.Name("sentiment"), dup.Name)
	assert.Equal(t, []string{filepath.Join("a", "sentiment.go"), filepath.Join("b", "sentiment.go")}, dup.Paths)
}

func TestScan_InvalidName(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "2fast.go")
	_, err := Scan(root, DefaultConvention)
	assert.Error(t, err)
}

func TestScan_CustomConvention(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "sentiment.py")
	touch(t, root, "sub/ner.py")
	touch(t, root, "sentiment.go")

	handlers, err := Scan(root, Convention{Ext: ".py"})
	require.NoError(t, err)
	assert.Equal(t, []service.Name{"ner", "sentiment"}, Names(handlers))
}

func TestMatch(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "sentiment.go")
	touch(t, root, "nlp/summarize.go")
	handlers, err := Scan(root, DefaultConvention)
	require.NoError(t, err)

	undiscovered, err := Match(handlers, []service.Name{"sentiment", "summarize"})
	require.NoError(t, err)
	assert.Empty(t, undiscovered)

	undiscovered, err = Match(handlers[:1], []service.Name{"sentiment", "summarize", "translate"})
	require.NoError(t, err)
	assert.Equal(t, []service.Name{"summarize", "translate"}, undiscovered)

	_, err = Match(handlers, []service.Name{"sentiment"})
	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	require.Len(t, mismatch.Unregistered, 1)
	assert.Equal(t, service.Name("summarize"), mismatch.Unregistered[0].Name)
	assert.Contains(t, err.Error(), filepath.Join("nlp", "summarize.go"))

	_, err = Match(handlers, nil)
	require.True(t, errors.As(err, &mismatch))
	assert.Len(t, mismatch.Unregistered, 2)
}
