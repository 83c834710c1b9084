// Package inference holds the deployable handlers. Every non-test Go file in
// this directory other than doc.go and main.go is one service: the file name is
// the service name and the file registers its handler under that name.
package inference

import (
	"embed"
	"io/fs"
)

//go:embed models
var bundle embed.FS

// Bundle holds the model artifacts shipped inside the image, laid out as
// <model id>/<file>.
func Bundle() fs.FS {
	sub, err := fs.Sub(bundle, "models")
	if err != nil {
		panic(err)
	}
	return sub
}
