// Package web embeds the browser voice client served at "/".
package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var files embed.FS

// FS returns the client assets rooted at the static directory.
func FS() fs.FS {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
