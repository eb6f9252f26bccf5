// Package ioiface contains compositions of the standard library I/O interfaces which are accepted as archive and
// file data sources.
package ioiface

import "io"

// ReadAtSeeker is a composition of the reader/seeker/reader at interfaces.
type ReadAtSeeker interface {
	io.Reader
	io.Seeker
	io.ReaderAt
}
