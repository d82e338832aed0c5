// Package fsx provides the filesystem abstraction used by pkg/cachefs.
//
// The main types are:
//   - [FS]: interface for filesystem operations
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using [os] package
//
// Locking is deliberately not part of this interface: pkg/cachefs needs
// fine-grained flock semantics (shared vs exclusive, blocking vs
// non-blocking, atomic downgrade) that a generic Locker can't express, so
// it operates on the raw descriptor returned by [FS.OpenFile] instead.
package fsx

import (
	"io"
	"os"
)

// File represents an open file descriptor.
//
// This interface is satisfied by [os.File] and can be used with all
// standard library functions that accept [io.Reader], [io.Writer],
// [io.Seeker], or [io.Closer].
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor. Used for flock/fcntl calls.
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Name returns the name of the file as presented to Open.
	Name() string
}

// FS defines the filesystem operations pkg/cachefs needs.
//
// [Real] is the only production implementation. The interface exists so
// tests can substitute a fake when exercising paths that are hard to
// trigger against a real filesystem (ENOSPC, permission errors, and so
// on); none of pkg/cachefs's own tests currently need that and run
// against [Real] directly.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadDir reads a directory and returns its entries, sorted by name.
	// See [os.ReadDir].
	ReadDir(path string) ([]os.DirEntry, error)

	// MkdirAll creates a directory and all parents. No error if it
	// already exists. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. Returns [os.ErrNotExist] if the file
	// doesn't exist. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
