// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed indicates the manager has been closed.
	ErrClosed = errors.New("persistence manager is closed")

	// ErrIO matches any *IOError through errors.Is.
	ErrIO = errors.New("save file I/O failed")

	// ErrNoMasterKey indicates Open was given no key source.
	ErrNoMasterKey = errors.New("master key store is required")
)

// IOError is a filesystem failure on the write path.
type IOError struct {
	// Op is the step that failed: create, write, sync, close, backup,
	// rename, remove, mkdir.
	Op string

	// Path is the file the step touched.
	Path string

	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("save %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Is reports true for ErrIO.
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

func ioError(op, path string, err error) error {
	return &IOError{Op: op, Path: path, Err: err}
}
