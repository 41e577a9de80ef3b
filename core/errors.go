// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import "errors"

// Domain validation errors. All of them wrap ErrValidation so that ingress
// surfaces can map the whole family to a synchronous client error.
var (
	// ErrValidation is the base of all validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidIndexName indicates an index name that is empty after
	// canonicalisation.
	ErrInvalidIndexName = wrapValidation("invalid index name")

	// ErrNoFiles indicates an upload without any source files.
	ErrNoFiles = wrapValidation("document has no files")

	// ErrEmptyFileName indicates a source file with an empty name.
	ErrEmptyFileName = wrapValidation("file name cannot be empty")

	// ErrEmptyFile indicates a source file with no content.
	ErrEmptyFile = wrapValidation("file content cannot be empty")

	// ErrEmptyTagKey indicates a tag with an empty key.
	ErrEmptyTagKey = wrapValidation("tag key cannot be empty")

	// ErrReservedTagKey indicates a user tag using the reserved "__" prefix.
	ErrReservedTagKey = wrapValidation("tag key uses reserved prefix")
)

// State integrity errors.
var (
	// ErrCorruptState indicates a pipeline state record that cannot be decoded.
	ErrCorruptState = errors.New("corrupt pipeline state")

	// ErrSchemaVersion indicates a state record written by an unknown newer
	// schema version.
	ErrSchemaVersion = errors.New("unsupported state schema version")
)

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Unwrap() error { return ErrValidation }

func wrapValidation(msg string) error { return &validationError{msg: msg} }
