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

import (
	"fmt"
	"regexp"
	"strings"
)

var nonIndexChars = regexp.MustCompile(`[^a-z0-9-]+`)

// CanonicalIndexName normalises an index name: lowercase, trimmed, with
// every run of characters outside [a-z0-9-] collapsed to a single hyphen.
// An empty input falls back to fallback; a name that is empty after
// normalisation is rejected.
func CanonicalIndexName(raw, fallback string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		name = fallback
	}
	name = strings.ToLower(strings.TrimSpace(name))
	name = nonIndexChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if name == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidIndexName, raw)
	}
	return name, nil
}

// ValidateDocument validates an upload according to domain rules.
//
// Validation rules:
//   - Index must already be in canonical form and non-empty
//   - At least one source file, each with a non-empty name and content
//   - Tags must have non-empty keys and must not use the reserved prefix
//
// NOT validated here:
//   - Step names (checked against the handler registry at ingress)
//   - ID (an empty id is replaced by a generated one before validation)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrValidation)
	}
	if doc.Index == "" {
		return ErrInvalidIndexName
	}
	if doc.ID == "" {
		return fmt.Errorf("%w: document id cannot be empty", ErrValidation)
	}
	if len(doc.Files) == 0 {
		return ErrNoFiles
	}
	for _, f := range doc.Files {
		if strings.TrimSpace(f.Name) == "" {
			return ErrEmptyFileName
		}
		if len(f.Content) == 0 {
			return fmt.Errorf("%w: %q", ErrEmptyFile, f.Name)
		}
	}
	return doc.Tags.Validate()
}
