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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/poiesic/memvault/artifact"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/pipeline"
)

// fileKind is the extraction dispatch category of a source file.
type fileKind int

const (
	kindUnsupported fileKind = iota
	kindPlainText
	kindHTML
	kindPDF
	kindSpreadsheet
)

// ExtractTextHandler converts each source file of a document into plain
// text, written as the extract_text.<file_id>.0.txt artifact.
type ExtractTextHandler struct {
	artifacts artifact.Store
	logger    *slog.Logger
}

var _ pipeline.Handler = (*ExtractTextHandler)(nil)

// NewExtractTextHandler creates the extract_text step handler.
func NewExtractTextHandler(artifacts artifact.Store) (*ExtractTextHandler, error) {
	if artifacts == nil {
		return nil, fmt.Errorf("artifact store required")
	}
	return &ExtractTextHandler{
		artifacts: artifacts,
		logger:    slog.Default().With("step", StepExtractText),
	}, nil
}

func (h *ExtractTextHandler) Name() string { return StepExtractText }

func (h *ExtractTextHandler) SoftDeadline() time.Duration { return 90 * time.Second }

func (h *ExtractTextHandler) Invoke(ctx context.Context, st *core.PipelineState) (pipeline.Result, error) {
	for _, f := range st.Files {
		data, err := h.artifacts.Get(ctx, f.Key)
		if errors.Is(err, artifact.ErrNotFound) {
			// Source content never survives deletion of the document, so a
			// missing source means the record itself is broken.
			return pipeline.Fatal(fmt.Errorf("source artifact %s is missing", f.Key)), nil
		}
		if err != nil {
			return pipeline.Result{}, err
		}

		text, err := extractText(f.Name, f.MIME, data)
		if err != nil {
			// Undecodable content will not decode on a retry either.
			h.logger.Warn("extraction failed", "file", f.Name, "err", err)
			return pipeline.Fatal(fmt.Errorf("%s: %w", f.Name, err)), nil
		}

		name := artifact.StepOutputName(StepExtractText, f.ID, 0, "txt")
		key := artifact.Key(st.Index, st.DocumentID, name)
		if err := h.artifacts.Put(ctx, key, []byte(text)); err != nil {
			return pipeline.Result{}, err
		}
		f.AddGenerated(core.GeneratedFile{
			Step:        StepExtractText,
			Key:         key,
			ContentType: "text/plain; charset=utf-8",
			Part:        0,
			Size:        int64(len(text)),
		})
		h.logger.Debug("extracted text", "file", f.Name, "bytes", len(text))
	}
	return pipeline.Advance(), nil
}

// extractText dispatches to the extractor for the file's detected kind.
func extractText(name, mime string, data []byte) (string, error) {
	switch detectKind(name, mime, data) {
	case kindPlainText:
		return cleanText(string(data)), nil
	case kindHTML:
		return extractHTMLText(data)
	case kindPDF:
		return extractPDFText(data)
	case kindSpreadsheet:
		return extractSpreadsheetText(data)
	default:
		return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, name, mime)
	}
}

// detectKind picks the extraction category from the declared MIME type,
// the file extension, and finally content sniffing.
func detectKind(name, mime string, data []byte) fileKind {
	if k := kindFromMIME(mime); k != kindUnsupported {
		return k
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".txt", ".md", ".markdown", ".text", ".log", ".csv":
		return kindPlainText
	case ".html", ".htm", ".xhtml":
		return kindHTML
	case ".pdf":
		return kindPDF
	case ".xlsx":
		return kindSpreadsheet
	}
	return kindFromMIME(http.DetectContentType(data))
}

func kindFromMIME(mime string) fileKind {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch {
	case mime == "text/html", mime == "application/xhtml+xml":
		return kindHTML
	case mime == "application/pdf":
		return kindPDF
	case mime == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return kindSpreadsheet
	case strings.HasPrefix(mime, "text/"),
		mime == "application/json",
		mime == "application/x-ndjson":
		return kindPlainText
	}
	return kindUnsupported
}

// cleanText strips null bytes and collapses runs of blank lines.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}
