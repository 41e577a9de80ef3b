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
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// maxPDFPages bounds the work a single document can demand.
	maxPDFPages = 500

	// maxExtractedTextSize caps extracted text at 4MB.
	maxExtractedTextSize = 4 * 1024 * 1024
)

// extractPDFText extracts the plain text of every page of a PDF. Pages
// that fail to decode are skipped rather than failing the file.
func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return "", fmt.Errorf("pdf has no pages")
	}
	if totalPages > maxPDFPages {
		return "", fmt.Errorf("pdf has %d pages, max is %d", totalPages, maxPDFPages)
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		cleaned := cleanText(text)
		if cleaned == "" {
			continue
		}
		sb.WriteString(cleaned)
		sb.WriteString("\n\n")

		if sb.Len() > maxExtractedTextSize {
			break
		}
	}

	out := strings.TrimSpace(sb.String())
	if len(out) > maxExtractedTextSize {
		out = out[:maxExtractedTextSize]
	}
	return out, nil
}
