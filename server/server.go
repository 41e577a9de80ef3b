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


// Package server exposes the memvault service over HTTP.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/poiesic/memvault"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/pipeline"
)

const defaultBodyLimit = 50 * 1024 * 1024

// Server wraps the service in a fiber HTTP application.
type Server struct {
	app     *fiber.App
	service *memvault.Service
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New builds the HTTP application around a service.
func New(service *memvault.Service, opts ...Option) *Server {
	s := &Server{
		service: service,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")

	s.app = fiber.New(fiber.Config{
		BodyLimit:             defaultBodyLimit,
		DisableStartupMessage: true,
	})
	s.app.Use(recover.New())

	s.app.Post("/upload", s.handleUpload)
	s.app.Get("/upload-status", s.handleUploadStatus)
	s.app.Delete("/documents", s.handleDeleteDocument)
	s.app.Delete("/indexes", s.handleDeleteIndex)
	s.app.Get("/indexes", s.handleListIndexes)
	s.app.Post("/search", s.handleSearch)
	s.app.Post("/ask", s.handleAsk)
	s.app.Get("/health", s.handleHealth)

	return s
}

// Listen serves HTTP on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber application for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) handleUpload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return badRequest(c, "multipart form required")
	}

	req := memvault.UploadRequest{
		Index:      c.FormValue("index"),
		DocumentID: c.FormValue("documentId"),
	}

	if tags := form.Value["tags"]; len(tags) > 0 {
		req.Tags = core.TagCollection{}
		for _, raw := range tags {
			key, value, found := strings.Cut(raw, ":")
			if !found {
				return badRequest(c, fmt.Sprintf("tag %q is not of the form key:value", raw))
			}
			req.Tags.Add(strings.TrimSpace(key), strings.TrimSpace(value))
		}
	}

	if steps := strings.TrimSpace(c.FormValue("steps")); steps != "" {
		for _, step := range strings.Split(steps, ",") {
			req.Steps = append(req.Steps, strings.TrimSpace(step))
		}
	}

	for _, header := range form.File["files"] {
		f, err := header.Open()
		if err != nil {
			return badRequest(c, fmt.Sprintf("unreadable file %q", header.Filename))
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return badRequest(c, fmt.Sprintf("unreadable file %q", header.Filename))
		}
		req.Files = append(req.Files, core.File{Name: header.Filename, Content: content})
	}

	docID, err := s.service.Upload(c.Context(), req)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"documentId": docID})
}

func (s *Server) handleUploadStatus(c *fiber.Ctx) error {
	documentID := c.Query("documentId")
	if documentID == "" {
		return badRequest(c, "documentId query parameter required")
	}
	status, err := s.service.Status(c.Context(), c.Query("index"), documentID)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(status)
}

func (s *Server) handleDeleteDocument(c *fiber.Ctx) error {
	documentID := c.Query("documentId")
	if documentID == "" {
		return badRequest(c, "documentId query parameter required")
	}
	if err := s.service.DeleteDocument(c.Context(), c.Query("index"), documentID); err != nil {
		return s.mapError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleDeleteIndex(c *fiber.Ctx) error {
	if err := s.service.DeleteIndex(c.Context(), c.Query("index")); err != nil {
		return s.mapError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleListIndexes(c *fiber.Ctx) error {
	indexes, err := s.service.ListIndexes(c.Context())
	if err != nil {
		return s.mapError(c, err)
	}
	if indexes == nil {
		indexes = []string{}
	}
	return c.JSON(fiber.Map{"indexes": indexes})
}

type queryRequest struct {
	Index        string              `json:"index"`
	Query        string              `json:"query"`
	Filters      []core.MemoryFilter `json:"filters,omitempty"`
	MinRelevance float32             `json:"minRelevance"`
	Limit        int                 `json:"limit"`
}

type searchHit struct {
	DocumentID string             `json:"documentId"`
	FileID     string             `json:"fileId"`
	Part       int                `json:"part"`
	Text       string             `json:"text"`
	Score      float32            `json:"score"`
	Tags       core.TagCollection `json:"tags,omitempty"`
}

func (r *queryRequest) effectiveLimit() int {
	if r.Limit == 0 {
		return 10
	}
	return r.Limit
}

func (s *Server) handleSearch(c *fiber.Ctx) error {
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	results, err := s.service.Search(c.Context(), req.Index, req.Query, req.Filters, req.MinRelevance, req.effectiveLimit())
	if err != nil {
		return s.mapError(c, err)
	}

	hits := make([]searchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, searchHit{
			DocumentID: r.Chunk.DocumentID,
			FileID:     r.Chunk.FileID,
			Part:       r.Chunk.Part,
			Text:       r.Chunk.Text,
			Score:      r.Score,
			Tags:       r.Chunk.Tags,
		})
	}
	return c.JSON(fiber.Map{"results": hits})
}

type askRequest struct {
	Index        string              `json:"index"`
	Question     string              `json:"question"`
	Filters      []core.MemoryFilter `json:"filters,omitempty"`
	MinRelevance float32             `json:"minRelevance"`
	Limit        int                 `json:"limit"`
}

func (s *Server) handleAsk(c *fiber.Ctx) error {
	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return badRequest(c, "question is required")
	}

	limit := req.Limit
	if limit == 0 {
		limit = 10
	}
	answer, err := s.service.Ask(c.Context(), req.Index, req.Question, req.Filters, req.MinRelevance, limit)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(answer)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, core.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, pipeline.ErrStateNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	default:
		s.logger.Error("request failed", "path", c.Path(), "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
