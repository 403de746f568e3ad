// Package attachments stores files uploaded alongside a consultation: audio
// recordings, scanned documents and generated PDFs. It defines the Store
// interface, an in-memory implementation, and Echo HTTP handlers for
// multipart upload, download, metadata retrieval, deletion, and search.
package attachments

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var (
	ErrNotFound           = errors.New("attachment not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed attachment size in bytes (25 MB),
// matching the audio upload limit.
const MaxFileSize = 25 * 1024 * 1024

// AllowedCategories lists valid attachment category values.
var AllowedCategories = map[string]bool{
	"audio-recording": true,
	"document":        true,
	"generated-pdf":   true,
	"other":           true,
}

// AllowedContentTypes lists the file MIME types a consultation may carry.
var AllowedContentTypes = map[string]bool{
	"audio/webm":      true,
	"audio/mp4":       true,
	"audio/wav":       true,
	"audio/ogg":       true,
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"text/plain":      true,
}

// Metadata describes a stored attachment.
type Metadata struct {
	ID             string    `json:"id"`
	FileName       string    `json:"file_name"`
	ContentType    string    `json:"content_type"`
	Size           int64     `json:"size"`
	PatientID      string    `json:"patient_id,omitempty"`
	ConsultationID string    `json:"consultation_id,omitempty"`
	Category       string    `json:"category"`
	Hash           string    `json:"hash"`
	CreatedAt      time.Time `json:"created_at"`
}

// SearchParams specifies search/filter criteria for attachments.
type SearchParams struct {
	PatientID      string
	ConsultationID string
	Category       string
	ContentType    string
	FileName       string // partial match
	Limit          int
	Offset         int
}

// Store defines the contract for attachment storage backends.
type Store interface {
	Upload(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *Metadata, error)
	Delete(ctx context.Context, id string) error
	GetMetadata(ctx context.Context, id string) (*Metadata, error)
	ListByConsultation(ctx context.Context, consultationID string, category string, limit, offset int) ([]*Metadata, int, error)
	Search(ctx context.Context, params SearchParams) ([]*Metadata, int, error)
}

type storedFile struct {
	metadata Metadata
	content  []byte
}

// InMemoryStore is a thread-safe, in-memory Store. Contents live for the
// session only, like the consultation roster itself.
type InMemoryStore struct {
	mu    sync.RWMutex
	files map[string]*storedFile
}

// NewInMemoryStore returns a ready-to-use InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		files: make(map[string]*storedFile),
	}
}

// Upload validates inputs, reads the content, computes a SHA-256 hash, and
// stores the attachment in memory.
func (s *InMemoryStore) Upload(_ context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	if meta.ContentType != "" && !AllowedContentTypes[baseContentType(meta.ContentType)] {
		return nil, ErrInvalidContentType
	}
	if meta.Category == "" {
		meta.Category = "other"
	}

	// Read content into memory so we can measure size and compute hash.
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)

	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", h)
	meta.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.files[meta.ID] = &storedFile{
		metadata: meta,
		content:  data,
	}
	s.mu.Unlock()

	out := meta // copy
	return &out, nil
}

// Download returns an io.ReadCloser over the attachment content and its
// metadata.
func (s *InMemoryStore) Download(_ context.Context, id string) (io.ReadCloser, *Metadata, error) {
	s.mu.RLock()
	f, ok := s.files[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrNotFound
	}

	meta := f.metadata // copy
	return io.NopCloser(bytes.NewReader(f.content)), &meta, nil
}

// Delete removes an attachment by ID.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return ErrNotFound
	}
	delete(s.files, id)
	return nil
}

// GetMetadata returns attachment metadata without content.
func (s *InMemoryStore) GetMetadata(_ context.Context, id string) (*Metadata, error) {
	s.mu.RLock()
	f, ok := s.files[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	meta := f.metadata // copy
	return &meta, nil
}

// ListByConsultation returns attachments for a given consultation, optionally
// filtered by category. It returns the matching page and the total count.
func (s *InMemoryStore) ListByConsultation(_ context.Context, consultationID, category string, limit, offset int) ([]*Metadata, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Metadata
	for _, f := range s.files {
		if f.metadata.ConsultationID != consultationID {
			continue
		}
		if category != "" && f.metadata.Category != category {
			continue
		}
		m := f.metadata // copy
		matched = append(matched, &m)
	}

	return page(matched, limit, offset)
}

// Search returns attachments matching the given search parameters.
func (s *InMemoryStore) Search(_ context.Context, params SearchParams) ([]*Metadata, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Metadata
	for _, f := range s.files {
		if !matchesSearch(&f.metadata, params) {
			continue
		}
		m := f.metadata // copy
		matched = append(matched, &m)
	}

	return page(matched, params.Limit, params.Offset)
}

// page sorts matched newest first and returns the requested slice. Map
// iteration order is random, so sorting here keeps page boundaries stable
// across calls.
func page(matched []*Metadata, limit, offset int) ([]*Metadata, int, error) {
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	if limit <= 0 {
		limit = 20
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func matchesSearch(m *Metadata, p SearchParams) bool {
	if p.PatientID != "" && m.PatientID != p.PatientID {
		return false
	}
	if p.ConsultationID != "" && m.ConsultationID != p.ConsultationID {
		return false
	}
	if p.Category != "" && m.Category != p.Category {
		return false
	}
	if p.ContentType != "" && m.ContentType != p.ContentType {
		return false
	}
	if p.FileName != "" && !strings.Contains(strings.ToLower(m.FileName), strings.ToLower(p.FileName)) {
		return false
	}
	return true
}

// baseContentType strips codec parameters, so "audio/webm;codecs=opus"
// validates as "audio/webm".
func baseContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

// listResponse is the JSON envelope returned by list/search endpoints.
type listResponse struct {
	Items []*Metadata `json:"items"`
	Total int         `json:"total"`
}

// Handler provides Echo HTTP handlers for attachment operations.
type Handler struct {
	store Store
}

// NewHandler creates a new Handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts attachment routes on the supplied Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/attachments/upload", h.handleUpload)
	g.GET("/attachments/consultation/:consultationId", h.handleListByConsultation)
	g.GET("/attachments/:id/metadata", h.handleGetMetadata)
	g.GET("/attachments/:id", h.handleDownload)
	g.DELETE("/attachments/:id", h.handleDelete)
	g.GET("/attachments", h.handleSearch)
}

func (h *Handler) handleUpload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file is required"})
	}

	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to open uploaded file"})
	}
	defer src.Close()

	meta := Metadata{
		FileName:       file.Filename,
		ContentType:    file.Header.Get("Content-Type"),
		PatientID:      c.FormValue("patient_id"),
		ConsultationID: c.FormValue("consultation_id"),
		Category:       c.FormValue("category"),
	}

	result, err := h.store.Upload(c.Request().Context(), meta, src)
	if err != nil {
		switch {
		case errors.Is(err, ErrFileTooLarge):
			return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrMissingFileName):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrInvalidContentType):
			return c.JSON(http.StatusUnsupportedMediaType, map[string]string{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}

	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) handleDownload(c echo.Context) error {
	id := c.Param("id")

	rc, meta, err := h.store.Download(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *Handler) handleGetMetadata(c echo.Context) error {
	id := c.Param("id")

	meta, err := h.store.GetMetadata(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, meta)
}

func (h *Handler) handleDelete(c echo.Context) error {
	id := c.Param("id")

	err := h.store.Delete(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) handleListByConsultation(c echo.Context) error {
	consultationID := c.Param("consultationId")
	category := c.QueryParam("category")
	limit := intParam(c, "limit", 20)
	offset := intParam(c, "offset", 0)

	items, total, err := h.store.ListByConsultation(c.Request().Context(), consultationID, category, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if items == nil {
		items = []*Metadata{}
	}

	return c.JSON(http.StatusOK, listResponse{Items: items, Total: total})
}

func (h *Handler) handleSearch(c echo.Context) error {
	params := SearchParams{
		PatientID:      c.QueryParam("patient_id"),
		ConsultationID: c.QueryParam("consultation_id"),
		Category:       c.QueryParam("category"),
		ContentType:    c.QueryParam("content_type"),
		FileName:       c.QueryParam("file_name"),
		Limit:          intParam(c, "limit", 20),
		Offset:         intParam(c, "offset", 0),
	}

	items, total, err := h.store.Search(c.Request().Context(), params)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if items == nil {
		items = []*Metadata{}
	}

	return c.JSON(http.StatusOK, listResponse{Items: items, Total: total})
}

func intParam(c echo.Context, name string, defaultVal int) int {
	v := c.QueryParam(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
