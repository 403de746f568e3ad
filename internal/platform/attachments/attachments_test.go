package attachments

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func uploadTestFile(t *testing.T, s Store, consultationID, name, contentType string, content []byte) *Metadata {
	t.Helper()
	meta, err := s.Upload(context.Background(), Metadata{
		FileName:       name,
		ContentType:    contentType,
		ConsultationID: consultationID,
		Category:       "audio-recording",
	}, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return meta
}

func TestUpload(t *testing.T) {
	s := NewInMemoryStore()
	content := []byte("webm audio bytes")

	meta := uploadTestFile(t, s, "cons-1", "enregistrement.webm", "audio/webm", content)

	if meta.ID == "" {
		t.Error("expected generated id")
	}
	if meta.Size != int64(len(content)) {
		t.Errorf("size = %d, want %d", meta.Size, len(content))
	}
	wantHash := fmt.Sprintf("%x", sha256.Sum256(content))
	if meta.Hash != wantHash {
		t.Errorf("hash = %q, want %q", meta.Hash, wantHash)
	}
	if meta.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestUpload_MissingFileName(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Upload(context.Background(), Metadata{ContentType: "audio/webm"}, strings.NewReader("x"))
	if err != ErrMissingFileName {
		t.Fatalf("err = %v, want ErrMissingFileName", err)
	}
}

func TestUpload_RejectsContentType(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Upload(context.Background(), Metadata{
		FileName:    "payload.bin",
		ContentType: "application/x-msdownload",
	}, strings.NewReader("x"))
	if err != ErrInvalidContentType {
		t.Fatalf("err = %v, want ErrInvalidContentType", err)
	}
}

func TestUpload_AcceptsCodecParameter(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Upload(context.Background(), Metadata{
		FileName:    "enregistrement.webm",
		ContentType: "audio/webm;codecs=opus",
	}, strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

func TestDownload(t *testing.T) {
	s := NewInMemoryStore()
	content := []byte("pdf bytes")
	meta := uploadTestFile(t, s, "cons-1", "arret.pdf", "application/pdf", content)

	rc, got, err := s.Download(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("content mismatch: %q", data)
	}
	if got.FileName != "arret.pdf" {
		t.Errorf("file name = %q", got.FileName)
	}
}

func TestDownload_NotFound(t *testing.T) {
	s := NewInMemoryStore()
	if _, _, err := s.Download(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := NewInMemoryStore()
	meta := uploadTestFile(t, s, "cons-1", "a.webm", "audio/webm", []byte("x"))

	if err := s.Delete(context.Background(), meta.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(context.Background(), meta.ID); err != ErrNotFound {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestListByConsultation(t *testing.T) {
	s := NewInMemoryStore()
	uploadTestFile(t, s, "cons-1", "a.webm", "audio/webm", []byte("a"))
	uploadTestFile(t, s, "cons-1", "b.webm", "audio/webm", []byte("b"))
	uploadTestFile(t, s, "cons-2", "c.webm", "audio/webm", []byte("c"))

	items, total, err := s.ListByConsultation(context.Background(), "cons-1", "", 20, 0)
	if err != nil {
		t.Fatalf("ListByConsultation: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("total = %d, items = %d, want 2", total, len(items))
	}

	items, _, err = s.ListByConsultation(context.Background(), "cons-1", "document", 20, 0)
	if err != nil {
		t.Fatalf("ListByConsultation: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("category filter should exclude audio recordings, got %d", len(items))
	}
}

func seedAttachmentAt(s *InMemoryStore, consultationID, name string, createdAt time.Time) string {
	id := uuid.New().String()
	s.mu.Lock()
	s.files[id] = &storedFile{metadata: Metadata{
		ID:             id,
		FileName:       name,
		ContentType:    "audio/webm",
		ConsultationID: consultationID,
		Category:       "audio-recording",
		CreatedAt:      createdAt,
	}}
	s.mu.Unlock()
	return id
}

func TestListByConsultation_OrdersNewestFirst(t *testing.T) {
	s := NewInMemoryStore()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	seedAttachmentAt(s, "cons-1", "premier.webm", base)
	seedAttachmentAt(s, "cons-1", "deuxieme.webm", base.Add(time.Minute))
	seedAttachmentAt(s, "cons-1", "troisieme.webm", base.Add(2*time.Minute))

	// Map iteration order is random: run the listing a few times and
	// require the same newest-first order every time.
	for i := 0; i < 5; i++ {
		items, total, err := s.ListByConsultation(context.Background(), "cons-1", "", 20, 0)
		if err != nil {
			t.Fatalf("ListByConsultation: %v", err)
		}
		if total != 3 {
			t.Fatalf("total = %d, want 3", total)
		}
		got := []string{items[0].FileName, items[1].FileName, items[2].FileName}
		want := []string{"troisieme.webm", "deuxieme.webm", "premier.webm"}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("order = %v, want %v", got, want)
			}
		}
	}

	// Page boundaries line up with that order.
	items, _, err := s.ListByConsultation(context.Background(), "cons-1", "", 1, 1)
	if err != nil {
		t.Fatalf("ListByConsultation: %v", err)
	}
	if len(items) != 1 || items[0].FileName != "deuxieme.webm" {
		t.Errorf("second page = %+v, want deuxieme.webm", items)
	}
}

func TestSearch_OrdersNewestFirst(t *testing.T) {
	s := NewInMemoryStore()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	seedAttachmentAt(s, "cons-1", "ancien.webm", base)
	seedAttachmentAt(s, "cons-1", "recent.webm", base.Add(time.Hour))

	items, _, err := s.Search(context.Background(), SearchParams{ConsultationID: "cons-1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 2 || items[0].FileName != "recent.webm" {
		t.Errorf("search order = %+v, want recent.webm first", items)
	}
}

func TestSearch(t *testing.T) {
	s := NewInMemoryStore()
	uploadTestFile(t, s, "cons-1", "enregistrement.webm", "audio/webm", []byte("a"))
	uploadTestFile(t, s, "cons-2", "arret.pdf", "application/pdf", []byte("b"))

	items, total, err := s.Search(context.Background(), SearchParams{FileName: "arret"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 || items[0].FileName != "arret.pdf" {
		t.Errorf("unexpected search result: total=%d", total)
	}

	items, _, _ = s.Search(context.Background(), SearchParams{ContentType: "audio/webm"})
	if len(items) != 1 {
		t.Errorf("content type search: got %d items, want 1", len(items))
	}
}

func newUploadRequest(t *testing.T, fields map[string]string, fileName, contentType string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName)}
	hdr["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attachments/upload", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func newTestServer() *echo.Echo {
	e := echo.New()
	NewHandler(NewInMemoryStore()).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func TestUploadEndpoint(t *testing.T) {
	e := newTestServer()

	req := newUploadRequest(t, map[string]string{
		"consultation_id": "cons-1",
		"category":        "audio-recording",
	}, "enregistrement.webm", "audio/webm", []byte("audio"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var meta Metadata
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if meta.ConsultationID != "cons-1" {
		t.Errorf("consultation_id = %q", meta.ConsultationID)
	}

	// Round trip through download
	dl := httptest.NewRequest(http.MethodGet, "/api/v1/attachments/"+meta.ID, nil)
	dlRec := httptest.NewRecorder()
	e.ServeHTTP(dlRec, dl)
	if dlRec.Code != http.StatusOK {
		t.Fatalf("download status = %d", dlRec.Code)
	}
	if dlRec.Body.String() != "audio" {
		t.Errorf("download body = %q", dlRec.Body.String())
	}
	if got := dlRec.Header().Get("Content-Disposition"); !strings.Contains(got, "enregistrement.webm") {
		t.Errorf("content disposition = %q", got)
	}
}

func TestUploadEndpoint_RejectsExecutable(t *testing.T) {
	e := newTestServer()

	req := newUploadRequest(t, nil, "evil.exe", "application/x-msdownload", []byte("mz"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

func TestMetadataEndpoint_NotFound(t *testing.T) {
	e := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attachments/missing/metadata", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
