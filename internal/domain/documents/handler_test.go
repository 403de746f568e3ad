package documents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sano/sano-api/internal/domain/consultation"
	"github.com/sano/sano-api/internal/platform/pipeline"
)

type mockGenerator struct {
	pdf   []byte
	err   error
	calls int
}

func (m *mockGenerator) GenerateWorkStoppage(ctx context.Context, req pipeline.WorkStoppageRequest) ([]byte, error) {
	m.calls++
	if req.Patient.Nom == "" || req.Patient.Prenom == "" || req.Dates.Debut == "" || req.Dates.Fin == "" {
		return nil, pipeline.ErrMissingPatientFields
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.pdf, nil
}

func newTestServer(t *testing.T, gen Generator) (*echo.Echo, consultation.Store, *consultation.Consultation) {
	t.Helper()
	store := consultation.NewMemoryStore()
	p := &consultation.Patient{Name: "Durand", DateOfBirth: "1980-03-15"}
	if err := store.AddPatient(p); err != nil {
		t.Fatalf("AddPatient: %v", err)
	}
	cons := &consultation.Consultation{
		PatientID: p.ID,
		Motif:     "fièvre",
		Symptoms:  "fièvre à 39°C",
	}
	if err := store.AddConsultation(cons); err != nil {
		t.Fatalf("AddConsultation: %v", err)
	}

	h := NewHandler(store, gen, zerolog.Nop())
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))
	return e, store, cons
}

func TestGenerateWorkStoppage(t *testing.T) {
	gen := &mockGenerator{pdf: []byte("%PDF-1.4 fake")}
	e, _, _ := newTestServer(t, gen)

	body := `{"patient":{"nom":"Durand","prenom":"Marie","dateNaissance":"1980-03-15"},"motif":"grippe","dates":{"debut":"2026-09-01","fin":"2026-09-05"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/arret", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "application/pdf" {
		t.Errorf("content type = %q, want application/pdf", got)
	}
	if got := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(got, "Arret_Durand_2026-09-01.pdf") {
		t.Errorf("content disposition = %q", got)
	}
	if rec.Body.String() != "%PDF-1.4 fake" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestGenerateWorkStoppage_MissingFields(t *testing.T) {
	gen := &mockGenerator{pdf: []byte("%PDF")}
	e, _, _ := newTestServer(t, gen)

	body := `{"patient":{"nom":"Durand"},"dates":{"debut":"2026-09-01"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/arret", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGenerateWorkStoppage_UpstreamFailure(t *testing.T) {
	gen := &mockGenerator{err: pipeline.ErrNotPDF}
	e, _, _ := newTestServer(t, gen)

	body := `{"patient":{"nom":"Durand","prenom":"Marie","dateNaissance":"1980-03-15"},"dates":{"debut":"2026-09-01","fin":"2026-09-05"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/arret", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestGenerateReferralLetterEndpoint(t *testing.T) {
	e, store, cons := newTestServer(t, &mockGenerator{})

	body := `{"specialist":"Dr. Martin","service":"Cardiologie","hospital":"CHU de Lille"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/consultations/"+cons.ID.String()+"/courrier", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(resp["courrier"], "Durand") {
		t.Errorf("letter missing patient name: %s", resp["courrier"])
	}

	stored, err := store.GetConsultation(cons.ID)
	if err != nil {
		t.Fatalf("GetConsultation: %v", err)
	}
	if stored.ReferralLetter == "" {
		t.Error("letter should be persisted on the consultation")
	}
}

func TestGenerateEducationSheetEndpoint(t *testing.T) {
	e, store, cons := newTestServer(t, &mockGenerator{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/consultations/"+cons.ID.String()+"/etp", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	stored, err := store.GetConsultation(cons.ID)
	if err != nil {
		t.Fatalf("GetConsultation: %v", err)
	}
	if !strings.Contains(stored.EducationSheet, "ÉDUCATION THÉRAPEUTIQUE") {
		t.Errorf("unexpected sheet %q", stored.EducationSheet)
	}
}

func TestGenerateOrdonnanceEndpoint_AppliesDefaultTreatment(t *testing.T) {
	e, store, cons := newTestServer(t, &mockGenerator{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/consultations/"+cons.ID.String()+"/ordonnance", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	stored, err := store.GetConsultation(cons.ID)
	if err != nil {
		t.Fatalf("GetConsultation: %v", err)
	}
	if stored.Treatment == nil || len(stored.Treatment.Medications) != 2 {
		t.Fatalf("default treatment not applied: %+v", stored.Treatment)
	}
	if !strings.Contains(stored.Ordonnance, "Paracétamol 1000mg") {
		t.Errorf("ordonnance missing medication: %q", stored.Ordonnance)
	}
}

func TestDocumentEndpoints_UnknownConsultation(t *testing.T) {
	e, _, _ := newTestServer(t, &mockGenerator{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/consultations/"+uuid.NewString()+"/etp", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
