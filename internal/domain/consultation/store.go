package consultation

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/sano/sano-api/internal/platform/metrics"
	"github.com/sano/sano-api/internal/platform/pipeline"
)

var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrConsultationNotFound = errors.New("consultation not found")
)

// Store holds the patient roster and the current patient/consultation
// pointers for the session. Implementations must keep the current
// consultation pointer and the roster's nested copy of the same
// consultation id identical after every update.
type Store interface {
	AddPatient(p *Patient) error
	GetPatient(id uuid.UUID) (*Patient, error)
	Patients() []*Patient

	AddConsultation(c *Consultation) error
	GetConsultation(id uuid.UUID) (*Consultation, error)
	UpdateConsultation(c *Consultation) error

	SetCurrentPatient(id uuid.UUID) error
	CurrentPatient() *Patient
	SetCurrentConsultation(id uuid.UUID) error
	CurrentConsultation() *Consultation
	ClearCurrent()
}

// MemoryStore is the in-memory Store used for the whole session. Nothing is
// persisted; the roster starts empty and is torn down with the process.
type MemoryStore struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]*Patient
	order    []uuid.UUID

	currentPatient      uuid.UUID
	currentConsultation uuid.UUID
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients: make(map[uuid.UUID]*Patient),
	}
}

// AddPatient appends a patient to the roster. Insertion order is preserved
// for listing.
func (s *MemoryStore) AddPatient(p *Patient) error {
	if p.Name == "" {
		return errors.New("patient name is required")
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.patients[p.ID]; exists {
		return errors.New("patient already exists")
	}
	cp := clonePatient(p)
	s.patients[p.ID] = cp
	s.order = append(s.order, p.ID)
	return nil
}

// GetPatient returns a copy of the patient with the given id.
func (s *MemoryStore) GetPatient(id uuid.UUID) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return clonePatient(p), nil
}

// Patients returns the roster in insertion order.
func (s *MemoryStore) Patients() []*Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Patient, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, clonePatient(s.patients[id]))
	}
	return out
}

// AddConsultation appends a consultation to its patient's history and makes
// it current. The patient must already be on the roster.
func (s *MemoryStore) AddConsultation(c *Consultation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patients[c.PatientID]
	if !ok {
		return ErrPatientNotFound
	}
	for _, existing := range p.Consultations {
		if existing.ID == c.ID {
			return errors.New("consultation already exists")
		}
	}
	p.Consultations = append(p.Consultations, *cloneConsultation(c))
	s.currentPatient = c.PatientID
	s.currentConsultation = c.ID
	metrics.ConsultationsActive.Inc()
	return nil
}

// GetConsultation looks a consultation up across the roster.
func (s *MemoryStore) GetConsultation(id uuid.UUID) (*Consultation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.findConsultation(id)
	if c == nil {
		return nil, ErrConsultationNotFound
	}
	return cloneConsultation(c), nil
}

// UpdateConsultation replaces the roster copy of the consultation and points
// the current consultation at it, as a single write. A patient id missing
// from the roster or a consultation id absent from that patient's history is
// an error and leaves both the roster and the current pointer untouched.
// The operation is idempotent: applying the same value twice leaves the
// store unchanged.
func (s *MemoryStore) UpdateConsultation(c *Consultation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patients[c.PatientID]
	if !ok {
		return ErrPatientNotFound
	}
	for i := range p.Consultations {
		if p.Consultations[i].ID == c.ID {
			p.Consultations[i] = *cloneConsultation(c)
			s.currentConsultation = c.ID
			return nil
		}
	}
	return ErrConsultationNotFound
}

// SetCurrentPatient points the session at a roster patient.
func (s *MemoryStore) SetCurrentPatient(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patients[id]; !ok {
		return ErrPatientNotFound
	}
	s.currentPatient = id
	return nil
}

// CurrentPatient returns a copy of the current patient, or nil.
func (s *MemoryStore) CurrentPatient() *Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patients[s.currentPatient]
	if !ok {
		return nil
	}
	return clonePatient(p)
}

// SetCurrentConsultation points the session at a stored consultation.
func (s *MemoryStore) SetCurrentConsultation(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findConsultation(id) == nil {
		return ErrConsultationNotFound
	}
	s.currentConsultation = id
	return nil
}

// CurrentConsultation returns a copy of the current consultation, or nil.
func (s *MemoryStore) CurrentConsultation() *Consultation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.findConsultation(s.currentConsultation)
	if c == nil {
		return nil
	}
	return cloneConsultation(c)
}

// ClearCurrent resets both session pointers.
func (s *MemoryStore) ClearCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentPatient = uuid.Nil
	s.currentConsultation = uuid.Nil
}

// findConsultation must be called with the lock held.
func (s *MemoryStore) findConsultation(id uuid.UUID) *Consultation {
	if id == uuid.Nil {
		return nil
	}
	for _, pid := range s.order {
		p := s.patients[pid]
		for i := range p.Consultations {
			if p.Consultations[i].ID == id {
				return &p.Consultations[i]
			}
		}
	}
	return nil
}

func clonePatient(p *Patient) *Patient {
	cp := *p
	cp.Consultations = make([]Consultation, len(p.Consultations))
	for i := range p.Consultations {
		cp.Consultations[i] = *cloneConsultation(&p.Consultations[i])
	}
	return &cp
}

func cloneConsultation(c *Consultation) *Consultation {
	cc := *c
	if c.Documents != nil {
		cc.Documents = append([]Document(nil), c.Documents...)
	}
	if c.DiagnosticOptions != nil {
		cc.DiagnosticOptions = append([]pipeline.Diagnostic(nil), c.DiagnosticOptions...)
	}
	if c.AIAnalysis != nil {
		a := *c.AIAnalysis
		a.DifferentialDiagnosis = append([]string(nil), c.AIAnalysis.DifferentialDiagnosis...)
		cc.AIAnalysis = &a
	}
	if c.Treatment != nil {
		t := *c.Treatment
		t.Medications = append([]Medication(nil), c.Treatment.Medications...)
		t.Recommendations = append([]string(nil), c.Treatment.Recommendations...)
		cc.Treatment = &t
	}
	return &cc
}
