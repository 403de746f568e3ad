package consultation

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func seedPatient(t *testing.T, s *MemoryStore, name string) *Patient {
	t.Helper()
	p := &Patient{ID: uuid.New(), Name: name, Consultations: []Consultation{}}
	if err := s.AddPatient(p); err != nil {
		t.Fatalf("AddPatient: %v", err)
	}
	return p
}

func seedConsultation(t *testing.T, s *MemoryStore, patientID uuid.UUID, motif string) *Consultation {
	t.Helper()
	c := &Consultation{ID: uuid.New(), PatientID: patientID, Motif: motif}
	if err := s.AddConsultation(c); err != nil {
		t.Fatalf("AddConsultation: %v", err)
	}
	return c
}

func TestAddPatient_PreservesInsertionOrder(t *testing.T) {
	s := NewMemoryStore()
	names := []string{"Durand", "Martin", "Bernard"}
	for _, n := range names {
		seedPatient(t, s, n)
	}

	got := s.Patients()
	if len(got) != 3 {
		t.Fatalf("expected 3 patients, got %d", len(got))
	}
	for i, n := range names {
		if got[i].Name != n {
			t.Errorf("patient %d = %q, want %q", i, got[i].Name, n)
		}
	}
}

func TestAddPatient_RequiresName(t *testing.T) {
	s := NewMemoryStore()
	if err := s.AddPatient(&Patient{}); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestAddConsultation_RequiresRosterPatient(t *testing.T) {
	s := NewMemoryStore()
	err := s.AddConsultation(&Consultation{ID: uuid.New(), PatientID: uuid.New()})
	if err != ErrPatientNotFound {
		t.Errorf("err = %v, want ErrPatientNotFound", err)
	}
}

func TestAddConsultation_SetsCurrentPointers(t *testing.T) {
	s := NewMemoryStore()
	p := seedPatient(t, s, "Durand")
	c := seedConsultation(t, s, p.ID, "fièvre")

	cur := s.CurrentConsultation()
	if cur == nil || cur.ID != c.ID {
		t.Fatal("expected new consultation to become current")
	}
	curP := s.CurrentPatient()
	if curP == nil || curP.ID != p.ID {
		t.Fatal("expected patient to become current")
	}
}

func TestUpdateConsultation_DualWrite(t *testing.T) {
	s := NewMemoryStore()
	p := seedPatient(t, s, "Durand")
	c := seedConsultation(t, s, p.ID, "fièvre")

	c.Symptoms = "fièvre à 39°C depuis 2 jours"
	c.CodeNGAP = "CS"
	if err := s.UpdateConsultation(c); err != nil {
		t.Fatalf("UpdateConsultation: %v", err)
	}

	// Current pointer and roster copy must never diverge.
	cur := s.CurrentConsultation()
	stored, err := s.GetPatient(p.ID)
	if err != nil {
		t.Fatalf("GetPatient: %v", err)
	}
	if len(stored.Consultations) != 1 {
		t.Fatalf("expected 1 nested consultation, got %d", len(stored.Consultations))
	}
	if !reflect.DeepEqual(*cur, stored.Consultations[0]) {
		t.Errorf("current pointer and roster copy diverged:\ncurrent: %+v\nroster:  %+v", *cur, stored.Consultations[0])
	}
	if cur.Symptoms != "fièvre à 39°C depuis 2 jours" {
		t.Errorf("symptoms = %q", cur.Symptoms)
	}
}

func TestUpdateConsultation_Idempotent(t *testing.T) {
	s := NewMemoryStore()
	p := seedPatient(t, s, "Durand")
	c := seedConsultation(t, s, p.ID, "fièvre")

	c.Symptoms = "toux"
	if err := s.UpdateConsultation(c); err != nil {
		t.Fatalf("first update: %v", err)
	}
	after1 := s.Patients()
	cur1 := s.CurrentConsultation()

	if err := s.UpdateConsultation(c); err != nil {
		t.Fatalf("second update: %v", err)
	}
	after2 := s.Patients()
	cur2 := s.CurrentConsultation()

	if !reflect.DeepEqual(after1, after2) {
		t.Error("roster changed under repeated identical update")
	}
	if !reflect.DeepEqual(cur1, cur2) {
		t.Error("current consultation changed under repeated identical update")
	}
}

func TestUpdateConsultation_UnknownPatient(t *testing.T) {
	s := NewMemoryStore()
	p := seedPatient(t, s, "Durand")
	c := seedConsultation(t, s, p.ID, "fièvre")

	// An update that cannot land in the roster must fail whole: neither
	// the roster nor the current pointer may change.
	orphan := *c
	orphan.PatientID = uuid.New()
	if err := s.UpdateConsultation(&orphan); err != ErrPatientNotFound {
		t.Fatalf("UpdateConsultation = %v, want ErrPatientNotFound", err)
	}
	stored, _ := s.GetPatient(p.ID)
	if stored.Consultations[0].PatientID != p.ID {
		t.Error("roster copy must not be touched for a non-matching patient id")
	}
	cur := s.CurrentConsultation()
	if cur == nil || cur.ID != c.ID {
		t.Error("current consultation must survive a failed update")
	}
}

func TestUpdateConsultation_UnknownConsultation(t *testing.T) {
	s := NewMemoryStore()
	p := seedPatient(t, s, "Durand")
	c := seedConsultation(t, s, p.ID, "fièvre")

	stray := *c
	stray.ID = uuid.New()
	if err := s.UpdateConsultation(&stray); err != ErrConsultationNotFound {
		t.Fatalf("UpdateConsultation = %v, want ErrConsultationNotFound", err)
	}
	cur := s.CurrentConsultation()
	if cur == nil || cur.ID != c.ID {
		t.Error("current consultation must survive a failed update")
	}
}

func TestGetConsultation_CopyOnRead(t *testing.T) {
	s := NewMemoryStore()
	p := seedPatient(t, s, "Durand")
	c := seedConsultation(t, s, p.ID, "fièvre")

	got, err := s.GetConsultation(c.ID)
	if err != nil {
		t.Fatalf("GetConsultation: %v", err)
	}
	got.Motif = "mutated"

	again, _ := s.GetConsultation(c.ID)
	if again.Motif != "fièvre" {
		t.Error("mutating a returned consultation must not affect the store")
	}
}

func TestSetCurrentConsultation_Unknown(t *testing.T) {
	s := NewMemoryStore()
	if err := s.SetCurrentConsultation(uuid.New()); err != ErrConsultationNotFound {
		t.Errorf("err = %v, want ErrConsultationNotFound", err)
	}
}

func TestClearCurrent(t *testing.T) {
	s := NewMemoryStore()
	p := seedPatient(t, s, "Durand")
	seedConsultation(t, s, p.ID, "fièvre")

	s.ClearCurrent()
	if s.CurrentPatient() != nil {
		t.Error("expected no current patient after ClearCurrent")
	}
	if s.CurrentConsultation() != nil {
		t.Error("expected no current consultation after ClearCurrent")
	}
}
