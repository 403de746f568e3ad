package consultation

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/sano/sano-api/internal/platform/pipeline"
)

// Patient is one roster entry with its consultation history in insertion
// order. Patients are never deleted in-session.
type Patient struct {
	ID            uuid.UUID      `json:"id"`
	Name          string         `json:"name"`
	DateOfBirth   string         `json:"date_of_birth,omitempty"`
	Consultations []Consultation `json:"consultations"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Consultation is one consultation record. It is created on first save and
// mutated whenever a pipeline stage completes, never deleted.
type Consultation struct {
	ID                uuid.UUID             `json:"id"`
	PatientID         uuid.UUID             `json:"patient_id"`
	Date              time.Time             `json:"date"`
	Motif             string                `json:"motif"`
	Symptoms          string                `json:"symptoms"`
	ClinicalExam      string                `json:"clinical_exam"`
	Antecedents       string                `json:"antecedents,omitempty"`
	SyntheseSOAP      string                `json:"synthese_soap,omitempty"`
	NEWS2             string                `json:"news2,omitempty"`
	DrapeauxRouges    string                `json:"drapeaux_rouges,omitempty"`
	Plan              string                `json:"plan,omitempty"`
	Documents         []Document            `json:"documents,omitempty"`
	AIAnalysis        *AIAnalysis           `json:"ai_analysis,omitempty"`
	SelectedDiagnosis string                `json:"selected_diagnosis,omitempty"`
	Treatment         *Treatment            `json:"treatment,omitempty"`
	Ordonnance        string                `json:"ordonnance,omitempty"`
	ReferralLetter    string                `json:"referral_letter,omitempty"`
	EducationSheet    string                `json:"education_sheet,omitempty"`
	CodeNGAP          string                `json:"code_ngap,omitempty"`
	PendingRelance    string                `json:"pending_relance,omitempty"`
	DiagnosticOptions []pipeline.Diagnostic `json:"diagnostic_options,omitempty"`
}

// Document is metadata for a file attached to a consultation.
type Document struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
}

// AIAnalysis is a diagnostic assessment. DifferentialDiagnosis is ordered by
// decreasing probability. An analysis is replaced wholesale by a new one,
// never partially patched.
type AIAnalysis struct {
	ClinicalSynthesis     string   `json:"clinical_synthesis"`
	DifferentialDiagnosis []string `json:"differential_diagnosis"`
	RecommendedTreatment  string   `json:"recommended_treatment"`
	Confidence            float64  `json:"confidence"`
}

// ConfidencePercent renders the confidence score as a rounded 0-100 integer.
func (a *AIAnalysis) ConfidencePercent() int {
	return int(math.Round(a.Confidence * 100))
}

// Treatment is a prescription with recommendations and a follow-up note.
type Treatment struct {
	Medications     []Medication `json:"medications"`
	Recommendations []string     `json:"recommendations"`
	FollowUp        string       `json:"follow_up"`
}

// Medication is one prescription line.
type Medication struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions,omitempty"`
}

// Data extracts the four-field pipeline shape from the consultation.
func (c *Consultation) Data() pipeline.ConsultationData {
	return pipeline.ConsultationData{
		Motif:       c.Motif,
		Symptomes:   c.Symptoms,
		Examen:      c.ClinicalExam,
		Antecedents: c.Antecedents,
	}
}

// AnalysisInput builds the analysis payload from the consultation fields.
func (c *Consultation) AnalysisInput() pipeline.AnalysisInput {
	return pipeline.AnalysisInput{
		Motif:        c.Motif,
		Symptoms:     c.Symptoms,
		ClinicalExam: c.ClinicalExam,
	}
}

// ApplyStructure copies a structuring result into the consultation fields.
// Empty result fields leave existing values untouched so a hand-typed field
// is not erased by a blank remote value.
func (c *Consultation) ApplyStructure(res *pipeline.StructureResult) {
	if res.Motif != "" {
		c.Motif = res.Motif
	}
	if res.Symptomes != "" {
		c.Symptoms = res.Symptomes
	}
	if res.Examen != "" {
		c.ClinicalExam = res.Examen
	}
	if res.Antecedents != "" {
		c.Antecedents = res.Antecedents
	}
	c.SyntheseSOAP = res.SyntheseSOAP
	c.NEWS2 = res.NEWS2
	c.DrapeauxRouges = res.DrapeauxRouges
	c.Plan = res.Plan
	c.Ordonnance = res.Ordonnance
	c.ReferralLetter = res.Courrier
	c.EducationSheet = res.FicheETP
	if res.CodeNGAP != "" {
		c.CodeNGAP = res.CodeNGAP
	}
	c.DiagnosticOptions = res.Diagnostics
	if res.NeedsClarification() {
		c.PendingRelance = res.Relance
	} else {
		c.PendingRelance = ""
	}
}

func toAIAnalysis(a *pipeline.Analysis) *AIAnalysis {
	return &AIAnalysis{
		ClinicalSynthesis:     a.ClinicalSynthesis,
		DifferentialDiagnosis: a.DifferentialDiagnosis,
		RecommendedTreatment:  a.RecommendedTreatment,
		Confidence:            a.Confidence,
	}
}
