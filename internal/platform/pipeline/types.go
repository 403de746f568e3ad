// Package pipeline is the HTTP client for the remote consultation pipeline:
// audio transcription, note structuring, clarification, AI analysis, work
// stoppage PDF generation and the dictation webhook.
package pipeline

// ConsultationData is the four-field structured consultation shape exchanged
// with the clarification and dictation services.
type ConsultationData struct {
	Motif       string `json:"motif"`
	Symptomes   string `json:"symptomes"`
	Examen      string `json:"examen"`
	Antecedents string `json:"antecedents"`
}

// Diagnostic is one differential diagnosis candidate with its ICD-10 code
// and estimated probability.
type Diagnostic struct {
	CIM10       string  `json:"cim10"`
	Libelle     string  `json:"libelle"`
	Probability float64 `json:"prob"`
}

// StructureResult is the full medical synthesis produced by the structuring
// service from a raw transcript.
type StructureResult struct {
	Motif          string       `json:"motif"`
	Symptomes      string       `json:"symptomes"`
	Examen         string       `json:"examen"`
	Antecedents    string       `json:"antecedents"`
	SyntheseSOAP   string       `json:"syntheseSOAP"`
	NEWS2          string       `json:"news2"`
	DrapeauxRouges string       `json:"drapeauxRouges"`
	Plan           string       `json:"plan"`
	Diagnostics    []Diagnostic `json:"diagnostics"`
	Ordonnance     string       `json:"ordonnance"`
	Courrier       string       `json:"courrier"`
	FicheETP       string       `json:"ficheETP"`
	CodeNGAP       string       `json:"codeNGAP"`
	Relance        string       `json:"relance"`
}

// ClarificationNeeded reports whether a relance value is a real follow-up
// question. The literal "Ok" means the structured data is judged complete.
func ClarificationNeeded(relance string) bool {
	return relance != "" && relance != "Ok"
}

// NeedsClarification reports whether the structuring service asked a
// follow-up question.
func (r *StructureResult) NeedsClarification() bool {
	return ClarificationNeeded(r.Relance)
}

// Data extracts the four-field consultation shape from the synthesis.
func (r *StructureResult) Data() ConsultationData {
	return ConsultationData{
		Motif:       r.Motif,
		Symptomes:   r.Symptomes,
		Examen:      r.Examen,
		Antecedents: r.Antecedents,
	}
}

// AnalysisInput is the consultation payload sent to the analysis service.
type AnalysisInput struct {
	Motif         string `json:"motif"`
	Symptoms      string `json:"symptoms"`
	ClinicalExam  string `json:"clinicalExam"`
	PatientAge    int    `json:"patientAge,omitempty"`
	PatientGender string `json:"patientGender,omitempty"`
}

// Analysis is the diagnostic assessment returned by the analysis service.
// DifferentialDiagnosis is ordered by decreasing probability.
type Analysis struct {
	ClinicalSynthesis     string   `json:"clinicalSynthesis"`
	DifferentialDiagnosis []string `json:"differentialDiagnosis"`
	RecommendedTreatment  string   `json:"recommendedTreatment"`
	Confidence            float64  `json:"confidence"`
}

// WorkStoppagePatient identifies the patient on a work stoppage certificate.
type WorkStoppagePatient struct {
	Nom           string `json:"nom"`
	Prenom        string `json:"prenom"`
	DateNaissance string `json:"dateNaissance,omitempty"`
}

// WorkStoppageDates bounds the certified stoppage period.
type WorkStoppageDates struct {
	Debut string `json:"debut"`
	Fin   string `json:"fin"`
}

// WorkStoppageRequest is the payload sent to the PDF generation service.
type WorkStoppageRequest struct {
	Patient WorkStoppagePatient `json:"patient"`
	Motif   string              `json:"motif,omitempty"`
	Dates   WorkStoppageDates   `json:"dates"`
}
