package consultation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sano/sano-api/internal/platform/metrics"
	"github.com/sano/sano-api/internal/platform/pipeline"
)

// Pipeline is the remote stage surface the service depends on.
type Pipeline interface {
	Transcribe(ctx context.Context, mimeType string, audio []byte) (string, error)
	Structure(ctx context.Context, transcript string) (*pipeline.StructureResult, error)
	Relance(ctx context.Context, data pipeline.ConsultationData) (string, error)
	Dictate(ctx context.Context, mimeType string, audio []byte) (*pipeline.ConsultationData, error)
}

// Analyzer produces a diagnostic assessment for a consultation.
type Analyzer interface {
	Analyze(ctx context.Context, input pipeline.AnalysisInput) (*pipeline.Analysis, error)
}

// Service orchestrates the consultation workflow: store mutations, remote
// pipeline stages and the per-consultation state machine.
type Service struct {
	store    Store
	pipe     Pipeline
	analyzer Analyzer
	workflow *Workflow
	logger   zerolog.Logger
}

// NewService wires the service. The analyzer may differ from the pipeline
// client when analysis runs in-process.
func NewService(store Store, pipe Pipeline, analyzer Analyzer, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		pipe:     pipe,
		analyzer: analyzer,
		workflow: NewWorkflow(),
		logger:   logger.With().Str("component", "consultation").Logger(),
	}
}

// CreatePatient adds a patient to the roster and makes it current.
func (s *Service) CreatePatient(name, dateOfBirth string) (*Patient, error) {
	p := &Patient{
		ID:            uuid.New(),
		Name:          strings.TrimSpace(name),
		DateOfBirth:   dateOfBirth,
		Consultations: []Consultation{},
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.AddPatient(p); err != nil {
		return nil, err
	}
	if err := s.store.SetCurrentPatient(p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateConsultation opens a consultation for a roster patient and makes it
// the current one.
func (s *Service) CreateConsultation(patientID uuid.UUID, motif, symptoms, clinicalExam string) (*Consultation, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	c := &Consultation{
		ID:           uuid.New(),
		PatientID:    patientID,
		Date:         time.Now().UTC(),
		Motif:        motif,
		Symptoms:     symptoms,
		ClinicalExam: clinicalExam,
	}
	if err := s.store.AddConsultation(c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateConsultation replaces the stored consultation wholesale.
func (s *Service) UpdateConsultation(c *Consultation) error {
	if c.ID == uuid.Nil {
		return fmt.Errorf("consultation id is required")
	}
	return s.store.UpdateConsultation(c)
}

// Transcribe runs the transcription stage for a consultation's recording and
// returns the raw transcript. The transcript is not applied to the
// consultation until structuring completes.
func (s *Service) Transcribe(ctx context.Context, id uuid.UUID, mimeType string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio payload is required")
	}
	if err := s.workflow.Transition(id, StateTranscribing); err != nil {
		return "", err
	}

	text, err := s.pipe.Transcribe(ctx, mimeType, audio)
	metrics.RecordPipelineCall("transcribe", err)
	if err != nil {
		s.workflow.Transition(id, StateFailed)
		return "", err
	}
	return text, nil
}

// Structure runs the structuring stage on a transcript, applies the result
// to the consultation and immediately runs the clarification check. When the
// clarification service asks a question, the workflow parks in
// awaiting_clarification until ResolveClarification is called.
func (s *Service) Structure(ctx context.Context, id uuid.UUID, transcript string) (*Consultation, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("transcript is required")
	}
	c, err := s.store.GetConsultation(id)
	if err != nil {
		return nil, err
	}
	if err := s.workflow.Transition(id, StateStructuring); err != nil {
		return nil, err
	}

	res, err := s.pipe.Structure(ctx, transcript)
	metrics.RecordPipelineCall("structure", err)
	if err != nil {
		s.workflow.Transition(id, StateFailed)
		return nil, err
	}
	c.ApplyStructure(res)

	// Clarification check runs automatically after structuring. A failure
	// here is not fatal: the structured fields are already usable.
	if !res.NeedsClarification() {
		question, rerr := s.pipe.Relance(ctx, c.Data())
		metrics.RecordPipelineCall("relance", rerr)
		if rerr != nil {
			s.logger.Warn().Err(rerr).Str("consultation_id", id.String()).Msg("clarification check failed")
		} else if pipeline.ClarificationNeeded(question) {
			c.PendingRelance = question
		}
	}

	if err := s.store.UpdateConsultation(c); err != nil {
		return nil, err
	}

	next := StateStructured
	if c.PendingRelance != "" {
		next = StateAwaitingClarification
	}
	if err := s.workflow.Transition(id, next); err != nil {
		return nil, err
	}
	return c, nil
}

// ResolveClarification records the physician's answer to a pending follow-up
// question and resumes the workflow.
func (s *Service) ResolveClarification(id uuid.UUID, answer string) (*Consultation, error) {
	c, err := s.store.GetConsultation(id)
	if err != nil {
		return nil, err
	}
	if c.PendingRelance == "" {
		return nil, fmt.Errorf("no pending clarification")
	}
	if err := s.workflow.Transition(id, StateStructured); err != nil {
		return nil, err
	}

	answer = strings.TrimSpace(answer)
	if answer != "" {
		c.Symptoms = strings.TrimSpace(c.Symptoms + "\n" + c.PendingRelance + " " + answer)
	}
	c.PendingRelance = ""
	if err := s.store.UpdateConsultation(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Dictate runs the dictation webhook flow: one audio upload that comes back
// as the four structured fields, bypassing transcribe and structure.
func (s *Service) Dictate(ctx context.Context, id uuid.UUID, mimeType string, audio []byte) (*Consultation, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("audio payload is required")
	}
	c, err := s.store.GetConsultation(id)
	if err != nil {
		return nil, err
	}
	if err := s.workflow.Transition(id, StateStructuring); err != nil {
		return nil, err
	}

	data, err := s.pipe.Dictate(ctx, mimeType, audio)
	metrics.RecordPipelineCall("dictate", err)
	if err != nil {
		s.workflow.Transition(id, StateFailed)
		return nil, err
	}

	if data.Motif != "" {
		c.Motif = data.Motif
	}
	if data.Symptomes != "" {
		c.Symptoms = data.Symptomes
	}
	if data.Examen != "" {
		c.ClinicalExam = data.Examen
	}
	if data.Antecedents != "" {
		c.Antecedents = data.Antecedents
	}
	if err := s.store.UpdateConsultation(c); err != nil {
		return nil, err
	}
	if err := s.workflow.Transition(id, StateStructured); err != nil {
		return nil, err
	}
	return c, nil
}

// AnalyzeWithAI produces a diagnostic assessment for the consultation.
// Analysis failure is never fatal: on any analyzer error a locally
// synthesized fallback is returned so the workflow keeps moving. The result
// is applied to the consultation and stored.
func (s *Service) AnalyzeWithAI(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, err := s.store.GetConsultation(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.Motif) == "" || strings.TrimSpace(c.Symptoms) == "" {
		return nil, fmt.Errorf("motif and symptoms are required before analysis")
	}
	if err := s.workflow.Transition(id, StateAnalyzing); err != nil {
		return nil, err
	}

	input := c.AnalysisInput()
	analysis, err := s.analyzer.Analyze(ctx, input)
	metrics.RecordPipelineCall("analyze", err)
	if err != nil {
		s.logger.Warn().Err(err).Str("consultation_id", id.String()).Msg("analysis degraded to fallback")
		analysis = pipeline.FallbackAnalysis(input)
	}

	c.AIAnalysis = toAIAnalysis(analysis)
	if err := s.store.UpdateConsultation(c); err != nil {
		return nil, err
	}
	if err := s.workflow.Transition(id, StateDone); err != nil {
		return nil, err
	}
	return c, nil
}

// WorkflowState reports the current pipeline state for a consultation.
func (s *Service) WorkflowState(id uuid.UUID) State {
	return s.workflow.State(id)
}

// Store exposes the underlying store to the HTTP layer.
func (s *Service) Store() Store {
	return s.store
}
