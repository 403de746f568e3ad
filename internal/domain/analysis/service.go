// Package analysis runs consultation analysis against an OpenAI chat
// completion model. The model is instructed to reply with strict JSON; a
// reply that fails to parse degrades to a generic assessment instead of
// failing the caller.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sano/sano-api/internal/platform/metrics"
	"github.com/sano/sano-api/internal/platform/pipeline"
)

// ErrNoAPIKey is returned when the service is asked to analyze without a
// configured OpenAI key.
var ErrNoAPIKey = errors.New("openai api key not configured")

const systemPrompt = "Vous êtes un médecin expert français spécialisé dans l'analyse de consultations médicales. Répondez toujours en JSON valide et en français."

const promptTemplate = `
En tant qu'assistant médical expert, analysez cette consultation et fournissez une réponse structurée en JSON.

DONNÉES DE LA CONSULTATION :
- Motif : %s
- Symptômes : %s
- Examen clinique : %s

Répondez UNIQUEMENT avec un objet JSON valide contenant :
{
  "clinicalSynthesis": "Synthèse clinique format SOAP en français",
  "differentialDiagnosis": ["Diagnostic principal", "Diagnostic différentiel 1", "Diagnostic différentiel 2"],
  "recommendedTreatment": "Recommandations thérapeutiques détaillées",
  "confidence": 0.85
}

Assurez-vous que :
- La synthèse suit le format SOAP (Subjectif, Objectif, Analyse, Plan)
- Les diagnostics sont classés par probabilité décroissante
- Le traitement est adapté et précis
- La confiance est entre 0 et 1
`

// Config holds the OpenAI settings for the service.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// Service calls the chat completion API and normalizes the reply into an
// Analysis.
type Service struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		s.httpClient = c
	}
}

// NewService creates the analysis service. Zero-value config fields get the
// standard defaults.
func NewService(cfg Config, logger zerolog.Logger, opts ...Option) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	s := &Service{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With().Str("component", "analysis").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze sends the consultation to the model and parses its JSON reply. A
// reply that is not valid JSON degrades to the generic fallback; transport
// and API errors are returned so the caller can apply its own fallback.
func (s *Service) Analyze(ctx context.Context, input pipeline.AnalysisInput) (*pipeline.Analysis, error) {
	if s.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	exam := input.ClinicalExam
	if exam == "" {
		exam = "Non renseigné"
	}
	payload := chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(promptTemplate, input.Motif, input.Symptoms, exam)},
		},
		Temperature: s.cfg.Temperature,
		MaxTokens:   2000,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(s.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.RecordPipelineCall("openai", err)
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordPipelineCall("openai", fmt.Errorf("status %d", resp.StatusCode))
		return nil, fmt.Errorf("chat completion: unexpected status %d", resp.StatusCode)
	}
	metrics.RecordPipelineCall("openai", nil)

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, errors.New("chat completion: empty choices")
	}

	s.logger.Debug().
		Str("model", s.cfg.Model).
		Dur("latency", time.Since(start)).
		Msg("chat completion")

	analysis, ok := parseAnalysis(chat.Choices[0].Message.Content)
	if !ok {
		s.logger.Warn().Msg("model reply was not valid JSON, using fallback analysis")
		return pipeline.FallbackAnalysis(input), nil
	}
	return analysis, nil
}

// parseAnalysis extracts an Analysis from the model reply. Replies wrapped
// in markdown fences are unwrapped first.
func parseAnalysis(content string) (*pipeline.Analysis, bool) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var a pipeline.Analysis
	if err := json.Unmarshal([]byte(content), &a); err != nil {
		return nil, false
	}
	if a.ClinicalSynthesis == "" {
		return nil, false
	}
	if a.Confidence < 0 {
		a.Confidence = 0
	}
	if a.Confidence > 1 {
		a.Confidence = 1
	}
	return &a, true
}
