package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrMissingPatientFields is returned before any network call when a
	// work stoppage request lacks the patient name or period bounds.
	ErrMissingPatientFields = errors.New("patient nom, prenom and period debut/fin are required")

	// ErrNotPDF is returned when the generation service answered 2xx with a
	// body that is not a PDF document.
	ErrNotPDF = errors.New("generation service did not return a PDF document")
)

// Endpoints holds the URLs of the remote pipeline services.
type Endpoints struct {
	TranscribeURL string
	StructureURL  string
	RelanceURL    string
	AnalyzeURL    string
	ArretURL      string
	DictationURL  string
}

// Client calls the remote consultation pipeline services. Each stage is a
// single request/response call with no automatic retry.
type Client struct {
	endpoints  Endpoints
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// NewClient creates a pipeline client with a 60 second default timeout.
func NewClient(endpoints Endpoints, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With().Str("component", "pipeline").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe uploads an audio recording and returns the raw transcript.
func (c *Client) Transcribe(ctx context.Context, mimeType string, audio []byte) (string, error) {
	req, err := c.newAudioRequest(ctx, c.endpoints.TranscribeURL, mimeType, audio)
	if err != nil {
		return "", err
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return out.Text, nil
}

// Structure sends a transcript to the structuring service and returns the
// full synthesis, including a possible clarification question in Relance.
func (c *Client) Structure(ctx context.Context, transcript string) (*StructureResult, error) {
	payload := struct {
		Text string `json:"text"`
	}{Text: transcript}

	var out StructureResult
	if err := c.postJSON(ctx, c.endpoints.StructureURL, payload, &out); err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}
	return &out, nil
}

// Relance asks the clarification service whether the structured data is
// complete. It returns "Ok" when nothing is missing, otherwise the question
// to surface to the physician.
func (c *Client) Relance(ctx context.Context, data ConsultationData) (string, error) {
	var out struct {
		Question string `json:"question"`
	}
	if err := c.postJSON(ctx, c.endpoints.RelanceURL, data, &out); err != nil {
		return "", fmt.Errorf("relance: %w", err)
	}
	return out.Question, nil
}

// Analyze requests a diagnostic assessment for the consultation. Callers
// should fall back to FallbackAnalysis on error so the workflow is never
// blocked by analysis unavailability.
func (c *Client) Analyze(ctx context.Context, input AnalysisInput) (*Analysis, error) {
	payload := struct {
		Consultation AnalysisInput `json:"consultation"`
	}{Consultation: input}

	var out struct {
		Analysis *Analysis `json:"analysis"`
		Error    string    `json:"error"`
	}
	if err := c.postJSON(ctx, c.endpoints.AnalyzeURL, payload, &out); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	if out.Analysis == nil {
		if out.Error != "" {
			return nil, fmt.Errorf("analyze: %s", out.Error)
		}
		return nil, fmt.Errorf("analyze: empty response")
	}
	return out.Analysis, nil
}

// FallbackAnalysis builds the degraded assessment used when the analysis
// service is unreachable or returns an unusable reply.
func FallbackAnalysis(input AnalysisInput) *Analysis {
	return &Analysis{
		ClinicalSynthesis: fmt.Sprintf("Analyse de la consultation pour : %s", input.Motif),
		DifferentialDiagnosis: []string{
			"Diagnostic nécessitant une évaluation complémentaire",
			"Syndrome à préciser",
			"Affection bénigne probable",
		},
		RecommendedTreatment: "Traitement symptomatique et surveillance recommandés",
		Confidence:           0.6,
	}
}

// GenerateWorkStoppage requests a work stoppage certificate and returns the
// PDF bytes. Patient identity and period bounds are validated before any
// network call.
func (c *Client) GenerateWorkStoppage(ctx context.Context, wsReq WorkStoppageRequest) ([]byte, error) {
	if wsReq.Patient.Nom == "" || wsReq.Patient.Prenom == "" ||
		wsReq.Dates.Debut == "" || wsReq.Dates.Fin == "" {
		return nil, ErrMissingPatientFields
	}

	body, err := json.Marshal(wsReq)
	if err != nil {
		return nil, fmt.Errorf("encode work stoppage request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.ArretURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create work stoppage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate work stoppage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("generate work stoppage: %w", statusError(resp))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/pdf") {
		c.logger.Warn().Str("content_type", ct).Msg("unexpected work stoppage response type")
		return nil, ErrNotPDF
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read work stoppage pdf: %w", err)
	}
	return pdf, nil
}

// Dictate sends a dictation recording to the dictation webhook and returns
// the structured consultation fields directly, bypassing the separate
// transcribe and structure stages.
func (c *Client) Dictate(ctx context.Context, mimeType string, audio []byte) (*ConsultationData, error) {
	req, err := c.newAudioRequest(ctx, c.endpoints.DictationURL, mimeType, audio)
	if err != nil {
		return nil, err
	}

	var out ConsultationData
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("dictate: %w", err)
	}
	return &out, nil
}

// newAudioRequest builds a multipart upload with the audio under the "file"
// field, named by codec extension.
func (c *Client) newAudioRequest(ctx context.Context, url, mimeType string, audio []byte) (*http.Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "enregistrement"+extensionFor(mimeType))
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create audio request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, url string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", req.URL.String()).Msg("pipeline call failed")
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	c.logger.Debug().
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("pipeline call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	trimmed := strings.TrimSpace(string(msg))
	if trimmed == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, trimmed)
}

func extensionFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "audio/webm"):
		return ".webm"
	case strings.HasPrefix(mimeType, "audio/mp4"):
		return ".m4a"
	case strings.HasPrefix(mimeType, "audio/wav"):
		return ".wav"
	case strings.HasPrefix(mimeType, "audio/ogg"):
		return ".ogg"
	default:
		return ".bin"
	}
}
