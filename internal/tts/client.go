// Package tts provides speech synthesis for lesson scripts: an HTTP client
// for the ElevenLabs API and a Synthesizer that layers the voice registry,
// the audio cache and test mode on top of it.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API endpoints and paths.
const (
	apiTextToSpeech = "/v1/text-to-speech/"
	apiVoices       = "/v1/voices"
	apiModels       = "/v1/models"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	headerAPIKey      = "xi-api-key"
	contentTypeJSON   = "application/json"
	contentTypeMPEG   = "audio/mpeg"
)

// Error messages.
const (
	errFmtServiceError       = "ElevenLabs error (%s): %s: %s"
	errFmtServiceNonOKStatus = "ElevenLabs returned non-OK status: %s, body: %s"
)

// Static errors.
var (
	ErrTextEmpty     = errors.New("text cannot be empty")
	ErrVoiceIDEmpty  = errors.New("voice id cannot be empty")
	ErrEmptyAudio    = errors.New("received empty audio data")
	ErrServiceStatus = errors.New("speech service reported failure")
)

// VoiceSettings are the per-request synthesis parameters.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// SpeechRequest is the JSON body of a text-to-speech call. VoiceID is sent in
// the URL path.
type SpeechRequest struct {
	VoiceID       string        `json:"-"`
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// ErrorResponse is the structured failure body returned by the service.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Voice is one entry of the provider voice listing.
type Voice struct {
	VoiceID           string            `json:"voice_id"`
	Name              string            `json:"name"`
	Description       string            `json:"description"`
	Category          string            `json:"category"`
	Labels            map[string]string `json:"labels"`
	VerifiedLanguages []struct {
		Language string `json:"language"`
		ModelID  string `json:"model_id"`
	} `json:"verified_languages"`
}

// SupportsLanguage reports whether the voice is labelled or verified for the
// ISO language code.
func (v Voice) SupportsLanguage(code string) bool {
	if strings.EqualFold(v.Labels["language"], code) {
		return true
	}

	for _, lang := range v.VerifiedLanguages {
		if strings.EqualFold(lang.Language, code) {
			return true
		}
	}

	return false
}

// Model is one entry of the provider model listing.
type Model struct {
	ModelID     string `json:"model_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Languages   []struct {
		LanguageID string `json:"language_id"`
		Name       string `json:"name"`
	} `json:"languages"`
	MaxCharactersRequest int `json:"max_characters_request_subscribed_user"`
}

// ElevenLabsClient talks to the ElevenLabs REST API.
type ElevenLabsClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewElevenLabsClient creates a client. A zero timeout means requests are
// bounded only by their context.
func NewElevenLabsClient(baseURL, apiKey string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GenerateSpeech sends a text-to-speech request and returns the MP3 bytes.
// Any non-200 answer is reported as ErrServiceStatus with the provider's
// status and message.
func (c *ElevenLabsClient) GenerateSpeech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, ErrTextEmpty
	}

	if req.VoiceID == "" {
		return nil, ErrVoiceIDEmpty
	}

	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + apiTextToSpeech + url.PathEscape(req.VoiceID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeMPEG)
	httpReq.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// ListVoices returns every voice available to the account.
func (c *ElevenLabsClient) ListVoices(ctx context.Context) ([]Voice, error) {
	var listing struct {
		Voices []Voice `json:"voices"`
	}

	err := c.getJSON(ctx, apiVoices, &listing)
	if err != nil {
		return nil, err
	}

	return listing.Voices, nil
}

// ListModels returns the synthesis models available to the account.
func (c *ElevenLabsClient) ListModels(ctx context.Context) ([]Model, error) {
	var models []Model

	err := c.getJSON(ctx, apiModels, &models)
	if err != nil {
		return nil, err
	}

	return models, nil
}

func (c *ElevenLabsClient) getJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(headerAccept, contentTypeJSON)
	req.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}

	err = json.NewDecoder(resp.Body).Decode(target)
	if err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	return nil
}

// parseErrorResponse decodes {"detail": {"status", "message"}} or
// {"detail": "..."}, falling back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}

	if json.Unmarshal(body, &envelope) == nil && len(envelope.Detail) > 0 {
		var detail ErrorResponse
		if json.Unmarshal(envelope.Detail, &detail) == nil && detail.Message != "" {
			return fmt.Errorf("%w: "+errFmtServiceError, ErrServiceStatus, resp.Status, detail.Status, detail.Message)
		}

		var message string
		if json.Unmarshal(envelope.Detail, &message) == nil && message != "" {
			return fmt.Errorf("%w: "+errFmtServiceError, ErrServiceStatus, resp.Status, "error", message)
		}
	}

	return fmt.Errorf("%w: "+errFmtServiceNonOKStatus, ErrServiceStatus, resp.Status, strings.TrimSpace(string(body)))
}
