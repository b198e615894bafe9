package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Apology is inserted when the generation endpoint is unreachable or returns
// garbage. The bot degrades instead of going silent or crashing.
const Apology = "Sorry, I couldn't process that."

// OllamaResponder calls an Ollama-style /api/generate endpoint.
type OllamaResponder struct {
	url    string
	model  string
	client *http.Client
	log    *slog.Logger
}

func NewOllamaResponder(url, model string, timeout time.Duration, log *slog.Logger) *OllamaResponder {
	return &OllamaResponder{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Reply asks the model for a natural answer to the latest message. Every
// failure mode degrades to the apology string; the error return is reserved
// for context cancellation.
func (o *OllamaResponder) Reply(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  o.model,
		Prompt: fmt.Sprintf("Someone just sent this message:\n%q\n\nReply naturally.", prompt),
		Stream: false,
	})
	if err != nil {
		return Apology, nil
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(payload))
	if err != nil {
		o.log.Warn("Generation request build failed", "error", err)
		return Apology, nil
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := o.client.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		o.log.Warn("Generation endpoint unreachable", "url", o.url, "error", err)
		return Apology, nil
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		o.log.Warn("Generation endpoint error", "status", response.StatusCode)
		return Apology, nil
	}

	var decoded generateResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		o.log.Warn("Unparsable generation response", "error", err)
		return Apology, nil
	}
	if strings.TrimSpace(decoded.Response) == "" {
		return Apology, nil
	}
	return strings.TrimSpace(decoded.Response), nil
}
