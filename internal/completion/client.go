package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/digkill/finassist/internal/config"
	"github.com/digkill/finassist/internal/models"
)

const chatCompletionsPath = "/chat/completions"

// Client talks to an OpenAI-compatible chat completion API that may attach a
// top-level list of source URLs ("citations") to its responses.
type Client struct {
	http           *resty.Client
	log            *slog.Logger
	maxParseErrors int
	// timeout bounds buffered calls only; streams run as long as the caller allows.
	timeout time.Duration
}

type Message struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

type Request struct {
	Model    string
	Messages []Message
}

type Result struct {
	Content   string
	Citations []models.Citation
	Sources   []string
	// Buffered is set when the answer came from the non-streaming endpoint.
	Buffered bool
	// Replaced is set when deltas had already been forwarded before the relay
	// fell back; callers must discard them in favour of Content.
	Replaced bool
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	maxParseErrors := cfg.StreamMaxParseErrors
	if maxParseErrors <= 0 {
		maxParseErrors = 3
	}
	return &Client{
		http: resty.New().
			SetBaseURL(cfg.PerplexityBaseURL).
			SetAuthToken(cfg.PerplexityAPIKey).
			SetHeader("Content-Type", "application/json"),
		log:            log,
		maxParseErrors: maxParseErrors,
		timeout:        cfg.RequestTimeout,
	}
}

// Complete performs a buffered, non-streaming completion.
func (c *Client) Complete(ctx context.Context, req Request) (*Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var parsed chatResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetBody(chatRequest{Model: req.Model, Messages: req.Messages}).
		SetResult(&parsed).
		Post(chatCompletionsPath)
	if err != nil {
		return nil, fmt.Errorf("post completion: %w", err)
	}
	if !res.IsSuccess() {
		c.log.Error("completion request failed", "status", res.StatusCode(), "body", truncateBody(res.Body()))
		return nil, fmt.Errorf("completion error: status=%d body=%s", res.StatusCode(), truncateBody(res.Body()))
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("completion returned no choices")
	}

	content := parsed.Choices[0].Message.Content
	return &Result{
		Content:   content,
		Sources:   parsed.Citations,
		Citations: ExtractCitations(content, parsed.Citations),
		Buffered:  true,
	}, nil
}

// Stream relays a streaming completion, calling onDelta for each text
// fragment in arrival order. Errors returned by onDelta abort the relay. When
// the stream cannot be opened, breaks mid-way, yields too many undecodable
// lines or ends without any text, the relay falls back to Complete.
func (c *Client) Stream(ctx context.Context, req Request, onDelta func(string) error) (*Result, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		SetBody(chatRequest{Model: req.Model, Messages: req.Messages, Stream: true}).
		SetDoNotParseResponse(true).
		Post(chatCompletionsPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn("completion stream unavailable, using buffered request", "err", err)
		return c.fallback(ctx, req, nil, onDelta)
	}
	body := res.RawBody()
	defer body.Close()

	if !res.IsSuccess() {
		raw, _ := io.ReadAll(io.LimitReader(body, 512))
		c.log.Warn("completion stream rejected, using buffered request", "status", res.StatusCode(), "body", truncateBody(raw))
		return c.fallback(ctx, req, nil, onDelta)
	}

	r := newRelay(onDelta, c.maxParseErrors)
	if err := r.consume(body); err != nil {
		return nil, err
	}

	switch {
	case r.readErr != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn("completion stream broke, using buffered request", "err", r.readErr, "forwarded", r.forwarded)
		return c.fallback(ctx, req, r, onDelta)
	case r.state == stateBuffered:
		c.log.Warn("completion stream unparseable, using buffered request", "parse_errors", r.parseErrors)
		return c.fallback(ctx, req, r, onDelta)
	case r.content.Len() == 0 && !r.forwarded:
		c.log.Warn("completion stream carried no content, using buffered request", "parse_errors", r.parseErrors, "done", r.done)
		return c.fallback(ctx, req, r, onDelta)
	}

	content := r.content.String()
	return &Result{
		Content:   content,
		Sources:   r.sources,
		Citations: ExtractCitations(content, r.sources),
	}, nil
}

func (c *Client) fallback(ctx context.Context, req Request, r *relay, onDelta func(string) error) (*Result, error) {
	result, err := c.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if r != nil && r.forwarded {
		result.Replaced = true
		return result, nil
	}
	if result.Content != "" {
		if err := onDelta(result.Content); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
