package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const maxAttempts = 3

type failureClass int

const (
	failureNone failureClass = iota
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
)

// Caller sends a prompt to a model and returns its raw text answer.
type Caller interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// Metrics counts how many calls a Run needed.
type Metrics struct {
	Attempts       int `json:"attempts"`
	ContentRetries int `json:"content_retries"`
}

// Executor runs a prompt until the model returns JSON that decodes into the
// target and passes validation, retrying transient transport failures.
type Executor struct {
	caller Caller
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

func NewExecutor(caller Caller, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{caller: caller, logger: logger, sleep: sleepCtx}
}

func (e *Executor) Run(ctx context.Context, task, prompt string, out any, validate func() error) (Metrics, error) {
	metrics := Metrics{}
	feedback := ""
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		metrics.Attempts = attempt
		fullPrompt := prompt + "\n\nRespond with only valid JSON matching the schema."
		if feedback != "" {
			fullPrompt += "\n\n" + feedback
		}

		started := time.Now()
		raw, err := e.caller.GenerateJSON(ctx, fullPrompt)
		if err != nil {
			class := classifyTransportError(err)
			e.logger.Warn("llm transport error", "task", task, "attempt", attempt, "class", class, "elapsed_ms", time.Since(started).Milliseconds(), "error", err)
			if class == failureTimeout || class == failureRateLimit || class == failureServer {
				if attempt < maxAttempts {
					if serr := e.sleep(ctx, backoffDelay(attempt)); serr != nil {
						return metrics, fmt.Errorf("%s: %w", task, serr)
					}
					continue
				}
			}
			return metrics, fmt.Errorf("%s transport failure: %w", task, err)
		}

		raw = strings.TrimSpace(raw)
		if raw == "" {
			if attempt < maxAttempts {
				metrics.ContentRetries++
				feedback = "Your previous response was empty. Respond with valid JSON."
				continue
			}
			return metrics, fmt.Errorf("%s failed: empty response", task)
		}

		clean := StripCodeFences(raw)
		if err := json.Unmarshal([]byte(clean), out); err != nil {
			if attempt < maxAttempts {
				metrics.ContentRetries++
				feedback = "Your previous response was not valid JSON. Respond with only valid JSON."
				continue
			}
			return metrics, fmt.Errorf("%s failed json parse: %w", task, err)
		}
		if validate != nil {
			if err := validate(); err != nil {
				if attempt < maxAttempts {
					metrics.ContentRetries++
					feedback = fmt.Sprintf("Your response failed validation: %s. Fix these issues.", err)
					continue
				}
				return metrics, fmt.Errorf("%s failed validation: %w", task, err)
			}
		}
		e.logger.Debug("llm call succeeded", "task", task, "attempt", attempt, "elapsed_ms", time.Since(started).Milliseconds(), "response_chars", len(clean))
		return metrics, nil
	}
	return metrics, fmt.Errorf("%s failed after retries", task)
}

func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

// Matches "status code: 503", "status=429", `...messages": 529` (anthropic)
// and "error 400:" (googleapi).
var statusCodePattern = regexp.MustCompile(`(?:status(?: code)?\s*[:=]?\s*|": |error )([45]\d\d)\b`)

func classifyTransportError(err error) failureClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	msg := strings.ToLower(err.Error())
	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		switch {
		case code == 429:
			return failureRateLimit
		case code >= 500:
			return failureServer
		default:
			return failureClient
		}
	}
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "resource exhausted") {
		return failureRateLimit
	}
	return failureServer
}

func backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 1 * time.Second
	}
	return 2 * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
