package brain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"companion.app/relay/common/llm"
	"companion.app/relay/internal/model"
)

// Input is the memory an extractor works on.
type Input struct {
	MemoryID  string
	SessionID string
	DeviceID  string
	Content   string
	Speakers  []string
	// LastAttempt is set on the job's final attempt. Transient LLM errors
	// fall back to patterns instead of asking for a retry.
	LastAttempt bool
}

func InputFromPayload(p model.MemoryPayload, lastAttempt bool) Input {
	return Input{
		MemoryID:    p.MemoryID,
		SessionID:   p.SessionID,
		DeviceID:    p.DeviceID,
		Content:     p.Content,
		Speakers:    p.Speakers,
		LastAttempt: lastAttempt,
	}
}

const defaultLLMTimeout = 30 * time.Second

// structured runs one structured-output call. ok is false when the caller
// should use its pattern fallback. err is set only for a transient failure
// with attempts left, so the queue retries the job.
func structured(ctx context.Context, client llm.Client, timeout time.Duration, stage string, req llm.Request, out any, in Input) (bool, error) {
	if client == nil {
		slog.DebugContext(ctx, "no llm client configured, using pattern fallback", "stage", stage)
		return false, nil
	}
	if timeout <= 0 {
		timeout = defaultLLMTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.Chat(callCtx, req, out)
	if err == nil {
		attrs := []any{"stage", stage, "model", client.Model(), "latency_ms", time.Since(start).Milliseconds()}
		if resp != nil {
			attrs = append(attrs, "prompt_tokens", resp.PromptTokens, "completion_tokens", resp.CompletionTokens)
		}
		slog.DebugContext(ctx, "llm extraction completed", attrs...)
		return true, nil
	}

	if ctx.Err() == nil && !in.LastAttempt && llm.IsRetryable(ctx, err) {
		return false, fmt.Errorf("%s: %w", stage, err)
	}

	slog.WarnContext(ctx, "llm extraction failed, using pattern fallback",
		"stage", stage,
		"error", err,
		"last_attempt", in.LastAttempt)
	return false, nil
}

// sentence trims a regex capture into a clean phrase.
func sentence(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ",;:- ")
	if utf8.RuneCountInString(s) > maxLen {
		runes := []rune(s)
		s = strings.TrimSpace(string(runes[:maxLen]))
	}
	return s
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// speakerLines splits a formatted transcript into (speaker, text) pairs.
// Lines without a "Name: " prefix keep an empty speaker.
func speakerLines(content string) [][2]string {
	var lines [][2]string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if name, text, ok := strings.Cut(line, ": "); ok && name != "" && utf8.RuneCountInString(name) <= 40 {
			lines = append(lines, [2]string{name, text})
			continue
		}
		lines = append(lines, [2]string{"", line})
	}
	return lines
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
