package generation

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"go.uber.org/zap"

	"blossom/internal/types"
)

const doneMarker = "[DONE]"

// Stream sends req to the streaming endpoint and calls onToken for every token frame, in
// arrival order. It resolves with the accumulated text once the final token, a [DONE]
// marker or the end of the body is reached.
func (c *Client) Stream(ctx context.Context, req types.GenerationRequest, onToken func(types.StreamToken)) (types.GeneratedText, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return types.GeneratedText{}, ErrEmptyPrompt
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.post(ctx, c.cfg.StreamURL, req, "text/event-stream")
	if err != nil {
		return types.GeneratedText{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		return types.GeneratedText{}, statusError(resp.StatusCode, body)
	}

	scanner := bufio.NewScanner(resp.Body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var (
		out    strings.Builder
		event  string
		data   []string
		tokens int
	)

	// dispatch handles one complete frame and reports whether the stream is over.
	dispatch := func() (bool, error) {
		defer func() { event, data = "", nil }()
		if len(data) == 0 {
			return false, nil
		}
		payload := strings.Join(data, "\n")
		if strings.TrimSpace(payload) == doneMarker {
			return true, nil
		}
		switch event {
		case "error":
			return true, streamError(payload)
		case "", "message", "token":
		default:
			return false, nil
		}

		if parsed, perr := ParseResponse([]byte(payload)); perr == nil && parsed.Shape == ShapeError {
			return true, &Error{Kind: KindUpstream, Message: parsed.errorText()}
		}
		var tok types.StreamToken
		if err := json.Unmarshal([]byte(payload), &tok); err != nil {
			return true, malformed("invalid stream frame", []byte(payload), err)
		}
		out.WriteString(tok.Text)
		tokens++
		if onToken != nil {
			onToken(tok)
		}
		return tok.IsFinal, nil
	}

	finished := false
	for !finished && scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case line == "":
			finished, err = dispatch()
			if err != nil {
				return types.GeneratedText{}, err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if !finished {
		if err := scanner.Err(); err != nil {
			return types.GeneratedText{}, c.transportError(ctx, err)
		}
		if _, err := dispatch(); err != nil {
			return types.GeneratedText{}, err
		}
	}

	if strings.TrimSpace(out.String()) == "" {
		return types.GeneratedText{}, &Error{Kind: KindEmpty}
	}
	c.logger.Debug("generation stream completed",
		zap.Int("tokens", tokens),
		zap.Int("chars", out.Len()))
	return types.GeneratedText{Text: out.String(), Provider: resp.Header.Get(ProviderHeader)}, nil
}

func streamError(payload string) *Error {
	if parsed, err := ParseResponse([]byte(payload)); err == nil && parsed.Shape == ShapeError {
		return &Error{Kind: KindUpstream, Message: parsed.errorText()}
	}
	msg := strings.TrimSpace(payload)
	if msg == "" {
		msg = "stream reported an error"
	}
	return &Error{Kind: KindUpstream, Message: excerpt([]byte(msg))}
}
