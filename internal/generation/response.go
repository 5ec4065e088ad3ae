package generation

import (
	"bytes"
	"encoding/json"
	"strings"

	"blossom/internal/types"
)

// Shape names the response layouts the client understands.
type Shape string

const (
	ShapeAnthropic Shape = "anthropic"
	ShapeGemini    Shape = "gemini"
	ShapeOpenAI    Shape = "openai"
	ShapePlain     Shape = "plain"
	ShapeError     Shape = "error"
)

// Response is one decoded response body. Exactly the fields of its Shape are set.
type Response struct {
	Shape    Shape
	Text     string
	Provider string

	ErrorType    string
	ErrorMessage string
}

type envelope struct {
	Type       string          `json:"type"`
	Content    json.RawMessage `json:"content"`
	Candidates json.RawMessage `json:"candidates"`
	Choices    json.RawMessage `json:"choices"`
	Text       *string         `json:"text"`
	Provider   string          `json:"provider"`
	Error      json.RawMessage `json:"error"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type geminiCandidate struct {
	Content struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"content"`
}

type openAIChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type errorBody struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ParseResponse decodes body into one of the known shapes. Bodies that are not JSON,
// or JSON of no known shape, yield a KindMalformed *Error with an excerpt.
func ParseResponse(body []byte) (Response, error) {
	trimmed := bytes.TrimSpace(body)
	var env envelope
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Response{}, malformed("expected a JSON object", body, nil)
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Response{}, malformed("invalid JSON", body, err)
	}

	if present(env.Error) || env.Type == "error" {
		return parseError(env), nil
	}
	if present(env.Content) {
		var blocks []anthropicBlock
		if err := json.Unmarshal(env.Content, &blocks); err != nil {
			return Response{}, malformed("unexpected content layout", body, err)
		}
		var b strings.Builder
		for _, block := range blocks {
			if block.Type == "" || block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		return Response{Shape: ShapeAnthropic, Text: b.String(), Provider: "anthropic"}, nil
	}
	if present(env.Candidates) {
		var candidates []geminiCandidate
		if err := json.Unmarshal(env.Candidates, &candidates); err != nil {
			return Response{}, malformed("unexpected candidates layout", body, err)
		}
		var b strings.Builder
		if len(candidates) > 0 {
			for _, part := range candidates[0].Content.Parts {
				b.WriteString(part.Text)
			}
		}
		return Response{Shape: ShapeGemini, Text: b.String(), Provider: "gemini"}, nil
	}
	if present(env.Choices) {
		var choices []openAIChoice
		if err := json.Unmarshal(env.Choices, &choices); err != nil {
			return Response{}, malformed("unexpected choices layout", body, err)
		}
		text := ""
		if len(choices) > 0 {
			text = choices[0].Message.Content
		}
		return Response{Shape: ShapeOpenAI, Text: text, Provider: "openai"}, nil
	}
	if env.Text != nil {
		return Response{Shape: ShapePlain, Text: *env.Text, Provider: env.Provider}, nil
	}
	return Response{}, malformed("unrecognized response shape", body, nil)
}

// Generated normalizes the response into the single value the pipeline consumes.
func (r Response) Generated() (types.GeneratedText, error) {
	if r.Shape == ShapeError {
		return types.GeneratedText{}, &Error{Kind: KindUpstream, Message: r.errorText()}
	}
	if strings.TrimSpace(r.Text) == "" {
		return types.GeneratedText{}, &Error{Kind: KindEmpty}
	}
	return types.GeneratedText{Text: r.Text, Provider: r.Provider}, nil
}

func (r Response) errorText() string {
	switch {
	case r.ErrorMessage != "" && r.ErrorType != "":
		return r.ErrorType + ": " + r.ErrorMessage
	case r.ErrorMessage != "":
		return r.ErrorMessage
	case r.ErrorType != "":
		return r.ErrorType
	}
	return "unknown error"
}

func parseError(env envelope) Response {
	r := Response{Shape: ShapeError}
	if !present(env.Error) {
		return r
	}
	var msg string
	if json.Unmarshal(env.Error, &msg) == nil {
		r.ErrorMessage = msg
		return r
	}
	var body errorBody
	if json.Unmarshal(env.Error, &body) == nil {
		r.ErrorMessage = body.Message
		r.ErrorType = body.Type
		if r.ErrorType == "" {
			r.ErrorType = body.Status
		}
		return r
	}
	r.ErrorMessage = excerpt(env.Error)
	return r
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func malformed(msg string, body []byte, err error) *Error {
	return &Error{
		Kind:    KindMalformed,
		Message: msg,
		Excerpt: excerpt(body),
		Err:     err,
	}
}
