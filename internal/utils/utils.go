package utils

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// UpstreamStatus digs the HTTP status an upstream provider answered with out of an
// SDK error. It returns 0 when the error did not come from an HTTP response.
func UpstreamStatus(err error) int {
	if err == nil {
		return 0
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) && anthropicErr.StatusCode != 0 {
		return anthropicErr.StatusCode
	}
	var openAIErr *openai.APIError
	if errors.As(err, &openAIErr) && openAIErr.HTTPStatusCode != 0 {
		return openAIErr.HTTPStatusCode
	}
	var openAIReqErr *openai.RequestError
	if errors.As(err, &openAIReqErr) && openAIReqErr.HTTPStatusCode != 0 {
		return openAIReqErr.HTTPStatusCode
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) && genaiErr.Code != 0 {
		return genaiErr.Code
	}
	var genaiPtrErr *genai.APIError
	if errors.As(err, &genaiPtrErr) && genaiPtrErr != nil && genaiPtrErr.Code != 0 {
		return genaiPtrErr.Code
	}
	return 0
}

// StatusOrBadGateway is UpstreamStatus with a 502 fallback for transport failures.
func StatusOrBadGateway(err error) int {
	if code := UpstreamStatus(err); code != 0 {
		return code
	}
	return http.StatusBadGateway
}

// Excerpt returns at most max runes of s, marking the cut with an ellipsis.
func Excerpt(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}

// DetermineFileType maps a file name to a display language for the tree and preview.
func DetermineFileType(filename string) string {
	lowerFilename := strings.ToLower(filename)
	ext := filepath.Ext(lowerFilename)
	switch ext {
	case ".html", ".htm":
		return "HTML"
	case ".css":
		return "CSS"
	case ".js", ".mjs", ".cjs":
		return "JavaScript"
	case ".jsx":
		return "JSX"
	case ".ts":
		return "TypeScript"
	case ".tsx":
		return "TSX"
	case ".json":
		return "JSON"
	case ".md":
		return "Markdown"
	case ".txt":
		return "Text"
	case ".yaml", ".yml":
		return "YAML"
	case ".toml":
		return "TOML"
	case ".sh":
		return "Shell"
	case ".py":
		return "Python"
	case ".go":
		return "Go"
	case ".env":
		return "Env"
	case ".gitignore":
		return "GitIgnore"
	case ".svg":
		return "SVG"
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return "Image"
	default:
		base := filepath.Base(lowerFilename)
		if strings.Contains(base, "dockerfile") {
			return "Dockerfile"
		}
		if strings.Contains(base, "vite.config") || strings.Contains(base, "tailwind.config") {
			return "Config"
		}
		return "Unknown"
	}
}

// IsMarkup reports whether the detected type can be rendered by the preview pipeline.
func IsMarkup(fileType string) bool {
	switch fileType {
	case "HTML", "JSX", "TSX", "JavaScript", "TypeScript":
		return true
	}
	return false
}
