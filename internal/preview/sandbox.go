package preview

import (
	"strings"

	"golang.org/x/net/html"
)

// SandboxOptions selects the capabilities granted to the preview iframe. Top-level
// navigation is never granted.
type SandboxOptions struct {
	AllowScripts    bool `mapstructure:"allow_scripts"`
	AllowSameOrigin bool `mapstructure:"allow_same_origin"`
	AllowForms      bool `mapstructure:"allow_forms"`
	AllowModals     bool `mapstructure:"allow_modals"`
}

// DefaultSandbox lets generated scripts run but keeps the document in an opaque origin,
// away from the host's cookies and storage.
func DefaultSandbox() SandboxOptions {
	return SandboxOptions{AllowScripts: true}
}

// Tokens returns the value of the iframe sandbox attribute.
func (o SandboxOptions) Tokens() string {
	var tokens []string
	if o.AllowScripts {
		tokens = append(tokens, "allow-scripts")
	}
	if o.AllowSameOrigin {
		tokens = append(tokens, "allow-same-origin")
	}
	if o.AllowForms {
		tokens = append(tokens, "allow-forms")
	}
	if o.AllowModals {
		tokens = append(tokens, "allow-modals")
	}
	return strings.Join(tokens, " ")
}

// ContentSecurityPolicy is the header to send when the document is served on its own
// URL instead of through srcdoc, so the same restrictions apply.
func (o SandboxOptions) ContentSecurityPolicy() string {
	return strings.TrimSpace("sandbox " + o.Tokens())
}

// Frame wraps doc in an iframe element that carries it in srcdoc.
func Frame(doc string, opts SandboxOptions) string {
	var b strings.Builder
	b.WriteString(`<iframe title="Preview" sandbox="`)
	b.WriteString(opts.Tokens())
	b.WriteString(`" referrerpolicy="no-referrer" style="width:100%;height:100%;border:0" srcdoc="`)
	b.WriteString(html.EscapeString(doc))
	b.WriteString(`"></iframe>`)
	return b.String()
}
