// Package handler contains the HTTP handlers: they parse requests, call the
// services and write responses. No business rules live here.
package handler

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/sakif/device-manager/internal/session"
)

// indexTemplate is small enough to live in the binary. html/template escapes
// every field, so a display name like "<script>" renders as text.
const indexTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Device Manager</title>
</head>
<body>
{{- if . }}
<p>Hello, {{ .Name }}!</p>
<p>Email: {{ .Email }}</p>
{{- if .AvatarURL }}
<img src="{{ .AvatarURL }}" alt="avatar" width="64" height="64">
{{- end }}
<p><a class="button" href="/logout">Logout</a></p>
{{- else }}
<a class="button" href="/login">Google Login</a>
{{- end }}
</body>
</html>
`

// IndexHandler serves the landing page: a greeting for signed-in users and
// the login link for everyone else.
type IndexHandler struct {
	tmpl   *template.Template
	logger *slog.Logger
}

// NewIndexHandler parses the page template once at startup.
func NewIndexHandler(logger *slog.Logger) (*IndexHandler, error) {
	tmpl, err := template.New("index").Parse(indexTemplate)
	if err != nil {
		return nil, err
	}
	return &IndexHandler{tmpl: tmpl, logger: logger}, nil
}

// HandleIndex renders the landing page.
//
// HTTP: GET /
// Auth: Optional
func (h *IndexHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	var data *session.Principal
	if p, ok := session.PrincipalFromContext(r.Context()); ok {
		data = p
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render index page", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
