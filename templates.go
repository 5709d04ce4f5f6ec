package oauth

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
)

// Page templates. The consent form posts back to the current URL so the
// original authorization query parameters survive the round trip.
var (
	loginPromptTemplate = template.Must(template.New("login_prompt").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Sign in required</title>
</head>
<body>
  <h1>Sign in required</h1>
  <p>To authorize {{if .ClientName}}<strong>{{.ClientName}}</strong>{{else}}this application{{end}},
  you need to login or sign up before continuing.</p>
</body>
</html>
`))

	consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Authorize {{.ClientName}}</title>
</head>
<body>
  <h1>Authorize {{.ClientName}}</h1>
  <p><strong>{{.ClientName}}</strong> is asking for permission to access your account.</p>
  {{- if .Scope}}
  <p>Requested scope: <code>{{.Scope}}</code></p>
  {{- end}}
  <p>You can customize the info sent to this app.</p>
  <form method="post" action="">
    <label for="suggested-email">Email sent to this app</label>
    <select name="suggested-email" id="suggested-email">
      <option value="{{.UserEmail}}" selected>{{.UserEmail}} (Personal Email)</option>
      {{- range .Aliases}}
      <option value="{{.}}">{{.}}</option>
      {{- end}}
    </select>
    <label for="suggested-name">Name sent to this app</label>
    <input type="text" name="suggested-name" id="suggested-name" value="{{.UserName}}">
    <button type="submit" name="button" value="allow">Allow</button>
    <button type="submit" name="button" value="deny">Deny</button>
  </form>
</body>
</html>
`))

	errorPageTemplate = template.Must(template.New("error_page").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
</head>
<body>
  <h1>{{.Title}}</h1>
  <p>{{.Message}}</p>
</body>
</html>
`))
)

type loginPromptData struct {
	ClientName string
}

type consentData struct {
	ClientName string
	Scope      string
	UserEmail  string
	UserName   string
	Aliases    []string
}

type errorPageData struct {
	Title   string
	Message string
}

// renderPage executes a template into a buffer first so a template failure
// cannot leave a half-written 200 response.
func (h *Handler) renderPage(w http.ResponseWriter, tmpl *template.Template, status int, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		h.logger.Error("Failed to render page", "template", tmpl.Name(), "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Debug("Failed to write page response", "error", err)
	}
}

// unsupportedFlowMessage names the flow set this server implements
func unsupportedFlowMessage() string {
	return fmt.Sprintf(
		"This server only supports the following OIDC flows: %s. Please use response_type=code.",
		"Authorization Code Flow")
}
