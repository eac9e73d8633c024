package listener

import (
	"html/template"
	"net/http"
	"strings"
)

// Audience selects the product wording shown on the callback pages. The value
// substituted into the page comes from this closed set, never from request
// input, so the personalization cannot be used for injection.
type Audience string

const (
	// AudienceGeneric renders neutral wording.
	AudienceGeneric Audience = ""

	// AudienceAzure renders Azure account wording.
	AudienceAzure Audience = "azure"
)

// displayNames maps each known audience to the wording rendered on the page.
// Unknown audiences fall back to the generic entry.
var displayNames = map[Audience]string{
	AudienceGeneric: "your account",
	AudienceAzure:   "your Azure account",
}

func displayName(a Audience) string {
	name, ok := displayNames[Audience(strings.ToLower(string(a)))]
	if !ok {
		return displayNames[AudienceGeneric]
	}
	return name
}

type pageData struct {
	Title   string
	Heading string
	Detail  string
}

var pageTemplate = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<title>{{.Title}}</title>
	<style>
		body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 0; display: flex; align-items: center; justify-content: center; min-height: 100vh; background: #f5f5f5; }
		.card { background: #fff; border-radius: 8px; box-shadow: 0 1px 4px rgba(0,0,0,.15); padding: 2.5rem 3rem; max-width: 28rem; text-align: center; }
		h1 { font-size: 1.25rem; margin: 0 0 .75rem; }
		p { color: #555; margin: 0; }
	</style>
</head>
<body>
	<div class="card">
		<h1>{{.Heading}}</h1>
		<p>{{.Detail}}</p>
	</div>
</body>
</html>
`))

func successPage(a Audience) pageData {
	return pageData{
		Title:   "Login successful",
		Heading: "You are signed in to " + displayName(a),
		Detail:  "Authentication complete. You can close this window and return to the terminal.",
	}
}

func failurePage(a Audience) pageData {
	return pageData{
		Title:   "Login failed",
		Heading: "Signing in to " + displayName(a) + " failed",
		Detail:  "The authorization request was denied or incomplete. Close this window and retry the login.",
	}
}

func writePage(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = pageTemplate.Execute(w, data)
}
