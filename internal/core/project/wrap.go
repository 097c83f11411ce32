package project

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// wrapRuntime is the runtime of actions generated from web resources.
const wrapRuntime = "nodejs:default"

// WrapWebResource turns a web resource into a web action in pkg that serves
// body with the resource's MIME type. Text bodies are decoded back to UTF-8
// by the generated code; anything else is returned base64-encoded.
func WrapWebResource(res WebResource, body []byte, pkg string) Action {
	encoded := base64.StdEncoding.EncodeToString(body)
	name := strings.TrimSuffix(res.SimpleName, ".html")

	bodyExpr := fmt.Sprintf("  const body = '%s'", encoded)
	if IsTextType(res.MimeType) {
		bodyExpr = fmt.Sprintf("  const body = Buffer.from('%s', 'base64').toString('utf-8')", encoded)
	}
	code := fmt.Sprintf(`function main() {
    %s
    return {
       statusCode: 200,
       headers: { 'Content-Type': '%s' },
       body
    }
}`, bodyExpr, res.MimeType)

	return Action{
		Name:     name,
		Package:  pkg,
		Source:   InlineCode{Code: code},
		Runtime:  wrapRuntime,
		Web:      WebStandard,
		Wrapping: res.FilePath,
	}
}

// IsTextType reports whether a MIME type denotes text content.
func IsTextType(mimeType string) bool {
	mt, _, _ := strings.Cut(mimeType, ";")
	mt = strings.TrimSpace(strings.ToLower(mt))
	if strings.HasPrefix(mt, "text/") {
		return true
	}
	switch mt {
	case "application/json", "application/javascript", "application/xml", "image/svg+xml":
		return true
	}
	return false
}
