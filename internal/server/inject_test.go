package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInjectBeforeCloseBody(t *testing.T) {
	out := string(injectReload([]byte(`<html><body><p>hi</p></body></html>`)))
	assert.Equal(t, 1, strings.Count(out, "EventSource"))
	assert.Less(t, strings.Index(out, "EventSource"), strings.Index(out, "</body>"))
	assert.True(t, strings.HasSuffix(out, "</body></html>"))
}

func TestInjectBeforeCloseHTMLWithoutBody(t *testing.T) {
	out := string(injectReload([]byte(`<html><p>hi</p></html>`)))
	assert.Equal(t, 1, strings.Count(out, "EventSource"))
	assert.True(t, strings.HasSuffix(out, "</html>"))
}

func TestInjectAppendsWithoutClosingTags(t *testing.T) {
	out := string(injectReload([]byte(`<p>fragment</p>`)))
	assert.True(t, strings.HasPrefix(out, "<p>fragment</p>"))
	assert.True(t, strings.HasSuffix(out, "</script>"))
}

func TestInjectUsesLastCloseBody(t *testing.T) {
	body := `<body><code>&lt;/body&gt;</code></body><body></body>`
	out := string(injectReload([]byte(body)))
	assert.Equal(t, 1, strings.Count(out, "EventSource"))
	assert.True(t, strings.HasSuffix(out, "</body>"))
}
