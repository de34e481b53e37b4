package tool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callWebFetch(t *testing.T, url, format string, timeout int) (*Result, error) {
	t.Helper()
	def := NewWebFetchTool()
	args := map[string]any{"url": url, "format": format}
	if timeout > 0 {
		args["timeout"] = timeout
	}
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	tc := &Context{Ctx: context.Background()}
	return def.Handler(tc, raw)
}

func TestWebFetchURLValidation(t *testing.T) {
	_, err := callWebFetch(t, "example.com", "text", 0)
	assert.Error(t, err)

	_, err = callWebFetch(t, "ftp://example.com", "text", 0)
	assert.Error(t, err)
}

func TestWebFetchFormatValidation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("test"))
	}))
	defer server.Close()

	_, err := callWebFetch(t, server.URL, "xml", 0)
	assert.Error(t, err)

	_, err = callWebFetch(t, server.URL, "text", 0)
	assert.NoError(t, err)
}

func TestWebFetchHTMLToMarkdown(t *testing.T) {
	html := `<html><body><h1>Hello World</h1><p>This is a <strong>test</strong> paragraph.</p><ul><li>Item 1</li></ul></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(html))
	}))
	defer server.Close()

	result, err := callWebFetch(t, server.URL, "markdown", 0)
	require.NoError(t, err)
	content := result.Value.(map[string]any)["content"].(string)
	assert.Contains(t, content, "# Hello World")
	assert.Contains(t, content, "**test**")
	assert.Contains(t, content, "- Item 1")
}

func TestWebFetchHTMLToText(t *testing.T) {
	html := `<html><head><script>alert('bad');</script><style>body{color:red}</style></head><body><h1>Hello World</h1><p>This is a test.</p></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(html))
	}))
	defer server.Close()

	result, err := callWebFetch(t, server.URL, "text", 0)
	require.NoError(t, err)
	content := result.Value.(map[string]any)["content"].(string)
	assert.Contains(t, content, "Hello World")
	assert.NotContains(t, content, "alert")
	assert.NotContains(t, content, "color:red")
}

func TestWebFetchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := callWebFetch(t, server.URL, "text", 0)
	assert.Error(t, err)
}

func TestWebFetchUnknownArgumentRejected(t *testing.T) {
	def := NewWebFetchTool()
	raw := json.RawMessage(`{"url": "https://example.com", "format": "text", "bogus": 1}`)
	_, err := def.Handler(&Context{Ctx: context.Background()}, raw)
	assert.Error(t, err)
}

func TestExtractTextFromHTML(t *testing.T) {
	result, err := extractTextFromHTML("<html><body><p>Text</p><script>alert('bad')</script></body></html>")
	require.NoError(t, err)
	assert.Contains(t, result, "Text")
	assert.NotContains(t, result, "alert")
}

func TestConvertHTMLToMarkdown(t *testing.T) {
	result, err := convertHTMLToMarkdown("<h1>Title</h1><ul><li>Item 1</li></ul>")
	require.NoError(t, err)
	assert.Contains(t, result, "# Title")
	assert.Contains(t, result, "- Item 1")
}
