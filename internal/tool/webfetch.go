package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/agentserver/agentserver/internal/apierror"
)

const (
	maxResponseSize = 5 * 1024 * 1024 // 5MB
	defaultTimeout  = 30 * time.Second
	maxTimeout      = 120 * time.Second
)

const webFetchDescription = `Fetches content from a URL and returns it as text, markdown, or raw HTML.

- The URL must start with http:// or https://
- This tool is read-only and does not modify any files
- Responses larger than 5MB are rejected with an error`

type webFetchArgs struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Timeout int    `json:"timeout,omitempty"`
}

// NewWebFetchTool builds the web_fetch built-in.
func NewWebFetchTool() *Definition {
	client := &http.Client{Timeout: defaultTimeout}

	return &Definition{
		Name:        "web_fetch",
		Description: webFetchDescription,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string"},
				"format": {"type": "string", "enum": ["text", "markdown", "html"]},
				"timeout": {"type": "integer", "description": "Timeout in seconds, max 120"}
			},
			"required": ["url", "format"]
		}`),
		Handler: func(tc *Context, raw json.RawMessage) (*Result, error) {
			m, err := DecodeArgs(raw)
			if err != nil {
				return nil, err
			}
			if err := EnsureKnownKeys(m, "url", "format", "timeout"); err != nil {
				return nil, err
			}
			var args webFetchArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, apierror.BadRequest("invalid web_fetch arguments: %v", err)
			}
			if !strings.HasPrefix(args.URL, "http://") && !strings.HasPrefix(args.URL, "https://") {
				return nil, apierror.BadRequest("url must start with http:// or https://")
			}
			switch args.Format {
			case "text", "markdown", "html":
			default:
				return nil, apierror.BadRequest("format must be text, markdown, or html")
			}

			timeout := defaultTimeout
			if args.Timeout > 0 {
				timeout = time.Duration(args.Timeout) * time.Second
				if timeout > maxTimeout {
					timeout = maxTimeout
				}
			}

			ctx, cancel := context.WithTimeout(tc.Ctx, timeout)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
			if err != nil {
				return nil, apierror.Wrap(apierror.KindToolError, "build request", err)
			}
			req.Header.Set("User-Agent", "agentserver/1.0 (+web_fetch tool)")
			req.Header.Set("Accept-Language", "en-US,en;q=0.9")

			resp, err := client.Do(req)
			if err != nil {
				return nil, apierror.Wrap(apierror.KindTransientNet, "fetch url", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, apierror.Wrap(apierror.KindToolError, "unexpected status", fmt.Errorf("HTTP %d", resp.StatusCode))
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
			if err != nil {
				return nil, apierror.Wrap(apierror.KindTransientNet, "read response", err)
			}
			if len(body) > maxResponseSize {
				return nil, apierror.BadRequest("response exceeds 5MB limit")
			}

			contentType := resp.Header.Get("Content-Type")
			content := string(body)

			var output string
			switch args.Format {
			case "markdown":
				if strings.Contains(contentType, "text/html") {
					output, err = convertHTMLToMarkdown(content)
				} else {
					output = content
				}
			case "text":
				if strings.Contains(contentType, "text/html") {
					output, err = extractTextFromHTML(content)
				} else {
					output = content
				}
			default:
				output = content
			}
			if err != nil {
				return nil, apierror.Wrap(apierror.KindToolError, "convert response body", err)
			}

			return &Result{Value: map[string]any{"url": args.URL, "contentType": contentType, "content": output}}, nil
		},
	}
}

// extractTextFromHTML extracts plain text from HTML, removing scripts, styles, and other non-content elements.
func extractTextFromHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, iframe, object, embed").Remove()
	return strings.TrimSpace(doc.Text()), nil
}

// convertHTMLToMarkdown converts HTML content to Markdown format.
func convertHTMLToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		HorizontalRule:   "---",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		EmDelimiter:      "*",
	})
	converter.Remove("script", "style", "meta", "link")
	return converter.ConvertString(html)
}
