// Package web provides web_fetch: fetch a URL and extract its readable text.
package web

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/nevindra/parley"
)

const (
	// maxFetchChars caps extracted text fed back to the model.
	maxFetchChars = 8000
	// maxBodyBytes caps how much of a response body is downloaded.
	maxBodyBytes = 1 << 20
	userAgent    = "Mozilla/5.0 (compatible; ParleyBot/1.0)"
)

type fetchArgs struct {
	URL string `json:"url" jsonschema:"required,description=URL to fetch"`
}

// New creates the web_fetch tool. A nil client gets a 15-second timeout.
func New(client *http.Client) parley.Tool {
	f := &fetcher{client: client}
	if f.client == nil {
		f.client = &http.Client{Timeout: 15 * time.Second}
	}
	return parley.MustFuncTool("web_fetch",
		"Fetch a URL and extract its readable text content. Use for reading web pages, articles, documentation.",
		f.fetch)
}

type fetcher struct {
	client *http.Client
}

func (f *fetcher) fetch(ctx context.Context, args fetchArgs) (*parley.ToolResponse, error) {
	content, err := f.text(ctx, args.URL)
	if err != nil {
		return parley.ErrorResponse(err.Error()), nil
	}
	if len(content) > maxFetchChars {
		content = content[:maxFetchChars] + "\n... (truncated)"
	}
	return parley.TextResponse(content), nil
}

// text downloads a URL and extracts readable text, falling back to plain tag
// stripping when readability cannot parse the page.
func (f *fetcher) text(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}

	page := string(body)

	parsedURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(page), parsedURL)
	if err == nil && article.TextContent != "" {
		return strings.TrimSpace(article.TextContent), nil
	}

	return stripHTML(page), nil
}

// stripHTML removes tags plus script/style bodies, decodes entities, and
// collapses whitespace.
func stripHTML(content string) string {
	var b strings.Builder
	b.Grow(len(content))

	inTag := false
	skip := false
	var tag strings.Builder
	for _, r := range content {
		if r == '<' {
			inTag = true
			tag.Reset()
			continue
		}
		if inTag {
			if r == '>' {
				inTag = false
				name, _, _ := strings.Cut(strings.ToLower(tag.String()), " ")
				switch name {
				case "script", "style":
					skip = true
				case "/script", "/style":
					skip = false
				}
				if blockTags[strings.TrimPrefix(name, "/")] {
					b.WriteByte('\n')
				}
			} else {
				tag.WriteRune(r)
			}
			continue
		}
		if skip {
			continue
		}
		b.WriteRune(r)
	}
	return collapseWhitespace(html.UnescapeString(b.String()))
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "hr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "ul": true, "ol": true, "table": true, "tr": true,
	"blockquote": true, "pre": true, "section": true, "article": true,
	"header": true, "footer": true, "nav": true, "main": true,
}

// collapseWhitespace trims lines and reduces blank-line runs to at most one.
func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blank = true
			continue
		}
		if blank && len(out) > 0 {
			out = append(out, "")
		}
		blank = false
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}
