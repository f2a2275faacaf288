// Package linkpreview fetches page metadata for link blocks.
package linkpreview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/dhernos/dynpages/internal/netguard"
)

const (
	userAgent    = "DynamicPages-LinkPreview/1.0"
	maxHTMLBytes = 512 << 10
)

type Image struct {
	URL string `json:"url"`
}

type Meta struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       Image  `json:"image"`
}

type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

func NewFetcher(timeout time.Duration, blockPrivate bool) *Fetcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Transport:     netguard.Transport(blockPrivate),
			CheckRedirect: netguard.CheckRedirect,
		},
		timeout: timeout,
	}
}

// Fetch returns metadata for raw. Invalid URLs are errors; fetch and parse
// failures fall back to hostname-derived metadata.
func (f *Fetcher) Fetch(ctx context.Context, raw string) (*Meta, error) {
	u, err := netguard.ParseHTTPURL(raw)
	if err != nil {
		return nil, err
	}

	fallback := Fallback(u)
	meta, err := f.fetch(ctx, u)
	if err != nil {
		return fallback, nil
	}
	if meta.Title == "" {
		meta.Title = fallback.Title
	}
	if meta.Description == "" {
		meta.Description = fallback.Description
	}
	if meta.Image.URL == "" {
		meta.Image = fallback.Image
	}
	return meta, nil
}

// Fallback builds metadata from the URL alone.
func Fallback(u *url.URL) *Meta {
	host := u.Hostname()
	return &Meta{
		Title:       host,
		Description: "Link to " + host,
		Image:       Image{URL: "https://www.google.com/s2/favicons?domain=" + url.QueryEscape(host) + "&sz=128"},
	}
}

func (f *Fetcher) fetch(ctx context.Context, u *url.URL) (*Meta, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("unexpected content type %q", ct)
	}

	meta, err := Parse(io.LimitReader(resp.Body, maxHTMLBytes))
	if err != nil {
		return nil, err
	}
	if meta.Image.URL != "" {
		if ref, err := url.Parse(meta.Image.URL); err == nil {
			meta.Image.URL = resp.Request.URL.ResolveReference(ref).String()
		}
	}
	return meta, nil
}

// Parse extracts title, description and image from an HTML document. Open
// Graph properties take precedence over <title> and the description meta tag.
func Parse(r io.Reader) (*Meta, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var (
		title, ogTitle, desc, ogDesc, ogImage string
		walk                                  func(*html.Node)
	)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				key, content := metaAttrs(n)
				switch key {
				case "og:title":
					ogTitle = content
				case "og:description":
					ogDesc = content
				case "og:image", "og:image:url":
					if ogImage == "" {
						ogImage = content
					}
				case "description":
					desc = content
				}
			case "body":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return &Meta{
		Title:       firstNonEmpty(ogTitle, title),
		Description: firstNonEmpty(ogDesc, desc),
		Image:       Image{URL: ogImage},
	}, nil
}

func metaAttrs(n *html.Node) (key, content string) {
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "property", "name":
			if key == "" {
				key = strings.ToLower(strings.TrimSpace(a.Val))
			}
		case "content":
			content = strings.TrimSpace(a.Val)
		}
	}
	return key, content
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
