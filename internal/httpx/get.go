package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/antchfx/htmlquery"
)

// GetOptions controls optional post-processing of a GET response.
type GetOptions struct {
	// Params are appended to the request URL as a query string.
	Params url.Values

	// XPath, when set, parses the body as HTML and selects node values.
	XPath string

	// WantRedirectURL reads the Location header off the response without
	// following it.
	WantRedirectURL bool

	// FollowRedirects follows the redirect chain to its final target.
	FollowRedirects bool

	// AllowRedirectStatus returns 3xx responses instead of treating them
	// as failures. Used when fetching final redirect targets where the
	// intermediate status itself is the interesting part.
	AllowRedirectStatus bool
}

// Result is a processed GET response.
type Result struct {
	StatusCode  int
	Body        []byte
	Nodes       []string
	RedirectURL string
	FinalURL    string
}

// Get sends a GET request through the retry loop and applies the requested
// post-processing. All failures, including JSON/XPath parse failures, are
// reported as *ClientError.
func (c *Client) Get(ctx context.Context, rawURL string, opts GetOptions) (*Result, error) {
	reqURL := c.resolveURL(rawURL)
	if len(opts.Params) > 0 {
		sep := "?"
		if u, err := url.Parse(reqURL); err == nil && u.RawQuery != "" {
			sep = "&"
		}
		reqURL += sep + opts.Params.Encode()
	}

	resp, err := c.send(ctx, reqURL, opts.FollowRedirects)
	if err != nil {
		return nil, &ClientError{URL: reqURL, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusMultipleChoices && !opts.AllowRedirectStatus {
		drain(resp)
		return nil, &ClientError{URL: reqURL, Cause: fmt.Errorf("unexpected HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &ClientError{URL: reqURL, Cause: fmt.Errorf("reading body: %w", err)}
	}

	result := &Result{
		StatusCode: resp.StatusCode,
		Body:       body,
		FinalURL:   reqURL,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		result.FinalURL = resp.Request.URL.String()
	}

	if opts.XPath != "" {
		doc, err := htmlquery.Parse(bytes.NewReader(body))
		if err != nil {
			return nil, &ClientError{URL: reqURL, Cause: fmt.Errorf("parsing HTML: %w", err)}
		}
		nodes, err := htmlquery.QueryAll(doc, opts.XPath)
		if err != nil {
			return nil, &ClientError{URL: reqURL, Cause: fmt.Errorf("evaluating xpath %q: %w", opts.XPath, err)}
		}
		for _, n := range nodes {
			result.Nodes = append(result.Nodes, htmlquery.InnerText(n))
		}
	}

	if opts.WantRedirectURL {
		if loc := resp.Header.Get("Location"); loc != "" && resp.StatusCode >= http.StatusMultipleChoices && resp.StatusCode < http.StatusBadRequest {
			result.RedirectURL = loc
			// Relative Location headers are resolved against the request URL.
			if base, err := url.Parse(result.FinalURL); err == nil {
				if ref, err := url.Parse(loc); err == nil {
					result.RedirectURL = base.ResolveReference(ref).String()
				}
			}
		}
	}

	return result, nil
}

// GetJSON sends a GET request and decodes the response body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, v any) error {
	result, err := c.Get(ctx, rawURL, GetOptions{Params: params})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(result.Body, v); err != nil {
		return &ClientError{URL: result.FinalURL, Cause: fmt.Errorf("parsing JSON: %w", err)}
	}
	return nil
}

// ResolveRedirect issues a request that reports the redirect target instead
// of trusting the given URL verbatim. It returns the Location target when
// the upstream answers with a redirect, or the request URL itself when it
// doesn't redirect.
func (c *Client) ResolveRedirect(ctx context.Context, rawURL string) (string, error) {
	result, err := c.Get(ctx, rawURL, GetOptions{
		WantRedirectURL:     true,
		AllowRedirectStatus: true,
	})
	if err != nil {
		return "", err
	}
	if result.RedirectURL != "" {
		return result.RedirectURL, nil
	}
	return c.resolveURL(rawURL), nil
}
