package compute

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// hopHeaders are not forwarded to the compute origin.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func (c *client) Transform(parentCtx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	if req == nil {
		return nil, fmt.Errorf("compute: request is nil")
	}

	c.logger.Debug("transform request starting",
		zap.String("directory", req.Directory),
		zap.String("filename", req.Filename),
		zap.Stringers("directives", req.Directives),
	)

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.Timeout)
	defer cancel()

	target, err := c.buildURL(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("compute: build HTTP request: %w", err)
	}
	copyHeaders(httpReq.Header, req.Header)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("transform request failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, fmt.Errorf("compute: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("compute: read response: %w", err)
	}
	if int64(len(body)) > c.cfg.MaxResponseSize {
		return nil, fmt.Errorf("compute: response too large (max %d bytes)", c.cfg.MaxResponseSize)
	}

	// Handle non-2xx responses
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("transform upstream error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), 200)),
		)
		return nil, &TransformError{
			Status:      resp.StatusCode,
			Body:        body,
			ContentType: resp.Header.Get("Content-Type"),
		}
	}

	out := &Result{
		Body:         body,
		ContentType:  resp.Header.Get("Content-Type"),
		CacheControl: resp.Header.Get("Cache-Control"),
	}

	c.logger.Info("transform request completed",
		zap.String("content_type", out.ContentType),
		zap.Int("bytes", len(out.Body)),
		zap.Duration("duration", time.Since(start)),
	)

	return out, nil
}

// buildURL appends the request path and query to BaseURL. Escaped '/' and
// '%' inside a segment are sent escaped once; directive punctuation stays
// literal since the engine parses it.
func (c *client) buildURL(req *Request) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("compute: parse base URL: %w", err)
	}
	raw := strings.TrimRight(u.EscapedPath(), "/") + "/" + escapePath(req.Path())
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("compute: escape path: %w", err)
	}
	u.Path, u.RawPath = decoded, raw
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	return u.String(), nil
}

var directivePunctuation = strings.NewReplacer("%28", "(", "%29", ")")

// escapePath renders a request path for the wire one segment at a time.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, seg := range segs {
		if dec, err := url.PathUnescape(seg); err == nil {
			seg = dec
		}
		segs[i] = directivePunctuation.Replace(url.PathEscape(seg))
	}
	return strings.Join(segs, "/")
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
