package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/Comcast/rigging/core"
	"github.com/Comcast/rigging/expr"
)

const (
	// DefaultHTTPTimeout applies when a request names none.
	DefaultHTTPTimeout = 10 * time.Second

	// MaxHTTPTimeout caps what a request may ask for.
	MaxHTTPTimeout = 30 * time.Second

	// maxResponseBytes bounds how much of a response body we keep.
	maxResponseBytes = 4 << 20
)

// installHTTP registers http_request backed by one shared client, so
// TCP connections are reused and cookies persist across requests like
// a browser session.
func installHTTP(reg *core.Registry) error {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return err
	}
	client := &http.Client{Jar: jar}
	reg.Register(&core.Handler{
		Name:     "http_request",
		Validate: needFields("url"),
		Execute: func(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
			return httpRequest(ctx, client, a, actx, deps)
		},
	})
	return nil
}

// httpRequest performs one request.  Transport trouble is a failure;
// an HTTP error status is data ("ok" false) for the document to
// inspect.
func httpRequest(ctx context.Context, client *http.Client, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	rawURL, err := needString(ctx, a, actx, deps, "url")
	if err != nil {
		return nil, err
	}
	method, err := stringField(ctx, a, actx, deps, "method")
	if err != nil {
		return nil, err
	}
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	timeout := DefaultHTTPTimeout
	if raw, err := field(ctx, a, actx, deps, "timeout"); err != nil {
		return nil, err
	} else if raw != nil {
		if timeout, err = expr.ParseDuration(raw); err != nil {
			return nil, err
		}
	}
	if timeout <= 0 || MaxHTTPTimeout < timeout {
		timeout = MaxHTTPTimeout
	}

	body, jsonBody, err := requestBody(ctx, a, actx, deps)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	headers, err := mapField(ctx, a, actx, deps, "headers")
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, fmt.Sprintf("%v", v))
	}
	if jsonBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bs, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"ok":      200 <= resp.StatusCode && resp.StatusCode < 300,
		"status":  resp.StatusCode,
		"headers": flattenHeader(resp.Header),
		"body":    string(bs),
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		var parsed interface{}
		if err := json.Unmarshal(bs, &parsed); err == nil {
			data["json"] = parsed
		}
	}
	return data, into(ctx, a, actx, deps, data)
}

// requestBody renders the "body" field: a string goes out as-is; a
// map or array goes out as JSON.
func requestBody(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (io.Reader, bool, error) {
	v, err := field(ctx, a, actx, deps, "body")
	if err != nil || v == nil {
		return nil, false, err
	}
	if s, is := v.(string); is {
		return strings.NewReader(s), false, nil
	}
	bs, err := json.Marshal(v)
	if err != nil {
		return nil, false, err
	}
	return strings.NewReader(string(bs)), true, nil
}

func flattenHeader(h http.Header) map[string]interface{} {
	m := make(map[string]interface{}, len(h))
	for k, vs := range h {
		if 0 < len(vs) {
			m[k] = vs[0]
		}
	}
	return m
}
