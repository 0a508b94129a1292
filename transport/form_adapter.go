package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-onetouch/core"
)

const defaultFormClientTimeout = 30 * time.Second
const defaultFormResponseBodyLimit int64 = 10 << 20 // 10 MiB

const userAgent = "go-onetouch"

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FormAdapter speaks the provider's wire format: GET parameters travel in the
// query string, POST parameters as an urlencoded form body. It never retries.
type FormAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewFormAdapter(client HTTPDoer) *FormAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultFormClientTimeout}
	}
	return &FormAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultFormResponseBodyLimit,
	}
}

func (a *FormAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, insecureError("http_client", "is required")
	}
	if err := checkTLS(a.Client); err != nil {
		return core.TransportResponse{}, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodPost {
		return core.TransportResponse{}, &core.InvalidInputError{Field: "method", Reason: "unsupported method " + method}
	}
	parsedURL, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || parsedURL.Host == "" {
		return core.TransportResponse{}, &core.InvalidInputError{Field: "url", Reason: "is not an absolute url"}
	}
	if !strings.EqualFold(parsedURL.Scheme, "https") {
		return core.TransportResponse{}, insecureError("url", "must use https")
	}

	var body io.Reader
	switch method {
	case http.MethodGet:
		query := parsedURL.Query()
		for key, values := range req.Form {
			for _, value := range values {
				query.Add(key, value)
			}
		}
		parsedURL.RawQuery = query.Encode()
	default:
		body = strings.NewReader(req.Form.Encode())
	}

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, method, parsedURL.String(), body)
	if err != nil {
		return core.TransportResponse{}, &core.InvalidInputError{Field: "url", Reason: err.Error()}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if method == http.MethodPost {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for key, value := range a.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, transportFailure(requestCtx, err)
	}
	defer httpRes.Body.Close()

	maxBodyBytes := a.MaxResponseBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultFormResponseBodyLimit
	}
	payload, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return core.TransportResponse{}, transportFailure(requestCtx, err)
	}
	if int64(len(payload)) > maxBodyBytes {
		return core.TransportResponse{}, bodyLimitError(maxBodyBytes)
	}

	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Header:     httpRes.Header.Clone(),
		Body:       payload,
	}, nil
}

// checkTLS refuses clients configured to skip certificate verification.
func checkTLS(doer HTTPDoer) error {
	client, ok := doer.(*http.Client)
	if !ok || client == nil {
		return nil
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok || transport == nil {
		return nil
	}
	if insecureTLS(transport.TLSClientConfig) {
		return insecureError("http_client", "must verify tls certificates")
	}
	return nil
}

func insecureTLS(cfg *tls.Config) bool {
	return cfg != nil && cfg.InsecureSkipVerify
}

var _ core.Transport = (*FormAdapter)(nil)
