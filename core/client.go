package core

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client issues signed calls to the provider. It holds no per-payment state;
// tokens are passed in by the caller on every call.
type Client struct {
	credentials Credentials
	baseURL     string
	timeout     time.Duration
	transport   Transport
	tokenSigner *Signer
	noRegSigner *Signer
	clock       Clock
	ids         IDGenerator
	sink        RequestLogSink
}

type ClientOption func(*Client)

func WithClientClock(clock Clock) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithClientIDGenerator(ids IDGenerator) ClientOption {
	return func(c *Client) {
		if ids != nil {
			c.ids = ids
		}
	}
}

func WithClientRequestLogSink(sink RequestLogSink) ClientOption {
	return func(c *Client) {
		c.sink = sink
	}
}

func NewClient(cfg Config, transport Transport, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, &ConfigurationError{Field: "transport", Reason: "is required"}
	}
	tokenSigner, err := NewSigner(cfg.SecretKey, cfg.Signing.TokenDigest)
	if err != nil {
		return nil, &ConfigurationError{Field: "signing.token_digest", Reason: err.Error()}
	}
	noRegSigner, err := NewSigner(cfg.SecretKey, cfg.Signing.NoRegDigest)
	if err != nil {
		return nil, &ConfigurationError{Field: "signing.noreg_digest", Reason: err.Error()}
	}
	client := &Client{
		credentials: cfg.Credentials(),
		baseURL:     cfg.BaseURL(),
		timeout:     cfg.RequestTimeout(),
		transport:   transport,
		tokenSigner: tokenSigner.ForParam(ParamChecksum),
		noRegSigner: noRegSigner.ForParam(ParamAppCheck),
		clock:       SystemClock{},
		ids:         UUIDGenerator{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(client)
	}
	return client, nil
}

func (c *Client) AppID() string {
	if c == nil {
		return ""
	}
	return c.credentials.AppID
}

// SignerFor returns the signer used for the given flow.
func (c *Client) SignerFor(flow Flow) *Signer {
	if c == nil {
		return nil
	}
	if flow == FlowNoReg {
		return c.noRegSigner
	}
	return c.tokenSigner
}

// Call signs params, sends them and classifies the response. kin is only
// used when params carry a TOKEN.
func (c *Client) Call(ctx context.Context, endpoint Endpoint, params map[string]string, kin string) (Response, error) {
	if c == nil {
		return Response{}, &ConfigurationError{Field: "client", Reason: "is nil"}
	}
	if endpoint.Redirect {
		return Response{}, &InvalidInputError{Field: "endpoint", Reason: endpoint.Name + " is a redirect endpoint"}
	}
	target, signed, err := c.prepare(endpoint, params, kin)
	if err != nil {
		return Response{}, err
	}

	startedAt := time.Now()
	resp, err := c.transport.Do(ctx, TransportRequest{
		Method:  endpoint.Method,
		URL:     target,
		Form:    signed,
		Timeout: c.timeout,
	})
	if err != nil {
		err = classifyTransportError(ctx, endpoint.Name, err)
		c.logExchange(ctx, endpoint, signed, 0, time.Since(startedAt), err)
		return Response{}, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err = &HTTPStatusError{Endpoint: endpoint.Name, StatusCode: resp.StatusCode, Body: truncateBody(resp.Body)}
		c.logExchange(ctx, endpoint, signed, resp.StatusCode, time.Since(startedAt), err)
		return Response{}, err
	}

	decoded := decodeResponse(endpoint.Name, resp.Body)
	c.logExchange(ctx, endpoint, signed, resp.StatusCode, time.Since(startedAt), decoded.err)
	if decoded.kind != responseOK {
		return Response{}, decoded.err
	}
	return decoded.response, nil
}

// SignedURL builds a provider-hosted page URL for redirect endpoints.
func (c *Client) SignedURL(endpoint Endpoint, params map[string]string, kin string) (string, error) {
	if c == nil {
		return "", &ConfigurationError{Field: "client", Reason: "is nil"}
	}
	if !endpoint.Redirect {
		return "", &InvalidInputError{Field: "endpoint", Reason: endpoint.Name + " is not a redirect endpoint"}
	}
	target, signed, err := c.prepare(endpoint, params, kin)
	if err != nil {
		return "", err
	}
	return target + "?" + signed.Encode(), nil
}

func (c *Client) prepare(endpoint Endpoint, params map[string]string, kin string) (string, url.Values, error) {
	if err := c.credentials.Validate(); err != nil {
		return "", nil, err
	}
	if err := endpoint.Validate(); err != nil {
		return "", nil, err
	}
	target := c.baseURL + endpoint.Path
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" || !strings.EqualFold(parsed.Scheme, "https") {
		return "", nil, &InvalidInputError{Field: "endpoint", Reason: "resolved url is not a valid https url"}
	}

	full := make(map[string]string, len(params)+3)
	for key, value := range params {
		full[key] = value
	}
	if _, ok := full[ParamAppID]; !ok {
		full[ParamAppID] = c.credentials.AppID
	}
	full[ParamRequestID] = c.ids.NewID()
	full[ParamTimestamp] = strconv.FormatInt(c.clock.Now().Unix(), 10)
	delete(full, ParamChecksum)
	delete(full, ParamAppCheck)

	signer := c.SignerFor(endpoint.Flow)
	digest, err := signer.Sign(full, kin)
	if err != nil {
		return "", nil, err
	}
	values := url.Values{}
	for key, value := range full {
		values.Set(key, value)
	}
	values.Set(endpoint.SignatureParam(), digest)
	return parsed.String(), values, nil
}

func (c *Client) logExchange(ctx context.Context, endpoint Endpoint, values url.Values, status int, duration time.Duration, err error) {
	if c.sink == nil {
		return
	}
	flat := make(map[string]string, len(values))
	for key := range values {
		flat[key] = values.Get(key)
	}
	level := LogLevelDebug
	if err != nil {
		level = LogLevelWarn
		var mismatch *SignatureMismatchError
		if errors.As(err, &mismatch) {
			level = LogLevelError
		}
	}
	c.sink.LogExchange(ctx, RequestLogEntry{
		Endpoint:   endpoint.Name,
		Params:     RedactParams(flat),
		Level:      level,
		StatusCode: status,
		Duration:   duration,
		Err:        err,
	})
}

func classifyTransportError(ctx context.Context, endpoint string, err error) error {
	if errors.Is(err, ErrConfiguration) {
		return err
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Endpoint == "" {
			copied := *transportErr
			copied.Endpoint = endpoint
			return &copied
		}
		return transportErr
	}
	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		if malformed.Endpoint == "" {
			copied := *malformed
			copied.Endpoint = endpoint
			return &copied
		}
		return malformed
	}
	timeout := errors.Is(err, context.DeadlineExceeded)
	if ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		timeout = true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &TransportError{Endpoint: endpoint, Timeout: timeout, Cause: err}
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit])
	}
	return string(body)
}
