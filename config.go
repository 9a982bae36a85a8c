package mega

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// Default settings, extending the teacher's API_URL/RETRIES/TIMEOUT
// constants to the read-only surface this client exposes.
const (
	defaultAPIURL  = "https://g.api.mega.co.nz/cs"
	defaultRetries = 3
	defaultTimeout = time.Second * 10
)

// config holds the tunables a Client is built from. Grounded on the
// teacher's config struct and its SetAPIUrl/SetRetries/SetTimeOut
// pattern, reshaped as functional options per spec.md §9's preference
// for options over mutation of an already-constructed client.
type config struct {
	baseURL         string
	retries         int
	timeout         time.Duration
	httpClient      *retryablehttp.Client
	logger          zerolog.Logger
	parallelWorkers int
}

func newConfig() config {
	return config{
		baseURL:    defaultAPIURL,
		retries:    defaultRetries,
		timeout:    defaultTimeout,
		httpClient: nil,
		logger:     zerolog.Nop(),
	}
}

// Option configures a Client. See WithAPIURL, WithRetries, WithTimeout,
// WithHTTPClient and WithLogger.
type Option func(*config)

// WithAPIURL overrides the `cs` endpoint base URL, e.g. to pin a
// regional MEGA API host the way the teacher's SetAPIUrl did.
func WithAPIURL(u string) Option {
	return func(c *config) { c.baseURL = u }
}

// WithRetries sets how many times a command batch is retried after an
// EAGAIN response before it surfaces as an error. Spec default is 3.
func WithRetries(r int) Option {
	return func(c *config) { c.retries = r }
}

// WithTimeout sets the per-request HTTP timeout. It has no effect on a
// client supplied through WithHTTPClient.
func WithTimeout(t time.Duration) Option {
	return func(c *config) { c.timeout = t }
}

// WithHTTPClient overrides the underlying *http.Client used by the
// retrying transport, e.g. to inject a proxy or a test server's client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		if c.httpClient == nil {
			c.httpClient = retryablehttp.NewClient()
		}
		c.httpClient.HTTPClient = hc
	}
}

// WithLogger sets the zerolog.Logger command batches are traced through;
// downloads are not logged. The default is a disabled logger, so a Client is silent
// until a caller opts in.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

func (c config) newRetryableClient() *retryablehttp.Client {
	if c.httpClient != nil {
		c.httpClient.RetryMax = 0 // the EAGAIN retry loop in client.go owns retries, not the transport
		c.httpClient.Logger = nil
		return c.httpClient
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.Logger = nil
	rc.HTTPClient.Timeout = c.timeout
	return rc
}
