package mega

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// Client is the low-level, sequence-numbered command channel to MEGA's
// `cs` endpoint. It has no notion of a logged-in session: every command
// batch is self-contained, per spec.md §1's Non-goal of authenticated
// sessions.
//
// Grounded on the teacher's Mega struct and its sn field plus
// api_request method; here it is split out as its own type since this
// client carries no FS/session state to go alongside it.
type Client struct {
	config
	sn int64 // accessed only via sync/atomic; shared across concurrent Execute calls
}

// NewClient builds a Client with an API-seeded random sequence number,
// mirroring the teacher's New().
func NewClient(opts ...Option) *Client {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	max := big.NewInt(100000)
	seed, err := rand.Int(rand.Reader, max)
	sn := int64(0)
	if err == nil {
		sn = seed.Int64()
	}

	return &Client{config: cfg, sn: sn}
}

// retryDelay is the backoff before retrying an EAGAIN response: spec.md
// §4.4 calls for 250ms * 2^attempt.
func retryDelay(attempt int) time.Duration {
	return 250 * time.Millisecond * time.Duration(uint64(1)<<uint(attempt))
}

// Execute posts commands as a single batch request and decodes the
// response array. node, if non-nil, is sent as the `n` query parameter
// scoping the batch to one node's context, as MEGA's `cs` endpoint
// expects for node-addressed commands.
//
// Grounded on the teacher's api_request: sequence number query param,
// retry loop, and response-prefix sniffing, reworked so that only
// EAGAIN (spec.md §4.4) is retried and transport failures propagate
// directly rather than looping silently.
func (c *Client) Execute(ctx context.Context, commands []Command, node *string) ([]Response, error) {
	body, err := json.Marshal(commands)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command batch: %w", err)
	}

	reqID := uuid.NewString()
	logger := c.logger.With().Str("request_id", reqID).Logger()

	httpClient := c.newRetryableClient()

	for attempt := 0; ; attempt++ {
		reqURL := c.requestURL(node)
		logger.Debug().Str("url", reqURL).Int("attempt", attempt).Msg("posting command batch")

		req, err := retryablehttp.NewRequestWithContext(ctx, "POST", reqURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := httpClient.Do(req)
		atomic.AddInt64(&c.sn, 1)
		if err != nil {
			logger.Debug().Err(err).Msg("command batch request failed")
			return nil, fmt.Errorf("command batch request failed: %w", err)
		}

		raw, err := readAndClose(resp)
		if err != nil {
			return nil, err
		}

		if code, ok := soleError(raw); ok {
			if code == EAGAIN && attempt < c.retries {
				logger.Debug().Int("attempt", attempt).Msg("got EAGAIN, retrying")
				time.Sleep(retryDelay(attempt))
				continue
			}
			if code != EOK {
				return nil, &APIError{Code: code}
			}
		}

		responses, err := decodeResponseArray(raw, commands)
		if err != nil {
			return nil, err
		}
		if len(responses) != len(commands) {
			return nil, &ResponseShapeError{Expected: len(commands), Actual: len(responses)}
		}

		if hasEagain(responses) && attempt < c.retries {
			logger.Debug().Int("attempt", attempt).Msg("got EAGAIN, retrying")
			time.Sleep(retryDelay(attempt))
			continue
		}

		return responses, nil
	}
}

// hasEagain reports whether any entry of a decoded response array is an
// EAGAIN error code. MEGA retries at the whole-batch level — a command
// channel never retries only the failing entry of a multi-command batch.
func hasEagain(responses []Response) bool {
	for _, r := range responses {
		if r.IsError() && r.Code() == EAGAIN {
			return true
		}
	}
	return false
}

// readAndClose drains and closes resp.Body, rejecting non-200 statuses
// and bodies that are not a JSON array or a bare numeric error code, the
// same two shapes the teacher's api_request sniffs for.
func readAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected http status: %s", resp.Status)
	}
	if len(buf) == 0 {
		return nil, &ResponseShapeError{Reason: "empty response body"}
	}
	if buf[0] != '[' {
		if _, ok := soleError(buf); !ok {
			return nil, &ResponseShapeError{Reason: "response body was neither a json array nor a bare error code"}
		}
	}
	return buf, nil
}

func (c *Client) requestURL(node *string) string {
	q := url.Values{}
	q.Set("id", fmt.Sprintf("%d", atomic.LoadInt64(&c.sn)%100000))
	if node != nil {
		q.Set("n", *node)
	}
	return c.baseURL + "?" + q.Encode()
}
