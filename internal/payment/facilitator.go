package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/maptoposter/poster-api/pkg/log"
)

const defaultFacilitatorURL = "https://x402.org/facilitator"

// Facilitator verifies and settles payments on behalf of the service.
type Facilitator interface {
	Verify(ctx context.Context, payment []byte, req Requirements) (*VerifyResponse, error)
	Settle(ctx context.Context, payment []byte, req Requirements) (*SettleResponse, error)
}

type FacilitatorOpts func(c *FacilitatorClient)

func WithFacilitatorURL(url string) FacilitatorOpts {
	return func(c *FacilitatorClient) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

func WithFacilitatorTimeout(timeout time.Duration) FacilitatorOpts {
	return func(c *FacilitatorClient) {
		c.http.HTTPClient.Timeout = timeout
	}
}

func WithFacilitatorRetryMax(retryMax int) FacilitatorOpts {
	return func(c *FacilitatorClient) {
		c.http.RetryMax = retryMax
	}
}

// FacilitatorClient talks to an x402 facilitator over http.
type FacilitatorClient struct {
	baseURL string
	http    *retryablehttp.Client
}

func NewFacilitatorClient(opts ...FacilitatorOpts) *FacilitatorClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 30 * time.Second
	rc.Logger = log.NewLeveledLogger("facilitator_http")

	c := &FacilitatorClient{baseURL: defaultFacilitatorURL, http: rc}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Verify checks the payment without moving funds. payment is the decoded X-PAYMENT json.
func (c *FacilitatorClient) Verify(ctx context.Context, payment []byte, req Requirements) (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := c.post(ctx, "/verify", payment, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Settle submits the payment on chain.
func (c *FacilitatorClient) Settle(ctx context.Context, payment []byte, req Requirements) (*SettleResponse, error) {
	var resp SettleResponse
	if err := c.post(ctx, "/settle", payment, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *FacilitatorClient) post(ctx context.Context, path string, payment []byte, req Requirements, into any) error {
	body, err := json.Marshal(facilitatorRequest{
		X402Version:         X402Version,
		PaymentPayload:      payment,
		PaymentRequirements: req,
	})
	if err != nil {
		return err
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "calling facilitator %s", path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrapf(err, "reading facilitator %s response", path)
	}

	// facilitators answer 400 with a regular body for rejected payments
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("facilitator %s answered %d: %s", path, resp.StatusCode, string(data))
	}

	if err := json.Unmarshal(data, into); err != nil {
		return errors.Wrapf(err, "decoding facilitator %s response", path)
	}

	zap.S().Named("payment").Debugw("facilitator answered", "path", path, "status", resp.StatusCode)
	return nil
}
