package payment

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
)

const usdcDecimals = 6

var ErrUnsupportedNetwork = errors.New("unsupported x402 network")

// usdc contract per supported network
var usdcAssets = map[string]string{
	"base-sepolia": "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	"base":         "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
}

type RequirementsOpts func(r *Requirements)

func WithDescription(description string) RequirementsOpts {
	return func(r *Requirements) {
		r.Description = description
	}
}

func WithMimeType(mimeType string) RequirementsOpts {
	return func(r *Requirements) {
		r.MimeType = mimeType
	}
}

func WithMaxTimeout(seconds int) RequirementsOpts {
	return func(r *Requirements) {
		if seconds > 0 {
			r.MaxTimeoutSeconds = seconds
		}
	}
}

// NewRequirements prices a resource at price USDC paid to payTo on network.
func NewRequirements(network, payTo string, price float64, opts ...RequirementsOpts) (Requirements, error) {
	asset, ok := usdcAssets[network]
	if !ok {
		return Requirements{}, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}
	if price <= 0 {
		return Requirements{}, fmt.Errorf("price must be positive, got %v", price)
	}

	r := Requirements{
		Scheme:            SchemeExact,
		Network:           network,
		MaxAmountRequired: AtomicAmount(price),
		Description:       "Generate a map poster",
		MimeType:          "application/json",
		PayTo:             payTo,
		MaxTimeoutSeconds: 60,
		Asset:             asset,
		Extra:             &Extra{Name: "USDC", Version: "2"},
	}
	for _, o := range opts {
		o(&r)
	}
	return r, nil
}

// AtomicAmount converts a USDC price into token base units, 0.75 becomes "750000".
func AtomicAmount(price float64) string {
	return strconv.FormatInt(int64(math.Round(price*math.Pow10(usdcDecimals))), 10)
}

// ForRequest returns a copy bound to the requested resource url.
func (r Requirements) ForRequest(req *http.Request) Requirements {
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	if proto := req.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		scheme = proto
	}
	r.Resource = fmt.Sprintf("%s://%s%s", scheme, req.Host, req.URL.Path)
	return r
}
