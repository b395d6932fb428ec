package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	api "github.com/maptoposter/poster-api/api/v1alpha1"
	"github.com/maptoposter/poster-api/internal/handlers/validator"
	"github.com/maptoposter/poster-api/pkg/metrics"
	"github.com/maptoposter/poster-api/pkg/middleware"
)

const (
	stageDecode = "decode"
	stageVerify = "verify"
	stageSettle = "settle"

	resultAccepted = "accepted"
	resultRejected = "rejected"
	resultError    = "error"
)

// Gate is an http middleware charging every request through an x402 facilitator.
// The payment is verified before the handler runs and settled only when the handler
// answered with a 2xx status.
type Gate struct {
	requirements Requirements
	facilitator  Facilitator
	validator    *validator.Validator
	unsettled    UnsettledFunc
}

// UnsettledFunc is told about a handler answer which was withheld because its payment
// could not be settled. body is the buffered handler response.
type UnsettledFunc func(ctx context.Context, body []byte, reason string)

type GateOption func(g *Gate)

// WithUnsettled registers fn to undo the work of requests whose settlement failed.
func WithUnsettled(fn UnsettledFunc) GateOption {
	return func(g *Gate) {
		g.unsettled = fn
	}
}

func NewGate(requirements Requirements, facilitator Facilitator, opts ...GateOption) *Gate {
	g := &Gate{
		requirements: requirements,
		facilitator:  facilitator,
		validator:    validator.NewValidator().Register(validator.NewPaymentValidationRules()...),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gate) Requirements() Requirements {
	return g.requirements
}

func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := zap.S().Named("payment").With("request_id", middleware.RequestIDFromContext(r.Context()))
		req := g.requirements.ForRequest(r)

		header := strings.TrimSpace(r.Header.Get(PaymentHeader))
		if header == "" {
			g.paymentRequired(w, r, req, "X-PAYMENT header is required")
			return
		}

		raw, payload, err := g.decode(header)
		if err != nil {
			metrics.IncreasePaymentMetric(stageDecode, resultRejected)
			g.paymentRequired(w, r, req, err.Error())
			return
		}
		if payload.Scheme != req.Scheme || payload.Network != req.Network {
			metrics.IncreasePaymentMetric(stageDecode, resultRejected)
			g.paymentRequired(w, r, req, fmt.Sprintf("unsupported payment scheme %q on network %q", payload.Scheme, payload.Network))
			return
		}

		verify, err := g.facilitator.Verify(r.Context(), raw, req)
		if err != nil {
			metrics.IncreasePaymentMetric(stageVerify, resultError)
			logger.Errorw("payment verification failed", "error", err)
			facilitatorUnavailable(w, r)
			return
		}
		if !verify.IsValid {
			metrics.IncreasePaymentMetric(stageVerify, resultRejected)
			logger.Infow("payment rejected", "reason", verify.InvalidReason, "payer", verify.Payer)
			g.paymentRequired(w, r, req, reason(verify.InvalidReason, "payment verification failed"))
			return
		}
		metrics.IncreasePaymentMetric(stageVerify, resultAccepted)

		buffered := newBufferedResponse()
		next.ServeHTTP(buffered, r)
		if buffered.status == 0 {
			buffered.status = http.StatusOK
		}

		if buffered.status < 200 || buffered.status >= 300 {
			buffered.flush(w)
			return
		}

		settle, err := g.facilitator.Settle(r.Context(), raw, req)
		if err != nil {
			metrics.IncreasePaymentMetric(stageSettle, resultError)
			logger.Errorw("payment settlement failed", "error", err)
			g.undo(r, buffered, "payment settlement failed")
			facilitatorUnavailable(w, r)
			return
		}
		if !settle.Success {
			metrics.IncreasePaymentMetric(stageSettle, resultRejected)
			logger.Warnw("payment settlement rejected", "reason", settle.ErrorReason, "payer", settle.Payer)
			g.undo(r, buffered, reason(settle.ErrorReason, "payment settlement failed"))
			g.paymentRequired(w, r, req, reason(settle.ErrorReason, "payment settlement failed"))
			return
		}
		metrics.IncreasePaymentMetric(stageSettle, resultAccepted)

		payer := settle.Payer
		if payer == "" {
			payer = payload.Payload.Authorization.From
		}
		metrics.UniquePayersPerWeek.Add(payer)
		logger.Infow("payment settled", "payer", payer, "transaction", settle.Transaction, "network", settle.Network)

		encoded, err := json.Marshal(settle)
		if err == nil {
			buffered.Header().Set(PaymentResponseHeader, base64.StdEncoding.EncodeToString(encoded))
			buffered.Header().Add("Access-Control-Expose-Headers", PaymentResponseHeader)
		}
		buffered.flush(w)
	})
}

func (g *Gate) undo(r *http.Request, buffered *bufferedResponse, reason string) {
	if g.unsettled == nil {
		return
	}
	g.unsettled(context.WithoutCancel(r.Context()), buffered.body.Bytes(), reason)
}

// decode returns the json payload of the header and its parsed form.
func (g *Gate) decode(header string) ([]byte, *Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		// some clients drop the padding
		if raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(header, "=")); err != nil {
			return nil, nil, fmt.Errorf("invalid X-PAYMENT header: not base64 encoded")
		}
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, fmt.Errorf("invalid X-PAYMENT header: malformed payment payload")
	}
	if err := g.validator.Struct(payload); err != nil {
		return nil, nil, fmt.Errorf("invalid X-PAYMENT header: %s", err)
	}
	return raw, &payload, nil
}

func (g *Gate) paymentRequired(w http.ResponseWriter, r *http.Request, req Requirements, msg string) {
	render.Status(r, http.StatusPaymentRequired)
	render.JSON(w, r, RequiredResponse{
		X402Version: X402Version,
		Error:       msg,
		Accepts:     []Requirements{req},
	})
}

func facilitatorUnavailable(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusBadGateway)
	render.JSON(w, r, api.Error{
		Message:   "payment facilitator unavailable",
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
}

func reason(r, fallback string) string {
	if r == "" {
		return fallback
	}
	return r
}

// bufferedResponse holds the handler answer until the payment is settled.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header {
	return b.header
}

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) flush(w http.ResponseWriter) {
	for k, v := range b.header {
		w.Header()[k] = v
	}
	w.WriteHeader(b.status)
	_, _ = w.Write(b.body.Bytes())
}
