package payment

import "encoding/json"

const (
	X402Version = 1

	SchemeExact = "exact"

	PaymentHeader         = "X-PAYMENT"
	PaymentResponseHeader = "X-PAYMENT-RESPONSE"
)

// Requirements describes how a resource is paid for, the x402 PaymentRequirements.
type Requirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	Resource          string `json:"resource"`
	Description       string `json:"description"`
	MimeType          string `json:"mimeType"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
	Asset             string `json:"asset"`
	Extra             *Extra `json:"extra,omitempty"`
}

// Extra carries the EIP-712 domain of the asset.
type Extra struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RequiredResponse is the body of a 402 answer.
type RequiredResponse struct {
	X402Version int            `json:"x402Version"`
	Error       string         `json:"error"`
	Accepts     []Requirements `json:"accepts"`
}

// Payload is the decoded X-PAYMENT header.
type Payload struct {
	X402Version int          `json:"x402Version" validate:"eq=1"`
	Scheme      string       `json:"scheme" validate:"required"`
	Network     string       `json:"network" validate:"required"`
	Payload     ExactPayload `json:"payload" validate:"required"`
}

// ExactPayload is the payload of the exact scheme, an EIP-3009 transferWithAuthorization.
type ExactPayload struct {
	Signature     string        `json:"signature" validate:"required,hex_bytes"`
	Authorization Authorization `json:"authorization" validate:"required"`
}

type Authorization struct {
	From        string `json:"from" validate:"required,eth_addr"`
	To          string `json:"to" validate:"required,eth_addr"`
	Value       string `json:"value" validate:"required,uint_string"`
	ValidAfter  string `json:"validAfter" validate:"required,uint_string"`
	ValidBefore string `json:"validBefore" validate:"required,uint_string"`
	Nonce       string `json:"nonce" validate:"required,hex_bytes=32"`
}

type facilitatorRequest struct {
	X402Version         int             `json:"x402Version"`
	PaymentPayload      json.RawMessage `json:"paymentPayload"`
	PaymentRequirements Requirements    `json:"paymentRequirements"`
}

type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer,omitempty"`
}
