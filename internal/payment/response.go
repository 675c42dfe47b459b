package payment

import (
	"errors"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Dan9191/scheme-service/internal/models"
)

var (
	// ErrNoRedirectURL is returned when a well-formed gateway reply carries no usable URL.
	ErrNoRedirectURL = errors.New("no redirect URL")
	// ErrUnrecognizedShape is returned when the reply is not a JSON object at all.
	ErrUnrecognizedShape = errors.New("unrecognized gateway response shape")
)

// GatewayResponse is one of the known gateway reply shapes:
// PrimaryResponse or LegacyResponse.
type GatewayResponse interface {
	Instruction() models.RedirectInstruction
	isGatewayResponse()
}

// PrimaryResponse is {"session": {"order_id": ..., "payment_links": {"web": ...}}}.
type PrimaryResponse struct {
	OrderID string
	WebURL  string
}

func (r PrimaryResponse) Instruction() models.RedirectInstruction {
	return models.RedirectInstruction{URL: r.WebURL, OrderID: r.OrderID}
}

func (PrimaryResponse) isGatewayResponse() {}

// LegacyResponse is {"data": "<url>", "order_id": ...} with the order id
// possibly nested.
type LegacyResponse struct {
	URL     string
	OrderID string
}

func (r LegacyResponse) Instruction() models.RedirectInstruction {
	return models.RedirectInstruction{URL: r.URL, OrderID: r.OrderID}
}

func (LegacyResponse) isGatewayResponse() {}

var (
	primaryOrderPaths = []string{"session.order_id", "session.id", "order_id"}
	legacyOrderPaths  = []string{"order_id", "orderId", "session.order_id", "details.order_id", "result.order_id"}
)

// ParseResponse classifies a gateway reply.
func ParseResponse(body []byte) (GatewayResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrUnrecognizedShape
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, ErrUnrecognizedShape
	}

	if web := root.Get("session.payment_links.web"); usableURL(web) {
		return PrimaryResponse{WebURL: strings.TrimSpace(web.String()), OrderID: first(root, primaryOrderPaths)}, nil
	}
	if data := root.Get("data"); usableURL(data) {
		return LegacyResponse{URL: strings.TrimSpace(data.String()), OrderID: first(root, legacyOrderPaths)}, nil
	}
	return nil, ErrNoRedirectURL
}

// NormalizeResponse reduces a gateway reply to a redirect instruction.
func NormalizeResponse(body []byte) (*models.RedirectInstruction, error) {
	resp, err := ParseResponse(body)
	if err != nil {
		return nil, err
	}
	in := resp.Instruction()
	return &in, nil
}

func usableURL(v gjson.Result) bool {
	if v.Type != gjson.String {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(v.String()))
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

func first(root gjson.Result, paths []string) string {
	for _, p := range paths {
		v := root.Get(p)
		if v.Exists() && (v.Type == gjson.String || v.Type == gjson.Number) && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
