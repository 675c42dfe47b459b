// Package backend is the client for the app's core backend API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/Dan9191/scheme-service/internal/config"
	"github.com/Dan9191/scheme-service/internal/metrics"
	"github.com/Dan9191/scheme-service/internal/models"
)

const maxBodyBytes = 4 << 20

// Client handles calls to the core backend and the payment gateway
type Client struct {
	baseURL    string
	gatewayURL string
	token      string
	client     *http.Client
	log        *logrus.Logger
}

// EnrollmentRequest is the body submitted to create an investment record.
type EnrollmentRequest struct {
	UserID   string          `json:"user_id"`
	SchemeID string          `json:"scheme_id"`
	ChitID   string          `json:"chit_id"`
	BranchID string          `json:"branch_id,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
}

// NewClient initializes a new backend client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BackendURL, "/"),
		gatewayURL: cfg.GatewayURL,
		token:      cfg.UpstreamToken,
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		log: log,
	}
}

// FetchSchemes retrieves the full scheme catalog
func (c *Client) FetchSchemes(ctx context.Context) ([]models.Scheme, error) {
	body, err := c.get(ctx, "schemes", "/schemes")
	if err != nil {
		return nil, err
	}
	raw, ok := listPayload(body, "data", "schemes", "data.schemes")
	if !ok {
		return nil, fmt.Errorf("unexpected catalog payload")
	}
	var schemes []models.Scheme
	if err := json.Unmarshal([]byte(raw), &schemes); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return schemes, nil
}

// FetchLimits retrieves the amount limit records of one scheme
func (c *Client) FetchLimits(ctx context.Context, schemeID string) ([]models.LimitRecord, error) {
	body, err := c.get(ctx, "limits", "/schemes/"+url.PathEscape(schemeID)+"/limits")
	if err != nil {
		return nil, err
	}
	raw, ok := listPayload(body, "data", "limits")
	if !ok {
		return nil, nil
	}
	var records []models.LimitRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("failed to decode limits: %w", err)
	}
	return records, nil
}

// FetchBranches retrieves the branch list
func (c *Client) FetchBranches(ctx context.Context) ([]models.Branch, error) {
	body, err := c.get(ctx, "branches", "/branches")
	if err != nil {
		return nil, err
	}
	raw, ok := listPayload(body, "data", "branches")
	if !ok {
		return nil, nil
	}
	var branches []models.Branch
	if err := json.Unmarshal([]byte(raw), &branches); err != nil {
		return nil, fmt.Errorf("failed to decode branches: %w", err)
	}
	return branches, nil
}

// FetchKYCStatus reports whether the user has completed KYC
func (c *Client) FetchKYCStatus(ctx context.Context, userID string) (bool, error) {
	body, err := c.get(ctx, "kyc", "/kyc/"+url.PathEscape(userID))
	if err != nil {
		return false, err
	}
	return kycCompleted(body), nil
}

// FetchHome retrieves the aggregated home screen bundle
func (c *Client) FetchHome(ctx context.Context) (*models.HomeBundle, error) {
	body, err := c.get(ctx, "home", "/home")
	if err != nil {
		return nil, err
	}
	payload := gjson.GetBytes(body, "data")
	if !payload.IsObject() {
		payload = gjson.ParseBytes(body)
	}
	home := &models.HomeBundle{}
	if err := json.Unmarshal([]byte(payload.Raw), home); err != nil {
		return nil, fmt.Errorf("failed to decode home bundle: %w", err)
	}
	return home, nil
}

// CreateEnrollment submits a new investment record and returns its identifiers
func (c *Client) CreateEnrollment(ctx context.Context, req EnrollmentRequest) (*models.Enrollment, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal enrollment: %w", err)
	}
	body, err := c.do(ctx, "enrollment", http.MethodPost, c.baseURL+"/investments", bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}
	return parseEnrollment(body), nil
}

// InitiatePayment submits a form-encoded initiation request to the gateway and
// returns the raw response body for normalization by the caller.
func (c *Client) InitiatePayment(ctx context.Context, form url.Values) ([]byte, error) {
	return c.do(ctx, "payment_init", http.MethodPost, c.gatewayURL, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func (c *Client) get(ctx context.Context, endpoint, path string) ([]byte, error) {
	return c.do(ctx, endpoint, http.MethodGet, c.baseURL+path, nil, "")
}

func (c *Client) do(ctx context.Context, endpoint, method, target string, body io.Reader, contentType string) (data []byte, err error) {
	defer func() { metrics.RecordUpstreamCall(endpoint, err) }()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	c.log.Debugf("Backend %s response: %d bytes", endpoint, len(data))
	return data, nil
}

// listPayload finds a JSON array either at the top level or under one of paths.
// A single object under a path is wrapped as a one-element list.
func listPayload(body []byte, paths ...string) (string, bool) {
	root := gjson.ParseBytes(body)
	if root.IsArray() {
		return root.Raw, true
	}
	for _, p := range paths {
		v := root.Get(p)
		if v.IsArray() {
			return v.Raw, true
		}
		if v.IsObject() {
			return "[" + v.Raw + "]", true
		}
	}
	return "", false
}

var completedStatuses = map[string]bool{
	"completed": true,
	"complete":  true,
	"verified":  true,
	"approved":  true,
}

// kycCompleted is true on an explicit completed status or a non-empty data
// payload. A payload carrying its own non-completed status does not count.
func kycCompleted(body []byte) bool {
	root := gjson.ParseBytes(body)
	if completedStatuses[strings.ToLower(root.Get("status").String())] {
		return true
	}
	data := root.Get("data")
	if !data.Exists() || data.Type == gjson.Null {
		return false
	}
	if status := data.Get("status"); data.IsObject() && status.Exists() {
		return completedStatuses[strings.ToLower(status.String())]
	}
	switch {
	case data.IsObject():
		return len(data.Map()) > 0
	case data.IsArray():
		return len(data.Array()) > 0
	case data.Type == gjson.String:
		return data.String() != ""
	default:
		return data.Bool()
	}
}

var (
	accountNumberPaths = []string{"accountNumber", "account_number", "data.accountNumber", "data.account_number", "data.investment.accountNumber", "data.investment.account_number", "data.data.accountNumber"}
	accountNoPaths     = []string{"account_no", "data.account_no", "data.investment.account_no", "data.data.account_no"}
	investmentIDPaths  = []string{"investment_id", "investmentId", "data.investment_id", "data.investmentId", "data.investment.id", "data.data.id", "data.id", "id"}
)

func parseEnrollment(body []byte) *models.Enrollment {
	return &models.Enrollment{
		AccountNumber: firstString(body, accountNumberPaths),
		AccountNo:     firstString(body, accountNoPaths),
		InvestmentID:  firstString(body, investmentIDPaths),
	}
}

func firstString(body []byte, paths []string) string {
	for _, p := range paths {
		v := gjson.GetBytes(body, p)
		if v.Exists() && v.Type != gjson.Null && !v.IsObject() && !v.IsArray() {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}
