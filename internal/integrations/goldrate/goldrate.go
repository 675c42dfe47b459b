package goldrate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/scheme-service/internal/config"
	"github.com/Dan9191/scheme-service/internal/metrics"
)

// DefaultPurity is the purity used for weight conversions.
const DefaultPurity = "22K"

// Client handles integration with the published metal rate feed
type Client struct {
	url    string
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new gold rate client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url: cfg.GoldRateURL,
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		log: log,
	}
}

// sendRequest fetches the raw XML feed
func (c *Client) sendRequest(ctx context.Context) (body []byte, err error) {
	defer func() { metrics.RecordUpstreamCall("gold_rate", err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	c.log.Debugf("Gold rate XML response: %s", string(body))

	return body, nil
}

// parseXMLResponse extracts the per-gram gold price for purity.
// Expected shape: <rates><rate metal="gold" purity="22K"><price>6150.50</price></rate></rates>
func parseXMLResponse(rawBody []byte, purity string) (float64, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return 0, fmt.Errorf("failed to parse XML: %v", err)
	}

	rates := doc.FindElements("//rate[@metal='gold']")
	if len(rates) == 0 {
		return 0, fmt.Errorf("no gold rate data found in XML")
	}

	chosen := rates[0]
	for _, r := range rates {
		if strings.EqualFold(r.SelectAttrValue("purity", ""), purity) {
			chosen = r
			break
		}
	}

	priceElement := chosen.FindElement("./price")
	if priceElement == nil {
		return 0, fmt.Errorf("price element not found in XML")
	}

	rate, err := strconv.ParseFloat(strings.TrimSpace(priceElement.Text()), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse rate: %v", err)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("non-positive gold rate: %v", rate)
	}

	return rate, nil
}

// GetGoldRate retrieves the current per-gram gold rate
func (c *Client) GetGoldRate(ctx context.Context) (float64, error) {
	body, err := c.sendRequest(ctx)
	if err != nil {
		return 0, err
	}

	rate, err := parseXMLResponse(body, DefaultPurity)
	if err != nil {
		return 0, err
	}

	c.log.Infof("Retrieved gold rate: %.2f per gram (%s)", rate, DefaultPurity)
	return rate, nil
}
