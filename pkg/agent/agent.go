// Package agent is a thin client for the credential agent's operator API.
package agent

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"golang.org/x/net/html"

	"github.com/velocitycareerlabs/data-loader/pkg/disclosure"
	"github.com/velocitycareerlabs/data-loader/pkg/offer"
)

const apiBasePath = "/operator-api/v0.8"

// Error is a failed operator-API call: the HTTP status plus whatever
// diagnostic detail the response carried (remote error code, body
// excerpt, and the page title when a proxy returned an HTML error page).
type Error struct {
	Status int
	Code   string
	Body   string
	Title  string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("credential agent returned HTTP %d", e.Status)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Title != "" {
		msg += ": " + e.Title
	} else if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Tenant is the subset of the tenant resource the loader needs.
type Tenant struct {
	ID  string `json:"id"`
	DID string `json:"did"`
}

// Client talks to one credential-agent endpoint with one bearer token.
type Client struct {
	base  string
	token string
	http  *retryablehttp.Client
}

// New builds a client for <endpoint>/operator-api/v0.8. Setting the
// NODE_TLS_REJECT_UNAUTHORIZED environment variable to "0" disables TLS
// certificate verification, matching the node runtime convention the
// agent's operators already use.
func New(endpoint, authToken string) *Client {
	rc := retryablehttp.NewClient()
	rc.Logger = log.New(io.Discard, "", 0)
	// Failed calls are reported, not retried.
	rc.RetryMax = 0

	if os.Getenv("NODE_TLS_REJECT_UNAUTHORIZED") == "0" {
		rc.HTTPClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		base:  strings.TrimSuffix(endpoint, "/") + apiBasePath,
		token: authToken,
		http:  rc,
	}
}

// GetTenant fetches a tenant by id or DID.
func (c *Client) GetTenant(tenantOrDID string) (Tenant, error) {
	body, err := c.do(http.MethodGet, "/tenants/"+url.PathEscape(tenantOrDID), nil)
	if err != nil {
		return Tenant{}, err
	}
	var t Tenant
	if err := json.Unmarshal(body, &t); err != nil {
		return Tenant{}, fmt.Errorf("decoding tenant: %w", err)
	}
	return t, nil
}

// CreateDisclosure creates a disclosure and returns the created resource,
// id included.
func (c *Client) CreateDisclosure(tenantID string, req disclosure.Request) (disclosure.Request, error) {
	body, err := c.do(http.MethodPost, "/tenants/"+url.PathEscape(tenantID)+"/disclosures", req)
	if err != nil {
		return disclosure.Request{}, err
	}
	var created disclosure.Request
	if err := json.Unmarshal(body, &created); err != nil {
		return disclosure.Request{}, fmt.Errorf("decoding created disclosure: %w", err)
	}
	return created, nil
}

// GetDisclosures lists the tenant's disclosures, optionally filtered by
// vendor endpoint tag.
func (c *Client) GetDisclosures(tenantID, vendorEndpoint string) ([]disclosure.Request, error) {
	path := "/tenants/" + url.PathEscape(tenantID) + "/disclosures"
	if vendorEndpoint != "" {
		path += "?vendorEndpoint=" + url.QueryEscape(vendorEndpoint)
	}
	body, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var list []disclosure.Request
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decoding disclosures: %w", err)
	}
	return list, nil
}

// GetDisclosure fetches one disclosure by id.
func (c *Client) GetDisclosure(tenantID, disclosureID string) (disclosure.Request, error) {
	body, err := c.do(http.MethodGet, "/tenants/"+url.PathEscape(tenantID)+"/disclosures/"+url.PathEscape(disclosureID), nil)
	if err != nil {
		return disclosure.Request{}, err
	}
	var d disclosure.Request
	if err := json.Unmarshal(body, &d); err != nil {
		return disclosure.Request{}, fmt.Errorf("decoding disclosure: %w", err)
	}
	return d, nil
}

// CreateExchange creates an issuing exchange and returns its id.
func (c *Client) CreateExchange(tenantID string, exchange offer.Exchange) (string, error) {
	body, err := c.do(http.MethodPost, "/tenants/"+url.PathEscape(tenantID)+"/exchanges", exchange)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "id").Str
	if id == "" {
		return "", fmt.Errorf("exchange response carried no id: %s", excerpt(string(body)))
	}
	return id, nil
}

// AddOffer adds a credential offer to an exchange and returns the offer id.
func (c *Client) AddOffer(tenantID, exchangeID string, o offer.Offer) (string, error) {
	body, err := c.do(http.MethodPost, "/tenants/"+url.PathEscape(tenantID)+"/exchanges/"+url.PathEscape(exchangeID)+"/offers", o)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "id").Str, nil
}

// CompleteOffers marks an exchange's offers as fully submitted.
func (c *Client) CompleteOffers(tenantID, exchangeID string) error {
	_, err := c.do(http.MethodPost, "/tenants/"+url.PathEscape(tenantID)+"/exchanges/"+url.PathEscape(exchangeID)+"/offers/complete", struct{}{})
	return err
}

// GetExchangeQRCode fetches the PNG QR code for one exchange.
func (c *Client) GetExchangeQRCode(tenantID, exchangeID string) ([]byte, error) {
	return c.do(http.MethodGet, "/tenants/"+url.PathEscape(tenantID)+"/exchanges/"+url.PathEscape(exchangeID)+"/qrcode.png", nil)
}

// GetExchangeDeepLink fetches the deep-link URI for one exchange.
func (c *Client) GetExchangeDeepLink(tenantID, exchangeID string) (string, error) {
	body, err := c.do(http.MethodGet, "/tenants/"+url.PathEscape(tenantID)+"/exchanges/"+url.PathEscape(exchangeID)+"/qrcode.uri", nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// GetDisclosureQRCode fetches the shared PNG QR code for a disclosure.
func (c *Client) GetDisclosureQRCode(tenantID, disclosureID string) ([]byte, error) {
	return c.do(http.MethodGet, "/tenants/"+url.PathEscape(tenantID)+"/disclosures/"+url.PathEscape(disclosureID)+"/qrcode.png", nil)
}

// GetDisclosureDeepLink fetches the shared deep-link URI for a disclosure.
func (c *Client) GetDisclosureDeepLink(tenantID, disclosureID string) (string, error) {
	body, err := c.do(http.MethodGet, "/tenants/"+url.PathEscape(tenantID)+"/disclosures/"+url.PathEscape(disclosureID)+"/qrcode.uri", nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *Client) do(method, path string, payload any) ([]byte, error) {
	var rawBody any
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		rawBody = b
	}

	req, err := retryablehttp.NewRequest(method, c.base+path, rawBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "*/*")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyString := string(body)
		apiErr := &Error{
			Status: resp.StatusCode,
			Body:   excerpt(bodyString),
		}
		if code := gjson.Get(bodyString, "errorCode"); code.Exists() {
			apiErr.Code = code.Str
		} else {
			apiErr.Code = gjson.Get(bodyString, "error").Str
		}
		if title, ok := htmlTitle(bodyString); ok {
			apiErr.Title = title
		}
		return nil, apiErr
	}
	return body, nil
}

func excerpt(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 512 {
		return body[:512] + "..."
	}
	return body
}

func htmlTitle(body string) (string, bool) {
	if !strings.Contains(body, "<") {
		return "", false
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", false
	}
	title, ok := findTitle(doc)
	title = strings.TrimSpace(title)
	return title, ok && title != ""
}

func findTitle(n *html.Node) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if result, ok := findTitle(c); ok {
			return result, ok
		}
	}
	return "", false
}
