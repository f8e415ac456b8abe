// Package batchdata provides a client for the BatchData property skip-trace API.
package batchdata

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Address is the property address submitted for a skip trace.
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// Client defines the skip-trace operations.
type Client interface {
	// SkipTrace looks up owner contact data for a single property address.
	// Every call costs money; callers are responsible for budget governance.
	SkipTrace(ctx context.Context, addr Address) (*Response, error)
}

// Response is the parsed skip-trace API response.
type Response struct {
	Status  Status  `json:"status"`
	Results Results `json:"results"`
}

// Status is the API-level status block.
type Status struct {
	Code int    `json:"code"`
	Text string `json:"text"`
}

// Results holds the matched persons and request metadata.
type Results struct {
	Persons []Person `json:"persons"`
	Meta    Meta     `json:"meta"`
}

// Meta carries the provider-assigned request identifier.
type Meta struct {
	RequestID string `json:"requestId"`
}

// Person is one matched individual.
type Person struct {
	Name         Name           `json:"name"`
	Emails       []Email        `json:"emails"`
	PhoneNumbers []PhoneNumber  `json:"phoneNumbers"`
	Property     PersonProperty `json:"property"`
}

// Name is a first/last name pair.
type Name struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

// Email is a single email entry.
type Email struct {
	Email string `json:"email"`
}

// PhoneNumber is a single phone entry.
type PhoneNumber struct {
	Number string `json:"number"`
}

// PersonProperty nests the owner block when the provider resolved one.
type PersonProperty struct {
	Owner Owner `json:"owner"`
}

// Owner is the resolved property owner with an optional mailing address.
type Owner struct {
	Name           Name    `json:"name"`
	MailingAddress Address `json:"mailingAddress"`
}

// OwnerName returns the best available full name for the person: the resolved
// owner block is preferred over the person's own name.
func (p Person) OwnerName() string {
	if n := p.Property.Owner.Name.full(); n != "" {
		return n
	}
	return p.Name.full()
}

func (n Name) full() string {
	return strings.TrimSpace(strings.TrimSpace(n.First) + " " + strings.TrimSpace(n.Last))
}

// FirstEmail returns the first non-empty email, or "".
func (p Person) FirstEmail() string {
	for _, e := range p.Emails {
		if e.Email != "" {
			return e.Email
		}
	}
	return ""
}

// FirstPhone returns the first non-empty phone number, or "".
func (p Person) FirstPhone() string {
	for _, ph := range p.PhoneNumbers {
		if ph.Number != "" {
			return ph.Number
		}
	}
	return ""
}

// MailingAddress formats the owner mailing address as a single line, or ""
// when the provider returned no usable street+city pair.
func (p Person) MailingAddress() string {
	m := p.Property.Owner.MailingAddress
	if m.Street == "" || m.City == "" {
		return ""
	}
	return strings.TrimSpace(m.Street + ", " + m.City + ", " + strings.TrimSpace(m.State+" "+m.Zip))
}

type request struct {
	Requests []requestItem `json:"requests"`
}

type requestItem struct {
	PropertyAddress Address `json:"propertyAddress"`
}

// Option configures the BatchData client.
type Option func(*httpClient)

// WithBaseURL sets a custom endpoint URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithRateLimit caps outbound calls per second.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a BatchData skip-trace client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.batchdata.com/api/v1/property/skip-trace",
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SkipTrace performs a single lookup. There is deliberately no retry here:
// the worker converts any failure into a terminal state, and a silent retry
// loop could double-spend the budget.
func (c *httpClient) SkipTrace(ctx context.Context, addr Address) (*Response, error) {
	if c.apiKey == "" {
		return nil, eris.New("batchdata: API key missing")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "batchdata: rate limit wait")
	}

	payload, err := json.Marshal(request{
		Requests: []requestItem{{PropertyAddress: addr}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "batchdata: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "batchdata: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "batchdata: request failed")
	}
	defer resp.Body.Close()

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, eris.Wrapf(err, "batchdata: decode response (http %d)", resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("batchdata: status %d: %s", resp.StatusCode, result.Status.Text)
	}

	// The API reports errors in the body even on HTTP 200; only a body-level
	// 200 is a successful lookup.
	if result.Status.Code != http.StatusOK {
		return nil, eris.Errorf("batchdata: api status %d: %s", result.Status.Code, result.Status.Text)
	}

	return &result, nil
}
