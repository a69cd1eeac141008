// File: internal/infra/adapters/provider/looksmm.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/adapter"
	"telegram-smm-shop/internal/infra/metrics"
)

var _ adapter.ProviderClient = (*LookSMMClient)(nil)

// LookSMMClient talks to the panel's v2 API: GET requests with an action
// parameter and the key in the query string.
type LookSMMClient struct {
	baseURL string
	key     string
	client  *http.Client
}

func NewLookSMMClient(baseURL, key string, timeout time.Duration) (*LookSMMClient, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("looksmm key is empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid looksmm url: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LookSMMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *LookSMMClient) Name() string { return "looksmm" }

// flexString accepts both JSON strings and numbers; the panel mixes them.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type serviceDTO struct {
	Service  flexString `json:"service"`
	Name     string     `json:"name"`
	Category string     `json:"category"`
	Rate     flexString `json:"rate"`
	Price    flexString `json:"price"`
	Min      flexString `json:"min"`
	Max      flexString `json:"max"`
}

type apiError struct {
	Error string `json:"error"`
}

func (c *LookSMMClient) ListServices(ctx context.Context) (out []model.ProviderService, err error) {
	start := time.Now()
	defer func() { metrics.ObserveProviderCall(c.Name(), "services", err == nil, time.Since(start)) }()

	body, err := c.get(ctx, url.Values{"action": {"services"}})
	if err != nil {
		return nil, wrap("services", err)
	}
	var dtos []serviceDTO
	if jerr := json.Unmarshal(body, &dtos); jerr != nil {
		return nil, wrap("services", decodeFailure(body, jerr))
	}
	out = make([]model.ProviderService, 0, len(dtos))
	for _, d := range dtos {
		if d.Service == "" {
			continue
		}
		rate := d.Rate
		if rate == "" {
			rate = d.Price
		}
		r, _ := decimal.NewFromString(string(rate))
		out = append(out, model.ProviderService{
			ID:          string(d.Service),
			Name:        strings.TrimSpace(d.Name),
			Category:    strings.TrimSpace(d.Category),
			RatePer1000: r,
			Min:         atoi(d.Min),
			Max:         atoi(d.Max),
		})
	}
	return out, nil
}

func (c *LookSMMClient) PlaceOrder(ctx context.Context, serviceID, link string, quantity int64) (id string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveProviderCall(c.Name(), "add", err == nil, time.Since(start)) }()

	body, err := c.get(ctx, url.Values{
		"action":   {"add"},
		"service":  {serviceID},
		"link":     {link},
		"quantity": {strconv.FormatInt(quantity, 10)},
	})
	if err != nil {
		return "", wrap("add", err)
	}
	var resp struct {
		Order flexString `json:"order"`
		Error string     `json:"error"`
	}
	if jerr := json.Unmarshal(body, &resp); jerr != nil {
		return "", wrap("add", decodeFailure(body, jerr))
	}
	if resp.Error != "" {
		return "", wrap("add", errors.New(resp.Error))
	}
	if resp.Order == "" {
		return "", wrap("add", errors.New("response carries no order id"))
	}
	return string(resp.Order), nil
}

func (c *LookSMMClient) get(ctx context.Context, q url.Values) ([]byte, error) {
	q.Set("key", c.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, redact(err, c.key)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, snippet(body))
	}
	return body, nil
}

// decodeFailure prefers the panel's own {"error": "..."} message.
func decodeFailure(body []byte, cause error) error {
	var e apiError
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return errors.New(e.Error)
	}
	return fmt.Errorf("decode response: %w", cause)
}

func wrap(op string, err error) error {
	return fmt.Errorf("%w: looksmm %s: %w", domain.ErrProviderFailure, op, err)
}

// redact keeps the api key out of *url.Error messages.
func redact(err error, key string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = strings.ReplaceAll(ue.URL, url.QueryEscape(key), "***")
	}
	return err
}

func atoi(s flexString) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(s), 64)
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return n
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
