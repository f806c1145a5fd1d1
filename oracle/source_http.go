package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// HTTPSource fetches quotes from a JSON price endpoint. The URL template may
// reference {base} and {quote}, e.g.
// https://feeds.example.com/v1/price?base={base}&quote={quote};
// the endpoint responds with {"price":"2000.125","timestamp":"RFC3339"}.
type HTTPSource struct {
	name     string
	template string
	client   *http.Client
}

// NewHTTPSource constructs a source over the URL template.
func NewHTTPSource(name, template string, client *http.Client) (*HTTPSource, error) {
	name = strings.TrimSpace(name)
	template = strings.TrimSpace(template)
	if name == "" {
		return nil, fmt.Errorf("oracle: source name required")
	}
	if template == "" {
		return nil, fmt.Errorf("oracle: source url required")
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPSource{name: name, template: template, client: client}, nil
}

// Name implements Source.
func (s *HTTPSource) Name() string { return s.name }

type priceResponse struct {
	Price     string `json:"price"`
	Timestamp string `json:"timestamp"`
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, base, quote string) (Quote, error) {
	url := strings.ReplaceAll(s.template, "{base}", base)
	url = strings.ReplaceAll(url, "{quote}", quote)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("oracle: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("oracle: fetch %s: %w", s.name, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("oracle: %s returned status %d", s.name, resp.StatusCode)
	}
	var payload priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Quote{}, fmt.Errorf("oracle: decode %s response: %w", s.name, err)
	}
	price, err := ParseDecimal(payload.Price)
	if err != nil {
		return Quote{}, err
	}
	out := Quote{Price: price, Timestamp: time.Now()}
	if ts := strings.TrimSpace(payload.Timestamp); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return Quote{}, fmt.Errorf("oracle: invalid timestamp from %s: %w", s.name, err)
		}
		out.Timestamp = parsed
	}
	return out, nil
}

// ParseDecimal converts a decimal string such as "2000.125" into a wei-scale
// (1e18) big integer.
func ParseDecimal(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("oracle: empty price")
	}
	rat, ok := new(big.Rat).SetString(raw)
	if !ok || rat.Sign() <= 0 {
		return nil, fmt.Errorf("oracle: invalid price %q", raw)
	}
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(scale))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom()), nil
}
