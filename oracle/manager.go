package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"dscd/observability"
)

type pricePoint struct {
	price      *big.Int
	observedAt time.Time
}

// FeedManager aggregates prices from multiple sources per pair and serves the
// last good median to the engine. A pair with fewer fresh quotes than the
// configured quorum keeps its previous median until it ages out; once the
// median is older than maxAge the pair reports ErrStaleQuote.
type FeedManager struct {
	logger   *slog.Logger
	sources  []Source
	pairs    map[common.Address]Pair
	interval time.Duration
	maxAge   time.Duration
	minFeeds int
	clock    func() time.Time

	mu     sync.RWMutex
	prices map[string]pricePoint

	once sync.Once
}

// Option configures a FeedManager.
type Option func(*FeedManager)

// WithLogger installs a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *FeedManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source, used by staleness tests.
func WithClock(clock func() time.Time) Option {
	return func(m *FeedManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewFeedManager constructs a manager serving the given asset→pair mapping
// from the configured sources.
func NewFeedManager(pairs map[common.Address]Pair, sources []Source, interval, maxAge time.Duration, minFeeds int, opts ...Option) (*FeedManager, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("oracle: at least one pair required")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("oracle: at least one source required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("oracle: interval must be positive")
	}
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	if minFeeds <= 0 {
		minFeeds = 1
	}
	mgr := &FeedManager{
		logger:   slog.Default(),
		sources:  append([]Source{}, sources...),
		pairs:    make(map[common.Address]Pair, len(pairs)),
		interval: interval,
		maxAge:   maxAge,
		minFeeds: minFeeds,
		clock:    time.Now,
		prices:   make(map[string]pricePoint),
	}
	for asset, pair := range pairs {
		mgr.pairs[asset] = pair
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mgr)
		}
	}
	return mgr, nil
}

// Run blocks, periodically polling upstream feeds until the context is
// cancelled.
func (m *FeedManager) Run(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("oracle: manager not configured")
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.once.Do(func() {
		m.logger.Info("oracle feed manager started",
			"sources", len(m.sources),
			"pairs", len(m.pairs),
		)
	})
	for {
		if err := m.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("oracle tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs a single aggregation cycle across all configured pairs.
func (m *FeedManager) Tick(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("oracle: manager not configured")
	}
	seen := make(map[string]bool, len(m.pairs))
	for _, pair := range m.pairs {
		key := pair.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := m.refreshPair(ctx, pair); err != nil {
			observability.OracleMetrics().ObserveRefresh(key, "error")
			return err
		}
		observability.OracleMetrics().ObserveRefresh(key, "ok")
	}
	return nil
}

func (m *FeedManager) refreshPair(ctx context.Context, pair Pair) error {
	now := m.clock()
	quotes := make([]*big.Int, 0, len(m.sources))
	for _, src := range m.sources {
		if src == nil {
			continue
		}
		quote, err := src.Fetch(ctx, pair.Base, pair.Quote)
		if err != nil {
			m.logger.Warn("oracle source failed",
				"source", src.Name(),
				"pair", pair.String(),
				"error", err,
			)
			continue
		}
		if quote.Price == nil || quote.Price.Sign() <= 0 {
			m.logger.Warn("oracle source returned invalid price", "source", src.Name())
			continue
		}
		if quote.Timestamp.After(now.Add(5 * time.Second)) {
			m.logger.Warn("oracle source produced future timestamp", "source", src.Name())
			continue
		}
		if m.maxAge > 0 && !quote.Timestamp.IsZero() && quote.Timestamp.Before(now.Add(-m.maxAge)) {
			m.logger.Warn("oracle source quote expired", "source", src.Name())
			continue
		}
		quotes = append(quotes, new(big.Int).Set(quote.Price))
	}
	if len(quotes) < m.minFeeds {
		return fmt.Errorf("oracle: insufficient feeds for %s", pair)
	}
	median := computeMedian(quotes)
	if median == nil || median.Sign() <= 0 {
		return fmt.Errorf("oracle: median computation failed for %s", pair)
	}

	m.mu.Lock()
	m.prices[pair.String()] = pricePoint{price: median, observedAt: now}
	m.mu.Unlock()
	observability.OracleMetrics().SetQuoteAge(pair.String(), 0)
	return nil
}

func computeMedian(quotes []*big.Int) *big.Int {
	if len(quotes) == 0 {
		return nil
	}
	sorted := make([]*big.Int, len(quotes))
	copy(sorted, quotes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Cmp(sorted[j]) < 0
	})
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return new(big.Int).Set(sorted[mid])
	}
	sum := new(big.Int).Add(sorted[mid-1], sorted[mid])
	return sum.Quo(sum, big.NewInt(2))
}

func (m *FeedManager) currentPrice(asset common.Address) (*big.Int, error) {
	pair, ok := m.pairs[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPriceUnavailable, asset.Hex())
	}
	m.mu.RLock()
	point, ok := m.prices[pair.String()]
	m.mu.RUnlock()
	if !ok || point.price == nil {
		return nil, fmt.Errorf("%w: %s", ErrPriceUnavailable, pair)
	}
	age := m.clock().Sub(point.observedAt)
	observability.OracleMetrics().SetQuoteAge(pair.String(), age)
	if m.maxAge > 0 && age > m.maxAge {
		return nil, fmt.Errorf("%w: %s", ErrStaleQuote, pair)
	}
	return point.price, nil
}

// USDValue implements dsc.PriceOracle against the last good median.
func (m *FeedManager) USDValue(_ context.Context, asset common.Address, amount *big.Int) (*big.Int, error) {
	price, err := m.currentPrice(asset)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	return usdValue(amount, price), nil
}

// TokenAmountFromUSD implements dsc.PriceOracle.
func (m *FeedManager) TokenAmountFromUSD(_ context.Context, asset common.Address, usd *big.Int) (*big.Int, error) {
	price, err := m.currentPrice(asset)
	if err != nil {
		return nil, err
	}
	if usd == nil || usd.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	return tokenAmount(usd, price), nil
}
