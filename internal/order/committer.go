package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-impor/internal/cache"
	"github.com/noah-isme/backend-impor/internal/cart"
	"github.com/noah-isme/backend-impor/internal/events"
	"github.com/noah-isme/backend-impor/internal/lock"
	"github.com/noah-isme/backend-impor/internal/obs"
	"github.com/noah-isme/backend-impor/internal/resilience"
)

const (
	defaultCommitAttempts = 3
	defaultRetryBackoff   = 20 * time.Millisecond
)

// Assembler re-prices a cart right before commit.
type Assembler interface {
	Assemble(ctx context.Context, req cart.Request) (cart.Cart, error)
}

// Store persists orders.
type Store interface {
	Create(ctx context.Context, o Order) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
}

// Locker serialises commits of the same cart.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*lock.Lease, error)
}

// Publisher emits domain events.
type Publisher interface {
	Emit(ctx context.Context, topic string, aggregateID string, payload any) (events.Event, error)
}

// Committer turns an assembled cart into a stored order.
type Committer struct {
	assembler Assembler
	store     Store
	locker    Locker
	lockTTL   time.Duration
	attempts  int
	backoff   time.Duration
	events    Publisher
	logger    zerolog.Logger
}

// CommitterConfig groups Committer dependencies.
type CommitterConfig struct {
	Assembler Assembler
	Store     Store
	Locker    Locker
	LockTTL   time.Duration
	Events    Publisher
	Logger    zerolog.Logger

	// Attempts bounds how often a commit aborted with ErrContention is tried;
	// RetryBackoff is the base delay between tries.
	Attempts     int
	RetryBackoff time.Duration
}

// NewCommitter constructs a Committer.
func NewCommitter(cfg CommitterConfig) (*Committer, error) {
	if cfg.Assembler == nil || cfg.Store == nil {
		return nil, errors.New("order: assembler and store are required")
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = defaultCommitAttempts
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return &Committer{
		assembler: cfg.Assembler,
		store:     cfg.Store,
		locker:    cfg.Locker,
		lockTTL:   ttl,
		attempts:  attempts,
		backoff:   backoff,
		events:    cfg.Events,
		logger:    cfg.Logger,
	}, nil
}

// Commit re-assembles req and stores it as an order. The cart must assemble
// without rejections; stock is decremented conditionally so a sale racing this
// commit surfaces as a *StockError instead of negative stock.
func (c *Committer) Commit(ctx context.Context, req cart.Request) (Order, error) {
	start := time.Now()
	req.CartID = strings.TrimSpace(req.CartID)
	if req.CartID == "" {
		req.CartID = uuid.NewString()
	}

	if c.locker != nil {
		waitCtx, cancel := context.WithTimeout(ctx, c.lockTTL)
		lease, err := c.locker.Acquire(waitCtx, cache.KeyOrderLock(req.CartID), c.lockTTL)
		cancel()
		if err != nil {
			c.record("locked", start)
			return Order{}, err
		}
		defer lease.Release(context.Background())
	}

	assembled, err := c.assembler.Assemble(ctx, req)
	if err != nil {
		c.record("error", start)
		return Order{}, err
	}
	if !assembled.Committable() {
		c.record("rejected", start)
		return Order{}, &RejectedError{Cart: assembled}
	}

	o := fromCart(assembled)
	o.ID = uuid.NewString()
	stored, err := c.create(ctx, o)
	if err != nil {
		if errors.Is(err, ErrContention) {
			c.record("contention", start)
			c.logger.Warn().Err(err).Str("cart_id", req.CartID).Int("attempts", c.attempts).Msg("order commit kept losing lock races")
			return Order{}, err
		}
		var stockErr *StockError
		if errors.As(err, &stockErr) {
			c.record("out_of_stock", start)
			c.logger.Warn().Str("cart_id", req.CartID).Str("part_id", stockErr.PartID).Int("qty", stockErr.Requested).Msg("stock changed before commit")
			return Order{}, err
		}
		c.record("error", start)
		c.logger.Error().Err(err).Str("cart_id", req.CartID).Msg("order commit failed")
		return Order{}, err
	}
	c.record("ok", start)

	if c.events != nil {
		payload := map[string]any{
			"orderId":         stored.ID,
			"cartId":          stored.CartID,
			"total":           stored.Totals.Total,
			"currency":        stored.Currency,
			"snapshotVersion": stored.SnapshotVersion,
			"parts":           partQuantities(stored.Items),
		}
		if _, err := c.events.Emit(ctx, events.TopicOrderCreated, stored.ID, payload); err != nil {
			c.logger.Warn().Err(err).Str("order_id", stored.ID).Msg("order event not delivered")
		}
	}
	return stored, nil
}

// create stores o, retrying only transactions Postgres aborted in favour of a
// concurrent one. Stock errors and everything else return at once.
func (c *Committer) create(ctx context.Context, o Order) (Order, error) {
	var (
		stored Order
		err    error
	)
	for attempt := 1; attempt <= c.attempts; attempt++ {
		stored, err = c.store.Create(ctx, o)
		if err == nil || !errors.Is(err, ErrContention) || attempt == c.attempts {
			return stored, err
		}
		timer := time.NewTimer(resilience.Backoff(c.backoff, attempt, 0.2))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Order{}, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return stored, err
}

// Get returns a stored order.
func (c *Committer) Get(ctx context.Context, id string) (Order, error) {
	return c.store.Get(ctx, strings.TrimSpace(id))
}

func (c *Committer) record(result string, start time.Time) {
	obs.IncCounter(obs.OrdersCommittedTotal, result)
	if obs.OrderCommitLatency != nil {
		obs.OrderCommitLatency.Observe(float64(time.Since(start).Milliseconds()))
	}
}

func partQuantities(items []Item) map[string]int {
	out := make(map[string]int, len(items))
	for _, it := range items {
		out[it.PartID] += it.Qty
	}
	return out
}
