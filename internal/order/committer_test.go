package order_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-impor/internal/cache"
	"github.com/noah-isme/backend-impor/internal/cart"
	"github.com/noah-isme/backend-impor/internal/catalog"
	"github.com/noah-isme/backend-impor/internal/compat"
	"github.com/noah-isme/backend-impor/internal/events"
	"github.com/noah-isme/backend-impor/internal/lock"
	"github.com/noah-isme/backend-impor/internal/order"
	"github.com/noah-isme/backend-impor/internal/pricing"
	"github.com/noah-isme/backend-impor/internal/quote"
)

type fixedSource struct{ snap *catalog.Snapshot }

func (f fixedSource) Current() *catalog.Snapshot { return f.snap }

type oneSnapshot struct{ snap *pricing.RateSnapshot }

func (o oneSnapshot) Latest(context.Context) (*pricing.RateSnapshot, error) { return o.snap, nil }

func (o oneSnapshot) ByVersion(context.Context, int64) (*pricing.RateSnapshot, error) {
	return o.snap, nil
}

// memStore applies the same conditional decrement the Postgres store does.
type memStore struct {
	mu     sync.Mutex
	stock  map[string]int64
	orders map[string]order.Order
	// aborts makes the next Create calls fail like a transaction Postgres
	// picked as a deadlock victim.
	aborts int
	calls  int
}

func (m *memStore) Create(_ context.Context, o order.Order) (order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.aborts > 0 {
		m.aborts--
		return order.Order{}, fmt.Errorf("decrement stock P1: %w", order.ErrContention)
	}
	for _, it := range o.Items {
		if m.stock[it.PartID] < int64(it.Qty) {
			return order.Order{}, &order.StockError{PartID: it.PartID, Requested: it.Qty}
		}
	}
	for _, it := range o.Items {
		m.stock[it.PartID] -= int64(it.Qty)
	}
	o.CreatedAt = time.Now()
	m.orders[o.ID] = o
	return o, nil
}

func (m *memStore) Get(_ context.Context, id string) (order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

type capturePublisher struct {
	topics []string
	ids    []string
}

func (c *capturePublisher) Emit(_ context.Context, topic string, aggregateID string, _ any) (events.Event, error) {
	c.topics = append(c.topics, topic)
	c.ids = append(c.ids, aggregateID)
	return events.Event{Topic: topic, AggregateID: aggregateID}, nil
}

type harness struct {
	committer *order.Committer
	store     *memStore
	events    *capturePublisher
	redis     *miniredis.Miniredis
}

func newHarness(t *testing.T) harness {
	t.Helper()
	snap := catalog.NewSnapshot(
		[]catalog.Vehicle{{ID: "V1", Make: "Hyundai", Model: "Sonata", YearStart: 2015}},
		[]catalog.Part{
			{ID: "P1", PartNumber: "B1", Name: "Brake pad", Category: pricing.CategoryBrakes, Brand: "Hyundai", UnitPrice: 30000, Quantity: 3, WeightKg: 1},
			{ID: "P2", PartNumber: "B2", Name: "Brake disc", Category: pricing.CategoryBrakes, Brand: "Hyundai", UnitPrice: 25000, Quantity: 0, WeightKg: 4},
		},
		[]catalog.Fitment{{PartID: "P1", VehicleID: "V1"}, {PartID: "P2", VehicleID: "V1"}},
	)
	rates := &pricing.RateSnapshot{
		Version:             3,
		SourceCurrency:      "KRW",
		DestinationCurrency: "XOF",
		ExchangeRate:        decimal.RequireFromString("0.65"),
		TransportBase:       decimal.NewFromInt(50000),
		TransportPerKg:      decimal.NewFromInt(1500),
		CustomsByCategory:   map[pricing.Category]decimal.Decimal{pricing.CategoryBrakes: decimal.RequireFromString("0.15")},
		MarginRate:          decimal.RequireFromString("0.35"),
	}
	source := fixedSource{snap}
	pricer, err := quote.NewService(quote.ServiceConfig{Rates: oneSnapshot{rates}, Catalog: source, Logger: zerolog.Nop()})
	require.NoError(t, err)
	assembler, err := cart.NewAssembler(compat.NewResolver(source, 0), pricer)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &memStore{stock: map[string]int64{"P1": 3, "P2": 0}, orders: map[string]order.Order{}}
	pub := &capturePublisher{}
	c, err := order.NewCommitter(order.CommitterConfig{
		Assembler: assembler,
		Store:     store,
		Locker:    lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond},
		LockTTL:   100 * time.Millisecond,
		Events:    pub,
		Logger:    zerolog.Nop(),

		Attempts:     3,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return harness{committer: c, store: store, events: pub, redis: mr}
}

func TestCommitStoresOrderAndEmitsEvent(t *testing.T) {
	h := newHarness(t)
	o, err := h.committer.Commit(context.Background(), cart.Request{
		CartID:    "cart-1",
		VehicleID: "V1",
		Items:     []cart.ItemRequest{{PartID: "P1", Qty: 2}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, o.ID)
	require.Equal(t, "cart-1", o.CartID)
	require.Equal(t, order.StatusPlaced, o.Status)
	require.EqualValues(t, 3, o.SnapshotVersion)
	require.Len(t, o.Items, 1)
	require.Equal(t, o.Items[0].UnitPrice*2, o.Totals.Total)
	require.EqualValues(t, 1, h.store.stock["P1"])
	require.Equal(t, []string{events.TopicOrderCreated}, h.events.topics)
	require.Equal(t, []string{o.ID}, h.events.ids)
	require.False(t, h.redis.Exists(cache.KeyOrderLock("cart-1")))
}

func TestCommitRefusesRejectedCart(t *testing.T) {
	h := newHarness(t)
	_, err := h.committer.Commit(context.Background(), cart.Request{
		VehicleID: "V1",
		Items:     []cart.ItemRequest{{PartID: "P1", Qty: 1}, {PartID: "P2", Qty: 1}},
	})
	require.ErrorIs(t, err, order.ErrRejected)
	var rejected *order.RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Len(t, rejected.Cart.Rejections, 1)
	require.Equal(t, compat.CodeOutOfStock, rejected.Cart.Rejections[0].Code)
	require.Empty(t, h.store.orders)
	require.Empty(t, h.events.topics)
}

func TestCommitRevalidatesStock(t *testing.T) {
	h := newHarness(t)
	// Another sale drained stock after the catalog snapshot was taken.
	h.store.stock["P1"] = 1
	_, err := h.committer.Commit(context.Background(), cart.Request{Items: []cart.ItemRequest{{PartID: "P1", Qty: 2}}})
	require.ErrorIs(t, err, order.ErrOutOfStock)
	var stockErr *order.StockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, "P1", stockErr.PartID)
	require.EqualValues(t, 1, h.store.stock["P1"])
	require.Empty(t, h.events.topics)
}

func TestCommitRetriesAbortedTransactions(t *testing.T) {
	h := newHarness(t)
	h.store.aborts = 2
	o, err := h.committer.Commit(context.Background(), cart.Request{Items: []cart.ItemRequest{{PartID: "P1", Qty: 1}}})
	require.NoError(t, err)
	require.Equal(t, 3, h.store.calls)
	require.EqualValues(t, 2, h.store.stock["P1"])
	require.Equal(t, []string{o.ID}, h.events.ids)
}

func TestCommitGivesUpAfterRepeatedAborts(t *testing.T) {
	h := newHarness(t)
	h.store.aborts = 10
	_, err := h.committer.Commit(context.Background(), cart.Request{Items: []cart.ItemRequest{{PartID: "P1", Qty: 1}}})
	require.ErrorIs(t, err, order.ErrContention)
	require.Equal(t, 3, h.store.calls)
	require.EqualValues(t, 3, h.store.stock["P1"])
	require.Empty(t, h.events.topics)
}

func TestCommitWaitsForLock(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.redis.Set(cache.KeyOrderLock("cart-9"), "someone-else"))
	_, err := h.committer.Commit(context.Background(), cart.Request{CartID: "cart-9", Items: []cart.ItemRequest{{PartID: "P1", Qty: 1}}})
	require.ErrorIs(t, err, lock.ErrNotAcquired)
	require.Empty(t, h.store.orders)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestOrderHandlers(t *testing.T) {
	h := newHarness(t)
	handler := order.NewHandler(h.committer)
	r := chi.NewRouter()
	r.Post("/api/v1/orders", handler.Commit)
	r.Get("/api/v1/orders/{id}", handler.Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders",
		strings.NewReader(`{"vehicleId":"V1","items":[{"partId":"P1","qty":1}]}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data order.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+created.Data.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders",
		strings.NewReader(`{"items":[{"partId":"P2","qty":1}]}`)))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "CART_REJECTED", decodeError(t, rec))

	h.store.stock["P1"] = 0
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders",
		strings.NewReader(`{"items":[{"partId":"P1","qty":1}]}`)))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "OUT_OF_STOCK", decodeError(t, rec))

	h.store.stock["P1"] = 3
	h.store.aborts = 10
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders",
		strings.NewReader(`{"items":[{"partId":"P1","qty":1}]}`)))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "ORDER_CONTENTION", decodeError(t, rec))
}
