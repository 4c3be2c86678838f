package service

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"
)

// fakeAPI is a scripted TradingAPI. Errors are keyed by operation name.
type fakeAPI struct {
	book     domain.MarketOrderBook
	price    decimal.Decimal
	open     []domain.OpenOrder
	balance  domain.BalanceInfo
	nextID   string
	cancelOK bool
	errs     map[string]error
	calls    []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		balance:  domain.NewBalanceInfo(),
		errs:     make(map[string]error),
		cancelOK: true,
	}
}

func (f *fakeAPI) hit(op string) error {
	f.calls = append(f.calls, op)
	return f.errs[op]
}

func (f *fakeAPI) count(op string) int {
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeAPI) ImplName() string { return "Fake REST API adapter" }

func (f *fakeAPI) MarketOrders(ctx context.Context, marketID string) (domain.MarketOrderBook, error) {
	if err := f.hit("MarketOrders"); err != nil {
		return domain.MarketOrderBook{}, err
	}
	book := f.book
	book.MarketID = marketID
	return book, nil
}

func (f *fakeAPI) YourOpenOrders(ctx context.Context, marketID string) ([]domain.OpenOrder, error) {
	if err := f.hit("YourOpenOrders"); err != nil {
		return nil, err
	}
	return f.open, nil
}

func (f *fakeAPI) CreateOrder(ctx context.Context, marketID string, orderType domain.OrderType, quantity, price decimal.Decimal) (string, error) {
	if err := f.hit("CreateOrder"); err != nil {
		return "", err
	}
	return f.nextID, nil
}

func (f *fakeAPI) CancelOrder(ctx context.Context, orderID, marketID string) (bool, error) {
	if err := f.hit("CancelOrder"); err != nil {
		return false, err
	}
	return f.cancelOK, nil
}

func (f *fakeAPI) LatestMarketPrice(ctx context.Context, marketID string) (decimal.Decimal, error) {
	if err := f.hit("LatestMarketPrice"); err != nil {
		return decimal.Zero, err
	}
	return f.price, nil
}

func (f *fakeAPI) BalanceInfo(ctx context.Context) (domain.BalanceInfo, error) {
	if err := f.hit("BalanceInfo"); err != nil {
		return domain.BalanceInfo{}, err
	}
	return f.balance, nil
}

func (f *fakeAPI) BuyFeeFraction(ctx context.Context, marketID string) (decimal.Decimal, error) {
	return decimal.RequireFromString("0.0025"), f.hit("BuyFeeFraction")
}

func (f *fakeAPI) SellFeeFraction(ctx context.Context, marketID string) (decimal.Decimal, error) {
	return decimal.RequireFromString("0.0025"), f.hit("SellFeeFraction")
}

type journalEntry struct {
	exchange, market, orderID, status string
}

// memJournal is an in-memory OrderJournal and StateStore.
type memJournal struct {
	mu      sync.Mutex
	entries []journalEntry
	state   map[string]string
	err     error
}

func newMemJournal() *memJournal {
	return &memJournal{state: make(map[string]string)}
}

func (j *memJournal) RecordCreated(exchange, marketID, orderID string, orderType domain.OrderType, quantity, price decimal.Decimal) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.entries = append(j.entries, journalEntry{exchange, marketID, orderID, domain.OrderStatusPlaced})
	return nil
}

func (j *memJournal) RecordCancelled(exchange, marketID, orderID string, recognised bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	status := domain.OrderStatusCancelled
	if !recognised {
		status = domain.OrderStatusCancelMissed
	}
	j.entries = append(j.entries, journalEntry{exchange, marketID, orderID, status})
	return nil
}

func (j *memJournal) SaveState(key, value string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.state[key] = value
	return nil
}

func (j *memJournal) LoadState(key string) (string, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	v, ok := j.state[key]
	return v, ok, nil
}

// counters records metric calls.
type counters struct {
	orders map[string]int
	cycles map[string]int
	halted map[string]bool
}

func newCounters() *counters {
	return &counters{orders: map[string]int{}, cycles: map[string]int{}, halted: map[string]bool{}}
}

func (c *counters) RecordOrder(exchange, status string) { c.orders[exchange+":"+status]++ }
func (c *counters) RecordCycle(exchange, result string) { c.cycles[exchange+":"+result]++ }
func (c *counters) SetHalted(exchange string, h bool)   { c.halted[exchange] = h }

var errJournalDown = errors.New("database is locked")

func timeoutErr() error {
	return domain.NewNetworkTimeoutError("GET https://exchange.test", errors.New("i/o timeout"))
}

func tradingErr(msg string) error {
	return &domain.TradingAPIError{Exchange: "Fake", Op: "op", Message: msg}
}
