package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gridBot/internal/domain"
	"gridBot/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

// recordingSink implements both LogSink and AlertSink.
type recordingSink struct {
	mu     sync.Mutex
	logs   []domain.LogEntry
	alerts []domain.Alert
}

type logSink struct{ *recordingSink }

func (s logSink) Emit(ctx context.Context, botID string, level domain.LogLevel, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, domain.LogEntry{BotID: botID, Level: level, Message: msg})
}

type alertSink struct{ *recordingSink }

func (s alertSink) Emit(ctx context.Context, botID string, t domain.AlertType, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, domain.Alert{BotID: botID, Type: t, Message: msg})
}

func (s *recordingSink) alertsOf(t domain.AlertType) []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Alert
	for _, a := range s.alerts {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

func (s *recordingSink) hasLog(level domain.LogLevel, substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.logs {
		if l.Level == level && strings.Contains(l.Message, substr) {
			return true
		}
	}
	return false
}

// memRepo is an in-memory BotRepository whose transactions commit all or nothing.
type memRepo struct {
	mu    sync.Mutex
	state memState
	seq   int

	getErr         error
	listErr        error
	createTradeErr error            // fails CreateTrade inside a transaction
	commitErr      error            // fails every transaction after fn ran
	stopErr        map[string]error // fails UpdateBot setting STOPPED for a bot
	updates        []ports.BotUpdate
}

type memState struct {
	bots      map[string]domain.Bot
	positions map[string]domain.Position
	posOrder  []string
	trades    []domain.Trade
}

func (s memState) clone() memState {
	c := memState{
		bots:      make(map[string]domain.Bot, len(s.bots)),
		positions: make(map[string]domain.Position, len(s.positions)),
		posOrder:  append([]string(nil), s.posOrder...),
		trades:    append([]domain.Trade(nil), s.trades...),
	}
	for k, v := range s.bots {
		c.bots[k] = v
	}
	for k, v := range s.positions {
		c.positions[k] = v
	}
	return c
}

func newMemRepo(bots ...*domain.Bot) *memRepo {
	r := &memRepo{state: memState{
		bots:      make(map[string]domain.Bot),
		positions: make(map[string]domain.Position),
	}}
	for _, b := range bots {
		r.state.bots[b.ID] = *b
	}
	return r
}

func (r *memRepo) nextID(prefix string) string {
	r.seq++
	return fmt.Sprintf("%s-%d", prefix, r.seq)
}

func (r *memRepo) addPosition(botID string, amount, entry float64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID("pos")
	r.state.positions[id] = domain.Position{
		ID: id, BotID: botID, Symbol: r.state.bots[botID].Symbol,
		Amount: amount, EntryPrice: entry, Status: domain.StatusOpen, CreatedAt: time.Now(),
	}
	r.state.posOrder = append(r.state.posOrder, id)
	return id
}

func (r *memRepo) bot(id string) domain.Bot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.bots[id]
}

func (r *memRepo) setBot(b domain.Bot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.bots[b.ID] = b
}

func (r *memRepo) position(id string) domain.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.positions[id]
}

func (r *memRepo) openPositions(botID string) []domain.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Position
	for _, id := range r.state.posOrder {
		if p := r.state.positions[id]; p.BotID == botID && p.Status == domain.StatusOpen {
			out = append(out, p)
		}
	}
	return out
}

func (r *memRepo) allPositions() []domain.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Position
	for _, id := range r.state.posOrder {
		out = append(out, r.state.positions[id])
	}
	return out
}

func (r *memRepo) trades() []domain.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Trade(nil), r.state.trades...)
}

func (r *memRepo) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *memRepo) GetBot(ctx context.Context, id string) (*domain.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	b, ok := r.state.bots[id]
	if !ok {
		return nil, fmt.Errorf("bot %s: %w", id, ports.ErrNotFound)
	}
	return &b, nil
}

func (r *memRepo) GetBotWithOpenPositions(ctx context.Context, id string) (*domain.Bot, []*domain.Position, error) {
	bot, err := r.GetBot(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	var out []*domain.Position
	for _, p := range r.openPositions(id) {
		p := p
		out = append(out, &p)
	}
	return bot, out, nil
}

func (r *memRepo) GetPosition(ctx context.Context, id string) (*domain.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.state.positions[id]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", id, ports.ErrNotFound)
	}
	return &p, nil
}

func (r *memRepo) UpdateBot(ctx context.Context, id string, upd ports.BotUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.state.bots[id]
	if !ok {
		return fmt.Errorf("bot %s: %w", id, ports.ErrNotFound)
	}
	if upd.Status != nil && *upd.Status == domain.BotStopped && r.stopErr[id] != nil {
		return r.stopErr[id]
	}
	r.updates = append(r.updates, upd)
	if upd.Status != nil {
		b.Status = *upd.Status
	}
	if upd.HighestPriceSeen != nil {
		b.HighestPriceSeen = *upd.HighestPriceSeen
	}
	if upd.LastPrice != nil {
		b.LastPrice = *upd.LastPrice
	}
	if upd.LastActivityAt != nil {
		t := *upd.LastActivityAt
		b.LastActivityAt = &t
	}
	if upd.StartedAt != nil {
		t := *upd.StartedAt
		b.StartedAt = &t
	}
	if upd.ClearStartedAt {
		b.StartedAt = nil
	}
	b.TotalRuntimeSeconds += upd.AddRuntimeSeconds
	r.state.bots[id] = b
	return nil
}

func (r *memRepo) ListBotsByStatus(ctx context.Context, status domain.BotStatus) ([]*domain.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*domain.Bot
	for _, b := range r.state.bots {
		if b.Status == status {
			b := b
			out = append(out, &b)
		}
	}
	return out, nil
}

func (r *memRepo) requestClose(positionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.state.positions[positionID]
	p.CloseRequested = true
	r.state.positions[positionID] = p
}

func (r *memRepo) ListCloseRequests(ctx context.Context) ([]*domain.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Position
	for _, id := range r.state.posOrder {
		if p := r.state.positions[id]; p.CloseRequested && p.Status == domain.StatusOpen {
			out = append(out, &p)
		}
	}
	return out, nil
}

func (r *memRepo) ClearCloseRequest(ctx context.Context, positionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.state.positions[positionID]; ok {
		p.CloseRequested = false
		r.state.positions[positionID] = p
	}
	return nil
}

func (r *memRepo) RunInTransaction(ctx context.Context, fn func(tx ports.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memTx{repo: r, state: r.state.clone()}
	if err := fn(tx); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrPersistence, err)
	}
	if r.commitErr != nil {
		return fmt.Errorf("%w: %w", ports.ErrPersistence, r.commitErr)
	}
	r.state = tx.state
	return nil
}

type memTx struct {
	repo  *memRepo
	state memState
}

func (t *memTx) CreatePosition(ctx context.Context, pos *domain.Position) error {
	pos.ID = t.repo.nextID("pos")
	t.state.positions[pos.ID] = *pos
	t.state.posOrder = append(t.state.posOrder, pos.ID)
	return nil
}

func (t *memTx) CreateTrade(ctx context.Context, trade *domain.Trade) error {
	if t.repo.createTradeErr != nil {
		return t.repo.createTradeErr
	}
	trade.ID = t.repo.nextID("trade")
	t.state.trades = append(t.state.trades, *trade)
	return nil
}

func (t *memTx) ClosePosition(ctx context.Context, positionID string, price, pnl float64) error {
	p, ok := t.state.positions[positionID]
	if !ok || p.Status != domain.StatusOpen {
		return fmt.Errorf("open position %s: %w", positionID, ports.ErrNotFound)
	}
	p.Status = domain.StatusClosed
	p.CurrentPrice = &price
	p.PNL = &pnl
	p.CloseRequested = false
	t.state.positions[positionID] = p
	return nil
}

func (t *memTx) IncrementBotCounters(ctx context.Context, botID string, c ports.BotCounters) error {
	b, ok := t.state.bots[botID]
	if !ok {
		return fmt.Errorf("bot %s: %w", botID, ports.ErrNotFound)
	}
	b.TotalBuys += c.Buys
	b.TotalSells += c.Sells
	b.TotalProfit += c.Profit
	t.state.bots[botID] = b
	return nil
}

// fakeExchange is a scriptable ExchangeGateway.
type fakeExchange struct {
	mu sync.Mutex

	tickerPrice float64
	tickerErr   error
	balances    map[string]ports.Balance
	balanceErr  error
	orderErr    error
	fill        *ports.OrderResult
	orders      []ports.OrderRequest
	roundErr    error
	validate    bool

	// precisionGate, when set, blocks AmountToPrecision until it is closed.
	precisionGate    chan struct{}
	precisionEntered chan struct{}

	subscribeErr error
	handler      ports.PriceHandler
	subscribed   int
	closed       int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{validate: true}
}

func (f *fakeExchange) GetTicker(ctx context.Context, symbol string) (*ports.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tickerErr != nil {
		return nil, f.tickerErr
	}
	return &ports.Ticker{Symbol: symbol, Last: f.tickerPrice}, nil
}

func (f *fakeExchange) GetBalance(ctx context.Context) (map[string]ports.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances, f.balanceErr
}

func (f *fakeExchange) CreateOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.orders = append(f.orders, req)
	if f.fill != nil {
		res := *f.fill
		return &res, nil
	}
	return &ports.OrderResult{ID: fmt.Sprintf("ord-%d", len(f.orders)), Status: "FILLED"}, nil
}

func (f *fakeExchange) AmountToPrecision(ctx context.Context, symbol string, amount float64) (float64, error) {
	f.mu.Lock()
	gate, entered, err := f.precisionGate, f.precisionEntered, f.roundErr
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return 0, err
	}
	return amount, nil
}

func (f *fakeExchange) SubscribePriceStream(ctx context.Context, symbol string, onPrice ports.PriceHandler) (ports.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.handler = onPrice
	f.subscribed++
	return &fakeSubscription{ex: f}, nil
}

func (f *fakeExchange) ValidateConnection(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validate
}

// push delivers a price through the registered stream handler.
func (f *fakeExchange) push(price float64) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(price)
	}
}

func (f *fakeExchange) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeExchange) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeSubscription struct {
	ex   *fakeExchange
	once sync.Once
}

func (s *fakeSubscription) Close() error {
	s.once.Do(func() {
		s.ex.mu.Lock()
		defer s.ex.mu.Unlock()
		s.ex.closed++
		s.ex.handler = nil
	})
	return nil
}

// fakeFactory hands out one gateway per bot id, defaulting to def.
type fakeFactory struct {
	mu       sync.Mutex
	def      *fakeExchange
	perBot   map[string]*fakeExchange
	err      error
	requests int
}

func (f *fakeFactory) NewGateway(ctx context.Context, bot *domain.Bot) (ports.ExchangeGateway, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if f.err != nil {
		return nil, f.err
	}
	if gw, ok := f.perBot[bot.ID]; ok {
		return gw, nil
	}
	return f.def, nil
}

func (f *fakeFactory) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
