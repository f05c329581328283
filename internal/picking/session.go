package picking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/blingpick/blingpick/internal/bling"
	"github.com/blingpick/blingpick/internal/ledger"
)

// Defaults for Options.
const (
	DefaultLookupConcurrency = 4
	DefaultMovementNote      = "Separação concluída"
)

// ERP is the subset of the Bling API the session drives. *bling.Client
// implements it.
type ERP interface {
	FindOrders(ctx context.Context, number string) ([]bling.OrderSummary, error)
	GetOrder(ctx context.Context, id string) (*bling.Order, error)
	GetProduct(ctx context.Context, id string) (*bling.Product, error)
	PostStockMovement(ctx context.Context, m bling.StockMovement) error
}

// Recorder persists finalized picks. *ledger.Store implements it.
type Recorder interface {
	Record(ctx context.Context, p ledger.Pick) (ledger.Pick, error)
}

// Options tunes a Session. Zero values fall back to the defaults.
type Options struct {
	LookupConcurrency int
	MovementNote      string
	// Recorder, when non-nil, receives every finalized pick.
	Recorder Recorder
	// OnEvent, when non-nil, is called after each state change. It runs
	// outside the session lock and must not block.
	OnEvent func(Event)
}

// Product is the scan counter of one product in the loaded order.
type Product struct {
	ProductID  string `json:"productId"`
	Name       string `json:"name"`
	OrderedQty int    `json:"orderedQty"`
	ScannedQty int    `json:"scannedQty"`
}

// Remaining is the number of units still to scan.
func (p Product) Remaining() int {
	return p.OrderedQty - p.ScannedQty
}

// Order is a snapshot of the loaded order. Products keep the order-line
// sequence.
type Order struct {
	Number   string    `json:"number"`
	OrderID  string    `json:"orderId"`
	Products []Product `json:"products"`
}

// Shortfall is a product finalized with units missing.
type Shortfall struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Missing   int    `json:"missing"`
}

// String renders the operator-facing message, e.g. "Produto P – faltaram 1".
func (f Shortfall) String() string {
	return fmt.Sprintf("%s – faltaram %d", f.Name, f.Missing)
}

// FinalizeResult reports a finalize call. When Completed is false the order
// has shortfalls and was not confirmed; nothing was posted and the counters
// are intact.
type FinalizeResult struct {
	Completed  bool
	Shortfalls []Shortfall
}

// Snapshot is the externally visible session state.
type Snapshot struct {
	State State  `json:"state"`
	Order *Order `json:"order,omitempty"`
}

// generation is one loaded order. A load builds a fresh generation off to
// the side and swaps it in whole, so readers never see a half-built map.
type generation struct {
	number     string
	orderID    string
	ids        []string
	products   map[string]*Product
	codes      map[string]string
	finalizing bool
}

func newGeneration(number, orderID string) *generation {
	return &generation{
		number:   number,
		orderID:  orderID,
		products: make(map[string]*Product),
		codes:    make(map[string]string),
	}
}

func (g *generation) addLine(productID, name string, qty int) {
	p, ok := g.products[productID]
	if !ok {
		p = &Product{ProductID: productID, Name: name}
		g.products[productID] = p
		g.ids = append(g.ids, productID)
	}

	p.OrderedQty += qty
}

// register maps code to productID. The first product to claim a code keeps
// it; the current owner is returned when the claim loses.
func (g *generation) register(code, productID string) (owner string, ok bool) {
	key := NormalizeCode(code)
	if key == "" {
		return "", true
	}

	if existing, taken := g.codes[key]; taken && existing != productID {
		return existing, false
	}

	g.codes[key] = productID

	return productID, true
}

func (g *generation) snapshot() *Order {
	o := &Order{
		Number:   g.number,
		OrderID:  g.orderID,
		Products: make([]Product, 0, len(g.ids)),
	}

	for _, id := range g.ids {
		o.Products = append(o.Products, *g.products[id])
	}

	return o
}

func (g *generation) shortfalls() []Shortfall {
	var out []Shortfall

	for _, id := range g.ids {
		p := g.products[id]
		if missing := p.Remaining(); missing > 0 {
			out = append(out, Shortfall{ProductID: id, Name: p.Name, Missing: missing})
		}
	}

	return out
}

func (g *generation) movement(note string) bling.StockMovement {
	m := bling.StockMovement{Type: bling.MovementStockOut, Notes: note}

	for _, id := range g.ids {
		if scanned := g.products[id].ScannedQty; scanned > 0 {
			m.Items = append(m.Items, bling.StockMovementItem{
				Product:  bling.ProductRef{ID: json.Number(id)},
				Quantity: scanned,
			})
		}
	}

	return m
}

// Session holds the single active picking order. All methods are safe for
// concurrent use: the mutex guards only in-memory state and is never held
// across an ERP call.
type Session struct {
	erp     ERP
	opts    Options
	logger  *slog.Logger
	gate    Gate
	nowFunc func() time.Time

	mu  sync.Mutex
	gen *generation
}

// NewSession creates an empty session.
func NewSession(erp ERP, opts Options, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.LookupConcurrency <= 0 {
		opts.LookupConcurrency = DefaultLookupConcurrency
	}

	if opts.MovementNote == "" {
		opts.MovementNote = DefaultMovementNote
	}

	return &Session{
		erp:     erp,
		opts:    opts,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// LoadOrder fetches the order by number, resolves every product's codes and
// replaces the current order. Concurrent loads fail fast with ErrBusy. On
// any error the previously loaded order, if any, stays in place.
func (s *Session) LoadOrder(ctx context.Context, number string) (*Order, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, fmt.Errorf("%w: empty order number", ErrOrderNotFound)
	}

	if !s.gate.TryAcquire() {
		return nil, ErrBusy
	}
	defer s.gate.Release()

	gen, err := s.build(ctx, number)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	replaced := s.gen
	s.gen = gen
	snap := gen.snapshot()
	s.mu.Unlock()

	if replaced != nil && replaced.number != number {
		s.logger.Info("replacing loaded order",
			slog.String("previous", replaced.number),
			slog.String("order", number),
		)
	}

	s.logger.Info("order loaded",
		slog.String("order", number),
		slog.String("order_id", gen.orderID),
		slog.Int("products", len(gen.ids)),
		slog.Int("codes", len(gen.codes)),
	)

	s.emit(Event{Type: EventLoaded, Number: number, Order: snap})

	return snap, nil
}

func (s *Session) build(ctx context.Context, number string) (*generation, error) {
	found, err := s.erp.FindOrders(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("picking: searching order %s: %w", number, err)
	}

	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, number)
	}

	orderID := found[0].ID.String()

	order, err := s.erp.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, bling.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", ErrOrderNotFound, number, err)
		}

		return nil, fmt.Errorf("picking: fetching order %s: %w", number, err)
	}

	gen := newGeneration(number, orderID)
	skus := make(map[string][]string)

	for _, item := range order.Items {
		if !item.Product.HasID() {
			s.logger.Warn("skipping order line without product",
				slog.String("order", number),
				slog.String("description", item.Description),
			)

			continue
		}

		qty, err := wholeQuantity(item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("%w: order %s line %q: %w", ErrOrderInvalid, number, item.Description, err)
		}

		id := item.Product.ID.String()
		gen.addLine(id, item.Description, qty)

		if item.Code != "" {
			skus[id] = append(skus[id], item.Code)
		}
	}

	if len(gen.ids) == 0 {
		return nil, fmt.Errorf("%w: order %s", ErrOrderInvalid, number)
	}

	// Line SKUs first, in line order, so an order's own codes win over
	// barcodes resolved later.
	for _, id := range gen.ids {
		for _, code := range skus[id] {
			s.registerCode(gen, code, id)
		}
	}

	if err := s.resolveBarcodes(ctx, gen); err != nil {
		return nil, err
	}

	return gen, nil
}

// resolveBarcodes looks up every product with bounded concurrency. A failed
// lookup only costs that product its barcodes; the SKU still scans.
func (s *Session) resolveBarcodes(ctx context.Context, gen *generation) error {
	details := make([]*bling.Product, len(gen.ids))

	var g errgroup.Group
	g.SetLimit(s.opts.LookupConcurrency)

	for i, id := range gen.ids {
		g.Go(func() error {
			p, err := s.erp.GetProduct(ctx, id)
			if err != nil {
				s.logger.Warn("product lookup failed, barcodes unavailable",
					slog.String("order", gen.number),
					slog.String("product_id", id),
					slog.String("error", err.Error()),
				)

				return nil
			}

			details[i] = p

			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("picking: loading order %s: %w", gen.number, err)
	}

	// Registration runs in line order after all lookups so the first-wins
	// rule does not depend on which lookup finished first.
	for i, id := range gen.ids {
		p := details[i]
		if p == nil {
			continue
		}

		for _, code := range []string{p.Code, p.Barcode, p.GTIN} {
			s.registerCode(gen, code, id)
		}
	}

	return nil
}

func (s *Session) registerCode(gen *generation, code, productID string) {
	if owner, ok := gen.register(code, productID); !ok {
		s.logger.Warn("code shared by two products, keeping first",
			slog.String("order", gen.number),
			slog.String("code", code),
			slog.String("kept", owner),
			slog.String("ignored", productID),
		)
	}
}

// wholeQuantity converts an ERP line quantity to whole units.
func wholeQuantity(q decimal.Decimal) (int, error) {
	if q.IsNegative() {
		return 0, fmt.Errorf("negative quantity %s", q)
	}

	if !q.Equal(q.Truncate(0)) {
		return 0, fmt.Errorf("fractional quantity %s", q)
	}

	return int(q.IntPart()), nil
}

// Scan records one unit for the product that code resolves to and returns
// its updated counter.
func (s *Session) Scan(code string) (Product, error) {
	key := NormalizeCode(code)

	s.mu.Lock()

	if s.gen == nil {
		s.mu.Unlock()
		return Product{}, ErrNoOrder
	}

	if s.gen.finalizing {
		s.mu.Unlock()
		return Product{}, ErrBusy
	}

	id, ok := s.gen.codes[key]
	if key == "" || !ok {
		s.mu.Unlock()
		return Product{}, fmt.Errorf("%w: %q", ErrNotInOrder, code)
	}

	p := s.gen.products[id]
	if p.ScannedQty >= p.OrderedQty {
		s.mu.Unlock()
		return Product{}, fmt.Errorf("%w: %s", ErrQuantityExceeded, p.Name)
	}

	p.ScannedQty++
	out := *p
	number := s.gen.number
	s.mu.Unlock()

	s.logger.Debug("scan accepted",
		slog.String("order", number),
		slog.String("product_id", out.ProductID),
		slog.Int("scanned", out.ScannedQty),
		slog.Int("ordered", out.OrderedQty),
	)

	s.emit(Event{Type: EventScanned, Number: number, Product: &out})

	return out, nil
}

// Finalize posts one stock-out movement for every scanned unit and clears
// the session. With shortfalls and confirmed false it only reports them.
// If the ERP post fails the counters are kept so the operator can retry.
func (s *Session) Finalize(ctx context.Context, confirmed bool) (*FinalizeResult, error) {
	s.mu.Lock()

	gen := s.gen
	if gen == nil {
		s.mu.Unlock()
		return nil, ErrNoOrder
	}

	if gen.finalizing {
		s.mu.Unlock()
		return nil, ErrBusy
	}

	shortfalls := gen.shortfalls()
	if len(shortfalls) > 0 && !confirmed {
		s.mu.Unlock()
		return &FinalizeResult{Shortfalls: shortfalls}, nil
	}

	movement := gen.movement(s.opts.MovementNote)
	final := gen.snapshot()
	gen.finalizing = true
	s.mu.Unlock()

	if len(movement.Items) > 0 {
		if err := s.erp.PostStockMovement(ctx, movement); err != nil {
			s.mu.Lock()
			gen.finalizing = false
			s.mu.Unlock()

			return nil, fmt.Errorf("picking: finalizing order %s: %w", gen.number, err)
		}
	} else {
		s.logger.Warn("nothing scanned, no stock movement posted", slog.String("order", gen.number))
	}

	s.mu.Lock()
	gen.finalizing = false
	// A load that replaced this order while the post was in flight wins.
	if s.gen == gen {
		s.gen = nil
	}
	s.mu.Unlock()

	s.logger.Info("order finalized",
		slog.String("order", gen.number),
		slog.Int("moved_items", len(movement.Items)),
		slog.Int("shortfalls", len(shortfalls)),
	)

	s.record(ctx, final, len(shortfalls) > 0)
	s.emit(Event{Type: EventFinalized, Number: gen.number, Shortfalls: shortfalls})

	return &FinalizeResult{Completed: true, Shortfalls: shortfalls}, nil
}

// record writes the pick to the ledger. Failures are logged only: the stock
// movement is already committed in the ERP.
func (s *Session) record(ctx context.Context, o *Order, forced bool) {
	if s.opts.Recorder == nil {
		return
	}

	items := make([]ledger.Item, 0, len(o.Products))
	for _, p := range o.Products {
		items = append(items, ledger.Item{
			ProductID: p.ProductID,
			Name:      p.Name,
			Ordered:   p.OrderedQty,
			Scanned:   p.ScannedQty,
		})
	}

	_, err := s.opts.Recorder.Record(context.WithoutCancel(ctx), ledger.Pick{
		OrderNumber: o.Number,
		OrderID:     o.OrderID,
		FinishedAt:  s.nowFunc(),
		Forced:      forced,
		Items:       items,
	})
	if err != nil {
		s.logger.Error("recording finalized pick",
			slog.String("order", o.Number),
			slog.String("error", err.Error()),
		)
	}
}

// Snapshot returns the current state and, when an order is loaded, a copy of
// its counters.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{State: s.stateLocked()}
	if s.gen != nil {
		snap.Order = s.gen.snapshot()
	}

	return snap
}

// State reports the session lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.gen != nil && s.gen.finalizing:
		return StateFinalizing
	case s.gate.Busy():
		return StateLoading
	case s.gen != nil:
		return StateReady
	default:
		return StateEmpty
	}
}

func (s *Session) emit(e Event) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(e)
	}
}
