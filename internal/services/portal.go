// Package services owns the application-state snapshot and orchestrates
// writes across the store, the cache and the event publisher.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vansales/internal/amqp"
	"vansales/internal/cache"
	"vansales/internal/core"
	"vansales/internal/filter"
	applog "vansales/internal/log"
	"vansales/internal/metrics"
	"vansales/internal/report"
	"vansales/internal/store"
)

var ErrNotLoaded = errors.New("portal snapshot not loaded")

// Publisher announces record changes. *amqp.Client implements it.
type Publisher interface {
	PublishRecordEvent(ctx context.Context, evt amqp.RecordEvent) error
}

// Options configures a Portal. Store is required; everything else has a
// usable zero value.
type Options struct {
	Store      store.Store
	Publisher  Publisher
	Imports    cache.Cache[StagedImport]
	Dashboards cache.Cache[report.Dashboard]
	Metrics    *metrics.Metrics
	Location   *time.Location
	ImportTTL  time.Duration
	Now        func() time.Time
}

// Portal holds the single application-state snapshot. Reads take the read
// lock and get copies; writes are serialised under the write lock across the
// store round trip, so the snapshot only changes after the store agreed.
type Portal struct {
	mu      sync.RWMutex
	state   core.State
	loaded  bool
	version uint64

	store      store.Store
	publisher  Publisher
	imports    cache.Cache[StagedImport]
	dashboards cache.Cache[report.Dashboard]
	metrics    *metrics.Metrics
	loc        *time.Location
	importTTL  time.Duration
	now        func() time.Time
	log        *applog.Logger
}

func NewPortal(opts Options) *Portal {
	p := &Portal{
		store:      opts.Store,
		publisher:  opts.Publisher,
		imports:    opts.Imports,
		dashboards: opts.Dashboards,
		metrics:    opts.Metrics,
		loc:        opts.Location,
		importTTL:  opts.ImportTTL,
		now:        opts.Now,
		log:        applog.New(applog.Config{Handler: slog.Default().Handler(), Component: applog.ComponentPortal}),
	}
	if p.loc == nil {
		p.loc = time.UTC
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.importTTL <= 0 {
		p.importTTL = 15 * time.Minute
	}
	if p.imports == nil {
		p.imports = cache.NewLRUCache[StagedImport](32, p.importTTL)
	}
	return p
}

// Load reads every collection from the store concurrently and swaps the
// snapshot. It holds the write lock across the reads, like the write paths,
// so a refresh never replaces records written while it was listing. On error
// the previous snapshot is kept.
func (p *Portal) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	kinds := core.Kinds()
	lists := make([][]core.Record, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, k := range kinds {
		g.Go(func() error {
			recs, err := p.store.List(gctx, k)
			if err != nil {
				return fmt.Errorf("list %s: %w", k, err)
			}
			lists[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	var next core.State
	for i, k := range kinds {
		next = next.With(k, lists[i])
	}

	p.state = next
	p.loaded = true
	p.version++

	p.metrics.SetRecords(next)
	p.log.InfoContext(ctx, "Snapshot loaded",
		"sales", len(next.Sales),
		"expenses", len(next.Expenses),
		"customers", len(next.Customers),
		"stock", len(next.StockMovements),
		"products", len(next.Products))
	return nil
}

// Ready reports whether a snapshot has been loaded.
func (p *Portal) Ready() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.loaded {
		return ErrNotLoaded
	}
	return nil
}

// Snapshot returns a deep copy of the current state.
func (p *Portal) Snapshot() core.State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Clone()
}

// Today is the current calendar day in the portal's time zone.
func (p *Portal) Today() core.Date {
	return core.DateOf(p.now().In(p.loc))
}

// View returns the records of kind matching the window and query. A zero
// Today in params means the portal's today.
func (p *Portal) View(kind core.Kind, params filter.Params) []core.Record {
	if params.Today.IsZero() {
		params.Today = p.Today()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	matched := filter.Apply(kind, p.state.Collection(kind), params)
	out := make([]core.Record, len(matched))
	for i, r := range matched {
		out[i] = r.Clone()
	}
	return out
}

// ActiveProducts lists the products offered on the sales form.
func (p *Portal) ActiveProducts() []core.Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return core.State{Products: p.state.ActiveProducts()}.Clone().Products
}

// Dashboard builds the dashboard for day, caching it until the next write.
func (p *Portal) Dashboard(ctx context.Context, day core.Date) report.Dashboard {
	p.mu.RLock()
	key := fmt.Sprintf("%s@%d", day, p.version)
	if p.dashboards != nil {
		if d, ok, err := p.dashboards.Get(ctx, key); err == nil && ok {
			p.mu.RUnlock()
			return d
		} else if err != nil {
			p.log.WarnContext(ctx, "Dashboard cache read failed", applog.FieldError, err)
		}
	}
	d := report.Build(p.state, day)
	p.mu.RUnlock()

	if p.dashboards != nil {
		if err := p.dashboards.Set(ctx, key, d); err != nil {
			p.log.WarnContext(ctx, "Dashboard cache write failed", applog.FieldError, err)
		}
	}
	return d
}

// Summary computes the daily summary archived by the nightly job.
func (p *Portal) Summary(day core.Date) report.DailySummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return report.Summarize(p.state, day, p.now())
}

// PurchaseDrift lists customers whose running total differs from their sales.
func (p *Portal) PurchaseDrift() []report.PurchaseDrift {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return report.RecomputePurchases(p.state.Customers, p.state.Sales)
}

// AddSale stores a sale and, when it names a known customer, bumps that
// customer's running purchase total. If the customer update fails the sale
// is deleted again and neither change reaches the snapshot.
func (p *Portal) AddSale(ctx context.Context, user core.User, in core.SaleInput) (core.Record, error) {
	if strings.TrimSpace(in.Salesperson) == "" {
		in.Salesperson = user.Username
	}
	rec, err := in.Record(p.now())
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	ci := matchCustomer(p.state.Customers, rec)
	if ci >= 0 {
		c := p.state.Customers[ci]
		rec[core.FieldCustomerID] = c.ID()
		if rec.Text(core.FieldCustomer) == "" {
			rec[core.FieldCustomer] = c.Text(core.FieldName)
		}
	}

	sale, err := p.store.Create(ctx, core.KindSales, rec)
	p.metrics.RecordWrite(core.KindSales, applog.OpCreate, err)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("create sale: %w", err)
	}

	var customer core.Record
	if ci >= 0 {
		c := p.state.Customers[ci]
		patch := core.Record{
			core.FieldTotalPurchases: core.Num(c.Number(core.FieldTotalPurchases).Add(sale.Number(core.FieldTotal))),
			core.FieldLastPurchase:   sale.Text(core.FieldDate),
		}
		customer, err = p.store.Update(ctx, core.KindCustomers, c.ID(), patch)
		p.metrics.RecordWrite(core.KindCustomers, applog.OpUpdate, err)
		if err != nil {
			if derr := p.store.Delete(ctx, core.KindSales, sale.ID()); derr != nil {
				p.log.ErrorContext(ctx, "Failed to compensate sale after customer update failure",
					applog.NewFields().WithRecord(string(core.KindSales), sale.ID()).WithError(derr).ToSlice()...)
				err = errors.Join(err, derr)
			}
			p.mu.Unlock()
			return nil, fmt.Errorf("update customer purchases: %w", err)
		}
		customers := append([]core.Record(nil), p.state.Customers...)
		customers[ci] = customer
		p.state = p.state.With(core.KindCustomers, customers)
	}
	p.state = p.state.With(core.KindSales, prepend(p.state.Sales, sale))
	p.version++
	snapshot := p.state
	p.mu.Unlock()

	p.metrics.SetRecords(snapshot)
	p.publish(ctx, amqp.NewRecordEvent(core.KindSales, amqp.OpCreate, sale.ID()))
	if customer != nil {
		p.publish(ctx, amqp.NewRecordEvent(core.KindCustomers, amqp.OpUpdate, customer.ID()))
	}
	p.logCreated(ctx, core.KindSales, sale.ID(), user)
	return sale.Clone(), nil
}

// matchCustomer finds the customer a sale refers to: by id when given,
// otherwise by exact name.
func matchCustomer(customers []core.Record, sale core.Record) int {
	if id := sale.Text(core.FieldCustomerID); id != "" {
		for i, c := range customers {
			if c.ID() == id {
				return i
			}
		}
		return -1
	}
	name := sale.Text(core.FieldCustomer)
	if name == "" {
		return -1
	}
	for i, c := range customers {
		if c.Text(core.FieldName) == name {
			return i
		}
	}
	return -1
}

func (p *Portal) AddExpense(ctx context.Context, user core.User, in core.ExpenseInput) (core.Record, error) {
	if strings.TrimSpace(in.Salesperson) == "" {
		in.Salesperson = user.Username
	}
	rec, err := in.Record(p.now())
	if err != nil {
		return nil, err
	}
	return p.create(ctx, user, core.KindExpenses, rec)
}

func (p *Portal) AddCustomer(ctx context.Context, user core.User, in core.CustomerInput) (core.Record, error) {
	rec, err := in.Record(p.now())
	if err != nil {
		return nil, err
	}
	return p.create(ctx, user, core.KindCustomers, rec)
}

func (p *Portal) AddStockMovement(ctx context.Context, user core.User, in core.StockInput) (core.Record, error) {
	if strings.TrimSpace(in.Salesperson) == "" {
		in.Salesperson = user.Username
	}
	rec, err := in.Record(p.now())
	if err != nil {
		return nil, err
	}
	return p.create(ctx, user, core.KindStock, rec)
}

func (p *Portal) AddProduct(ctx context.Context, user core.User, in core.ProductInput) (core.Record, error) {
	rec, err := in.Record(p.now())
	if err != nil {
		return nil, err
	}
	return p.create(ctx, user, core.KindProducts, rec)
}

func (p *Portal) create(ctx context.Context, user core.User, kind core.Kind, rec core.Record) (core.Record, error) {
	p.mu.Lock()
	saved, err := p.store.Create(ctx, kind, rec)
	p.metrics.RecordWrite(kind, applog.OpCreate, err)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}
	recs := prepend(p.state.Collection(kind), saved)
	if kind.SortsByName() {
		recs = store.Ordered(kind, recs)
	}
	p.state = p.state.With(kind, recs)
	p.version++
	snapshot := p.state
	p.mu.Unlock()

	p.metrics.SetRecords(snapshot)
	p.publish(ctx, amqp.NewRecordEvent(kind, amqp.OpCreate, saved.ID()))
	p.logCreated(ctx, kind, saved.ID(), user)
	return saved.Clone(), nil
}

// editableCustomerFields are the customer fields a PATCH may change. The
// purchase history is maintained by sales only.
var editableCustomerFields = map[string]bool{
	core.FieldName: true, "phone": true, "email": true, "address": true,
	"city": true, "creditLimit": true, "notes": true,
}

// UpdateCustomer applies a partial update to a customer.
func (p *Portal) UpdateCustomer(ctx context.Context, id string, patch core.Record) (core.Record, error) {
	clean := make(core.Record, len(patch))
	for k, v := range patch {
		if !editableCustomerFields[k] {
			return nil, &core.ValidationError{Fields: map[string]string{k: "cannot be changed"}}
		}
		clean[k] = core.Coerce(core.KindCustomers, k, strings.TrimSpace(core.Text(v)))
	}
	if v, ok := clean[core.FieldName]; ok && core.Text(v) == "" {
		return nil, &core.ValidationError{Fields: map[string]string{core.FieldName: "is required"}}
	}
	if len(clean) == 0 {
		return nil, &core.ValidationError{Fields: map[string]string{"body": "no fields to update"}}
	}

	p.mu.Lock()
	updated, err := p.store.Update(ctx, core.KindCustomers, id, clean)
	p.metrics.RecordWrite(core.KindCustomers, applog.OpUpdate, err)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("update customer %s: %w", id, err)
	}
	customers := append([]core.Record(nil), p.state.Customers...)
	for i, c := range customers {
		if c.ID() == id {
			customers[i] = updated
		}
	}
	p.state = p.state.With(core.KindCustomers, customers)
	p.version++
	p.mu.Unlock()

	p.publish(ctx, amqp.NewRecordEvent(core.KindCustomers, amqp.OpUpdate, id))
	return updated.Clone(), nil
}

// Delete removes one record.
func (p *Portal) Delete(ctx context.Context, kind core.Kind, id string) error {
	p.mu.Lock()
	err := p.store.Delete(ctx, kind, id)
	p.metrics.RecordWrite(kind, applog.OpDelete, err)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	current := p.state.Collection(kind)
	kept := make([]core.Record, 0, len(current))
	for _, r := range current {
		if r.ID() != id {
			kept = append(kept, r)
		}
	}
	p.state = p.state.With(kind, kept)
	p.version++
	snapshot := p.state
	p.mu.Unlock()

	p.metrics.SetRecords(snapshot)
	p.publish(ctx, amqp.NewRecordEvent(kind, amqp.OpDelete, id))
	p.log.InfoContext(ctx, "Record deleted", applog.NewFields().WithRecord(string(kind), id).WithOperation(applog.OpDelete).ToSlice()...)
	return nil
}

// publish sends evt without failing the write that caused it.
func (p *Portal) publish(ctx context.Context, evt amqp.RecordEvent) {
	if p.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.publisher.PublishRecordEvent(pctx, evt); err != nil {
		p.log.WarnContext(ctx, "Failed to publish record event",
			applog.NewFields().WithRecord(string(evt.Kind), evt.ID).WithOperation(evt.Op).WithError(err).ToSlice()...)
	}
}

func (p *Portal) logCreated(ctx context.Context, kind core.Kind, id string, user core.User) {
	p.log.InfoContext(ctx, "Record created",
		applog.NewFields().WithRecord(string(kind), id).WithOperation(applog.OpCreate).WithUser(user.Username, string(user.Role)).ToSlice()...)
}

func prepend(recs []core.Record, r core.Record) []core.Record {
	out := make([]core.Record, 0, len(recs)+1)
	out = append(out, r)
	return append(out, recs...)
}
