package application

import (
	"context"
	"fmt"

	"github.com/veloevents/service-booking-flow/internal/domain/cart"
	"github.com/veloevents/service-booking-flow/internal/domain/event"
	"github.com/veloevents/service-booking-flow/internal/domain/form"
	"github.com/veloevents/service-booking-flow/internal/domain/order"
	"github.com/veloevents/service-booking-flow/internal/domain/partner"
)

type fakeEventRepo struct {
	events map[int64]*event.Event
	meta   map[int64]map[string]string
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{
		events: map[int64]*event.Event{},
		meta:   map[int64]map[string]string{},
	}
}

func (f *fakeEventRepo) FindByID(_ context.Context, id int64) (*event.Event, error) {
	ev, ok := f.events[id]
	if !ok {
		return nil, event.ErrNotFound
	}
	return ev, nil
}

func (f *fakeEventRepo) Meta(_ context.Context, id int64, key string) (string, error) {
	return f.meta[id][key], nil
}

func (f *fakeEventRepo) SetMeta(_ context.Context, id int64, key, value string) error {
	if f.meta[id] == nil {
		f.meta[id] = map[string]string{}
	}
	f.meta[id][key] = value
	return nil
}

type fakeProductRepo struct {
	products map[int64]*event.Product
	// byCategory resolves FindByCategoryKeys in declaration order.
	byCategory map[string]int64
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{
		products:   map[int64]*event.Product{},
		byCategory: map[string]int64{},
	}
}

func (f *fakeProductRepo) FindByID(_ context.Context, id int64) (*event.Product, error) {
	return f.products[id], nil
}

func (f *fakeProductRepo) FindByCategoryKeys(_ context.Context, keys []string) (*event.Product, error) {
	for _, k := range keys {
		if id, ok := f.byCategory[k]; ok {
			return f.products[id], nil
		}
	}
	return nil, nil
}

type fakeEntryRepo struct {
	entries map[int64]*form.Entry
	marked  map[int64]int
}

func newFakeEntryRepo() *fakeEntryRepo {
	return &fakeEntryRepo{entries: map[int64]*form.Entry{}, marked: map[int64]int{}}
}

func (f *fakeEntryRepo) FindByID(_ context.Context, id int64) (*form.Entry, error) {
	e, ok := f.entries[id]
	if !ok {
		return nil, form.ErrNotFound
	}
	return e, nil
}

func (f *fakeEntryRepo) Save(_ context.Context, e *form.Entry) error {
	f.entries[e.ID] = e
	return nil
}

func (f *fakeEntryRepo) MarkCartAdded(_ context.Context, id int64) error {
	f.marked[id]++
	if e, ok := f.entries[id]; ok {
		e.CartAdded = true
	}
	return nil
}

func (f *fakeEntryRepo) WasCartAdded(_ context.Context, id int64) (bool, error) {
	e, ok := f.entries[id]
	return ok && e.CartAdded, nil
}

type appliedCoupon struct {
	session string
	code    string
}

type fakeCartStore struct {
	lines   map[string][]cart.Line
	coupons []appliedCoupon
	addErr  map[int64]error
	nextKey int
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{lines: map[string][]cart.Line{}, addErr: map[int64]error{}}
}

func (f *fakeCartStore) Add(_ context.Context, sessionID string, line cart.Line) (string, error) {
	if err := f.addErr[line.ProductID]; err != nil {
		return "", err
	}
	f.nextKey++
	line.Key = fmt.Sprintf("key-%d", f.nextKey)
	f.lines[sessionID] = append(f.lines[sessionID], line)
	return line.Key, nil
}

func (f *fakeCartStore) Lines(_ context.Context, sessionID string) ([]cart.Line, error) {
	return f.lines[sessionID], nil
}

func (f *fakeCartStore) ApplyCoupon(_ context.Context, sessionID, code string) (bool, error) {
	f.coupons = append(f.coupons, appliedCoupon{session: sessionID, code: code})
	return true, nil
}

func (f *fakeCartStore) Coupons(_ context.Context, sessionID string) ([]string, error) {
	var codes []string
	for _, c := range f.coupons {
		if c.session == sessionID {
			codes = append(codes, c.code)
		}
	}
	return codes, nil
}

type publishedEvent struct {
	topic     string
	eventType string
	key       string
	payload   any
}

type fakePublisher struct {
	published []publishedEvent
}

func (f *fakePublisher) Publish(_ context.Context, topic, eventType, key string, payload any) error {
	f.published = append(f.published, publishedEvent{topic, eventType, key, payload})
	return nil
}

type fakeOrderRepo struct {
	orders     map[int64]*order.Order
	items      map[int64][]order.Item
	metaWrites int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[int64]*order.Order{}, items: map[int64][]order.Item{}}
}

func (f *fakeOrderRepo) FindByID(_ context.Context, id int64) (*order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderRepo) Items(_ context.Context, orderID int64) ([]order.Item, error) {
	return f.items[orderID], nil
}

func (f *fakeOrderRepo) UpdateMeta(_ context.Context, orderID int64, meta map[string]string) error {
	o, ok := f.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	if o.Meta == nil {
		o.Meta = map[string]string{}
	}
	for k, v := range meta {
		o.Meta[k] = v
	}
	f.metaWrites++
	return nil
}

type fakeUserStore struct {
	users []partner.User
}

func (f *fakeUserStore) FindByID(_ context.Context, id int64) (*partner.User, error) {
	for i := range f.users {
		if f.users[i].ID == id {
			return &f.users[i], nil
		}
	}
	return nil, nil
}

func (f *fakeUserStore) FindByDiscountCode(_ context.Context, code string) (*partner.User, error) {
	for i := range f.users {
		if partner.NormalizeCode(f.users[i].DiscountCode) == code {
			return &f.users[i], nil
		}
	}
	return nil, nil
}

func (f *fakeUserStore) ListWithDiscountCode(_ context.Context) ([]partner.User, error) {
	var out []partner.User
	for _, u := range f.users {
		if u.DiscountCode != "" {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeCouponStore struct {
	coupons map[string]*partner.Coupon
}

func (f *fakeCouponStore) FindByCode(_ context.Context, code string) (*partner.Coupon, error) {
	return f.coupons[code], nil
}
