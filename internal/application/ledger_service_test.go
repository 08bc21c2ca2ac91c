package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veloevents/service-booking-flow/internal/domain/cart"
	"github.com/veloevents/service-booking-flow/internal/domain/order"
	"github.com/veloevents/service-booking-flow/internal/domain/partner"
)

func newLedgerFixture() (*LedgerService, *fakeOrderRepo, *fakePublisher) {
	orders := newFakeOrderRepo()
	users := &fakeUserStore{users: []partner.User{
		{ID: 7, Email: "shop@example.com", DiscountCode: "bondia", CommissionRate: 8},
	}}
	coupons := &fakeCouponStore{coupons: map[string]*partner.Coupon{
		"bondia": {Code: "bondia", DiscountType: partner.CouponTypePercent, Amount: 10},
		"flat5":  {Code: "flat5", DiscountType: partner.CouponTypeFixed, Amount: 5},
	}}
	pub := &fakePublisher{}
	return NewLedgerService(orders, users, coupons, pub, zap.NewNop()), orders, pub
}

func seedOrder(orders *fakeOrderRepo, id int64, meta map[string]string, items ...order.Item) {
	orders.orders[id] = &order.Order{ID: id, Meta: meta}
	orders.items[id] = items
}

func TestWriteLedgerComputesFromSnapshots(t *testing.T) {
	svc, orders, _ := newLedgerFixture()
	seedOrder(orders, 100, map[string]string{
		order.MetaPartnerDiscountPct:    "10",
		order.MetaPartnerCommissionRate: "8",
	},
		order.Item{ID: 1, Quantity: 1, Subtotal: 450, Meta: map[string]string{
			cart.MetaEventID:      "10",
			cart.MetaEBBasePrice:  "500.00",
			cart.MetaEBAmount:     "50.00",
			cart.MetaEBPct:        "10",
			cart.MetaEBDaysBefore: "42",
			cart.MetaEBEventTS:    "1772444800",
		}},
		order.Item{ID: 2, Quantity: 1, Subtotal: 180, Meta: map[string]string{
			cart.MetaEventID:     "10",
			cart.MetaEBBasePrice: "200.00",
			cart.MetaEBAmount:    "20.00",
			cart.MetaEBPct:       "10",
		}},
	)

	ledger, err := svc.Write(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, ledger)

	assert.Equal(t, 700.0, ledger.SubtotalOriginal)
	assert.Equal(t, 70.0, ledger.EBDiscountAmount)
	assert.Equal(t, 10.0, ledger.EBDiscountPct)
	assert.Equal(t, 42, ledger.EBDaysBefore)
	assert.Equal(t, int64(10), ledger.EBEventID)
	assert.Equal(t, 630.0, ledger.PartnerBaseTotal)
	assert.Equal(t, 63.0, ledger.ClientDiscount)
	assert.Equal(t, 567.0, ledger.ClientTotal)
	assert.Equal(t, 50.4, ledger.Commission)
	assert.Equal(t, order.LedgerVersion, ledger.Version)

	o := orders.orders[100]
	assert.Equal(t, "700.00", o.MetaValue(order.MetaSubtotalOriginal))
	assert.Equal(t, "630.00", o.MetaValue(order.MetaPartnerBaseTotal))
	assert.Equal(t, "567.00", o.MetaValue(order.MetaClientTotal))
	assert.Equal(t, order.LedgerVersion, o.MetaValue(order.MetaLedgerVersion))
}

// The discount is rounded before the total is derived, so discount plus
// total always reconstructs the partner base to the cent.
func TestWriteLedgerRoundsDiscountFirst(t *testing.T) {
	svc, orders, _ := newLedgerFixture()
	seedOrder(orders, 100, map[string]string{
		order.MetaPartnerDiscountPct: "7.5",
	},
		order.Item{ID: 1, Quantity: 1, Subtotal: 101.37, Meta: map[string]string{
			cart.MetaEventID: "10",
		}},
	)

	ledger, err := svc.Write(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, ledger)

	assert.Equal(t, 7.6, ledger.ClientDiscount)
	assert.Equal(t, 93.77, ledger.ClientTotal)
	assert.InDelta(t, ledger.PartnerBaseTotal, ledger.ClientDiscount+ledger.ClientTotal, 0.0001)
}

func TestWriteLedgerClampsDiscountToLineBase(t *testing.T) {
	svc, orders, _ := newLedgerFixture()
	seedOrder(orders, 100, map[string]string{},
		order.Item{ID: 1, Quantity: 1, Subtotal: 100, Meta: map[string]string{
			cart.MetaEventID:     "10",
			cart.MetaEBBasePrice: "100.00",
			cart.MetaEBAmount:    "250.00",
		}},
	)

	ledger, err := svc.Write(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 100.0, ledger.EBDiscountAmount)
	assert.Equal(t, 0.0, ledger.PartnerBaseTotal)
}

func TestWriteLedgerFloorsClientTotalAtZero(t *testing.T) {
	svc, orders, _ := newLedgerFixture()
	seedOrder(orders, 100, map[string]string{
		order.MetaPartnerDiscountPct: "150",
	},
		order.Item{ID: 1, Quantity: 1, Subtotal: 100, Meta: map[string]string{
			cart.MetaEventID: "10",
		}},
	)

	ledger, err := svc.Write(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, ledger)

	assert.Equal(t, 100.0, ledger.PartnerBaseTotal)
	assert.Equal(t, 150.0, ledger.ClientDiscount)
	assert.Equal(t, 0.0, ledger.ClientTotal)
	assert.Equal(t, "0.00", orders.orders[100].MetaValue(order.MetaClientTotal))
}

func TestWriteLedgerDerivesAmountFromPct(t *testing.T) {
	svc, orders, _ := newLedgerFixture()
	seedOrder(orders, 100, map[string]string{},
		order.Item{ID: 1, Quantity: 2, Subtotal: 0, Meta: map[string]string{
			cart.MetaEventID:     "10",
			cart.MetaEBBasePrice: "50.00",
			cart.MetaEBPct:       "10",
		}},
	)

	ledger, err := svc.Write(context.Background(), 100)
	require.NoError(t, err)
	// Base 50 x 2 units, 10 percent.
	assert.Equal(t, 100.0, ledger.SubtotalOriginal)
	assert.Equal(t, 10.0, ledger.EBDiscountAmount)
}

func TestWriteLedgerIsIdempotent(t *testing.T) {
	svc, orders, _ := newLedgerFixture()
	seedOrder(orders, 100, map[string]string{},
		order.Item{ID: 1, Quantity: 1, Subtotal: 100, Meta: map[string]string{
			cart.MetaEventID: "10",
		}},
	)

	_, err := svc.Write(context.Background(), 100)
	require.NoError(t, err)
	writes := orders.metaWrites

	again, err := svc.Write(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, writes, orders.metaWrites)
}

func TestWriteLedgerSkipsOrdersWithoutBookingLines(t *testing.T) {
	svc, orders, _ := newLedgerFixture()
	seedOrder(orders, 100, map[string]string{},
		order.Item{ID: 1, Quantity: 1, Subtotal: 100, Meta: map[string]string{}},
	)

	ledger, err := svc.Write(context.Background(), 100)
	require.NoError(t, err)
	assert.Nil(t, ledger)
	assert.Zero(t, orders.metaWrites)
}

func TestPersistPartnerMetaStampsOwner(t *testing.T) {
	svc, orders, _ := newLedgerFixture()
	seedOrder(orders, 100, map[string]string{})
	orders.orders[100].CouponCodes = []string{"BONDIA"}

	require.NoError(t, svc.PersistPartnerMeta(context.Background(), 100))
	o := orders.orders[100]
	assert.Equal(t, "bondia", o.MetaValue(order.MetaPartnerCode))
	assert.Equal(t, "7", o.MetaValue(order.MetaPartnerID))
	assert.Equal(t, "10.00", o.MetaValue(order.MetaPartnerDiscountPct))
	assert.Equal(t, "8.00", o.MetaValue(order.MetaPartnerCommissionRate))

	// Second call is a no-op even with different coupons.
	orders.orders[100].CouponCodes = []string{"flat5"}
	require.NoError(t, svc.PersistPartnerMeta(context.Background(), 100))
	assert.Equal(t, "bondia", o.MetaValue(order.MetaPartnerCode))
}

func TestPersistPartnerMetaFixedCouponNoDiscountPct(t *testing.T) {
	svc, orders, _ := newLedgerFixture()
	seedOrder(orders, 100, map[string]string{})
	orders.orders[100].CouponCodes = []string{"flat5"}

	require.NoError(t, svc.PersistPartnerMeta(context.Background(), 100))
	o := orders.orders[100]
	assert.Equal(t, "flat5", o.MetaValue(order.MetaPartnerCode))
	assert.Equal(t, "0.00", o.MetaValue(order.MetaPartnerDiscountPct))
	assert.Equal(t, partner.CouponTypeFixed, o.MetaValue(order.MetaPartnerCouponType))
}

func TestNotifyPaidIsDeduplicated(t *testing.T) {
	svc, orders, pub := newLedgerFixture()
	seedOrder(orders, 100, map[string]string{},
		order.Item{ID: 1, Quantity: 1, Subtotal: 100, Meta: map[string]string{
			cart.MetaEntryID: "55",
		}},
	)

	require.NoError(t, svc.NotifyPaid(context.Background(), 100))
	require.NoError(t, svc.NotifyPaid(context.Background(), 100))

	require.Len(t, pub.published, 1)
	assert.Equal(t, TopicOrderEvents, pub.published[0].topic)
	assert.Equal(t, EventOrderPaid, pub.published[0].eventType)
	assert.Equal(t, "1", orders.orders[100].MetaValue(order.MetaPaidNotified))
}
