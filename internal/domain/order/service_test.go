package order_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/shop-backend/internal/config"
	"github.com/your-org/shop-backend/internal/domain"
	"github.com/your-org/shop-backend/internal/domain/item"
	"github.com/your-org/shop-backend/internal/domain/order"
	"github.com/your-org/shop-backend/internal/pkg/notify"
	"github.com/your-org/shop-backend/internal/pkg/testdb"
	"gorm.io/gorm"
)

type sentNotice struct {
	cart   bool
	to     notify.Recipient
	notice notify.OrderNotice
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
	err  error
}

func (r *recordingNotifier) SendOrderNotification(_ context.Context, to notify.Recipient, notice notify.OrderNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotice{to: to, notice: notice})
	return r.err
}

func (r *recordingNotifier) SendCartOrderNotification(_ context.Context, to notify.Recipient, notice notify.OrderNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotice{cart: true, to: to, notice: notice})
	return r.err
}

func newService(t *testing.T) (*order.Service, *recordingNotifier, *gorm.DB) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Points.AccrualPercent = 1
	logger, _ := test.NewNullLogger()
	notifier := &recordingNotifier{}
	return order.NewService(cfg, notifier, logger), notifier, testdb.New(t)
}

func tagSell(t *testing.T, db *gorm.DB, name string) int64 {
	t.Helper()
	var tag item.Tag
	require.NoError(t, db.Where("name = ?", name).First(&tag).Error)
	return tag.TotalSell
}

func countOrders(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&order.Order{}).Count(&n).Error)
	return n
}

func TestPlaceSingleOrderThenReturnRestoresBalance(t *testing.T) {
	svc, notifier, db := newService(t)
	ctx := context.Background()
	m := testdb.CreateMember(t, db, "kim@shop.test", "Kim", testdb.WithPoint(100))
	mug := testdb.CreateItem(t, db, "mug", 530, "kitchen")

	orderID, err := svc.PlaceSingleOrder(ctx, db, order.OrderRequest{ItemID: mug.ID, Count: 1, UsedPoint: 30}, "kim@shop.test")
	require.NoError(t, err)

	placed, err := svc.GetOrder(db, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderStatusOrder, placed.Status)
	assert.Equal(t, order.GiftStatusBuy, placed.GiftStatus)
	assert.Equal(t, int64(530), placed.TotalPrice)
	assert.Equal(t, 30, placed.UsedPoint)
	assert.Equal(t, 5, placed.AccPoint)
	assert.Equal(t, "1 Market Street", placed.Address)
	require.Len(t, placed.Items, 1)
	assert.Equal(t, "mug", placed.Items[0].Item.Name)
	require.Len(t, placed.StatusHistory, 1)

	assert.Equal(t, 75, testdb.Point(t, db, m.ID))
	assert.Equal(t, int64(1), tagSell(t, db, "kitchen"))

	require.Len(t, notifier.sent, 1)
	assert.False(t, notifier.sent[0].cart)
	assert.Equal(t, notify.ChannelEmail, notifier.sent[0].to.Channel)
	assert.Equal(t, "mug", notifier.sent[0].notice.Lines[0].ItemName)

	require.NoError(t, svc.RequestReturn(db, orderID))
	requested, err := svc.GetOrder(db, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderStatusReturn, requested.Status)
	require.NotNil(t, requested.ReturnStatus)
	assert.Equal(t, order.ReturnStatusRequested, *requested.ReturnStatus)
	assert.NotNil(t, requested.ReturnReqDate)
	assert.Equal(t, int64(530), requested.Items[0].ReturnPrice)
	assert.Equal(t, 1, requested.Items[0].ReturnCount)
	assert.Equal(t, 75, testdb.Point(t, db, m.ID))

	require.NoError(t, svc.ConfirmReturn(db, orderID))
	confirmed, err := svc.GetOrder(db, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.ReturnStatusConfirmed, *confirmed.ReturnStatus)
	assert.NotNil(t, confirmed.ReturnConfirmDate)
	require.NotNil(t, confirmed.Items[0].ReturnStatus)
	assert.Equal(t, order.ReturnStatusConfirmed, *confirmed.Items[0].ReturnStatus)
	assert.Len(t, confirmed.StatusHistory, 3)

	assert.Equal(t, 100, testdb.Point(t, db, m.ID))
}

func TestPlaceSingleOrderInsufficientPoints(t *testing.T) {
	svc, notifier, db := newService(t)
	m := testdb.CreateMember(t, db, "kim@shop.test", "Kim", testdb.WithPoint(10))
	mug := testdb.CreateItem(t, db, "mug", 530, "kitchen")

	_, err := svc.PlaceSingleOrder(context.Background(), db, order.OrderRequest{ItemID: mug.ID, Count: 1, UsedPoint: 30}, "kim@shop.test")
	require.ErrorIs(t, err, domain.ErrInsufficientPoints)

	assert.Zero(t, countOrders(t, db))
	assert.Equal(t, 10, testdb.Point(t, db, m.ID))
	assert.Zero(t, tagSell(t, db, "kitchen"))
	assert.Empty(t, notifier.sent)
}

func TestPlaceSingleOrderLookupFailures(t *testing.T) {
	svc, _, db := newService(t)
	mug := testdb.CreateItem(t, db, "mug", 530)
	testdb.CreateMember(t, db, "kim@shop.test", "Kim")

	_, err := svc.PlaceSingleOrder(context.Background(), db, order.OrderRequest{ItemID: 999, Count: 1}, "kim@shop.test")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.PlaceSingleOrder(context.Background(), db, order.OrderRequest{ItemID: mug.ID, Count: 1}, "ghost@shop.test")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.PlaceSingleOrder(context.Background(), db, order.OrderRequest{ItemID: mug.ID, Count: 0}, "kim@shop.test")
	assert.ErrorIs(t, err, domain.ErrInvalidCount)
}

func TestGiftOrderIsNotNotified(t *testing.T) {
	svc, notifier, db := newService(t)
	testdb.CreateMember(t, db, "kim@shop.test", "Kim")
	mug := testdb.CreateItem(t, db, "mug", 530, "gift")

	_, err := svc.PlaceSingleOrder(context.Background(), db, order.OrderRequest{
		ItemID:     mug.ID,
		Count:      2,
		GiftStatus: order.GiftStatusGift,
		Address:    "9 Elm Road",
	}, "kim@shop.test")
	require.NoError(t, err)

	assert.Empty(t, notifier.sent)
	assert.Equal(t, int64(1), tagSell(t, db, "gift"))
}

func TestNotificationFailureRollsBackOrder(t *testing.T) {
	svc, notifier, db := newService(t)
	notifier.err = errors.New("mail server down")
	m := testdb.CreateMember(t, db, "kim@shop.test", "Kim", testdb.WithPoint(100))
	mug := testdb.CreateItem(t, db, "mug", 530)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.PlaceSingleOrder(context.Background(), tx, order.OrderRequest{ItemID: mug.ID, Count: 1, UsedPoint: 30}, "kim@shop.test")
		return err
	})
	require.Error(t, err)

	assert.Zero(t, countOrders(t, db))
	assert.Equal(t, 100, testdb.Point(t, db, m.ID))
}

func TestPlaceMultiOrder(t *testing.T) {
	svc, notifier, db := newService(t)
	m := testdb.CreateMember(t, db, "kim@shop.test", "Kim", testdb.WithSMS("010-1234"), testdb.WithPoint(50))
	mug := testdb.CreateItem(t, db, "mug", 500, "kitchen")
	plate := testdb.CreateItem(t, db, "plate", 300, "kitchen", "living")

	orderID, err := svc.PlaceMultiOrder(context.Background(), db, []order.OrderLine{
		{ItemID: mug.ID, Count: 2},
		{ItemID: plate.ID, Count: 1},
	}, "kim@shop.test", 50)
	require.NoError(t, err)

	placed, err := svc.GetOrder(db, orderID)
	require.NoError(t, err)
	assert.Len(t, placed.Items, 2)
	assert.Equal(t, int64(1300), placed.TotalPrice)
	assert.Equal(t, order.GiftStatusBuy, placed.GiftStatus)
	assert.Equal(t, 12, placed.AccPoint)

	assert.Equal(t, 12, testdb.Point(t, db, m.ID))
	assert.Equal(t, int64(2), tagSell(t, db, "kitchen"))
	assert.Equal(t, int64(1), tagSell(t, db, "living"))

	require.Len(t, notifier.sent, 1)
	assert.True(t, notifier.sent[0].cart)
	assert.Equal(t, notify.ChannelSMS, notifier.sent[0].to.Channel)
	assert.Equal(t, "010-1234", notifier.sent[0].to.Phone)
	assert.Equal(t, int64(1300), notifier.sent[0].notice.TotalPrice)
}

func TestPlaceMultiOrderInsufficientPoints(t *testing.T) {
	svc, notifier, db := newService(t)
	testdb.CreateMember(t, db, "kim@shop.test", "Kim", testdb.WithPoint(5))
	mug := testdb.CreateItem(t, db, "mug", 500)

	_, err := svc.PlaceMultiOrder(context.Background(), db, []order.OrderLine{{ItemID: mug.ID, Count: 1}}, "kim@shop.test", 6)
	require.ErrorIs(t, err, domain.ErrInsufficientPoints)
	assert.Zero(t, countOrders(t, db))
	assert.Empty(t, notifier.sent)

	_, err = svc.PlaceMultiOrder(context.Background(), db, nil, "kim@shop.test", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidCount)
}

func TestCancelOrder(t *testing.T) {
	svc, _, db := newService(t)
	m := testdb.CreateMember(t, db, "kim@shop.test", "Kim", testdb.WithPoint(100))
	mug := testdb.CreateItem(t, db, "mug", 530)

	orderID, err := svc.PlaceSingleOrder(context.Background(), db, order.OrderRequest{ItemID: mug.ID, Count: 1, UsedPoint: 30}, "kim@shop.test")
	require.NoError(t, err)
	require.Equal(t, 75, testdb.Point(t, db, m.ID))

	require.NoError(t, svc.CancelOrder(db, orderID))
	cancelled, err := svc.GetOrder(db, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderStatusCancel, cancelled.Status)
	assert.Equal(t, 100, testdb.Point(t, db, m.ID))

	require.NoError(t, svc.CancelOrder(db, orderID))
	assert.Equal(t, 100, testdb.Point(t, db, m.ID))

	assert.ErrorIs(t, svc.RequestReturn(db, orderID), domain.ErrInvalidOrderState)
	assert.ErrorIs(t, svc.CancelOrder(db, 999), domain.ErrNotFound)
}

func TestReturnStateTransitions(t *testing.T) {
	svc, _, db := newService(t)
	testdb.CreateMember(t, db, "kim@shop.test", "Kim")
	mug := testdb.CreateItem(t, db, "mug", 530)

	orderID, err := svc.PlaceSingleOrder(context.Background(), db, order.OrderRequest{ItemID: mug.ID, Count: 1}, "kim@shop.test")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ConfirmReturn(db, orderID), domain.ErrInvalidOrderState)

	require.NoError(t, svc.RequestReturn(db, orderID))
	assert.ErrorIs(t, svc.RequestReturn(db, orderID), domain.ErrInvalidOrderState)
	assert.ErrorIs(t, svc.CancelOrder(db, orderID), domain.ErrInvalidOrderState)

	require.NoError(t, svc.ConfirmReturn(db, orderID))
	assert.ErrorIs(t, svc.ConfirmReturn(db, orderID), domain.ErrInvalidOrderState)
	assert.ErrorIs(t, svc.ConfirmReturn(db, 999), domain.ErrNotFound)
}

func TestConfirmReturnMayDriveBalanceNegative(t *testing.T) {
	svc, _, db := newService(t)
	m := testdb.CreateMember(t, db, "kim@shop.test", "Kim")
	desk := testdb.CreateItem(t, db, "desk", 100000)

	orderID, err := svc.PlaceSingleOrder(context.Background(), db, order.OrderRequest{ItemID: desk.ID, Count: 1}, "kim@shop.test")
	require.NoError(t, err)
	require.Equal(t, 1000, testdb.Point(t, db, m.ID))

	require.NoError(t, db.Model(m).UpdateColumn("point", 0).Error)
	require.NoError(t, svc.RequestReturn(db, orderID))
	require.NoError(t, svc.ConfirmReturn(db, orderID))

	assert.Equal(t, -1000, testdb.Point(t, db, m.ID))
}

func TestListOrders(t *testing.T) {
	svc, _, db := newService(t)
	ctx := context.Background()
	testdb.CreateMember(t, db, "kim@shop.test", "Kim")
	testdb.CreateMember(t, db, "lee@shop.test", "Lee")
	mug := testdb.CreateItem(t, db, "mug", 500)
	plate := testdb.CreateItem(t, db, "plate", 300)

	first, err := svc.PlaceSingleOrder(ctx, db, order.OrderRequest{ItemID: mug.ID, Count: 1}, "kim@shop.test")
	require.NoError(t, err)
	gift, err := svc.PlaceSingleOrder(ctx, db, order.OrderRequest{ItemID: plate.ID, Count: 1, GiftStatus: order.GiftStatusGift}, "kim@shop.test")
	require.NoError(t, err)
	last, err := svc.PlaceMultiOrder(ctx, db, []order.OrderLine{{ItemID: mug.ID, Count: 1}, {ItemID: plate.ID, Count: 3}}, "kim@shop.test", 0)
	require.NoError(t, err)
	_, err = svc.PlaceSingleOrder(ctx, db, order.OrderRequest{ItemID: mug.ID, Count: 1}, "lee@shop.test")
	require.NoError(t, err)

	all, err := svc.ListOrders(db, "kim@shop.test", domain.PageRequest{Page: 1, Limit: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Pagination.Total)
	assert.True(t, all.Pagination.HasNext)
	require.Len(t, all.Orders, 2)
	assert.Equal(t, last, all.Orders[0].OrderID)
	assert.Equal(t, gift, all.Orders[1].OrderID)
	require.Len(t, all.Orders[0].Items, 2)
	assert.Equal(t, "mug", all.Orders[0].Items[0].ItemName)
	assert.Equal(t, "/img/mug.jpg", all.Orders[0].Items[0].ImgURL)
	assert.Equal(t, "/img/plate.jpg", all.Orders[0].Items[1].ImgURL)

	buy := order.GiftStatusBuy
	bought, err := svc.ListOrders(db, "kim@shop.test", domain.PageRequest{Page: 1, Limit: 10}, &buy)
	require.NoError(t, err)
	assert.Equal(t, int64(2), bought.Pagination.Total)
	require.Len(t, bought.Orders, 2)
	assert.Equal(t, last, bought.Orders[0].OrderID)
	assert.Equal(t, first, bought.Orders[1].OrderID)

	require.NoError(t, svc.RequestReturn(db, first))
	returns, err := svc.ListReturns(db, "kim@shop.test", domain.PageRequest{})
	require.NoError(t, err)
	require.Len(t, returns.Orders, 1)
	assert.Equal(t, first, returns.Orders[0].OrderID)

	_, err = svc.ListOrders(db, "ghost@shop.test", domain.PageRequest{}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestValidateOwnership(t *testing.T) {
	svc, _, db := newService(t)
	testdb.CreateMember(t, db, "kim@shop.test", "Kim")
	testdb.CreateMember(t, db, "lee@shop.test", "Lee")
	mug := testdb.CreateItem(t, db, "mug", 500)

	orderID, err := svc.PlaceSingleOrder(context.Background(), db, order.OrderRequest{ItemID: mug.ID, Count: 1}, "kim@shop.test")
	require.NoError(t, err)

	owned, err := svc.ValidateOwnership(db, orderID, "kim@shop.test")
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = svc.ValidateOwnership(db, orderID, "lee@shop.test")
	require.NoError(t, err)
	assert.False(t, owned)

	_, err = svc.ValidateOwnership(db, 999, "kim@shop.test")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentOrdersCannotOverspendPoints(t *testing.T) {
	svc, _, db := newService(t)
	m := testdb.CreateMember(t, db, "kim@shop.test", "Kim", testdb.WithPoint(60))
	lamp := testdb.CreateItem(t, db, "lamp", 1000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.Transaction(func(tx *gorm.DB) error {
				_, err := svc.PlaceSingleOrder(context.Background(), tx, order.OrderRequest{ItemID: lamp.ID, Count: 1, UsedPoint: 50}, "kim@shop.test")
				return err
			})
		}(i)
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientPoints):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, int64(1), countOrders(t, db))
	assert.Equal(t, 60-50+9, testdb.Point(t, db, m.ID))
}

// drainPointsBeforeUpdate zeroes the member's balance right before the first
// UPDATE on members, after the balance was read and checked
func drainPointsBeforeUpdate(t *testing.T, db *gorm.DB, memberID uint) *bool {
	t.Helper()
	drained := false
	err := db.Callback().Update().Before("gorm:update").Register("test:drain_points", func(d *gorm.DB) {
		if drained || d.Statement.Table != "members" {
			return
		}
		drained = true
		d.Session(&gorm.Session{NewDB: true}).Exec("UPDATE members SET point = 0 WHERE id = ?", memberID)
	})
	require.NoError(t, err)
	return &drained
}

func TestStaleBalanceFailsConditionalPointUpdate(t *testing.T) {
	tests := []struct {
		name  string
		place func(svc *order.Service, tx *gorm.DB, itemID uint) error
	}{
		{
			name: "single",
			place: func(svc *order.Service, tx *gorm.DB, itemID uint) error {
				_, err := svc.PlaceSingleOrder(context.Background(), tx, order.OrderRequest{ItemID: itemID, Count: 1, UsedPoint: 50}, "kim@shop.test")
				return err
			},
		},
		{
			name: "multi",
			place: func(svc *order.Service, tx *gorm.DB, itemID uint) error {
				_, err := svc.PlaceMultiOrder(context.Background(), tx, []order.OrderLine{{ItemID: itemID, Count: 2}}, "kim@shop.test", 50)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, notifier, db := newService(t)
			m := testdb.CreateMember(t, db, "kim@shop.test", "Kim", testdb.WithPoint(60))
			lamp := testdb.CreateItem(t, db, "lamp", 1000)
			drained := drainPointsBeforeUpdate(t, db, m.ID)

			err := db.Transaction(func(tx *gorm.DB) error {
				return tt.place(svc, tx, lamp.ID)
			})

			require.True(t, *drained, "balance was never changed under the order")
			require.ErrorIs(t, err, domain.ErrInsufficientPoints)
			assert.Contains(t, err.Error(), fmt.Sprintf("member %d", m.ID))
			assert.Equal(t, int64(0), countOrders(t, db))
			assert.Equal(t, 60, testdb.Point(t, db, m.ID))
			assert.Empty(t, notifier.sent)
		})
	}
}

func TestCalculateAccPoint(t *testing.T) {
	assert.Equal(t, 5, order.CalculateAccPoint(530, 30, 1))
	assert.Equal(t, 0, order.CalculateAccPoint(30, 30, 1))
	assert.Equal(t, 0, order.CalculateAccPoint(10, 30, 1))
	assert.Equal(t, 0, order.CalculateAccPoint(1000, 0, 0))
	assert.Equal(t, 50, order.CalculateAccPoint(1000, 0, 5))
}

func TestParseGiftStatus(t *testing.T) {
	gs, err := order.ParseGiftStatus("")
	require.NoError(t, err)
	assert.Nil(t, gs)

	gs, err = order.ParseGiftStatus("gift")
	require.NoError(t, err)
	assert.Equal(t, order.GiftStatusGift, *gs)

	_, err = order.ParseGiftStatus("stolen")
	assert.Error(t, err)
}
