package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/orderdesk/internal/domain/coupon"
)

// --- Mock implementations ---

type memOrderRepo struct {
	orders        map[int64]*Order
	items         map[int64][]Item
	history       map[int64][]HistoryEntry
	addrOwners    map[int64]int64
	shippingCosts map[int64]decimal.Decimal
	nextID        int64

	createErr  error
	listRows   []Summary
	listTotal  int
	lastFilter Filter
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{
		orders:        make(map[int64]*Order),
		items:         make(map[int64][]Item),
		history:       make(map[int64][]HistoryEntry),
		addrOwners:    make(map[int64]int64),
		shippingCosts: make(map[int64]decimal.Decimal),
	}
}

func (m *memOrderRepo) Create(_ context.Context, o *Order, items []Item, initial HistoryEntry) (int64, error) {
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.nextID++
	stored := *o
	stored.ID = m.nextID
	stored.CreatedAt = time.Now()
	m.orders[stored.ID] = &stored
	m.items[stored.ID] = items
	m.history[stored.ID] = []HistoryEntry{initial}
	return stored.ID, nil
}

func (m *memOrderRepo) Transition(_ context.Context, orderID int64, mutate func(o *Order) (HistoryEntry, error)) error {
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}

	// Mutate a copy so a rejected transition leaves the stored order intact.
	candidate := *o
	entry, err := mutate(&candidate)
	if err != nil {
		return err
	}
	m.orders[orderID] = &candidate
	m.history[orderID] = append(m.history[orderID], entry)
	return nil
}

func (m *memOrderRepo) GetHydrated(_ context.Context, orderID int64) (*Hydrated, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}

	hist := m.history[orderID]
	recent := make([]HistoryEntry, len(hist))
	for i, e := range hist {
		recent[len(hist)-1-i] = e
	}

	details := make([]ItemDetail, len(m.items[orderID]))
	for i, item := range m.items[orderID] {
		details[i] = ItemDetail{
			ProductID:   item.ProductID,
			ProductName: "product",
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		}
	}

	return &Hydrated{
		Order:   *o,
		User:    User{ID: o.UserID, Name: "Test Customer", Email: "test@example.com"},
		Address: Address{ID: o.AddressID},
		Items:   details,
		History: recent,
	}, nil
}

func (m *memOrderRepo) AddressOwner(_ context.Context, addressID int64) (int64, error) {
	owner, ok := m.addrOwners[addressID]
	if !ok {
		return 0, ErrAddressNotFound
	}
	return owner, nil
}

func (m *memOrderRepo) ShippingCost(_ context.Context, methodID *int64) (decimal.Decimal, error) {
	if methodID == nil {
		return decimal.Zero, nil
	}
	return m.shippingCosts[*methodID], nil
}

func (m *memOrderRepo) List(_ context.Context, f Filter) ([]Summary, int, error) {
	m.lastFilter = f
	return m.listRows, m.listTotal, nil
}

func (m *memOrderRepo) ListForExport(_ context.Context, _ Filter) ([]ExportRow, error) {
	return nil, nil
}

type mockValidator struct {
	result *coupon.Result
	err    error
}

func (m *mockValidator) Validate(_ context.Context, _ string, _ decimal.Decimal) (*coupon.Result, error) {
	return m.result, m.err
}

type recordingNotifier struct {
	created, shipped, delivered, cancelled int
}

func (n *recordingNotifier) OrderCreated(_ *Hydrated)   { n.created++ }
func (n *recordingNotifier) OrderShipped(_ *Hydrated)   { n.shipped++ }
func (n *recordingNotifier) OrderDelivered(_ *Hydrated) { n.delivered++ }
func (n *recordingNotifier) OrderCancelled(_ *Hydrated) { n.cancelled++ }

// --- Helpers ---

func newTestService(repo *memOrderRepo, v coupon.Validator) (*Service, *recordingNotifier) {
	n := &recordingNotifier{}
	if v == nil {
		v = &mockValidator{}
	}
	return NewService(repo, v, n), n
}

func seedOrder(repo *memOrderRepo, userID int64, status Status) int64 {
	repo.nextID++
	id := repo.nextID
	repo.orders[id] = &Order{
		ID:          id,
		UserID:      userID,
		AddressID:   1,
		Status:      status,
		TotalAmount: decimal.NewFromInt(50),
		CreatedAt:   time.Now(),
	}
	repo.history[id] = []HistoryEntry{{Status: StatusPending, Notes: "order created"}}
	return id
}

func validCreateRequest() CreateRequest {
	return CreateRequest{
		UserID:    7,
		AddressID: 3,
		Items: []Item{
			{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
			{ProductID: 2, Quantity: 1, UnitPrice: decimal.RequireFromString("20.00")},
		},
	}
}

// --- Tests ---

func TestCreate_EmptyItems(t *testing.T) {
	svc, _ := newTestService(newMemOrderRepo(), nil)

	_, err := svc.Create(context.Background(), CreateRequest{UserID: 7, AddressID: 3})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCreate_InvalidQuantity(t *testing.T) {
	repo := newMemOrderRepo()
	repo.addrOwners[3] = 7
	svc, _ := newTestService(repo, nil)

	req := validCreateRequest()
	req.Items[1].Quantity = 0
	_, err := svc.Create(context.Background(), req)

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, int64(2), iqErr.ProductID)
}

func TestCreate_AddressNotOwned(t *testing.T) {
	repo := newMemOrderRepo()
	repo.addrOwners[3] = 99 // someone else's address
	svc, _ := newTestService(repo, nil)

	_, err := svc.Create(context.Background(), validCreateRequest())
	require.ErrorIs(t, err, ErrAddressNotFound)
	assert.Empty(t, repo.orders)
}

func TestCreate_AddressMissing(t *testing.T) {
	svc, _ := newTestService(newMemOrderRepo(), nil)

	_, err := svc.Create(context.Background(), validCreateRequest())
	require.ErrorIs(t, err, ErrAddressNotFound)
}

func TestCreate_Success(t *testing.T) {
	repo := newMemOrderRepo()
	repo.addrOwners[3] = 7
	svc, notifier := newTestService(repo, nil)

	h, err := svc.Create(context.Background(), validCreateRequest())

	require.NoError(t, err)
	assert.Equal(t, StatusPending, h.Status)
	assert.True(t, decimal.RequireFromString("40.00").Equal(h.TotalAmount))
	require.Len(t, h.History, 1)
	assert.Equal(t, StatusPending, h.History[0].Status)
	assert.Equal(t, "order created", h.History[0].Notes)
	require.NotNil(t, h.History[0].ChangedBy)
	assert.Equal(t, int64(7), *h.History[0].ChangedBy)
	assert.Equal(t, 1, notifier.created)
}

func TestCreate_WithShippingAndCoupon(t *testing.T) {
	repo := newMemOrderRepo()
	repo.addrOwners[3] = 7
	methodID := int64(2)
	repo.shippingCosts[methodID] = decimal.RequireFromString("5.00")

	validator := &mockValidator{
		result: &coupon.Result{
			Coupon:         &coupon.Rule{ID: 11, Code: "SAVE20", Kind: coupon.KindPercent, Discount: decimal.NewFromInt(20)},
			DiscountAmount: decimal.RequireFromString("9.00"),
			FinalTotal:     decimal.RequireFromString("36.00"),
		},
	}
	svc, _ := newTestService(repo, validator)

	req := validCreateRequest()
	req.ShippingMethodID = &methodID
	req.CouponCode = "SAVE20"
	h, err := svc.Create(context.Background(), req)

	require.NoError(t, err)
	// 40 items + 5 shipping - 9 discount
	assert.True(t, decimal.RequireFromString("36.00").Equal(h.TotalAmount))
	require.NotNil(t, h.CouponID)
	assert.Equal(t, int64(11), *h.CouponID)
}

func TestCreate_CouponRejected(t *testing.T) {
	repo := newMemOrderRepo()
	repo.addrOwners[3] = 7
	svc, notifier := newTestService(repo, &mockValidator{err: coupon.ErrExhausted})

	req := validCreateRequest()
	req.CouponCode = "FULL"
	_, err := svc.Create(context.Background(), req)

	require.ErrorIs(t, err, coupon.ErrExhausted)
	assert.Empty(t, repo.orders)
	assert.Zero(t, notifier.created)
}

func TestCreate_TotalMismatch(t *testing.T) {
	repo := newMemOrderRepo()
	repo.addrOwners[3] = 7
	svc, _ := newTestService(repo, nil)

	req := validCreateRequest()
	req.TotalAmount = decimal.RequireFromString("39.00") // computed is 40.00
	_, err := svc.Create(context.Background(), req)

	var tmErr *TotalMismatchError
	require.ErrorAs(t, err, &tmErr)
	assert.True(t, decimal.RequireFromString("40.00").Equal(tmErr.Computed))
	assert.Empty(t, repo.orders)
}

func TestCreate_MatchingTotalAccepted(t *testing.T) {
	repo := newMemOrderRepo()
	repo.addrOwners[3] = 7
	svc, _ := newTestService(repo, nil)

	req := validCreateRequest()
	req.TotalAmount = decimal.RequireFromString("40.00")
	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
}

func TestCreate_RepositoryError(t *testing.T) {
	repo := newMemOrderRepo()
	repo.addrOwners[3] = 7
	repo.createErr = errors.New("db write failed")
	svc, notifier := newTestService(repo, nil)

	_, err := svc.Create(context.Background(), validCreateRequest())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Zero(t, notifier.created)
}

func TestUpdateStatus_ValidTransition(t *testing.T) {
	repo := newMemOrderRepo()
	id := seedOrder(repo, 7, StatusPending)
	svc, _ := newTestService(repo, nil)

	h, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: id, NewStatus: StatusPaid, Notes: "payment received", ActorID: 1,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusPaid, h.Status)
	assert.Nil(t, h.ShippedAt)
	assert.Nil(t, h.DeliveredAt)
	assert.Nil(t, h.CancelledAt)
	require.Len(t, h.History, 2)
	assert.Equal(t, StatusPaid, h.History[0].Status)
	assert.Equal(t, "payment received", h.History[0].Notes)
}

func TestUpdateStatus_ShippedSetsTracking(t *testing.T) {
	repo := newMemOrderRepo()
	id := seedOrder(repo, 7, StatusProcessing)
	svc, notifier := newTestService(repo, nil)

	tracking := "TRK-123456"
	url := "https://track.example.com/TRK-123456"
	eta := time.Now().Add(72 * time.Hour)
	h, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID:           id,
		NewStatus:         StatusShipped,
		TrackingNumber:    &tracking,
		TrackingURL:       &url,
		EstimatedDelivery: &eta,
		ActorID:           1,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusShipped, h.Status)
	require.NotNil(t, h.ShippedAt)
	require.NotNil(t, h.TrackingNumber)
	assert.Equal(t, tracking, *h.TrackingNumber)
	require.NotNil(t, h.TrackingURL)
	assert.Equal(t, url, *h.TrackingURL)
	require.NotNil(t, h.EstimatedDelivery)
	assert.Equal(t, 1, notifier.shipped)
}

func TestUpdateStatus_DeliveredSetsTimestamp(t *testing.T) {
	repo := newMemOrderRepo()
	id := seedOrder(repo, 7, StatusShipped)
	svc, notifier := newTestService(repo, nil)

	h, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: id, NewStatus: StatusDelivered, ActorID: 1,
	})

	require.NoError(t, err)
	require.NotNil(t, h.DeliveredAt)
	assert.Equal(t, 1, notifier.delivered)
}

func TestUpdateStatus_InvalidTransitionLeavesOrderUntouched(t *testing.T) {
	repo := newMemOrderRepo()
	id := seedOrder(repo, 7, StatusDelivered)
	svc, notifier := newTestService(repo, nil)

	before := len(repo.history[id])
	_, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: id, NewStatus: StatusPaid, ActorID: 1,
	})

	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, StatusDelivered, itErr.From)
	assert.Equal(t, StatusPaid, itErr.To)

	assert.Equal(t, StatusDelivered, repo.orders[id].Status)
	assert.Equal(t, before, len(repo.history[id]))
	assert.Zero(t, notifier.shipped+notifier.delivered+notifier.cancelled)
}

func TestUpdateStatus_OrderNotFound(t *testing.T) {
	svc, _ := newTestService(newMemOrderRepo(), nil)

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: 404, NewStatus: StatusPaid, ActorID: 1,
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancel_PendingOrder(t *testing.T) {
	repo := newMemOrderRepo()
	id := seedOrder(repo, 7, StatusPending)
	svc, notifier := newTestService(repo, nil)

	h, err := svc.Cancel(context.Background(), CancelRequest{
		OrderID: id, ActorID: 7, Reason: "out of stock",
	})

	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, h.Status)
	require.NotNil(t, h.CancelledAt)
	require.NotNil(t, h.CancellationReason)
	assert.Equal(t, "out of stock", *h.CancellationReason)
	require.Len(t, h.History, 2)
	assert.Equal(t, StatusCancelled, h.History[0].Status)
	assert.Equal(t, 1, notifier.cancelled)
}

func TestCancel_ShippedOrderRejected(t *testing.T) {
	repo := newMemOrderRepo()
	id := seedOrder(repo, 7, StatusShipped)
	svc, _ := newTestService(repo, nil)

	before := len(repo.history[id])
	_, err := svc.Cancel(context.Background(), CancelRequest{
		OrderID: id, ActorID: 7, Reason: "changed my mind",
	})

	var ncErr *NotCancellableError
	require.ErrorAs(t, err, &ncErr)
	assert.Equal(t, StatusShipped, ncErr.Status)
	assert.Equal(t, StatusShipped, repo.orders[id].Status)
	assert.Equal(t, before, len(repo.history[id]))
}

func TestCancel_OtherUsersOrder(t *testing.T) {
	repo := newMemOrderRepo()
	id := seedOrder(repo, 7, StatusPending)
	svc, _ := newTestService(repo, nil)

	_, err := svc.Cancel(context.Background(), CancelRequest{
		OrderID: id, ActorID: 8, Reason: "not mine",
	})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, StatusPending, repo.orders[id].Status)
}

func TestCancel_PrivilegedCallerCancelsAnyOrder(t *testing.T) {
	repo := newMemOrderRepo()
	id := seedOrder(repo, 7, StatusPaid)
	svc, _ := newTestService(repo, nil)

	h, err := svc.Cancel(context.Background(), CancelRequest{
		OrderID: id, ActorID: 1, Reason: "fraud review", Privileged: true,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, h.Status)
}

func TestCancel_EmptyReasonFallsBackToDefault(t *testing.T) {
	repo := newMemOrderRepo()
	id := seedOrder(repo, 7, StatusPending)
	svc, _ := newTestService(repo, nil)

	h, err := svc.Cancel(context.Background(), CancelRequest{OrderID: id, ActorID: 7})

	require.NoError(t, err)
	require.NotNil(t, h.CancellationReason)
	assert.Equal(t, defaultCancellationReason, *h.CancellationReason)
}

func TestList_PageMetadata(t *testing.T) {
	repo := newMemOrderRepo()
	repo.listRows = make([]Summary, 10)
	repo.listTotal = 45
	svc, _ := newTestService(repo, nil)

	page, err := svc.List(context.Background(), Filter{Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, 45, page.Total)
	assert.Equal(t, 5, page.TotalPages)
	assert.Len(t, page.Orders, 10)
}

func TestList_DefaultsLimit(t *testing.T) {
	repo := newMemOrderRepo()
	svc, _ := newTestService(repo, nil)

	page, err := svc.List(context.Background(), Filter{Offset: -5})

	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, page.Limit)
	assert.Equal(t, DefaultPageSize, repo.lastFilter.Limit)
	assert.Equal(t, 0, repo.lastFilter.Offset)
}

func TestListForUser_ScopesFilter(t *testing.T) {
	repo := newMemOrderRepo()
	svc, _ := newTestService(repo, nil)

	_, err := svc.ListForUser(context.Background(), 42, Filter{})

	require.NoError(t, err)
	require.NotNil(t, repo.lastFilter.UserID)
	assert.Equal(t, int64(42), *repo.lastFilter.UserID)
}
