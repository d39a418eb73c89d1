package repositories

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"hawkinsfarm/internal/models"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var (
	orderRowColumns = []string{"id", "buyer_id", "status", "total_amount", "shipping_address", "payment_method", "created_at", "updated_at"}
	itemRowColumns  = []string{"order_id", "product_id", "name", "quantity", "price", "farmer_id"}
)

type OrderRepoTestSuite struct {
	suite.Suite
	mock    pgxmock.PgxPoolIface
	repo    OrderRepository
	buyerID uuid.UUID
	farmerA uuid.UUID
	farmerB uuid.UUID
	ctx     context.Context
}

func (suite *OrderRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	require.NoError(suite.T(), err)
	suite.mock = mock
	suite.repo = NewOrderRepo(mock)
	suite.buyerID = uuid.New()
	suite.farmerA = uuid.New()
	suite.farmerB = uuid.New()
	suite.ctx = context.Background()
}

func (suite *OrderRepoTestSuite) TearDownTest() {
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
	suite.mock.Close()
}

func TestOrderRepoTestSuite(t *testing.T) {
	suite.Run(t, new(OrderRepoTestSuite))
}

func (suite *OrderRepoTestSuite) twoFarmerOrder() *models.Order {
	items := []models.OrderItem{
		{ProductID: uuid.New(), Name: "Tomatoes", Quantity: 3, Price: decimal.RequireFromString("2.00"), FarmerID: suite.farmerA},
		{ProductID: uuid.New(), Name: "Eggs", Quantity: 1, Price: decimal.RequireFromString("5.00"), FarmerID: suite.farmerB},
	}
	return &models.Order{
		BuyerID:         suite.buyerID,
		Items:           items,
		Status:          models.OrderStatusPending,
		TotalAmount:     decimal.RequireFromString("11.00"),
		ShippingAddress: "1 Farm Lane",
		PaymentMethod:   models.DefaultPaymentMethod,
	}
}

func (suite *OrderRepoTestSuite) TestSave_InsertsOrderAndItemsInOneTx() {
	order := suite.twoFarmerOrder()
	now := time.Now()

	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO orders (id, buyer_id, status, total_amount, shipping_address, payment_method, created_at, updated_at)`)).
		WithArgs(pgxmock.AnyArg(), suite.buyerID, "Pending", order.TotalAmount, "1 Farm Lane", models.DefaultPaymentMethod).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	for i, item := range order.Items {
		suite.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO order_items (order_id, line_no, product_id, name, quantity, price, farmer_id)`)).
			WithArgs(pgxmock.AnyArg(), i, item.ProductID, item.Name, item.Quantity, item.Price, item.FarmerID).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	suite.mock.ExpectCommit()

	saved, err := suite.repo.Save(suite.ctx, order)
	require.NoError(suite.T(), err)
	assert.NotEqual(suite.T(), uuid.Nil, saved.ID)
	assert.Equal(suite.T(), now, saved.CreatedAt)
	assert.Equal(suite.T(), order.Items, saved.Items)
	assert.Equal(suite.T(), uuid.Nil, order.ID, "input order is not mutated")
}

func (suite *OrderRepoTestSuite) TestSave_ItemFailureRollsBack() {
	order := suite.twoFarmerOrder()
	now := time.Now()

	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(`INSERT INTO orders`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	suite.mock.ExpectExec(`INSERT INTO order_items`).
		WithArgs(pgxmock.AnyArg(), 0, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	suite.mock.ExpectRollback()

	_, err := suite.repo.Save(suite.ctx, order)
	assert.ErrorIs(suite.T(), err, models.ErrStorage)
}

func (suite *OrderRepoTestSuite) expectInsertsThenCommitError(order *models.Order, commitErr error) {
	now := time.Now()
	suite.mock.ExpectBegin()
	suite.mock.ExpectQuery(`INSERT INTO orders`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	for i := range order.Items {
		suite.mock.ExpectExec(`INSERT INTO order_items`).
			WithArgs(pgxmock.AnyArg(), i, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	suite.mock.ExpectCommit().WillReturnError(commitErr)
}

func (suite *OrderRepoTestSuite) TestSave_CommitFailureNotStored() {
	order := suite.twoFarmerOrder()
	order.ID = uuid.New()
	suite.expectInsertsThenCommitError(order, errors.New("unexpected EOF"))
	suite.mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`)).
		WithArgs(order.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	saved, err := suite.repo.Save(suite.ctx, order)
	assert.Nil(suite.T(), saved)
	assert.ErrorIs(suite.T(), err, models.ErrStorage)
	assert.Contains(suite.T(), err.Error(), "commit order")
}

func (suite *OrderRepoTestSuite) TestSave_CommitFailureCheckFails() {
	order := suite.twoFarmerOrder()
	order.ID = uuid.New()
	suite.expectInsertsThenCommitError(order, errors.New("unexpected EOF"))
	suite.mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`)).
		WithArgs(order.ID).
		WillReturnError(errors.New("connection reset by peer"))

	_, err := suite.repo.Save(suite.ctx, order)
	assert.ErrorIs(suite.T(), err, models.ErrStorage)
}

func (suite *OrderRepoTestSuite) TestSave_CommitErrorButOrderStored() {
	order := suite.twoFarmerOrder()
	order.ID = uuid.New()
	suite.expectInsertsThenCommitError(order, errors.New("unexpected EOF"))
	suite.mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`)).
		WithArgs(order.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	saved, err := suite.repo.Save(suite.ctx, order)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), order.ID, saved.ID)
	assert.Equal(suite.T(), order.Items, saved.Items)
}

func (suite *OrderRepoTestSuite) TestSave_BeginFailure() {
	suite.mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := suite.repo.Save(suite.ctx, suite.twoFarmerOrder())
	assert.ErrorIs(suite.T(), err, models.ErrStorage)
}

func (suite *OrderRepoTestSuite) TestSave_RejectsEmptyOrder() {
	_, err := suite.repo.Save(suite.ctx, &models.Order{BuyerID: suite.buyerID})
	assert.ErrorIs(suite.T(), err, models.ErrValidation)
}

func (suite *OrderRepoTestSuite) TestFindByBuyer_NewestFirstWithItems() {
	newer, older := uuid.New(), uuid.New()
	t1 := time.Now()
	t0 := t1.Add(-time.Hour)
	productID := uuid.New()

	suite.mock.ExpectQuery(regexp.QuoteMeta(`FROM orders o WHERE o.buyer_id = $1 ORDER BY o.created_at DESC, o.id DESC`)).
		WithArgs(suite.buyerID).
		WillReturnRows(pgxmock.NewRows(orderRowColumns).
			AddRow(newer, suite.buyerID, "Pending", decimal.RequireFromString("4.00"), "addr", models.DefaultPaymentMethod, t1, t1).
			AddRow(older, suite.buyerID, "Delivered", decimal.RequireFromString("2.00"), "addr", models.DefaultPaymentMethod, t0, t0))
	suite.mock.ExpectQuery(regexp.QuoteMeta(`FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`)).
		WithArgs([]uuid.UUID{newer, older}).
		WillReturnRows(pgxmock.NewRows(itemRowColumns).
			AddRow(newer, productID, "Milk", 2, decimal.RequireFromString("2.00"), suite.farmerA).
			AddRow(older, productID, "Milk", 1, decimal.RequireFromString("2.00"), suite.farmerA))

	orders, err := suite.repo.FindByBuyer(suite.ctx, suite.buyerID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), orders, 2)
	assert.Equal(suite.T(), newer, orders[0].ID)
	assert.Equal(suite.T(), models.OrderStatusPending, orders[0].Status)
	assert.Equal(suite.T(), models.OrderStatusDelivered, orders[1].Status)
	require.Len(suite.T(), orders[0].Items, 1)
	assert.Equal(suite.T(), 2, orders[0].Items[0].Quantity)
	assert.Equal(suite.T(), 1, orders[1].Items[0].Quantity)
}

func (suite *OrderRepoTestSuite) TestFindByBuyer_NoOrdersSkipsItemQuery() {
	suite.mock.ExpectQuery(`FROM orders o WHERE o.buyer_id`).
		WithArgs(suite.buyerID).
		WillReturnRows(pgxmock.NewRows(orderRowColumns))

	orders, err := suite.repo.FindByBuyer(suite.ctx, suite.buyerID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), orders)
}

func (suite *OrderRepoTestSuite) TestFindByFarmerInItems_OrderAppearsOnceWithAllLines() {
	orderID := uuid.New()
	now := time.Now()

	suite.mock.ExpectQuery(regexp.QuoteMeta(`WHERE EXISTS (SELECT 1 FROM order_items i WHERE i.order_id = o.id AND i.farmer_id = $1)`)).
		WithArgs(suite.farmerA).
		WillReturnRows(pgxmock.NewRows(orderRowColumns).
			AddRow(orderID, suite.buyerID, "Pending", decimal.RequireFromString("13.00"), "addr", models.DefaultPaymentMethod, now, now))
	suite.mock.ExpectQuery(`FROM order_items WHERE order_id = ANY`).
		WithArgs([]uuid.UUID{orderID}).
		WillReturnRows(pgxmock.NewRows(itemRowColumns).
			AddRow(orderID, uuid.New(), "Tomatoes", 3, decimal.RequireFromString("2.00"), suite.farmerA).
			AddRow(orderID, uuid.New(), "Eggs", 1, decimal.RequireFromString("5.00"), suite.farmerB).
			AddRow(orderID, uuid.New(), "Basil", 1, decimal.RequireFromString("2.00"), suite.farmerA))

	orders, err := suite.repo.FindByFarmerInItems(suite.ctx, suite.farmerA)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), orders, 1)
	assert.Len(suite.T(), orders[0].Items, 3)
	assert.Len(suite.T(), models.NewFarmerOrder(orders[0], suite.farmerA).FarmerItems, 2)
}

func (suite *OrderRepoTestSuite) TestGetByID_NotFound() {
	id := uuid.New()
	suite.mock.ExpectQuery(regexp.QuoteMeta(`FROM orders o WHERE o.id = $1`)).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(orderRowColumns))

	_, err := suite.repo.GetByID(suite.ctx, id)
	assert.ErrorIs(suite.T(), err, models.ErrOrderNotFound)
}

func (suite *OrderRepoTestSuite) TestUpdateStatus_StaleStatusIsConflict() {
	id := uuid.New()
	suite.mock.ExpectQuery(regexp.QuoteMeta(`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3 RETURNING updated_at`)).
		WithArgs("Processing", id, "Pending").
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}))

	_, err := suite.repo.UpdateStatus(suite.ctx, id, models.OrderStatusPending, models.OrderStatusProcessing)
	assert.ErrorIs(suite.T(), err, models.ErrConflict)
}

func (suite *OrderRepoTestSuite) TestUpdateStatus_ReturnsFreshOrder() {
	id := uuid.New()
	now := time.Now()
	suite.mock.ExpectQuery(`UPDATE orders SET status`).
		WithArgs("Shipped", id, "Processing").
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(now))
	suite.mock.ExpectQuery(`FROM orders o WHERE o.id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(orderRowColumns).
			AddRow(id, suite.buyerID, "Shipped", decimal.RequireFromString("2.00"), "addr", models.DefaultPaymentMethod, now, now))
	suite.mock.ExpectQuery(`FROM order_items WHERE order_id = ANY`).
		WithArgs([]uuid.UUID{id}).
		WillReturnRows(pgxmock.NewRows(itemRowColumns).
			AddRow(id, uuid.New(), "Honey", 1, decimal.RequireFromString("2.00"), suite.farmerA))

	order, err := suite.repo.UpdateStatus(suite.ctx, id, models.OrderStatusProcessing, models.OrderStatusShipped)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.OrderStatusShipped, order.Status)
	assert.Len(suite.T(), order.Items, 1)
}
