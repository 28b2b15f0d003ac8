package service_test

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Shnikita2023/OnlineShop/internal/domain"
	"github.com/Shnikita2023/OnlineShop/internal/service"
)

func (s *IntegrationTestSuite) createOrder(userID int64) int64 {
	orderID, err := s.Orders.CreateOrder(s.Ctx, &service.CreateOrderInput{
		UserID:        userID,
		CostDelivery:  "courier",
		PaymentMethod: "card",
	})
	s.Require().NoError(err)

	return orderID
}

func (s *IntegrationTestSuite) addOrderItem(orderID, productID, quantity int64, price string) {
	_, err := s.Orders.AddItem(s.Ctx, s.asUser(orderOwner), &service.AddOrderItemInput{
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  quantity,
		Price:     decimal.RequireFromString(price),
		Address:   "Main St 1",
	})
	s.Require().NoError(err)
}

const orderOwner int64 = 42

func (s *IntegrationTestSuite) TestCreateOrderStartsNotReady() {
	orderID := s.createOrder(orderOwner)

	order, err := s.Orders.GetOrder(s.Ctx, s.asUser(orderOwner), orderID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusNotReady, order.Status)
	s.Require().True(order.TotalPrice.IsZero())
}

func (s *IntegrationTestSuite) TestGetOrderRecomputesWhenDirty() {
	catID := s.seedCategory("order-cat")
	p1 := s.seedProduct(catID, "keyboard", "100", "0", 10)
	p2 := s.seedProduct(catID, "mouse", "50", "0", 10)

	orderID := s.createOrder(orderOwner)
	s.addOrderItem(orderID, p1, 2, "100")
	s.addOrderItem(orderID, p2, 1, "50")

	flag, err := s.RedisClient.Get(s.Ctx, orderFlagKey(orderID)).Result()
	s.Require().NoError(err)
	s.Require().Equal("1", flag, "adding items marks the order modified")

	order, err := s.Orders.GetOrder(s.Ctx, s.asUser(orderOwner), orderID)
	s.Require().NoError(err)
	s.Require().True(order.TotalPrice.Equal(decimal.RequireFromString("250")),
		"expected 250, got %s", order.TotalPrice)
	s.Require().Equal(domain.OrderStatusReady, order.Status)

	flag, err = s.RedisClient.Get(s.Ctx, orderFlagKey(orderID)).Result()
	s.Require().NoError(err)
	s.Require().Equal("0", flag, "recompute resets the flag")
}

func (s *IntegrationTestSuite) TestRepeatedCleanReadsKeepFlagStoreHealthy() {
	orderID := s.createOrder(orderOwner)

	// Clean reads are the ordinary case; they must neither error nor
	// trip the breaker, no matter how many happen in a row.
	for i := 0; i < 8; i++ {
		dirty, err := s.Flags.CheckAndClear(s.Ctx, orderID)
		s.Require().NoError(err)
		s.Require().False(dirty)
	}

	flag, err := s.RedisClient.Get(s.Ctx, orderFlagKey(orderID)).Result()
	s.Require().NoError(err)
	s.Require().Equal("0", flag, "the clean marker stays in place across reads")

	s.Require().NoError(s.Flags.MarkDirty(s.Ctx, orderID))

	dirty, err := s.Flags.CheckAndClear(s.Ctx, orderID)
	s.Require().NoError(err)
	s.Require().True(dirty)
}

func (s *IntegrationTestSuite) TestManyCleanReadsRecomputeOnlyOnce() {
	catID := s.seedCategory("order-cat")
	p1 := s.seedProduct(catID, "keyboard", "100", "0", 10)

	orderID := s.createOrder(orderOwner)
	s.addOrderItem(orderID, p1, 2, "100")

	for i := 0; i < 8; i++ {
		order, err := s.Orders.GetOrder(s.Ctx, s.asUser(orderOwner), orderID)
		s.Require().NoError(err)
		s.Require().Equal(domain.OrderStatusReady, order.Status)
	}

	s.Require().Equal(1, s.outboxCount("OrderReady"),
		"only the dirty read recomputes; clean reads are pure reads")
}

func (s *IntegrationTestSuite) TestGetOrderSecondReadIsStable() {
	catID := s.seedCategory("order-cat")
	p1 := s.seedProduct(catID, "keyboard", "100", "0", 10)

	orderID := s.createOrder(orderOwner)
	s.addOrderItem(orderID, p1, 2, "100")

	first, err := s.Orders.GetOrder(s.Ctx, s.asUser(orderOwner), orderID)
	s.Require().NoError(err)

	second, err := s.Orders.GetOrder(s.Ctx, s.asUser(orderOwner), orderID)
	s.Require().NoError(err)

	s.Require().True(first.TotalPrice.Equal(second.TotalPrice))
	s.Require().Equal(domain.OrderStatusReady, second.Status)
}

func (s *IntegrationTestSuite) TestAddItemFillsTotalFromQuantityAndPrice() {
	catID := s.seedCategory("order-cat")
	p1 := s.seedProduct(catID, "monitor", "300", "0", 10)

	orderID := s.createOrder(orderOwner)
	s.addOrderItem(orderID, p1, 3, "300")

	items, err := s.Orders.ListItems(s.Ctx, s.asUser(orderOwner), orderID)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Require().True(items[0].TotalPrice.Equal(decimal.RequireFromString("900")))
}

func (s *IntegrationTestSuite) TestAddItemChecksAvailability() {
	catID := s.seedCategory("order-cat")
	productID := s.seedProduct(catID, "limited", "10", "0", 5)
	s.Require().NoError(s.Products.Reserve(s.Ctx, productID, 4))

	orderID := s.createOrder(orderOwner)

	_, err := s.Orders.AddItem(s.Ctx, s.asUser(orderOwner), &service.AddOrderItemInput{
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  2,
		Price:     decimal.RequireFromString("10"),
		Address:   "Main St 1",
	})
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)

	items, listErr := s.Orders.ListItems(s.Ctx, s.asUser(orderOwner), orderID)
	s.Require().NoError(listErr)
	s.Require().Empty(items)
}

func (s *IntegrationTestSuite) TestGetOrderDeniedForStranger() {
	orderID := s.createOrder(orderOwner)

	_, err := s.Orders.GetOrder(s.Ctx, s.asUser(orderOwner+1), orderID)
	s.Require().ErrorIs(err, domain.ErrAccessDenied)

	_, err = s.Orders.GetOrder(s.Ctx, s.asAdmin(), orderID)
	s.Require().NoError(err)
}

func (s *IntegrationTestSuite) TestUpdateOrderPatch() {
	orderID := s.createOrder(orderOwner)

	method := "cash"
	order, err := s.Orders.UpdateOrder(s.Ctx, s.asUser(orderOwner), orderID, &service.OrderPatch{
		PaymentMethod: &method,
	})
	s.Require().NoError(err)
	s.Require().Equal("cash", order.PaymentMethod)
	s.Require().Equal("courier", order.CostDelivery)
}

func (s *IntegrationTestSuite) TestDeleteOrderCascadesItems() {
	catID := s.seedCategory("order-cat")
	p1 := s.seedProduct(catID, "cable", "5", "0", 10)

	orderID := s.createOrder(orderOwner)
	s.addOrderItem(orderID, p1, 1, "5")

	deletedID, err := s.Orders.DeleteOrder(s.Ctx, s.asUser(orderOwner), orderID)
	s.Require().NoError(err)
	s.Require().Equal(orderID, deletedID)

	_, err = s.Orders.GetOrder(s.Ctx, s.asUser(orderOwner), orderID)
	s.Require().ErrorIs(err, domain.ErrNotFound)
}

func (s *IntegrationTestSuite) TestOrderEventsPublished() {
	catID := s.seedCategory("order-cat")
	p1 := s.seedProduct(catID, "webcam", "80", "0", 10)

	orderID := s.createOrder(orderOwner)
	s.addOrderItem(orderID, p1, 1, "80")

	_, err := s.Orders.GetOrder(s.Ctx, s.asUser(orderOwner), orderID)
	s.Require().NoError(err)

	s.Require().Equal(1, s.outboxCount("OrderCreated"))
	s.Require().Equal(1, s.outboxCount("OrderReady"))

	s.Require().Eventually(func() bool {
		return s.publishedCount("OrderCreated") == 1 && s.publishedCount("OrderReady") == 1
	}, 15*time.Second, 200*time.Millisecond)
}

func orderFlagKey(orderID int64) string {
	return fmt.Sprintf("modified_order_%d", orderID)
}
