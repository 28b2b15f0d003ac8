package service_test

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Shnikita2023/OnlineShop/internal/domain"
	"github.com/Shnikita2023/OnlineShop/internal/service"
)

func (s *IntegrationTestSuite) TestCreateProductAppliesDiscountOnce() {
	catID := s.seedCategory("electronics")

	id, err := s.Products.Create(s.Ctx, &service.CreateProductInput{
		CategoryID: catID,
		Name:       "headphones",
		Price:      decimal.RequireFromString("100"),
		Discount:   decimal.RequireFromString("0.2"),
		Quantity:   10,
	})
	s.Require().NoError(err)

	product, err := s.Products.Get(s.Ctx, id)
	s.Require().NoError(err)

	s.Require().True(product.Price.Equal(decimal.RequireFromString("80")),
		"expected 80, got %s", product.Price)
	s.Require().True(product.Discount.Equal(decimal.RequireFromString("0.2")))
	s.Require().EqualValues(10, product.Quantity)
	s.Require().EqualValues(0, product.ReservedQuantity)
}

func (s *IntegrationTestSuite) TestCreateProductUnknownCategory() {
	_, err := s.Products.Create(s.Ctx, &service.CreateProductInput{
		CategoryID: 12345,
		Name:       "ghost",
		Price:      decimal.RequireFromString("10"),
		Quantity:   1,
	})
	s.Require().ErrorIs(err, domain.ErrNotFound)
}

func (s *IntegrationTestSuite) TestCreateProductDuplicateName() {
	catID := s.seedCategory("books")
	s.seedProduct(catID, "atlas", "30", "0", 5)

	_, err := s.Products.Create(s.Ctx, &service.CreateProductInput{
		CategoryID: catID,
		Name:       "atlas",
		Price:      decimal.RequireFromString("35"),
		Quantity:   3,
	})
	s.Require().ErrorIs(err, domain.ErrConflict)
}

func (s *IntegrationTestSuite) TestReserveWithinStock() {
	catID := s.seedCategory("toys")
	productID := s.seedProduct(catID, "kite", "15", "0", 10)

	s.Require().NoError(s.Products.Reserve(s.Ctx, productID, 7))

	product, err := s.Products.Get(s.Ctx, productID)
	s.Require().NoError(err)
	s.Require().EqualValues(7, product.ReservedQuantity)
	s.Require().EqualValues(3, product.Available())
}

func (s *IntegrationTestSuite) TestReserveBeyondStockFailsWithoutSideEffects() {
	catID := s.seedCategory("toys")
	productID := s.seedProduct(catID, "drone", "200", "0", 10)

	s.Require().NoError(s.Products.Reserve(s.Ctx, productID, 7))

	err := s.Products.Reserve(s.Ctx, productID, 5)
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)

	product, err := s.Products.Get(s.Ctx, productID)
	s.Require().NoError(err)
	s.Require().EqualValues(7, product.ReservedQuantity, "failed reserve must not change state")
}

func (s *IntegrationTestSuite) TestReserveMissingProduct() {
	err := s.Products.Reserve(s.Ctx, 98765, 1)
	s.Require().ErrorIs(err, domain.ErrNotFound)
}

func (s *IntegrationTestSuite) TestReleaseFloorsAtZero() {
	catID := s.seedCategory("toys")
	productID := s.seedProduct(catID, "ball", "5", "0", 10)

	s.Require().NoError(s.Products.Reserve(s.Ctx, productID, 3))
	s.Require().NoError(s.Products.Release(s.Ctx, productID, 8))

	product, err := s.Products.Get(s.Ctx, productID)
	s.Require().NoError(err)
	s.Require().EqualValues(0, product.ReservedQuantity)
}

func (s *IntegrationTestSuite) TestListDiscounted() {
	catID := s.seedCategory("sale")
	s.seedProduct(catID, "full-price", "10", "0", 1)
	discountedID := s.seedProduct(catID, "on-sale", "10", "0.5", 1)

	products, err := s.Products.ListDiscounted(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(products, 1)
	s.Require().Equal(discountedID, products[0].ID)
}

func (s *IntegrationTestSuite) TestUpdatePartialKeepsReservedQuantity() {
	catID := s.seedCategory("tools")
	productID := s.seedProduct(catID, "hammer", "20", "0", 10)
	s.Require().NoError(s.Products.Reserve(s.Ctx, productID, 4))

	newName := "sledgehammer"
	product, err := s.Products.UpdatePartial(s.Ctx, productID, &service.ProductPatch{
		Name: &newName,
	})
	s.Require().NoError(err)
	s.Require().Equal("sledgehammer", product.Name)
	s.Require().EqualValues(4, product.ReservedQuantity)
}

func (s *IntegrationTestSuite) TestDeleteProduct() {
	catID := s.seedCategory("misc")
	productID := s.seedProduct(catID, "gone-soon", "1", "0", 1)

	deletedID, err := s.Products.Delete(s.Ctx, productID)
	s.Require().NoError(err)
	s.Require().Equal(productID, deletedID)

	_, err = s.Products.Get(s.Ctx, productID)
	s.Require().ErrorIs(err, domain.ErrNotFound)
}

func (s *IntegrationTestSuite) TestProductCreatedEventPublished() {
	catID := s.seedCategory("events")
	s.seedProduct(catID, "announced", "9", "0", 1)

	s.Require().Equal(1, s.outboxCount("ProductCreated"))

	var aggregateType string
	err := s.DbPool.QueryRow(
		s.Ctx,
		"SELECT aggregate_type FROM outbox WHERE event_type = 'ProductCreated'",
	).Scan(&aggregateType)
	s.Require().NoError(err)
	s.Require().Equal("product", aggregateType, "aggregate types are lowercase")

	s.Require().Eventually(func() bool {
		return s.publishedCount("ProductCreated") == 1
	}, 15*time.Second, 200*time.Millisecond, "outbox worker should publish the event")
}
