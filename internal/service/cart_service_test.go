package service_test

import (
	"github.com/shopspring/decimal"

	"github.com/Shnikita2023/OnlineShop/internal/domain"
	"github.com/Shnikita2023/OnlineShop/internal/service"
)

func (s *IntegrationTestSuite) TestCreateCartOnePerUser() {
	cartID, err := s.Carts.CreateCart(s.Ctx, 1)
	s.Require().NoError(err)
	s.Require().Positive(cartID)

	_, err = s.Carts.CreateCart(s.Ctx, 1)
	s.Require().ErrorIs(err, domain.ErrConflict)
}

func (s *IntegrationTestSuite) TestAddItemReservesStock() {
	catID := s.seedCategory("cart-cat")
	productID := s.seedProduct(catID, "mug", "12", "0", 10)
	cartID, err := s.Carts.CreateCart(s.Ctx, 7)
	s.Require().NoError(err)

	itemID, err := s.Carts.AddItem(s.Ctx, s.asUser(7), &service.AddCartItemInput{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  3,
		Price:     decimal.RequireFromString("12"),
	})
	s.Require().NoError(err)
	s.Require().Positive(itemID)

	product, err := s.Products.Get(s.Ctx, productID)
	s.Require().NoError(err)
	s.Require().EqualValues(3, product.ReservedQuantity)
}

func (s *IntegrationTestSuite) TestAddItemDuplicateProduct() {
	catID := s.seedCategory("cart-cat")
	productID := s.seedProduct(catID, "mug", "12", "0", 10)
	cartID, err := s.Carts.CreateCart(s.Ctx, 7)
	s.Require().NoError(err)

	in := &service.AddCartItemInput{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  1,
		Price:     decimal.RequireFromString("12"),
	}

	_, err = s.Carts.AddItem(s.Ctx, s.asUser(7), in)
	s.Require().NoError(err)

	_, err = s.Carts.AddItem(s.Ctx, s.asUser(7), in)
	s.Require().ErrorIs(err, domain.ErrConflict)
}

func (s *IntegrationTestSuite) TestAddItemInsufficientStockLeavesNoRow() {
	catID := s.seedCategory("cart-cat")
	productID := s.seedProduct(catID, "rare", "99", "0", 2)
	cartID, err := s.Carts.CreateCart(s.Ctx, 7)
	s.Require().NoError(err)

	_, err = s.Carts.AddItem(s.Ctx, s.asUser(7), &service.AddCartItemInput{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  5,
		Price:     decimal.RequireFromString("99"),
	})
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)

	items, err := s.Carts.ListItems(s.Ctx, s.asUser(7), cartID)
	s.Require().NoError(err)
	s.Require().Empty(items, "failed reservation must not leave a cart item")

	product, err := s.Products.Get(s.Ctx, productID)
	s.Require().NoError(err)
	s.Require().EqualValues(0, product.ReservedQuantity)
}

func (s *IntegrationTestSuite) TestAddItemForeignCartDenied() {
	catID := s.seedCategory("cart-cat")
	productID := s.seedProduct(catID, "mug", "12", "0", 10)
	cartID, err := s.Carts.CreateCart(s.Ctx, 7)
	s.Require().NoError(err)

	_, err = s.Carts.AddItem(s.Ctx, s.asUser(8), &service.AddCartItemInput{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  1,
		Price:     decimal.RequireFromString("12"),
	})
	s.Require().ErrorIs(err, domain.ErrAccessDenied)
}

func (s *IntegrationTestSuite) TestSuperuserBypassesOwnership() {
	catID := s.seedCategory("cart-cat")
	productID := s.seedProduct(catID, "mug", "12", "0", 10)
	cartID, err := s.Carts.CreateCart(s.Ctx, 7)
	s.Require().NoError(err)

	_, err = s.Carts.AddItem(s.Ctx, s.asAdmin(), &service.AddCartItemInput{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  1,
		Price:     decimal.RequireFromString("12"),
	})
	s.Require().NoError(err)
}

func (s *IntegrationTestSuite) TestRemoveItemReleasesReservation() {
	catID := s.seedCategory("cart-cat")
	productID := s.seedProduct(catID, "mug", "12", "0", 10)
	cartID, err := s.Carts.CreateCart(s.Ctx, 7)
	s.Require().NoError(err)

	itemID, err := s.Carts.AddItem(s.Ctx, s.asUser(7), &service.AddCartItemInput{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  4,
		Price:     decimal.RequireFromString("12"),
	})
	s.Require().NoError(err)

	released, err := s.Carts.RemoveItem(s.Ctx, s.asUser(7), itemID)
	s.Require().NoError(err)
	s.Require().EqualValues(4, released)

	product, err := s.Products.Get(s.Ctx, productID)
	s.Require().NoError(err)
	s.Require().EqualValues(0, product.ReservedQuantity)

	_, err = s.Carts.GetItem(s.Ctx, s.asUser(7), itemID)
	s.Require().ErrorIs(err, domain.ErrNotFound)
}

func (s *IntegrationTestSuite) TestUpdateItemDoesNotChangeReservation() {
	catID := s.seedCategory("cart-cat")
	productID := s.seedProduct(catID, "mug", "12", "0", 10)
	cartID, err := s.Carts.CreateCart(s.Ctx, 7)
	s.Require().NoError(err)

	itemID, err := s.Carts.AddItem(s.Ctx, s.asUser(7), &service.AddCartItemInput{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  2,
		Price:     decimal.RequireFromString("12"),
	})
	s.Require().NoError(err)

	item, err := s.Carts.UpdateItem(s.Ctx, s.asUser(7), itemID, &service.UpdateCartItemInput{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  5,
		Price:     decimal.RequireFromString("11"),
	})
	s.Require().NoError(err)
	s.Require().EqualValues(5, item.Quantity)

	product, err := s.Products.Get(s.Ctx, productID)
	s.Require().NoError(err)
	s.Require().EqualValues(2, product.ReservedQuantity, "quantity edits do not touch the reservation")
}

func (s *IntegrationTestSuite) TestUpdateItemForeignItemDenied() {
	catID := s.seedCategory("cart-cat")
	productID := s.seedProduct(catID, "mug", "12", "0", 10)
	cart7, err := s.Carts.CreateCart(s.Ctx, 7)
	s.Require().NoError(err)

	itemID, err := s.Carts.AddItem(s.Ctx, s.asUser(7), &service.AddCartItemInput{
		CartID:    cart7,
		ProductID: productID,
		Quantity:  2,
		Price:     decimal.RequireFromString("12"),
	})
	s.Require().NoError(err)

	// Passing one's own cart id must not open up another user's item.
	cart8, err := s.Carts.CreateCart(s.Ctx, 8)
	s.Require().NoError(err)

	_, err = s.Carts.UpdateItem(s.Ctx, s.asUser(8), itemID, &service.UpdateCartItemInput{
		CartID:    cart8,
		ProductID: productID,
		Quantity:  9,
		Price:     decimal.RequireFromString("1"),
	})
	s.Require().ErrorIs(err, domain.ErrAccessDenied)

	item, err := s.Carts.GetItem(s.Ctx, s.asUser(7), itemID)
	s.Require().NoError(err)
	s.Require().EqualValues(2, item.Quantity, "foreign update must leave the item untouched")
}

func (s *IntegrationTestSuite) TestUpdateItemPartialForeignItemDenied() {
	catID := s.seedCategory("cart-cat")
	productID := s.seedProduct(catID, "mug", "12", "0", 10)
	cart7, err := s.Carts.CreateCart(s.Ctx, 7)
	s.Require().NoError(err)

	itemID, err := s.Carts.AddItem(s.Ctx, s.asUser(7), &service.AddCartItemInput{
		CartID:    cart7,
		ProductID: productID,
		Quantity:  2,
		Price:     decimal.RequireFromString("12"),
	})
	s.Require().NoError(err)

	cart8, err := s.Carts.CreateCart(s.Ctx, 8)
	s.Require().NoError(err)

	quantity := int64(9)
	_, err = s.Carts.UpdateItemPartial(s.Ctx, s.asUser(8), itemID, cart8, &service.CartItemPatch{
		Quantity: &quantity,
	})
	s.Require().ErrorIs(err, domain.ErrAccessDenied)

	item, err := s.Carts.GetItem(s.Ctx, s.asUser(7), itemID)
	s.Require().NoError(err)
	s.Require().EqualValues(2, item.Quantity)
}

func (s *IntegrationTestSuite) TestUpdateItemPartialAppliesPatch() {
	catID := s.seedCategory("cart-cat")
	productID := s.seedProduct(catID, "mug", "12", "0", 10)
	cartID, err := s.Carts.CreateCart(s.Ctx, 7)
	s.Require().NoError(err)

	itemID, err := s.Carts.AddItem(s.Ctx, s.asUser(7), &service.AddCartItemInput{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  2,
		Price:     decimal.RequireFromString("12"),
	})
	s.Require().NoError(err)

	quantity := int64(5)
	item, err := s.Carts.UpdateItemPartial(s.Ctx, s.asUser(7), itemID, cartID, &service.CartItemPatch{
		Quantity: &quantity,
	})
	s.Require().NoError(err)
	s.Require().EqualValues(5, item.Quantity)
	s.Require().True(item.Price.Equal(decimal.RequireFromString("12")))

	product, err := s.Products.Get(s.Ctx, productID)
	s.Require().NoError(err)
	s.Require().EqualValues(2, product.ReservedQuantity, "quantity edits do not touch the reservation")
}

func (s *IntegrationTestSuite) TestUpdateItemWrongCartRejected() {
	catID := s.seedCategory("cart-cat")
	productID := s.seedProduct(catID, "mug", "12", "0", 10)
	cart7, err := s.Carts.CreateCart(s.Ctx, 7)
	s.Require().NoError(err)

	itemID, err := s.Carts.AddItem(s.Ctx, s.asUser(7), &service.AddCartItemInput{
		CartID:    cart7,
		ProductID: productID,
		Quantity:  2,
		Price:     decimal.RequireFromString("12"),
	})
	s.Require().NoError(err)

	cart8, err := s.Carts.CreateCart(s.Ctx, 8)
	s.Require().NoError(err)

	// Superusers pass the ownership check, but the item still has to
	// belong to the cart named in the request.
	_, err = s.Carts.UpdateItem(s.Ctx, s.asAdmin(), itemID, &service.UpdateCartItemInput{
		CartID:    cart8,
		ProductID: productID,
		Quantity:  9,
		Price:     decimal.RequireFromString("1"),
	})
	s.Require().ErrorIs(err, domain.ErrNotFound)
}

func (s *IntegrationTestSuite) TestDeleteCartDeniedForStranger() {
	_, err := s.Carts.CreateCart(s.Ctx, 7)
	s.Require().NoError(err)

	_, err = s.Carts.DeleteCart(s.Ctx, s.asUser(8), 7)
	s.Require().ErrorIs(err, domain.ErrAccessDenied)

	cart, err := s.Carts.GetCartByUser(s.Ctx, 7)
	s.Require().NoError(err)
	s.Require().EqualValues(7, cart.UserID)
}
