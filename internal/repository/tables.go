package repository

import (
	"go.uber.org/zap"

	"github.com/Shnikita2023/OnlineShop/internal/domain"
)

// Column lists must stay in lockstep with the migrations and the db tags
// on the domain structs.

func NewCategoryRepo(logger *zap.Logger) *Repo[domain.Category] {
	return New(
		logger,
		"categories",
		[]string{"id", "name", "created_at"},
		[]string{"name"},
		func(c *domain.Category) []any {
			return []any{c.Name}
		},
	)
}

func newProductRepo(logger *zap.Logger) *Repo[domain.Product] {
	return New(
		logger,
		"products",
		[]string{
			"id", "category_id", "name", "description", "price", "discount",
			"quantity", "reserved_quantity", "created_at", "updated_at",
		},
		[]string{"category_id", "name", "description", "price", "discount", "quantity"},
		func(p *domain.Product) []any {
			return []any{p.CategoryID, p.Name, p.Description, p.Price, p.Discount, p.Quantity}
		},
	)
}

func NewCartRepo(logger *zap.Logger) *Repo[domain.Cart] {
	return New(
		logger,
		"carts",
		[]string{"id", "user_id", "created_at"},
		[]string{"user_id"},
		func(c *domain.Cart) []any {
			return []any{c.UserID}
		},
	)
}

func NewCartItemRepo(logger *zap.Logger) *Repo[domain.CartItem] {
	return New(
		logger,
		"cart_items",
		[]string{"id", "cart_id", "product_id", "quantity", "price", "added_at"},
		[]string{"cart_id", "product_id", "quantity", "price"},
		func(i *domain.CartItem) []any {
			return []any{i.CartID, i.ProductID, i.Quantity, i.Price}
		},
	)
}

func NewOrderRepo(logger *zap.Logger) *Repo[domain.Order] {
	return New(
		logger,
		"orders",
		[]string{
			"id", "user_id", "total_price", "status", "cost_delivery",
			"payment_method", "created_at", "updated_at",
		},
		[]string{"user_id", "total_price", "status", "cost_delivery", "payment_method"},
		func(o *domain.Order) []any {
			return []any{o.UserID, o.TotalPrice, string(o.Status), o.CostDelivery, o.PaymentMethod}
		},
	)
}

func NewOrderItemRepo(logger *zap.Logger) *Repo[domain.OrderItem] {
	return New(
		logger,
		"order_items",
		[]string{"id", "order_id", "product_id", "quantity", "price", "total_price", "address", "order_date"},
		[]string{"order_id", "product_id", "quantity", "price", "total_price", "address"},
		func(i *domain.OrderItem) []any {
			return []any{i.OrderID, i.ProductID, i.Quantity, i.Price, i.TotalPrice, i.Address}
		},
	)
}
