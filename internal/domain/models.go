package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Caller is the authenticated identity supplied by the request layer.
type Caller struct {
	ID          int64
	IsSuperuser bool
}

// Owns reports whether the caller may touch a resource owned by ownerID.
func (c Caller) Owns(ownerID int64) bool {
	return c.ID == ownerID || c.IsSuperuser
}

type Category struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

type Product struct {
	ID               int64           `db:"id"`
	CategoryID       int64           `db:"category_id"`
	Name             string          `db:"name"`
	Description      string          `db:"description"`
	Price            decimal.Decimal `db:"price"`
	Discount         decimal.Decimal `db:"discount"`
	Quantity         int64           `db:"quantity"`
	ReservedQuantity int64           `db:"reserved_quantity"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// Available is the quantity not yet earmarked by cart reservations.
func (p *Product) Available() int64 {
	return p.Quantity - p.ReservedQuantity
}

// EffectivePrice applies the discount to the listed price. Computed once
// at product creation; the stored price already reflects it.
func EffectivePrice(price, discount decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(1).Sub(discount))
}

type Cart struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}

type CartItem struct {
	ID        int64           `db:"id"`
	CartID    int64           `db:"cart_id"`
	ProductID int64           `db:"product_id"`
	Quantity  int64           `db:"quantity"`
	Price     decimal.Decimal `db:"price"`
	AddedAt   time.Time       `db:"added_at"`
}

type OrderStatus string

const (
	OrderStatusNotReady OrderStatus = "Not Ready"
	OrderStatusReady    OrderStatus = "Ready"
)

type Order struct {
	ID            int64           `db:"id"`
	UserID        int64           `db:"user_id"`
	TotalPrice    decimal.Decimal `db:"total_price"`
	Status        OrderStatus     `db:"status"`
	CostDelivery  string          `db:"cost_delivery"`
	PaymentMethod string          `db:"payment_method"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

type OrderItem struct {
	ID         int64           `db:"id"`
	OrderID    int64           `db:"order_id"`
	ProductID  int64           `db:"product_id"`
	Quantity   int64           `db:"quantity"`
	Price      decimal.Decimal `db:"price"`
	TotalPrice decimal.Decimal `db:"total_price"`
	Address    string          `db:"address"`
	OrderDate  time.Time       `db:"order_date"`
}

// FillTotal derives total_price from quantity and price when the caller
// did not supply it explicitly.
func (i *OrderItem) FillTotal() {
	if i.TotalPrice.IsZero() {
		i.TotalPrice = i.Price.Mul(decimal.NewFromInt(i.Quantity))
	}
}

// SumItemTotals is the aggregate the lazy recompute writes back to the order.
func SumItemTotals(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.TotalPrice)
	}
	return total
}
