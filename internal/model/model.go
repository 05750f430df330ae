// Package model содержит доменные сущности маркетплейса услуг.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User представляет зарегистрированного заказчика услуг.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// OrderStatus описывает статус жизненного цикла заказа.
type OrderStatus string

const (
	OrderStatusRequested OrderStatus = "REQUESTED"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsTerminal сообщает, допускает ли статус дальнейшие переходы жизненного цикла.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// PaymentMethod описывает способ оплаты заказа.
type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "CREDIT_CARD"
	PaymentMethodDebitCard    PaymentMethod = "DEBIT_CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodUPI          PaymentMethod = "UPI"
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodOther        PaymentMethod = "OTHER"
)

// LineItem описывает одну позицию заказа.
type LineItem struct {
	ID          int64
	ServiceName string
	Cost        decimal.Decimal
	Quantity    int32
}

// Order описывает заказ услуги между заказчиком и исполнителем.
// PaymentIntentID хранит идентификатор платёжного намерения во внешнем
// процессинге; клиентский секрет намерения на заказе не сохраняется.
type Order struct {
	ID              int64
	UserID          int64
	ProviderID      int64
	Status          OrderStatus
	TotalCost       decimal.Decimal
	PaymentMethod   PaymentMethod
	PaymentIntentID string
	PaymentDate     *time.Time
	LineItems       []LineItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Feedback описывает отзыв заказчика об услуге с оценкой от 1 до 5.
type Feedback struct {
	ID        int64
	UserID    int64
	ServiceID int64
	Rating    int32
	Comment   string
	CreatedAt time.Time
}

// RatingStats содержит накопительную статистику оценок сущности.
// Инвариант: AvgRating — среднее арифметическое всех учтённых оценок,
// поддерживаемое инкрементально, без пересчёта по полной истории.
type RatingStats struct {
	AvgRating    decimal.Decimal
	TotalRatings int32
}

// ApplyRating учитывает новую оценку: среднее пересчитывается по формуле
// (avg*count + rating) / (count+1) с округлением до одного знака half-up.
func (r *RatingStats) ApplyRating(rating int32) {
	count := decimal.NewFromInt(int64(r.TotalRatings))
	next := r.AvgRating.
		Mul(count).
		Add(decimal.NewFromInt(int64(rating))).
		Div(count.Add(decimal.NewFromInt(1))).
		Round(1)

	r.AvgRating = next
	r.TotalRatings++
}

// Provider представляет исполнителя услуг с накопительным рейтингом.
type Provider struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	RatingStats
}

// CatalogService представляет услугу каталога, принадлежащую исполнителю.
type CatalogService struct {
	ID         int64
	ProviderID int64
	Name       string
	CreatedAt  time.Time
	RatingStats
}
