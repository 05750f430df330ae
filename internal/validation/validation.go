// Package validation содержит функции валидации входных данных.
package validation

import "github.com/findmyservice/marketplace/internal/model"

// IsValidRating проверяет, что оценка лежит строго в диапазоне [1, 5].
func IsValidRating(rating int32) bool {
	return rating >= 1 && rating <= 5
}

// IsValidOrderStatus проверяет принадлежность статуса жизненному циклу заказа.
func IsValidOrderStatus(status model.OrderStatus) bool {
	switch status {
	case model.OrderStatusRequested,
		model.OrderStatusPaid,
		model.OrderStatusCompleted,
		model.OrderStatusCancelled:
		return true
	}
	return false
}

// IsValidPaymentMethod проверяет принадлежность способа оплаты известному набору.
func IsValidPaymentMethod(method model.PaymentMethod) bool {
	switch method {
	case model.PaymentMethodCreditCard,
		model.PaymentMethodDebitCard,
		model.PaymentMethodBankTransfer,
		model.PaymentMethodUPI,
		model.PaymentMethodCash,
		model.PaymentMethodOther:
		return true
	}
	return false
}
