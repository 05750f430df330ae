package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/findmyservice/marketplace/internal/model"
	"github.com/findmyservice/marketplace/internal/money"
	"github.com/findmyservice/marketplace/internal/payment"
	"github.com/findmyservice/marketplace/internal/repository"
	"github.com/findmyservice/marketplace/internal/validation"
)

// PaymentInitiation содержит данные для клиентского завершения оплаты.
// Секрет намерения возвращается вызывающему и нигде не сохраняется.
type PaymentInitiation struct {
	ClientSecret   string
	AmountInRupees decimal.Decimal
	AmountInPaise  int64
	Currency       string
}

// CreateOrder создаёт заказ в статусе REQUESTED. Заказчик и исполнитель
// обязаны существовать, итоговая стоимость — быть положительной.
func (s *Service) CreateOrder(ctx context.Context, userID, providerID int64, items []model.LineItem, totalCost decimal.Decimal, method model.PaymentMethod) (*model.Order, error) {
	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: user from payload not found", ErrValidation)
	}

	if _, err := s.repo.GetProvider(ctx, providerID); err != nil {
		if errors.Is(err, repository.ErrProviderNotFound) {
			return nil, fmt.Errorf("%w: provider from payload not found", ErrValidation)
		}
		return nil, fmt.Errorf("check provider: %w", err)
	}

	if !totalCost.IsPositive() {
		return nil, fmt.Errorf("%w: total cost must be greater than 0", ErrValidation)
	}

	if method == "" {
		method = model.PaymentMethodOther
	}
	if !validation.IsValidPaymentMethod(method) {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, method)
	}

	order := &model.Order{
		UserID:        userID,
		ProviderID:    providerID,
		Status:        model.OrderStatusRequested,
		TotalCost:     totalCost,
		PaymentMethod: method,
		LineItems:     items,
	}

	return s.repo.CreateOrder(ctx, order)
}

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, err
	}
	return order, nil
}

// GetAllOrders возвращает все заказы системы.
func (s *Service) GetAllOrders(ctx context.Context) ([]model.Order, error) {
	return s.repo.GetAllOrders(ctx)
}

// GetOrdersByUser возвращает заказы указанного заказчика.
func (s *Service) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	return s.repo.GetOrdersByUser(ctx, userID)
}

// GetOrdersByProvider возвращает заказы указанного исполнителя.
func (s *Service) GetOrdersByProvider(ctx context.Context, providerID int64) ([]model.Order, error) {
	if _, err := s.repo.GetProvider(ctx, providerID); err != nil {
		if errors.Is(err, repository.ErrProviderNotFound) {
			return nil, fmt.Errorf("%w: provider %d", ErrNotFound, providerID)
		}
		return nil, fmt.Errorf("check provider: %w", err)
	}
	return s.repo.GetOrdersByProvider(ctx, providerID)
}

// InitiatePayment запускает оплату заказа: сумма переводится в пайсы, во
// внешнем процессинге создаётся платёжное намерение, его идентификатор
// сохраняется на заказе. Повторный вызов по заказу с уже созданным и не
// отменённым намерением возвращает секрет существующего намерения, не
// порождая дубликат. Обращение к шлюзу выполняется вне блокировок БД.
func (s *Service) InitiatePayment(ctx context.Context, orderID int64) (*PaymentInitiation, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, err
	}

	if order.Status == model.OrderStatusPaid || order.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot initiate payment for order in status %s", ErrInvalidState, order.Status)
	}

	amountInRupees := money.RoundToMajor(order.TotalCost)
	amountInPaise := money.ToMinorUnits(order.TotalCost)

	if order.PaymentIntentID != "" {
		intent, err := s.gateway.GetIntent(ctx, order.PaymentIntentID)
		if err != nil {
			return nil, fmt.Errorf("%w: query existing intent: %w", ErrPaymentGateway, err)
		}
		if intent.Status != payment.StatusCanceled {
			return &PaymentInitiation{
				ClientSecret:   intent.ClientSecret,
				AmountInRupees: amountInRupees,
				AmountInPaise:  amountInPaise,
				Currency:       money.Currency,
			}, nil
		}
	}

	intent, err := s.gateway.CreateIntent(ctx, amountInPaise, currencyLower, orderID, order.PaymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("%w: create intent: %w", ErrPaymentGateway, err)
	}

	if err := s.repo.SetOrderPaymentIntent(ctx, orderID, intent.ID); err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		case errors.Is(err, repository.ErrOrderStateConflict):
			return nil, fmt.Errorf("%w: order %d changed state during payment initiation", ErrInvalidState, orderID)
		default:
			return nil, err
		}
	}

	return &PaymentInitiation{
		ClientSecret:   intent.ClientSecret,
		AmountInRupees: amountInRupees,
		AmountInPaise:  amountInPaise,
		Currency:       money.Currency,
	}, nil
}

// ConfirmPayment сверяет состояние платёжного намерения с процессингом.
// Заказ переводится в PAID с отметкой времени оплаты только при статусе
// "succeeded"; любой другой статус возвращается как PaymentNotSuccessfulError
// и заказ не изменяется.
func (s *Service) ConfirmPayment(ctx context.Context, orderID int64, intentID string) (*model.Order, error) {
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}

	if intentID == "" {
		return nil, fmt.Errorf("%w: paymentIntentId is required", ErrValidation)
	}

	intent, err := s.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("%w: confirm intent: %w", ErrPaymentGateway, err)
	}

	if intent.Status != payment.StatusSucceeded {
		return nil, &PaymentNotSuccessfulError{Status: intent.Status}
	}

	order, err := s.repo.MarkOrderPaid(ctx, orderID, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, err
	}

	return order, nil
}

// UpdateOrderStatus безусловно перезаписывает статус заказа — административный
// обход защищённого графа переходов для ручной отмены и завершения.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) (*model.Order, error) {
	if status == "" {
		return nil, fmt.Errorf("%w: status cannot be empty", ErrValidation)
	}
	if !validation.IsValidOrderStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	order, err := s.repo.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, err
	}

	return order, nil
}

// DeleteOrder удаляет заказ и возвращает признак фактического удаления.
func (s *Service) DeleteOrder(ctx context.Context, orderID int64) (bool, error) {
	return s.repo.DeleteOrder(ctx, orderID)
}

// currencyLower — код валюты в нижнем регистре, как его ожидает процессинг.
const currencyLower = "inr"
