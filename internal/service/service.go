// Package service реализует бизнес-логику маркетплейса услуг.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/findmyservice/marketplace/internal/model"
	"github.com/findmyservice/marketplace/internal/payment"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	GetProvider(ctx context.Context, providerID int64) (*model.Provider, error)
	GetCatalogService(ctx context.Context, serviceID int64) (*model.CatalogService, error)
	CreateOrder(ctx context.Context, order *model.Order) (*model.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*model.Order, error)
	GetAllOrders(ctx context.Context) ([]model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetOrdersByProvider(ctx context.Context, providerID int64) ([]model.Order, error)
	SetOrderPaymentIntent(ctx context.Context, orderID int64, intentID string) error
	MarkOrderPaid(ctx context.Context, orderID int64, paidAt time.Time) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) (*model.Order, error)
	DeleteOrder(ctx context.Context, orderID int64) (bool, error)
	CreateFeedback(ctx context.Context, feedback *model.Feedback) (*model.Feedback, error)
	GetFeedbackByService(ctx context.Context, serviceID int64) ([]model.Feedback, error)
}

// PaymentGateway описывает контракт платёжного процессинга: создание намерения
// и идемпотентный запрос его состояния. Сетевые ошибки и отказы процессинга
// отличимы от неуспешного статуса намерения (payment.ErrGateway). supersedes
// передаёт идентификатор отменённого намерения, вместо которого создаётся новое.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, orderID int64, supersedes string) (*payment.Intent, error)
	GetIntent(ctx context.Context, intentID string) (*payment.Intent, error)
}

// Service содержит бизнес-логику маркетплейса.
type Service struct {
	repo    Repository
	gateway PaymentGateway
	now     func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и платёжным шлюзом.
func NewService(repo Repository, gateway PaymentGateway) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		now:     time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового заказчика.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, errors.New("invalid credentials")
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}
