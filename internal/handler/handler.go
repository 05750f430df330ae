// Package handler содержит HTTP-обработчики API маркетплейса услуг.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/findmyservice/marketplace/internal/middleware"
	"github.com/findmyservice/marketplace/internal/model"
	"github.com/findmyservice/marketplace/internal/repository"
	"github.com/findmyservice/marketplace/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	CreateOrder(ctx context.Context, userID, providerID int64, items []model.LineItem, totalCost decimal.Decimal, method model.PaymentMethod) (*model.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*model.Order, error)
	GetAllOrders(ctx context.Context) ([]model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetOrdersByProvider(ctx context.Context, providerID int64) ([]model.Order, error)
	InitiatePayment(ctx context.Context, orderID int64) (*service.PaymentInitiation, error)
	ConfirmPayment(ctx context.Context, orderID int64, intentID string) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) (*model.Order, error)
	DeleteOrder(ctx context.Context, orderID int64) (bool, error)
	RecordFeedback(ctx context.Context, userID, serviceID int64, rating int32, comment string) (*model.Feedback, error)
	FeedbackForService(ctx context.Context, serviceID int64) ([]model.Feedback, error)
}

// Handler реализует HTTP-обработчики API маркетплейса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type errorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{
		Code:      status,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// writeServiceError транслирует ошибку бизнес-логики в HTTP-статус.
// Ошибки шлюза и целостности оставляют систему в частично применённом
// состоянии, поэтому логируются как требующие сверки.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var notSuccessful *service.PaymentNotSuccessfulError

	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidState):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notSuccessful):
		writeError(w, http.StatusBadRequest, "Payment not successful. Status: "+notSuccessful.Status)
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrPaymentGateway), errors.Is(err, service.ErrConsistency):
		h.logger.Error("operation requires reconciliation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		h.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового заказчика.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "login and password are required")
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			writeError(w, http.StatusConflict, "login already taken")
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "login and password are required")
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type lineItemRequest struct {
	ServiceName string          `json:"service_name"`
	Cost        decimal.Decimal `json:"cost"`
	Quantity    int32           `json:"quantity"`
}

type createOrderRequest struct {
	UserID        int64             `json:"user_id"`
	ProviderID    int64             `json:"provider_id"`
	TotalCost     decimal.Decimal   `json:"total_cost"`
	PaymentMethod string            `json:"payment_method"`
	LineItems     []lineItemRequest `json:"line_items"`
}

type lineItemResponse struct {
	ID          int64           `json:"line_item_id"`
	ServiceName string          `json:"service_name"`
	Cost        decimal.Decimal `json:"cost"`
	Quantity    int32           `json:"quantity"`
}

type orderResponse struct {
	ID              int64              `json:"order_id"`
	UserID          int64              `json:"user_id"`
	ProviderID      int64              `json:"provider_id"`
	Status          string             `json:"status"`
	TotalCost       decimal.Decimal    `json:"total_cost"`
	PaymentMethod   string             `json:"payment_method"`
	PaymentIntentID string             `json:"payment_intent_id,omitempty"`
	PaymentDate     *string            `json:"payment_date,omitempty"`
	LineItems       []lineItemResponse `json:"line_items,omitempty"`
	CreatedAt       string             `json:"created_at"`
	UpdatedAt       string             `json:"updated_at"`
}

func toOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		ProviderID:      o.ProviderID,
		Status:          string(o.Status),
		TotalCost:       o.TotalCost,
		PaymentMethod:   string(o.PaymentMethod),
		PaymentIntentID: o.PaymentIntentID,
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       o.UpdatedAt.Format(time.RFC3339),
	}

	if o.PaymentDate != nil {
		formatted := o.PaymentDate.Format(time.RFC3339)
		resp.PaymentDate = &formatted
	}

	for _, item := range o.LineItems {
		resp.LineItems = append(resp.LineItems, lineItemResponse{
			ID:          item.ID,
			ServiceName: item.ServiceName,
			Cost:        item.Cost,
			Quantity:    item.Quantity,
		})
	}

	return resp
}

func toOrderListResponse(orders []model.Order) []orderResponse {
	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}
	return resp
}

// CreateOrder создаёт заказ в статусе REQUESTED.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]model.LineItem, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		items = append(items, model.LineItem{
			ServiceName: item.ServiceName,
			Cost:        item.Cost,
			Quantity:    item.Quantity,
		})
	}

	order, err := h.service.CreateOrder(r.Context(), req.UserID, req.ProviderID, items,
		req.TotalCost, model.PaymentMethod(req.PaymentMethod))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// GetAllOrders возвращает все заказы системы.
func (h *Handler) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.GetAllOrders(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderListResponse(orders))
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// DeleteOrder удаляет заказ.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	deleted, err := h.service.DeleteOrder(r.Context(), orderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if !deleted {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Order deleted successfully"})
}

// GetOrdersByUser возвращает заказы указанного заказчика.
func (h *Handler) GetOrdersByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderListResponse(orders))
}

// GetOrdersByProvider возвращает заказы указанного исполнителя.
func (h *Handler) GetOrdersByProvider(w http.ResponseWriter, r *http.Request) {
	providerID, err := pathID(r, "providerID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid provider id")
		return
	}

	orders, err := h.service.GetOrdersByProvider(r.Context(), providerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderListResponse(orders))
}

type paymentInitiationResponse struct {
	ClientSecret   string          `json:"clientSecret"`
	AmountInRupees decimal.Decimal `json:"amountInRupees"`
	AmountInPaise  int64           `json:"amountInPaise"`
	Currency       string          `json:"currency"`
}

// InitiatePayment запускает оплату заказа и возвращает клиентский секрет
// платёжного намерения.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	res, err := h.service.InitiatePayment(r.Context(), orderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, paymentInitiationResponse{
		ClientSecret:   res.ClientSecret,
		AmountInRupees: res.AmountInRupees,
		AmountInPaise:  res.AmountInPaise,
		Currency:       res.Currency,
	})
}

type confirmPaymentRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

// ConfirmPayment сверяет оплату с процессингом и переводит заказ в PAID.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.ConfirmPayment(r.Context(), orderID, req.PaymentIntentID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus безусловно перезаписывает статус заказа.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.UpdateOrderStatus(r.Context(), orderID, model.OrderStatus(req.Status))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type createFeedbackRequest struct {
	UserID    int64  `json:"user_id"`
	ServiceID int64  `json:"service_id"`
	Rating    int32  `json:"rating"`
	Comment   string `json:"comment"`
}

type feedbackResponse struct {
	ID        int64  `json:"feedback_id"`
	UserID    int64  `json:"user_id"`
	ServiceID int64  `json:"service_id"`
	Rating    int32  `json:"rating"`
	Comment   string `json:"comment,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toFeedbackResponse(f *model.Feedback) feedbackResponse {
	return feedbackResponse{
		ID:        f.ID,
		UserID:    f.UserID,
		ServiceID: f.ServiceID,
		Rating:    f.Rating,
		Comment:   f.Comment,
		CreatedAt: f.CreatedAt.Format(time.RFC3339),
	}
}

// CreateFeedback сохраняет отзыв и обновляет рейтинги услуги и исполнителя.
func (h *Handler) CreateFeedback(w http.ResponseWriter, r *http.Request) {
	var req createFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	feedback, err := h.service.RecordFeedback(r.Context(), req.UserID, req.ServiceID, req.Rating, req.Comment)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toFeedbackResponse(feedback))
}

// GetServiceFeedback возвращает отзывы об услуге.
func (h *Handler) GetServiceFeedback(w http.ResponseWriter, r *http.Request) {
	serviceID, err := pathID(r, "serviceID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return
	}

	reviews, err := h.service.FeedbackForService(r.Context(), serviceID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]feedbackResponse, 0, len(reviews))
	for i := range reviews {
		resp = append(resp, toFeedbackResponse(&reviews[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}
