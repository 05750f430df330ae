// Package payment предоставляет адаптер внешнего платёжного процессинга Stripe.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sethvargo/go-retry"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// Статусы платёжного намерения, значимые для жизненного цикла заказа.
// Остальные статусы процессинга передаются вызывающему как есть.
const (
	StatusSucceeded = "succeeded"
	StatusCanceled  = "canceled"
)

// ErrGateway возвращается при сетевой ошибке или отказе платёжного процессинга.
// Ответ процессинга с неуспешным статусом намерения ошибкой адаптера не является.
var ErrGateway = errors.New("payment gateway unavailable")

const requestTimeout = 10 * time.Second

// Intent описывает платёжное намерение внешнего процессинга.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// Client инкапсулирует взаимодействие с API платёжных намерений Stripe.
type Client struct {
	intents intentAPI
}

// NewClient создаёт клиент платёжного процессинга с указанным секретным ключом.
func NewClient(apiKey string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil

	httpClient := rc.StandardClient()
	httpClient.Timeout = requestTimeout

	sc := client.New(apiKey, stripe.NewBackends(httpClient))

	return &Client{intents: sc.PaymentIntents}
}

func newClientWithAPI(api intentAPI) *Client {
	return &Client{intents: api}
}

// CreateIntent создаёт платёжное намерение на указанную сумму в минимальных
// единицах валюты. Ключ идемпотентности выводится из заказа и замещаемого
// намерения (supersedes): повтор одной и той же попытки не порождает дубликат,
// а пересоздание после отмены идёт с новым ключом и получает новое намерение,
// минуя кэш ответов процессинга.
func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, currency string, orderID int64, supersedes string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx

	key := "order-" + strconv.FormatInt(orderID, 10)
	if supersedes != "" {
		key += "-" + supersedes
	}
	params.SetIdempotencyKey(key)
	params.AddMetadata("order_id", strconv.FormatInt(orderID, 10))

	pi, err := c.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create intent: %w", ErrGateway, err)
	}

	return intentFromStripe(pi), nil
}

// GetIntent запрашивает текущее состояние платёжного намерения. Чтение
// идемпотентно и ретраится с экспоненциальной паузой при ошибках процессинга.
func (c *Client) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	var pi *stripe.PaymentIntent

	backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx

		var getErr error
		pi, getErr = c.intents.Get(intentID, params)
		if getErr != nil {
			return retry.RetryableError(getErr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get intent %s: %w", ErrGateway, intentID, err)
	}

	return intentFromStripe(pi), nil
}

func intentFromStripe(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}
}
