// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/findmyservice/marketplace/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrProviderNotFound возвращается, если исполнитель не найден.
	ErrProviderNotFound = errors.New("provider not found")
	// ErrServiceNotFound возвращается, если услуга каталога не найдена.
	ErrServiceNotFound = errors.New("catalog service not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderStateConflict возвращается, если заказ перешёл в состояние,
	// запрещающее операцию, между проверкой и записью.
	ErrOrderStateConflict = errors.New("order state conflict")
	// ErrProviderMissing возвращается, если у услуги каталога отсутствует
	// исполнитель — нарушение ссылочной целостности.
	ErrProviderMissing = errors.New("provider missing for catalog service")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlock.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, created_at FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// UserExists сообщает, существует ли пользователь с указанным идентификатором.
func (r *PostgresRepository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

// GetProvider возвращает исполнителя с его накопительным рейтингом.
func (r *PostgresRepository) GetProvider(ctx context.Context, providerID int64) (*model.Provider, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, avg_rating, total_ratings, created_at FROM providers WHERE id = $1`,
		providerID,
	)

	var p model.Provider
	err := row.Scan(&p.ID, &p.Name, &p.AvgRating, &p.TotalRatings, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("get provider: %w", err)
	}

	return &p, nil
}

// GetCatalogService возвращает услугу каталога с её накопительным рейтингом.
func (r *PostgresRepository) GetCatalogService(ctx context.Context, serviceID int64) (*model.CatalogService, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, provider_id, name, avg_rating, total_ratings, created_at
		 FROM catalog_services
		 WHERE id = $1`,
		serviceID,
	)

	var s model.CatalogService
	err := row.Scan(&s.ID, &s.ProviderID, &s.Name, &s.AvgRating, &s.TotalRatings, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("get catalog service: %w", err)
	}

	return &s, nil
}

// CreateOrder сохраняет заказ вместе с позициями в одной транзакции.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *model.Order) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO orders (user_id, provider_id, status, total_cost, payment_method)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		order.UserID, order.ProviderID, string(order.Status), order.TotalCost, string(order.PaymentMethod),
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for i := range order.LineItems {
		item := &order.LineItems[i]
		err = tx.QueryRow(ctx,
			`INSERT INTO order_line_items (order_id, service_name, cost, quantity)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			order.ID, item.ServiceName, item.Cost, item.Quantity,
		).Scan(&item.ID)
		if err != nil {
			return nil, fmt.Errorf("insert line item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return order, nil
}

const orderColumns = `id, user_id, provider_id, status, total_cost, payment_method,
	COALESCE(payment_intent_id, ''), payment_date, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		status string
		method string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.ProviderID, &status, &o.TotalCost, &method,
		&o.PaymentIntentID, &o.PaymentDate, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	o.PaymentMethod = model.PaymentMethod(method)
	return &o, nil
}

// GetOrder возвращает заказ с позициями.
func (r *PostgresRepository) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`,
		orderID,
	)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := r.loadLineItems(ctx, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.LineItems = items[order.ID]

	return order, nil
}

// GetAllOrders возвращает все заказы системы.
func (r *PostgresRepository) GetAllOrders(ctx context.Context) ([]model.Order, error) {
	return r.selectOrders(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

// GetOrdersByUser возвращает заказы заказчика.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return r.selectOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
}

// GetOrdersByProvider возвращает заказы исполнителя.
func (r *PostgresRepository) GetOrdersByProvider(ctx context.Context, providerID int64) ([]model.Order, error) {
	return r.selectOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE provider_id = $1 ORDER BY created_at DESC`,
		providerID)
}

func (r *PostgresRepository) selectOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	var ids []int64
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
		ids = append(ids, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(ids) == 0 {
		return orders, nil
	}

	items, err := r.loadLineItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].LineItems = items[orders[i].ID]
	}

	return orders, nil
}

func (r *PostgresRepository) loadLineItems(ctx context.Context, orderIDs []int64) (map[int64][]model.LineItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, service_name, cost, quantity
		 FROM order_line_items
		 WHERE order_id = ANY($1)
		 ORDER BY id`,
		orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select line items: %w", err)
	}
	defer rows.Close()

	res := make(map[int64][]model.LineItem)
	for rows.Next() {
		var (
			item    model.LineItem
			orderID int64
		)
		if err := rows.Scan(&item.ID, &orderID, &item.ServiceName, &item.Cost, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		res[orderID] = append(res[orderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SetOrderPaymentIntent сохраняет идентификатор платёжного намерения на заказе.
// Запись защищена условием нетерминального статуса: если заказ успел перейти
// в PAID, COMPLETED или CANCELLED, возвращается ErrOrderStateConflict.
func (r *PostgresRepository) SetOrderPaymentIntent(ctx context.Context, orderID int64, intentID string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders
		 SET payment_intent_id = $2, updated_at = now()
		 WHERE id = $1 AND status NOT IN ($3, $4, $5)`,
		orderID, intentID,
		string(model.OrderStatusPaid), string(model.OrderStatusCompleted), string(model.OrderStatusCancelled),
	)
	if err != nil {
		return fmt.Errorf("set payment intent: %w", err)
	}

	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`,
		orderID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if !exists {
		return ErrOrderNotFound
	}
	return ErrOrderStateConflict
}

// MarkOrderPaid переводит заказ в статус PAID и фиксирует время оплаты.
// Строка заказа блокируется на время транзакции, чтобы сериализовать
// конкурентные переходы по одному и тому же заказу.
func (r *PostgresRepository) MarkOrderPaid(ctx context.Context, orderID int64, paidAt time.Time) (*model.Order, error) {
	var order *model.Order

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var dummy int
		err = tx.QueryRow(ctx, `SELECT 1 FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("lock order for update: %w", err)
		}

		row := tx.QueryRow(ctx,
			`UPDATE orders
			 SET status = $2, payment_date = $3, updated_at = now()
			 WHERE id = $1
			 RETURNING `+orderColumns,
			orderID, string(model.OrderStatusPaid), paidAt,
		)
		order, err = scanOrder(row)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// UpdateOrderStatus безусловно перезаписывает статус заказа. Операция —
// административный обход защищённого графа переходов; ограничение круга
// вызывающих лежит на слое авторизации.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE orders
		 SET status = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+orderColumns,
		orderID, string(status),
	)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	return order, nil
}

// DeleteOrder удаляет заказ и возвращает признак фактического удаления.
func (r *PostgresRepository) DeleteOrder(ctx context.Context, orderID int64) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return false, fmt.Errorf("delete order: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// CreateFeedback сохраняет отзыв и инкрементально обновляет рейтинги услуги и
// её исполнителя в одной транзакции. Строки исполнителя и услуги блокируются
// в фиксированном порядке (исполнитель, затем услуга), чтобы конкурентные
// отзывы по одной паре агрегатов не теряли инкременты и не взаимоблокировались.
func (r *PostgresRepository) CreateFeedback(ctx context.Context, feedback *model.Feedback) (*model.Feedback, error) {
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var providerID int64
		err = tx.QueryRow(ctx,
			`SELECT provider_id FROM catalog_services WHERE id = $1`,
			feedback.ServiceID,
		).Scan(&providerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrServiceNotFound
			}
			return fmt.Errorf("resolve provider: %w", err)
		}

		var provider model.RatingStats
		err = tx.QueryRow(ctx,
			`SELECT avg_rating, total_ratings FROM providers WHERE id = $1 FOR UPDATE`,
			providerID,
		).Scan(&provider.AvgRating, &provider.TotalRatings)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: service %d", ErrProviderMissing, feedback.ServiceID)
			}
			return fmt.Errorf("lock provider: %w", err)
		}

		var service model.RatingStats
		err = tx.QueryRow(ctx,
			`SELECT avg_rating, total_ratings FROM catalog_services WHERE id = $1 FOR UPDATE`,
			feedback.ServiceID,
		).Scan(&service.AvgRating, &service.TotalRatings)
		if err != nil {
			return fmt.Errorf("lock catalog service: %w", err)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO feedback (user_id, service_id, rating, comment)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, created_at`,
			feedback.UserID, feedback.ServiceID, feedback.Rating, feedback.Comment,
		).Scan(&feedback.ID, &feedback.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert feedback: %w", err)
		}

		provider.ApplyRating(feedback.Rating)
		service.ApplyRating(feedback.Rating)

		_, err = tx.Exec(ctx,
			`UPDATE providers SET avg_rating = $2, total_ratings = $3 WHERE id = $1`,
			providerID, provider.AvgRating, provider.TotalRatings,
		)
		if err != nil {
			return fmt.Errorf("update provider rating: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE catalog_services SET avg_rating = $2, total_ratings = $3 WHERE id = $1`,
			feedback.ServiceID, service.AvgRating, service.TotalRatings,
		)
		if err != nil {
			return fmt.Errorf("update service rating: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return feedback, nil
}

// GetFeedbackByService возвращает отзывы об услуге, новые первыми.
func (r *PostgresRepository) GetFeedbackByService(ctx context.Context, serviceID int64) ([]model.Feedback, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, service_id, rating, comment, created_at
		 FROM feedback
		 WHERE service_id = $1
		 ORDER BY created_at DESC`,
		serviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("select feedback: %w", err)
	}
	defer rows.Close()

	var res []model.Feedback
	for rows.Next() {
		var f model.Feedback
		if err := rows.Scan(&f.ID, &f.UserID, &f.ServiceID, &f.Rating, &f.Comment, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		res = append(res, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
