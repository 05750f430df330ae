package service

import (
	"errors"
	"fmt"
)

// Классы ошибок бизнес-логики. Обработчики транслируют их в HTTP-статусы:
// валидация и недопустимое состояние — 400, отсутствие сущности — 404,
// отказ платёжного шлюза и нарушение целостности — 500.
var (
	// ErrValidation возвращается при некорректных входных данных или
	// отсутствии обязательной ссылки из тела запроса.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound возвращается, если сущность по идентификатору не найдена.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState возвращается, если операция недопустима в текущем
	// состоянии жизненного цикла заказа.
	ErrInvalidState = errors.New("operation not permitted in current state")
	// ErrPaymentGateway возвращается при сетевой ошибке или отказе платёжного
	// процессинга; заказ при этом остаётся в исходном состоянии.
	ErrPaymentGateway = errors.New("payment gateway failure")
	// ErrConsistency возвращается при нарушении ссылочной целостности,
	// например услуге без исполнителя.
	ErrConsistency = errors.New("consistency violation")
)

// PaymentNotSuccessfulError сообщает, что процессинг вернул неуспешный статус
// платёжного намерения. Заказ не изменяется.
type PaymentNotSuccessfulError struct {
	Status string
}

func (e *PaymentNotSuccessfulError) Error() string {
	return fmt.Sprintf("payment not successful, status: %s", e.Status)
}
