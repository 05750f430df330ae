package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/findmyservice/marketplace/internal/model"
	"github.com/findmyservice/marketplace/internal/repository"
	"github.com/findmyservice/marketplace/internal/validation"
)

// RecordFeedback сохраняет отзыв и инкрементально обновляет средние рейтинги
// услуги и её исполнителя как одно атомарное действие. Порядок проверок:
// диапазон оценки, существование заказчика, существование услуги. Отсутствие
// исполнителя у существующей услуги — нарушение целостности, а не повод
// молча пропустить обновление рейтинга исполнителя.
func (s *Service) RecordFeedback(ctx context.Context, userID, serviceID int64, rating int32, comment string) (*model.Feedback, error) {
	if !validation.IsValidRating(rating) {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}

	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: user from payload not found", ErrValidation)
	}

	if _, err := s.repo.GetCatalogService(ctx, serviceID); err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			return nil, fmt.Errorf("%w: service catalog not found", ErrValidation)
		}
		return nil, fmt.Errorf("check catalog service: %w", err)
	}

	feedback := &model.Feedback{
		UserID:    userID,
		ServiceID: serviceID,
		Rating:    rating,
		Comment:   comment,
	}

	saved, err := s.repo.CreateFeedback(ctx, feedback)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrServiceNotFound):
			return nil, fmt.Errorf("%w: service catalog not found", ErrValidation)
		case errors.Is(err, repository.ErrProviderMissing):
			return nil, fmt.Errorf("%w: provider not found for service %d", ErrConsistency, serviceID)
		default:
			return nil, err
		}
	}

	return saved, nil
}

// FeedbackForService возвращает все отзывы об указанной услуге.
func (s *Service) FeedbackForService(ctx context.Context, serviceID int64) ([]model.Feedback, error) {
	if _, err := s.repo.GetCatalogService(ctx, serviceID); err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			return nil, fmt.Errorf("%w: service %d", ErrNotFound, serviceID)
		}
		return nil, fmt.Errorf("check catalog service: %w", err)
	}

	return s.repo.GetFeedbackByService(ctx, serviceID)
}
