package service

import (
	"context"
	"errors"
	"testing"

	"github.com/findmyservice/marketplace/internal/model"
	"github.com/findmyservice/marketplace/internal/repository"
)

func TestRecordFeedback_RatingOutOfRange(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)

	for _, rating := range []int32{0, 6, -1} {
		_, err := svc.RecordFeedback(context.Background(), 1, 2, rating, "")
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("rating %d: expected ErrValidation, got %v", rating, err)
		}
	}
	if repo.createFeedbN != 0 {
		t.Fatalf("feedback must not be persisted for an out-of-range rating")
	}
}

func TestRecordFeedback_UserNotFound(t *testing.T) {
	repo := &stubRepo{userExists: false}
	svc := NewService(repo, nil)

	_, err := svc.RecordFeedback(context.Background(), 1, 2, 4, "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if repo.createFeedbN != 0 {
		t.Fatalf("feedback must not be persisted for a missing user")
	}
}

func TestRecordFeedback_ServiceNotFound(t *testing.T) {
	repo := &stubRepo{
		userExists:        true,
		catalogServiceErr: repository.ErrServiceNotFound,
	}
	svc := NewService(repo, nil)

	_, err := svc.RecordFeedback(context.Background(), 1, 2, 4, "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if repo.createFeedbN != 0 {
		t.Fatalf("feedback must not be persisted for a missing service")
	}
}

func TestRecordFeedback_ProviderMissingIsConsistencyError(t *testing.T) {
	repo := &stubRepo{
		userExists:     true,
		catalogService: &model.CatalogService{ID: 2, ProviderID: 9},
		feedbackErr:    repository.ErrProviderMissing,
	}
	svc := NewService(repo, nil)

	_, err := svc.RecordFeedback(context.Background(), 1, 2, 4, "")
	if !errors.Is(err, ErrConsistency) {
		t.Fatalf("expected ErrConsistency, got %v", err)
	}
}

func TestRecordFeedback_Success(t *testing.T) {
	repo := &stubRepo{
		userExists:     true,
		catalogService: &model.CatalogService{ID: 2, ProviderID: 9},
	}
	svc := NewService(repo, nil)

	feedback, err := svc.RecordFeedback(context.Background(), 1, 2, 5, "great work")
	if err != nil {
		t.Fatalf("RecordFeedback error: %v", err)
	}
	if feedback.UserID != 1 || feedback.ServiceID != 2 || feedback.Rating != 5 {
		t.Fatalf("unexpected feedback: %+v", feedback)
	}
	if repo.createFeedbN != 1 {
		t.Fatalf("createFeedbN = %d, want 1", repo.createFeedbN)
	}
}

func TestFeedbackForService_ServiceNotFound(t *testing.T) {
	repo := &stubRepo{catalogServiceErr: repository.ErrServiceNotFound}
	svc := NewService(repo, nil)

	_, err := svc.FeedbackForService(context.Background(), 2)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFeedbackForService_ReturnsReviews(t *testing.T) {
	repo := &stubRepo{
		catalogService: &model.CatalogService{ID: 2, ProviderID: 9},
		serviceReviews: []model.Feedback{
			{ID: 10, ServiceID: 2, Rating: 5},
			{ID: 11, ServiceID: 2, Rating: 3},
		},
	}
	svc := NewService(repo, nil)

	reviews, err := svc.FeedbackForService(context.Background(), 2)
	if err != nil {
		t.Fatalf("FeedbackForService error: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("len(reviews) = %d, want 2", len(reviews))
	}
}
