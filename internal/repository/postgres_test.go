package repository

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/findmyservice/marketplace/internal/model"
)

func TestMigrationsEmbedCatalogSeed(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/0002_catalog_seed.sql")
	if err != nil {
		t.Fatalf("catalog seed migration is not embedded: %v", err)
	}

	for _, stmt := range []string{"INSERT INTO providers", "INSERT INTO catalog_services"} {
		if !strings.Contains(string(data), stmt) {
			t.Fatalf("seed migration does not contain %q", stmt)
		}
	}
}

func newTestRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("DATABASE_URI")
	if dsn == "" {
		t.Skip("DATABASE_URI is not set")
	}

	repo, err := NewPostgresRepository(dsn)
	if err != nil {
		t.Fatalf("NewPostgresRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestMigrations_SeedCatalog(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	var providers, services int
	if err := repo.pool.QueryRow(ctx, `SELECT count(*) FROM providers`).Scan(&providers); err != nil {
		t.Fatalf("count providers: %v", err)
	}
	if err := repo.pool.QueryRow(ctx, `SELECT count(*) FROM catalog_services`).Scan(&services); err != nil {
		t.Fatalf("count catalog services: %v", err)
	}

	if providers == 0 || services == 0 {
		t.Fatalf("catalog is empty after migrations: providers=%d services=%d", providers, services)
	}
}

func TestCreateFeedback_ConcurrentNoLostUpdates(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	suffix := time.Now().UnixNano()

	var userID int64
	err := repo.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id`,
		fmt.Sprintf("feedback-user-%d", suffix), []byte("test"),
	).Scan(&userID)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}

	var providerID int64
	err = repo.pool.QueryRow(ctx,
		`INSERT INTO providers (name) VALUES ($1) RETURNING id`,
		fmt.Sprintf("provider-%d", suffix),
	).Scan(&providerID)
	if err != nil {
		t.Fatalf("insert provider: %v", err)
	}

	var serviceID int64
	err = repo.pool.QueryRow(ctx,
		`INSERT INTO catalog_services (provider_id, name) VALUES ($1, $2) RETURNING id`,
		providerID, fmt.Sprintf("service-%d", suffix),
	).Scan(&serviceID)
	if err != nil {
		t.Fatalf("insert catalog service: %v", err)
	}

	// Одинаковая оценка у всех воркеров: итоговое среднее не зависит от
	// порядка коммитов, а потерянный инкремент виден по total_ratings.
	const workers = 8
	const rating = 4

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.CreateFeedback(ctx, &model.Feedback{
				UserID:    userID,
				ServiceID: serviceID,
				Rating:    rating,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("CreateFeedback: %v", err)
		}
	}

	svc, err := repo.GetCatalogService(ctx, serviceID)
	if err != nil {
		t.Fatalf("GetCatalogService: %v", err)
	}
	if svc.TotalRatings != workers {
		t.Fatalf("service total_ratings = %d, want %d", svc.TotalRatings, workers)
	}
	if want := decimal.NewFromInt(rating); !svc.AvgRating.Equal(want) {
		t.Fatalf("service avg_rating = %s, want %s", svc.AvgRating, want)
	}

	prov, err := repo.GetProvider(ctx, providerID)
	if err != nil {
		t.Fatalf("GetProvider: %v", err)
	}
	if prov.TotalRatings != workers {
		t.Fatalf("provider total_ratings = %d, want %d", prov.TotalRatings, workers)
	}
	if want := decimal.NewFromInt(rating); !prov.AvgRating.Equal(want) {
		t.Fatalf("provider avg_rating = %s, want %s", prov.AvgRating, want)
	}
}
