package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type ratingReconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// NewReviewReconcileJob rewrites product rating aggregates that drifted from
// their approved reviews.
func NewReviewReconcileJob(logg *logger.Logger, reviews ratingReconciler) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if reviews == nil {
		return nil, fmt.Errorf("review service required")
	}
	return &reviewReconcileJob{logg: logg, reviews: reviews}, nil
}

type reviewReconcileJob struct {
	logg    *logger.Logger
	reviews ratingReconciler
}

func (j *reviewReconcileJob) Name() string { return "review-reconcile" }

func (j *reviewReconcileJob) Run(ctx context.Context) error {
	fixed, err := j.reviews.Reconcile(ctx)
	if fixed > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "products_fixed", fixed), "rating aggregates drifted")
	}
	if err != nil {
		return fmt.Errorf("reconcile ratings: %w", err)
	}
	return nil
}
