package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	"github.com/feast-field/api/internal/domain"
	"github.com/feast-field/api/internal/repositories"
)

const (
	reviewIDPrefix     = "rev_"
	reviewItemIDPrefix = "rvi_"

	ratingMin = 1
	ratingMax = 5
)

var (
	// ErrReviewInvalidInput indicates validation failures for review operations.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewNotFound indicates a review could not be located.
	ErrReviewNotFound = errors.New("review: not found")
	// ErrReviewForbidden indicates the actor may not access the review.
	ErrReviewForbidden = errors.New("review: forbidden")
	// ErrDuplicateReview signals a second review for the same order by the
	// same customer.
	ErrDuplicateReview = errors.New("review: already reviewed")
	// ErrReviewInvalidState is returned when the order is not yet delivered.
	ErrReviewInvalidState = errors.New("review: order not reviewable")
)

// ReviewServiceDeps bundles collaborators required to construct a ReviewService.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Orders      repositories.OrderRepository
	Merchants   repositories.MerchantRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Sanitizer   func(string) string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	reviews    repositories.ReviewRepository
	orders     repositories.OrderRepository
	merchants  repositories.MerchantRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	sanitize   func(string) string
	logger     func(context.Context, string, map[string]any)
}

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
	}
	if deps.Merchants == nil {
		return nil, errors.New("review service: merchant repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = newTextSanitizer()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reviewService{
		reviews:    deps.Reviews,
		orders:     deps.Orders,
		merchants:  deps.Merchants,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		sanitize: sanitize,
		logger:   logger,
	}, nil
}

// newTextSanitizer strips all markup from customer-supplied text before it
// is stored or echoed back to other users.
func newTextSanitizer() func(string) string {
	policy := bluemonday.StrictPolicy()
	return func(input string) string {
		return strings.TrimSpace(policy.Sanitize(input))
	}
}

func (s *reviewService) Create(ctx context.Context, cmd CreateReviewCommand) (*domain.Review, error) {
	if err := validateRating("order rating", cmd.OrderRating); err != nil {
		return nil, err
	}
	if err := validateRating("merchant rating", cmd.MerchantRating); err != nil {
		return nil, err
	}
	if cmd.ShipperRating != nil {
		if err := validateRating("shipper rating", *cmd.ShipperRating); err != nil {
			return nil, err
		}
	}
	for _, item := range cmd.Items {
		if err := validateRating("item rating", item.Rating); err != nil {
			return nil, err
		}
	}

	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if order.CustomerID != cmd.Actor.UserID {
		return nil, fmt.Errorf("%w: order %d belongs to another customer", ErrReviewForbidden, order.ID)
	}
	if order.Status != domain.OrderStatusDelivered {
		return nil, fmt.Errorf("%w: order %d is %s", ErrReviewInvalidState, order.ID, order.Status)
	}

	review := &domain.Review{
		ID:             reviewIDPrefix + s.newID(),
		OrderID:        order.ID,
		CustomerID:     order.CustomerID,
		MerchantID:     order.MerchantID,
		ShipperID:      order.ShipperID,
		OrderRating:    cmd.OrderRating,
		MerchantRating: cmd.MerchantRating,
		ShipperRating:  cmd.ShipperRating,
		Comment:        s.sanitize(cmd.Comment),
		CreatedAt:      s.clock(),
	}

	for _, item := range cmd.Items {
		if order.Line(item.OrderLineID) == nil {
			return nil, fmt.Errorf("%w: order line %d is not part of order %d", ErrReviewInvalidInput, item.OrderLineID, order.ID)
		}
		review.Items = append(review.Items, domain.MenuItemReview{
			ID:          reviewItemIDPrefix + s.newID(),
			ReviewID:    review.ID,
			OrderLineID: item.OrderLineID,
			Rating:      item.Rating,
			Comment:     s.sanitize(item.Comment),
		})
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		exists, err := s.reviews.ExistsForOrder(txCtx, order.ID, cmd.Actor.UserID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if exists {
			return fmt.Errorf("%w: order %d", ErrDuplicateReview, order.ID)
		}
		// The unique (order_id, customer_id) constraint backstops the check
		// under concurrent submissions.
		if err := s.reviews.Insert(txCtx, review); err != nil {
			if repositories.IsConflict(err) {
				return fmt.Errorf("%w: order %d", ErrDuplicateReview, order.ID)
			}
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx, "review.created", map[string]any{
		"review":   review.ID,
		"order":    review.OrderID,
		"customer": review.CustomerID,
	})
	return review, nil
}

func (s *reviewService) GetByOrder(ctx context.Context, orderID int64, actor Actor) (*domain.Review, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	allowed := actor.IsAdmin() || order.CustomerID == actor.UserID
	if !allowed && actor.Role == domain.RoleMerchant {
		ok, err := s.merchants.HasStaff(ctx, order.MerchantID, actor.UserID)
		if err != nil {
			return nil, s.mapRepositoryError(err)
		}
		allowed = ok
	}
	if !allowed {
		return nil, fmt.Errorf("%w: user %d may not read reviews of order %d", ErrReviewForbidden, actor.UserID, orderID)
	}

	review, err := s.reviews.GetByOrder(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return review, nil
}

func (s *reviewService) ListForMerchant(ctx context.Context, actor Actor, opts ListOptions) ([]*domain.Review, error) {
	merchant, err := s.merchants.FindByStaff(ctx, actor.UserID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, fmt.Errorf("%w: user %d is not merchant staff", ErrReviewForbidden, actor.UserID)
		}
		return nil, s.mapRepositoryError(err)
	}

	reviews, err := s.reviews.ListByMerchant(ctx, merchant.ID, repositories.ListOptions{Limit: opts.Limit, Offset: opts.Offset})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return reviews, nil
}

func validateRating(field string, rating int) error {
	if rating < ratingMin || rating > ratingMax {
		return fmt.Errorf("%w: %s must be between %d and %d", ErrReviewInvalidInput, field, ratingMin, ratingMax)
	}
	return nil
}

func (s *reviewService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrReviewNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrDuplicateReview, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("review: repository unavailable: %w", err)
		}
	}
	return err
}
