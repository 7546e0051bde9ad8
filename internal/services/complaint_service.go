package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/feast-field/api/internal/domain"
	"github.com/feast-field/api/internal/repositories"
)

const complaintIDPrefix = "cmp_"

var (
	// ErrComplaintInvalidInput indicates validation failures for complaint
	// operations.
	ErrComplaintInvalidInput = errors.New("complaint: invalid input")
	// ErrComplaintNotFound indicates a complaint could not be located.
	ErrComplaintNotFound = errors.New("complaint: not found")
	// ErrComplaintForbidden indicates the actor may not act on the complaint.
	ErrComplaintForbidden = errors.New("complaint: forbidden")
	// ErrComplaintInvalidState is returned when responding to a closed
	// complaint.
	ErrComplaintInvalidState = errors.New("complaint: already closed")
)

// ComplaintServiceDeps bundles collaborators required to construct a
// ComplaintService.
type ComplaintServiceDeps struct {
	Complaints  repositories.ComplaintRepository
	Orders      repositories.OrderRepository
	Merchants   repositories.MerchantRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Sanitizer   func(string) string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type complaintService struct {
	complaints repositories.ComplaintRepository
	orders     repositories.OrderRepository
	merchants  repositories.MerchantRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	sanitize   func(string) string
	logger     func(context.Context, string, map[string]any)
}

// NewComplaintService wires dependencies into a concrete ComplaintService.
func NewComplaintService(deps ComplaintServiceDeps) (ComplaintService, error) {
	if deps.Complaints == nil {
		return nil, errors.New("complaint service: complaint repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("complaint service: order repository is required")
	}
	if deps.Merchants == nil {
		return nil, errors.New("complaint service: merchant repository is required")
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

	return &complaintService{
		complaints: deps.Complaints,
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

// Create files a complaint against an order. Unlike reviews there is no
// status gate: a customer can complain about a pending, in-flight, delivered
// or canceled order.
func (s *complaintService) Create(ctx context.Context, cmd CreateComplaintCommand) (*domain.Complaint, error) {
	title := s.sanitize(cmd.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrComplaintInvalidInput)
	}
	description := s.sanitize(cmd.Description)
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrComplaintInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if order.CustomerID != cmd.Actor.UserID && !cmd.Actor.IsAdmin() {
		return nil, fmt.Errorf("%w: order %d belongs to another customer", ErrComplaintForbidden, order.ID)
	}

	now := s.clock()
	complaint := &domain.Complaint{
		ID:          complaintIDPrefix + s.newID(),
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		Type:        strings.TrimSpace(cmd.Type),
		Title:       title,
		Description: description,
		Status:      domain.ComplaintStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		return s.mapRepositoryError(s.complaints.Insert(txCtx, complaint))
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx, "complaint.created", map[string]any{
		"complaint": complaint.ID,
		"order":     complaint.OrderID,
		"customer":  complaint.CustomerID,
	})
	return complaint, nil
}

// Respond closes an open complaint. Only staff of the merchant the order was
// placed with, or an admin, may respond.
func (s *complaintService) Respond(ctx context.Context, cmd RespondComplaintCommand) (*domain.Complaint, error) {
	if cmd.Status != domain.ComplaintStatusResolved && cmd.Status != domain.ComplaintStatusRejected {
		return nil, fmt.Errorf("%w: resolution status must be %s or %s",
			ErrComplaintInvalidInput, domain.ComplaintStatusResolved, domain.ComplaintStatusRejected)
	}
	response := s.sanitize(cmd.Response)
	if response == "" {
		return nil, fmt.Errorf("%w: response is required", ErrComplaintInvalidInput)
	}

	var updated *domain.Complaint
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		complaint, err := s.complaints.FindByID(txCtx, cmd.ComplaintID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if complaint.Status != domain.ComplaintStatusOpen {
			return fmt.Errorf("%w: complaint %s is %s", ErrComplaintInvalidState, complaint.ID, complaint.Status)
		}

		if !cmd.Actor.IsAdmin() {
			order, err := s.orders.FindByID(txCtx, complaint.OrderID)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			ok, err := s.merchants.HasStaff(txCtx, order.MerchantID, cmd.Actor.UserID)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			if !ok {
				return fmt.Errorf("%w: user %d is not staff of the merchant of record", ErrComplaintForbidden, cmd.Actor.UserID)
			}
		}

		now := s.clock()
		handler := cmd.Actor.UserID
		complaint.Status = cmd.Status
		complaint.Response = response
		complaint.HandledBy = &handler
		complaint.ResolvedAt = &now
		complaint.UpdatedAt = now

		if err := s.complaints.Update(txCtx, complaint); err != nil {
			return s.mapRepositoryError(err)
		}
		updated = complaint
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx, "complaint.responded", map[string]any{
		"complaint": updated.ID,
		"status":    string(updated.Status),
		"handler":   cmd.Actor.UserID,
	})
	return updated, nil
}

func (s *complaintService) ListByOrder(ctx context.Context, orderID int64, actor Actor) ([]*domain.Complaint, error) {
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
		return nil, fmt.Errorf("%w: user %d may not read complaints of order %d", ErrComplaintForbidden, actor.UserID, orderID)
	}

	complaints, err := s.complaints.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return complaints, nil
}

func (s *complaintService) ListOpen(ctx context.Context, actor Actor, opts ListOptions) ([]*domain.Complaint, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: the open complaint queue requires the admin role", ErrComplaintForbidden)
	}

	complaints, err := s.complaints.ListOpen(ctx, repositories.ListOptions{Limit: opts.Limit, Offset: opts.Offset})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return complaints, nil
}

func (s *complaintService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrComplaintNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("complaint: repository unavailable: %w", err)
		}
	}
	return err
}
