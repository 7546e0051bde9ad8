package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/feast-field/api/internal/domain"
	"github.com/feast-field/api/internal/repositories"
)

var (
	// ErrMenuItemNotFound indicates the referenced catalog entry does not exist.
	ErrMenuItemNotFound = errors.New("inventory: menu item not found")
	// ErrInsufficientStock indicates a debit would push stock below zero.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidQuantity signals a non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: invalid quantity")
	// ErrInventoryForbidden signals the actor may not touch this item's stock.
	ErrInventoryForbidden = errors.New("inventory: forbidden")
)

// InventoryServiceDeps bundles collaborators required to construct the
// inventory service.
type InventoryServiceDeps struct {
	MenuItems  repositories.MenuItemRepository
	Merchants  repositories.MerchantRepository
	UnitOfWork repositories.UnitOfWork
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	menuItems  repositories.MenuItemRepository
	merchants  repositories.MerchantRepository
	unitOfWork repositories.UnitOfWork
	logger     func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.MenuItems == nil {
		return nil, errors.New("inventory service: menu item repository is required")
	}
	if deps.Merchants == nil {
		return nil, errors.New("inventory service: merchant repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		menuItems:  deps.MenuItems,
		merchants:  deps.Merchants,
		unitOfWork: unit,
		logger:     logger,
	}, nil
}

func (s *inventoryService) Debit(ctx context.Context, itemID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: debit quantity must be positive", ErrInvalidQuantity)
	}
	if err := s.menuItems.DebitStock(ctx, itemID, quantity); err != nil {
		if stockErr, ok := repositories.AsInsufficientStock(err); ok {
			return fmt.Errorf("%w: item %d has %d, requested %d",
				ErrInsufficientStock, stockErr.MenuItemID, stockErr.Available, stockErr.Requested)
		}
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *inventoryService) Credit(ctx context.Context, itemID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: credit quantity must be positive", ErrInvalidQuantity)
	}
	return s.mapRepositoryError(s.menuItems.CreditStock(ctx, itemID, quantity))
}

func (s *inventoryService) Set(ctx context.Context, itemID int64, quantity int) error {
	if quantity < 0 {
		quantity = 0
	}
	return s.mapRepositoryError(s.menuItems.SetStock(ctx, itemID, quantity))
}

func (s *inventoryService) ListMenu(ctx context.Context, merchantID int64, includeUnavailable bool) ([]*domain.MenuItem, error) {
	items, err := s.menuItems.ListByMerchant(ctx, merchantID, includeUnavailable)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return items, nil
}

func (s *inventoryService) MerchantMenu(ctx context.Context, actor Actor) ([]*domain.MenuItem, error) {
	merchant, err := s.merchants.FindByStaff(ctx, actor.UserID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil, fmt.Errorf("%w: user %d has no store", ErrInventoryForbidden, actor.UserID)
		}
		return nil, s.mapRepositoryError(err)
	}
	return s.ListMenu(ctx, merchant.ID, true)
}

func (s *inventoryService) UpdateStock(ctx context.Context, cmd UpdateStockCommand) (*domain.MenuItem, error) {
	item, err := s.menuItems.FindByID(ctx, cmd.MenuItemID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	if !cmd.Actor.IsAdmin() {
		ok, err := s.merchants.HasStaff(ctx, item.MerchantID, cmd.Actor.UserID)
		if err != nil {
			return nil, s.mapRepositoryError(err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: user %d is not staff of merchant %d", ErrInventoryForbidden, cmd.Actor.UserID, item.MerchantID)
		}
	}

	level := cmd.Stock
	if level < 0 {
		level = 0
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		return s.mapRepositoryError(s.menuItems.SetStock(txCtx, cmd.MenuItemID, level))
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx, "inventory.stock.set", map[string]any{
		"item":  cmd.MenuItemID,
		"stock": level,
		"actor": cmd.Actor.UserID,
	})

	item.Stock = level
	return item, nil
}

func (s *inventoryService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrMenuItemNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("inventory: repository unavailable: %w", err)
		}
	}
	return err
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
