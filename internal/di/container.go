package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/feast-field/api/internal/domain"
	"github.com/feast-field/api/internal/handlers"
	"github.com/feast-field/api/internal/platform/auth"
	"github.com/feast-field/api/internal/platform/config"
	"github.com/feast-field/api/internal/platform/observability"
	"github.com/feast-field/api/internal/platform/postgres"
	pgrepo "github.com/feast-field/api/internal/repositories/postgres"
	"github.com/feast-field/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled in NewContainer.
type Services struct {
	Inventory  services.InventoryService
	Orders     services.OrderService
	Payments   services.PaymentService
	Reviews    services.ReviewService
	Complaints services.ComplaintService
}

// Container wires the connection pool, repositories, services and auth for
// runtime use.
type Container struct {
	Config        config.Config
	Pool          *pgxpool.Pool
	Logger        *zap.Logger
	Authenticator *auth.Authenticator
	Services      Services
}

// NewContainer constructs the runtime dependencies on top of an established
// connection pool.
func NewContainer(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, logger *zap.Logger) (*Container, error) {
	if pool == nil {
		return nil, errors.New("di: connection pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	authenticator, err := auth.NewAuthenticator([]byte(cfg.Auth.TokenSecret))
	if err != nil {
		return nil, fmt.Errorf("di: build authenticator: %w", err)
	}

	svc, err := buildServices(pool, logger)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:        cfg,
		Pool:          pool,
		Logger:        logger,
		Authenticator: authenticator,
		Services:      svc,
	}, nil
}

// Close releases the connection pool.
func (c *Container) Close() {
	if c != nil && c.Pool != nil {
		c.Pool.Close()
	}
}

func buildServices(pool *pgxpool.Pool, logger *zap.Logger) (Services, error) {
	repos := pgrepo.New(pool)
	unit := postgres.NewRunner(pool)
	eventLog := observability.ServiceLogger(logger)

	inventory, err := services.NewInventoryService(services.InventoryServiceDeps{
		MenuItems:  repos.MenuItems,
		Merchants:  repos.Merchants,
		UnitOfWork: unit,
		Logger:     eventLog,
	})
	if err != nil {
		return Services{}, fmt.Errorf("di: build inventory service: %w", err)
	}

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     repos.Orders,
		MenuItems:  repos.MenuItems,
		Merchants:  repos.Merchants,
		Payments:   repos.Payments,
		Users:      repos.Users,
		Inventory:  inventory,
		UnitOfWork: unit,
		Clock:      time.Now,
		Logger:     eventLog,
	})
	if err != nil {
		return Services{}, fmt.Errorf("di: build order service: %w", err)
	}

	payments, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:     repos.Orders,
		Payments:   repos.Payments,
		Merchants:  repos.Merchants,
		UnitOfWork: unit,
		Clock:      time.Now,
		Logger:     eventLog,
	})
	if err != nil {
		return Services{}, fmt.Errorf("di: build payment service: %w", err)
	}

	reviews, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews:    repos.Reviews,
		Orders:     repos.Orders,
		Merchants:  repos.Merchants,
		UnitOfWork: unit,
		Clock:      time.Now,
		Logger:     eventLog,
	})
	if err != nil {
		return Services{}, fmt.Errorf("di: build review service: %w", err)
	}

	complaints, err := services.NewComplaintService(services.ComplaintServiceDeps{
		Complaints: repos.Complaints,
		Orders:     repos.Orders,
		Merchants:  repos.Merchants,
		UnitOfWork: unit,
		Clock:      time.Now,
		Logger:     eventLog,
	})
	if err != nil {
		return Services{}, fmt.Errorf("di: build complaint service: %w", err)
	}

	return Services{
		Inventory:  inventory,
		Orders:     orders,
		Payments:   payments,
		Reviews:    reviews,
		Complaints: complaints,
	}, nil
}

// Router assembles the HTTP surface with per-group role guards.
func (c *Container) Router() (chi.Router, error) {
	orderHandlers, err := handlers.NewOrderHandlers(c.Services.Orders)
	if err != nil {
		return nil, err
	}
	merchantHandlers, err := handlers.NewMerchantHandlers(c.Services.Orders, c.Services.Inventory)
	if err != nil {
		return nil, err
	}
	shipperHandlers, err := handlers.NewShipperHandlers(c.Services.Orders)
	if err != nil {
		return nil, err
	}
	adminHandlers, err := handlers.NewAdminHandlers(c.Services.Orders, c.Services.Payments)
	if err != nil {
		return nil, err
	}
	paymentHandlers, err := handlers.NewPaymentHandlers(c.Services.Payments)
	if err != nil {
		return nil, err
	}
	reviewHandlers, err := handlers.NewReviewHandlers(c.Services.Reviews)
	if err != nil {
		return nil, err
	}
	complaintHandlers, err := handlers.NewComplaintHandlers(c.Services.Complaints)
	if err != nil {
		return nil, err
	}

	guarded := func(reg handlers.RouteRegistrar, roles ...domain.Role) handlers.RouteRegistrar {
		guard := c.Authenticator.RequireAuth(roles...)
		return func(r chi.Router) {
			r.Use(guard)
			reg(r)
		}
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(c.Logger),
			observability.TraceMiddleware(),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(c.Logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(c.Pool)),
		handlers.WithOrderRoutes(guarded(orderHandlers.Routes, domain.RoleCustomer)),
		handlers.WithMerchantRoutes(guarded(merchantHandlers.Routes, domain.RoleMerchant)),
		handlers.WithShipperRoutes(guarded(shipperHandlers.Routes, domain.RoleShipper)),
		handlers.WithAdminRoutes(guarded(adminHandlers.Routes, domain.RoleAdmin)),
		handlers.WithPaymentRoutes(guarded(paymentHandlers.Routes, domain.RoleCustomer, domain.RoleMerchant)),
		handlers.WithReviewRoutes(guarded(reviewHandlers.Routes)),
		handlers.WithComplaintRoutes(guarded(complaintHandlers.Routes)),
	)
	return router, nil
}
