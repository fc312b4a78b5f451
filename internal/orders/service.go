package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshfoldapp/freshfold-backend/pkg/db/models"
	"github.com/freshfoldapp/freshfold-backend/pkg/enums"
	pkgerrors "github.com/freshfoldapp/freshfold-backend/pkg/errors"
)

// Service reads orders on behalf of an authenticated caller. Customers
// see only their own orders; admins see all of them.
type Service interface {
	Get(ctx context.Context, input GetInput) (*models.Order, error)
}

type GetInput struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Role    enums.UserRole
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, input GetInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	order, err := s.repo.FindByIDWithPayments(ctx, input.OrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != input.UserID && input.Role != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return order, nil
}
