// Package store persists user accounts.
package store

import (
	"context"

	"github.com/taskloop/taskloop/internal/user/models"
)

// Repository defines the persistence operations for users.
type Repository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}
