package repository

import (
	"github.com/Chrismelgar17/tipzy-sub000/app/models"
)

// UserRepository defines the interface for user-related database operations
// used by the auth middleware and admin surface.
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	GetSubscription(userID uint) (*models.Subscription, error)
	Update(user *models.User) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}
