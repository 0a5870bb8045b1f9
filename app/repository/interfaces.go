package repository

import (
	"github.com/planboard/planboard/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
}

// CompetitorRepository defines the interface for competitor profile operations
type CompetitorRepository interface {
	Create(competitor *models.Competitor) error
	GetByUUID(uuid string) (*models.Competitor, error)
	GetByUserID(userID uint) ([]models.Competitor, error)
	Update(competitor *models.Competitor) error
	DeleteByUUID(userID uint, uuid string) error
	CountByUserID(userID uint) (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	User       UserRepository
	Competitor CompetitorRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:       NewUserRepository(db),
		Competitor: NewCompetitorRepository(db),
	}
}
