package repository

import (
	"github.com/planboard/planboard/app/models"
	"gorm.io/gorm"
)

// competitorRepository implements the CompetitorRepository interface
type competitorRepository struct {
	db *gorm.DB
}

// NewCompetitorRepository creates a new competitor repository instance
func NewCompetitorRepository(db *gorm.DB) CompetitorRepository {
	return &competitorRepository{db: db}
}

// Create creates a new competitor profile in the database
func (r *competitorRepository) Create(competitor *models.Competitor) error {
	return r.db.Create(competitor).Error
}

// GetByUUID retrieves a competitor by its public id
func (r *competitorRepository) GetByUUID(uuid string) (*models.Competitor, error) {
	var competitor models.Competitor
	err := r.db.Where("uuid = ?", uuid).First(&competitor).Error
	if err != nil {
		return nil, err
	}
	return &competitor, nil
}

// GetByUserID retrieves all competitor profiles tracked by a user
func (r *competitorRepository) GetByUserID(userID uint) ([]models.Competitor, error) {
	var competitors []models.Competitor
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&competitors).Error
	return competitors, err
}

// Update updates an existing competitor profile
func (r *competitorRepository) Update(competitor *models.Competitor) error {
	return r.db.Save(competitor).Error
}

// DeleteByUUID removes a competitor profile owned by the given user
func (r *competitorRepository) DeleteByUUID(userID uint, uuid string) error {
	return r.db.Where("user_id = ? AND uuid = ?", userID, uuid).Delete(&models.Competitor{}).Error
}

// CountByUserID returns how many competitors a user tracks
func (r *competitorRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Competitor{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
