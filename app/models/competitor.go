package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	CompetitorPlatformYouTube = "youtube"
	CompetitorPlatformBlog    = "blog"
)

// Competitor is a tracked competitor profile. Competitor tracking is the
// premium feature gated behind an active subscription.
type Competitor struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	UUID       string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"-"`
	Name       string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Platform   string    `gorm:"type:varchar(32);not null" json:"platform" validate:"oneof=youtube blog"`
	ProfileURL string    `gorm:"type:varchar(500);not null" json:"profile_url" validate:"required,url,max=500"`
	Followers  int64     `gorm:"default:0" json:"followers"`
	Engagement float64   `gorm:"default:0" json:"engagement"`
	Posts      int64     `gorm:"default:0" json:"posts"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Competitor) Validate() error {
	v := validator.New()

	return v.Struct(c)
}
