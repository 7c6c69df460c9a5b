package database

import (
	"context"
	"time"

	"github.com/thereayou/letstalk/internal/models"
)

func (d *Database) SaveUser(ctx context.Context, user *models.User) error {
	return d.db.WithContext(ctx).Create(user).Error
}

func (d *Database) GetUser(ctx context.Context, id string) (*models.User, error) {
	user := models.User{}
	if err := d.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (d *Database) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := models.User{}
	if err := d.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (d *Database) UpdateLastSeen(ctx context.Context, id string) error {
	return d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_seen_at", time.Now()).Error
}
