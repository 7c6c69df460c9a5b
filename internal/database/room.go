package database

import (
	"context"

	"github.com/thereayou/letstalk/internal/models"
	"github.com/thereayou/letstalk/internal/rooms"
)

// SaveRoom stores a room created at runtime.
func (d *Database) SaveRoom(ctx context.Context, record rooms.Record) error {
	row := models.Room{
		Name:      record.Name,
		Code:      record.Code,
		CreatedBy: record.CreatorID,
		CreatedAt: record.CreatedAt,
	}
	return d.db.WithContext(ctx).Create(&row).Error
}

// ListRooms returns every stored room in creation order.
func (d *Database) ListRooms(ctx context.Context) ([]rooms.Record, error) {
	var rows []models.Room
	if err := d.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]rooms.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, rooms.Record{
			Name:      r.Name,
			Code:      r.Code,
			CreatorID: r.CreatedBy,
			CreatedAt: r.CreatedAt,
		})
	}
	return records, nil
}

func (d *Database) GetRoomByName(ctx context.Context, name string) (*models.Room, error) {
	var room models.Room
	if err := d.db.WithContext(ctx).First(&room, "name = ?", name).Error; err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}
