package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thereayou/sellboard/internal/models"
)

// PageQuery selects one page of the feed, optionally restricted to one author.
type PageQuery struct {
	Page     int
	PerPage  int
	AuthorID *uuid.UUID
}

func (d *Database) CreateSell(ctx context.Context, sell *models.Sell) error {
	if err := d.db.WithContext(ctx).Omit(clause.Associations).Create(sell).Error; err != nil {
		return errors.Wrap(err, "create sell")
	}
	return nil
}

func (d *Database) GetSell(ctx context.Context, id uuid.UUID) (*models.Sell, error) {
	var sell models.Sell
	if err := d.db.WithContext(ctx).Preload("Author").First(&sell, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &sell, nil
}

func (d *Database) UpdateSell(ctx context.Context, sell *models.Sell) error {
	err := d.db.WithContext(ctx).
		Model(sell).
		Select("Title", "Content", "Price", "PictureFile").
		Updates(sell).Error
	return errors.Wrap(err, "update sell")
}

func (d *Database) DeleteSell(ctx context.Context, sell *models.Sell) error {
	res := d.db.WithContext(ctx).Delete(&models.Sell{}, "id = ?", sell.ID)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete sell")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSells returns one page of listings, newest first. A page number below 1,
// or past the last page (other than page 1 of an empty feed), is ErrNotFound.
func (d *Database) ListSells(ctx context.Context, q PageQuery) (Page, error) {
	page := Page{Page: q.Page, PerPage: q.PerPage}
	if q.Page < 1 || q.PerPage < 1 {
		return page, ErrNotFound
	}

	scope := func() *gorm.DB {
		tx := d.db.WithContext(ctx).Model(&models.Sell{})
		if q.AuthorID != nil {
			tx = tx.Where("user_id = ?", *q.AuthorID)
		}
		return tx
	}

	if err := scope().Count(&page.Total).Error; err != nil {
		return page, errors.Wrap(err, "count sells")
	}
	if q.Page > page.Pages() && q.Page != 1 {
		return page, ErrNotFound
	}

	err := scope().
		Preload("Author").
		Order("date_posted DESC").
		Order("id DESC").
		Offset((q.Page - 1) * q.PerPage).
		Limit(q.PerPage).
		Find(&page.Items).Error
	if err != nil {
		return page, errors.Wrap(err, "list sells")
	}
	return page, nil
}
