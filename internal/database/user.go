package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm/clause"

	"github.com/thereayou/sellboard/internal/models"
)

// SaveUser inserts a new user. The unique indexes on username and email
// decide conflicts; the lookups only name the offending field.
func (d *Database) SaveUser(ctx context.Context, user *models.User) error {
	if err := d.db.WithContext(ctx).Omit(clause.Associations).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return d.duplicateField(ctx, user)
		}
		return errors.Wrap(err, "create user")
	}
	return nil
}

func (d *Database) UpdateUser(ctx context.Context, user *models.User) error {
	err := d.db.WithContext(ctx).
		Model(user).
		Select("Username", "Email", "ImageFile").
		Updates(user).Error
	if err != nil {
		if isUniqueViolation(err) {
			return d.duplicateField(ctx, user)
		}
		return errors.Wrap(err, "update user")
	}
	return nil
}

func (d *Database) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
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

func (d *Database) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := models.User{}
	if err := d.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UsernameTaken reports whether another user (not except) owns username.
func (d *Database) UsernameTaken(ctx context.Context, username string, except uuid.UUID) (bool, error) {
	return d.taken(ctx, "username", username, except)
}

func (d *Database) EmailTaken(ctx context.Context, email string, except uuid.UUID) (bool, error) {
	return d.taken(ctx, "email", email, except)
}

func (d *Database) taken(ctx context.Context, column, value string, except uuid.UUID) (bool, error) {
	var n int64
	q := d.db.WithContext(ctx).Model(&models.User{}).Where(column+" = ?", value)
	if except != uuid.Nil {
		q = q.Where("id <> ?", except)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, errors.Wrapf(err, "check %s", column)
	}
	return n > 0, nil
}

func (d *Database) duplicateField(ctx context.Context, user *models.User) error {
	if taken, err := d.UsernameTaken(ctx, user.Username, user.ID); err == nil && taken {
		return &DuplicateIdentityError{Field: "username"}
	}
	if taken, err := d.EmailTaken(ctx, user.Email, user.ID); err == nil && taken {
		return &DuplicateIdentityError{Field: "email"}
	}
	return &DuplicateIdentityError{}
}
