package social

import (
	"context"
	"errors"
	"fmt"

	"github.com/ft-transcendence/server/model"
	"gorm.io/gorm"
)

// Directory looks up user aggregates. Every lookup eagerly loads the
// user's relations, notifications and chat memberships together with
// their cross-references; the relation service depends on those
// collections being populated before it validates anything.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) scope(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx).
		Preload("Relations.PassiveUser").
		Preload("Notifications.SourceUser").
		Preload("Chats.Members")
}

// FindByEmail returns nil, nil when no user has that email.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := d.scope(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find by email: %v", ErrInternal, err)
	}
	return &u, nil
}

// FindByNick returns nil, nil when no user has that nickname.
func (d *Directory) FindByNick(ctx context.Context, nick string) (*model.User, error) {
	var u model.User
	err := d.scope(ctx).Where("nick = ?", nick).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find by nick: %v", ErrInternal, err)
	}
	return &u, nil
}

// FindByID fails with ErrNotFound when the user is absent.
func (d *Directory) FindByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := d.scope(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find by id: %v", ErrInternal, err)
	}
	return &u, nil
}

func (d *Directory) ExistsByNick(ctx context.Context, nick string) (bool, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&model.User{}).Where("nick = ?", nick).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("%w: exists by nick: %v", ErrInternal, err)
	}
	return n > 0, nil
}
