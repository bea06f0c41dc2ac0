package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"trude.com/internal/ledger/domain"
	"trude.com/pkg/xerr"
)

// GetOrCreateUser 首次引用即建档（地址调用方需先小写化）
func (r *Repo) GetOrCreateUser(ctx context.Context, address string) (*domain.User, error) {
	db := r.dbFrom(ctx)

	var u domain.User
	err := db.WithContext(ctx).Where(domain.User{Address: address}).FirstOrCreate(&u).Error
	if err != nil {
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("get or create user failed: %v", err))
	}
	return &u, nil
}

func (r *Repo) FindUserByAddress(ctx context.Context, address string) (*domain.User, error) {
	db := r.dbFrom(ctx)

	var u domain.User
	err := db.WithContext(ctx).Where("address = ?", address).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.New(xerr.RecordNotFound, "用户不存在")
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("find user failed: %v", err))
	}
	return &u, nil
}

func (r *Repo) FindUserByID(ctx context.Context, id int64) (*domain.User, error) {
	db := r.dbFrom(ctx)

	var u domain.User
	err := db.WithContext(ctx).First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.New(xerr.RecordNotFound, "用户不存在")
		}
		return nil, xerr.New(xerr.DbError, fmt.Sprintf("find user failed: %v", err))
	}
	return &u, nil
}
