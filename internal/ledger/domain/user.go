package domain

import (
	"context"
	"time"
)

// User 首次被引用时创建（入金、推荐注册），从不删除
type User struct {
	ID        int64
	Address   string `gorm:"uniqueIndex;size:42"` // 小写化的 0x 地址
	CreatedAt time.Time
}

type UserRepo interface {
	// GetOrCreateUser 不存在则创建（地址需已小写化）
	GetOrCreateUser(ctx context.Context, address string) (*User, error)
	FindUserByAddress(ctx context.Context, address string) (*User, error)
	FindUserByID(ctx context.Context, id int64) (*User, error)
}
