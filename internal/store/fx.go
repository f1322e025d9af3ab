package store

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("store",
	fx.Provide(func(db *gorm.DB) (Store, error) {
		return NewGormStore(db)
	}),
)
