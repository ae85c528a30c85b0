package option

import "gorm.io/gorm"

// QueryOption adjusts a query built by the generic repository.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type optionFunc func(db *gorm.DB) *gorm.DB

func (f optionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

func WithOrder(order string) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB { return db.Order(order) })
}

func WithLimit(limit int) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB { return db.Limit(limit) })
}

func WithIDs[T any](ids []T) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB { return db.Where("id IN ?", ids) })
}
