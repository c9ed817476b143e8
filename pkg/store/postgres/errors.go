package postgres

import (
	"errors"

	"gorm.io/gorm"

	"github.com/courselab/courselab/pkg/store"
)

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}
