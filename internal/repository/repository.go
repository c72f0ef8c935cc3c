package repository

import (
	"github.com/google/uuid"

	"github.com/NamanBalaji/mmsdl/internal/mms"
)

type Repository interface {
	mms.Store
	Find(id uuid.UUID) (*mms.Download, error)
	FindAll() ([]*mms.Download, error)
	Delete(id uuid.UUID) error
	Close() error
}

var _ Repository = (*BboltRepository)(nil)
