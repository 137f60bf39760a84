package repository

import (
	"errors"
	"fmt"

	"github.com/okian/leadflow/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound = fmt.Errorf("record %w", model.ErrNotFound)
	ErrConflict = errors.New("record conflicts with an existing one")
)
