package service

import (
	"errors"

	"github.com/ZiyodullaSodiqov/anyChat/internal/store"
)

// 业务层通用错误，handler 可根据错误类型映射到合适的 HTTP 状态码。
var (
	ErrRoomNotFound  = store.ErrNotFound
	ErrDuplicateCode = store.ErrDuplicateCode
	ErrInvalidName   = errors.New("name is required")
	ErrInvalidLimit  = errors.New("limit must be a positive integer")
)
