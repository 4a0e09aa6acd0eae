package recycle

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrRewardNotFound   = errors.New("reward not found")
	ErrConflict         = errors.New("document version conflict")
	ErrDatabase         = errors.New("database error")
	ErrConcurrentUpdate = errors.New("wallet was changed concurrently")
	ErrInconsistent     = errors.New("wallet updated without transaction record")
)

// FailureCode - ошибки пользователя, возвращаются как результат, а не как error
type FailureCode string

const (
	InvalidAmount       FailureCode = "INVALID_AMOUNT"
	InsufficientBalance FailureCode = "INSUFFICIENT_BALANCE"
	InsufficientPoints  FailureCode = "INSUFFICIENT_POINTS"
)
