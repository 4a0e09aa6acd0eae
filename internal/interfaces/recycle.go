package recycle

import (
	"context"

	model "github.com/glkeru/recycle/internal/models"
)

//go:generate mockgen -destination=./../services/mock_store_test.go -package=recycle . DocumentStore

// DocumentStore - документное хранилище: users, transactions, trash_types, booths, rewards
type DocumentStore interface {
	Get(ctx context.Context, collection string, id string) (model.Document, error)
	Query(ctx context.Context, collection string, q model.Query) ([]model.Document, error)
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	Set(ctx context.Context, collection string, id string, fields map[string]any) error
	Update(ctx context.Context, collection string, id string, fields map[string]any) error
	UpdateIfVersion(ctx context.Context, collection string, id string, version int64, fields map[string]any) error
	Delete(ctx context.Context, collection string, id string) error
}

// Transactor - хранилище с собственными транзакциями на несколько документов.
// Transactional()=false: WithTx выполняет fn без отката
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx DocumentStore) error) error
	Transactional() bool
}

// MemberLocker - один писатель на кошелек
type MemberLocker interface {
	Lock(ctx context.Context, memberID string) (unlock func(), err error)
}

// EventPublisher - публикация проведенных транзакций
type EventPublisher interface {
	Publish(ctx context.Context, tnx model.Transaction) error
}
