package recycle

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	interf "github.com/glkeru/recycle/internal/interfaces"
	model "github.com/glkeru/recycle/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	version BIGINT NOT NULL DEFAULT 0,
	doc JSONB NOT NULL,
	PRIMARY KEY (collection, id)
)`

// общий интерфейс пула и транзакции
type pgRunner interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore - документы в JSONB таблице
type PostgresStore struct {
	pool   *pgxpool.Pool
	run    pgRunner
	inTx   bool
	logger *zap.Logger
}

func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("config postgres.dsn is not set")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	_, err = pool.Exec(ctx, postgresSchema)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, run: pool, logger: logger}, nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresStore) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func (p *PostgresStore) logSQL(service string, query string, args []any, err error) {
	p.logger.Error("SQL error",
		zap.String("service", service),
		zap.Error(err),
		zap.String("query", query),
		zap.Any("args", args),
	)
}

func (p *PostgresStore) Get(ctx context.Context, collection string, id string) (model.Document, error) {
	sel := p.builder().Select("version", "doc").
		From(documentsTable).
		Where(sq.Eq{"collection": collection, "id": id})
	// внутри транзакции документ блокируется до коммита
	if p.inTx {
		sel = sel.Suffix("FOR UPDATE")
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return model.Document{}, err
	}

	var version int64
	var raw pgtype.JSONB
	err = p.run.QueryRow(ctx, query, args...).Scan(&version, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Document{}, fmt.Errorf("%s/%s %w", collection, id, model.ErrNotFound)
		}
		p.logSQL("Get", query, args, err)
		return model.Document{}, err
	}
	fields, err := decodeDoc(raw.Bytes)
	if err != nil {
		return model.Document{}, err
	}
	return model.Document{ID: id, Version: version, Fields: fields}, nil
}

func (p *PostgresStore) Query(ctx context.Context, collection string, q model.Query) ([]model.Document, error) {
	err := checkFields(q)
	if err != nil {
		return nil, err
	}
	sel := p.builder().Select("id", "version", "doc").
		From(documentsTable).
		Where(sq.Eq{"collection": collection})
	for _, f := range q.Where {
		sel = sel.Where(fmt.Sprintf("doc #>> %s = ?", pgPath(f.Field)), model.ToString(f.Value))
	}
	for _, o := range q.OrderBy {
		sel = sel.OrderBy(fmt.Sprintf("doc #> %s %s NULLS LAST", pgPath(o.Field), direction(o)))
	}
	sel = sel.OrderBy("id ASC")
	if q.Limit > 0 {
		sel = sel.Limit(uint64(q.Limit))
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := p.run.Query(ctx, query, args...)
	if err != nil {
		p.logSQL("Query", query, args, err)
		return nil, err
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var doc model.Document
		var raw pgtype.JSONB
		err = rows.Scan(&doc.ID, &doc.Version, &raw)
		if err != nil {
			return nil, err
		}
		doc.Fields, err = decodeDoc(raw.Bytes)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (p *PostgresStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	raw, err := encodeDoc(stripReserved(fields))
	if err != nil {
		return "", err
	}
	query, args, err := p.builder().Insert(documentsTable).
		Columns("collection", "id", "version", "doc").
		Values(collection, id, 0, sq.Expr("?::jsonb", string(raw))).
		ToSql()
	if err != nil {
		return "", err
	}
	_, err = p.run.Exec(ctx, query, args...)
	if err != nil {
		p.logSQL("Create", query, args, err)
		return "", err
	}
	return id, nil
}

func (p *PostgresStore) Set(ctx context.Context, collection string, id string, fields map[string]any) error {
	raw, err := encodeDoc(stripReserved(fields))
	if err != nil {
		return err
	}
	query, args, err := p.builder().Insert(documentsTable).
		Columns("collection", "id", "version", "doc").
		Values(collection, id, 0, sq.Expr("?::jsonb", string(raw))).
		Suffix("ON CONFLICT (collection, id) DO UPDATE SET doc = excluded.doc, version = documents.version + 1").
		ToSql()
	if err != nil {
		return err
	}
	_, err = p.run.Exec(ctx, query, args...)
	if err != nil {
		p.logSQL("Set", query, args, err)
		return err
	}
	return nil
}

func (p *PostgresStore) Update(ctx context.Context, collection string, id string, fields map[string]any) error {
	return p.update(ctx, collection, id, -1, fields)
}

func (p *PostgresStore) UpdateIfVersion(ctx context.Context, collection string, id string, version int64, fields map[string]any) error {
	return p.update(ctx, collection, id, version, fields)
}

// update - чтение и запись документа с условием на версию. expected < 0: без проверки
func (p *PostgresStore) update(ctx context.Context, collection string, id string, expected int64, fields map[string]any) error {
	doc, err := p.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	if expected >= 0 && doc.Version != expected {
		return fmt.Errorf("%s/%s: %w", collection, id, model.ErrConflict)
	}
	raw, err := encodeDoc(applyFields(doc.Fields, stripReserved(fields)))
	if err != nil {
		return err
	}
	query, args, err := p.builder().Update(documentsTable).
		Set("doc", sq.Expr("?::jsonb", string(raw))).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"collection": collection, "id": id, "version": doc.Version}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := p.run.Exec(ctx, query, args...)
	if err != nil {
		p.logSQL("Update", query, args, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, model.ErrConflict)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, collection string, id string) error {
	query, args, err := p.builder().Delete(documentsTable).
		Where(sq.Eq{"collection": collection, "id": id}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := p.run.Exec(ctx, query, args...)
	if err != nil {
		p.logSQL("Delete", query, args, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s %w", collection, id, model.ErrNotFound)
	}
	return nil
}

// WithTx - транзакция pgx, документы кошелька блокируются SELECT ... FOR UPDATE
func (p *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx interf.DocumentStore) error) (err error) {
	if p.inTx {
		return fn(ctx, p)
	}
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()
	err = fn(ctx, &PostgresStore{pool: p.pool, run: tx, inTx: true, logger: p.logger})
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *PostgresStore) Transactional() bool {
	return true
}
