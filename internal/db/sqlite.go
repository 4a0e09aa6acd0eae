package recycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	interf "github.com/glkeru/recycle/internal/interfaces"
	model "github.com/glkeru/recycle/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 0,
	doc TEXT NOT NULL,
	PRIMARY KEY (collection, id)
)`

type sqlRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore - встроенное хранилище: локальный запуск и тесты
type SQLiteStore struct {
	db     *sql.DB
	run    sqlRunner
	inTx   bool
	logger *zap.Logger
}

// NewSQLiteStore открывает файл или память ("file:name?mode=memory")
func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("config sqlite.path is not set")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite допускает одного писателя
	db.SetMaxOpenConns(1)
	_, err = db.ExecContext(ctx, sqliteSchema)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, run: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

func (s *SQLiteStore) logSQL(service string, query string, args []any, err error) {
	s.logger.Error("SQL error",
		zap.String("service", service),
		zap.Error(err),
		zap.String("query", query),
		zap.Any("args", args),
	)
}

func (s *SQLiteStore) Get(ctx context.Context, collection string, id string) (model.Document, error) {
	query, args, err := s.builder().Select("version", "doc").
		From(documentsTable).
		Where(sq.Eq{"collection": collection, "id": id}).
		ToSql()
	if err != nil {
		return model.Document{}, err
	}
	var version int64
	var raw string
	err = s.run.QueryRowContext(ctx, query, args...).Scan(&version, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Document{}, fmt.Errorf("%s/%s %w", collection, id, model.ErrNotFound)
		}
		s.logSQL("Get", query, args, err)
		return model.Document{}, err
	}
	fields, err := decodeDoc([]byte(raw))
	if err != nil {
		return model.Document{}, err
	}
	return model.Document{ID: id, Version: version, Fields: fields}, nil
}

func (s *SQLiteStore) Query(ctx context.Context, collection string, q model.Query) ([]model.Document, error) {
	err := checkFields(q)
	if err != nil {
		return nil, err
	}
	sel := s.builder().Select("id", "version", "doc").
		From(documentsTable).
		Where(sq.Eq{"collection": collection})
	for _, f := range q.Where {
		sel = sel.Where("json_extract(doc, ?) = ?", jsonPath(f.Field), f.Value)
	}
	for _, o := range q.OrderBy {
		sel = sel.OrderBy(fmt.Sprintf("json_extract(doc, '%s') %s", jsonPath(o.Field), direction(o)))
	}
	sel = sel.OrderBy("id ASC")
	if q.Limit > 0 {
		sel = sel.Limit(uint64(q.Limit))
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.run.QueryContext(ctx, query, args...)
	if err != nil {
		s.logSQL("Query", query, args, err)
		return nil, err
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var doc model.Document
		var raw string
		err = rows.Scan(&doc.ID, &doc.Version, &raw)
		if err != nil {
			return nil, err
		}
		doc.Fields, err = decodeDoc([]byte(raw))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	raw, err := encodeDoc(stripReserved(fields))
	if err != nil {
		return "", err
	}
	query, args, err := s.builder().Insert(documentsTable).
		Columns("collection", "id", "version", "doc").
		Values(collection, id, 0, string(raw)).
		ToSql()
	if err != nil {
		return "", err
	}
	_, err = s.run.ExecContext(ctx, query, args...)
	if err != nil {
		s.logSQL("Create", query, args, err)
		return "", err
	}
	return id, nil
}

func (s *SQLiteStore) Set(ctx context.Context, collection string, id string, fields map[string]any) error {
	raw, err := encodeDoc(stripReserved(fields))
	if err != nil {
		return err
	}
	query, args, err := s.builder().Insert(documentsTable).
		Columns("collection", "id", "version", "doc").
		Values(collection, id, 0, string(raw)).
		Suffix("ON CONFLICT (collection, id) DO UPDATE SET doc = excluded.doc, version = documents.version + 1").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.run.ExecContext(ctx, query, args...)
	if err != nil {
		s.logSQL("Set", query, args, err)
		return err
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, collection string, id string, fields map[string]any) error {
	return s.update(ctx, collection, id, -1, fields)
}

func (s *SQLiteStore) UpdateIfVersion(ctx context.Context, collection string, id string, version int64, fields map[string]any) error {
	return s.update(ctx, collection, id, version, fields)
}

// update - чтение, изменение и запись с условием на версию.
// expected < 0: без проверки версии со стороны вызывающего
func (s *SQLiteStore) update(ctx context.Context, collection string, id string, expected int64, fields map[string]any) error {
	doc, err := s.Get(ctx, collection, id)
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
	query, args, err := s.builder().Update(documentsTable).
		Set("doc", string(raw)).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"collection": collection, "id": id, "version": doc.Version}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.run.ExecContext(ctx, query, args...)
	if err != nil {
		s.logSQL("Update", query, args, err)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, model.ErrConflict)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, collection string, id string) error {
	query, args, err := s.builder().Delete(documentsTable).
		Where(sq.Eq{"collection": collection, "id": id}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.run.ExecContext(ctx, query, args...)
	if err != nil {
		s.logSQL("Delete", query, args, err)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s/%s %w", collection, id, model.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx interf.DocumentStore) error) (err error) {
	if s.inTx {
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	err = fn(ctx, &SQLiteStore{db: s.db, run: tx, inTx: true, logger: s.logger})
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Transactional() bool {
	return true
}
