package recycle

import "strings"

// Коллекции хранилища
const (
	Users        = "users"
	Transactions = "transactions"
	TrashTypes   = "trash_types"
	Booths       = "booths"
	Rewards      = "rewards"
)

// Document - документ хранилища без привязки к конкретной БД.
// Version увеличивается при каждой записи, у старых документов без версии он равен 0.
type Document struct {
	ID      string
	Version int64
	Fields  map[string]any
}

type Op string

const (
	OpEq Op = "=="
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

type Order struct {
	Field string
	Desc  bool
}

// Query - выборка по полям с сортировкой и лимитом
type Query struct {
	Where   []Filter
	OrderBy []Order
	Limit   int
}

// Where - выборка по равенству поля
func Where(field string, value any) Query {
	return Query{Where: []Filter{{Field: field, Op: OpEq, Value: value}}}
}

// GetPath возвращает значение по пути вида "balance.cash"
func GetPath(fields map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = fields
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetPath записывает значение по пути вида "balance.cash", создавая вложенные объекты
func SetPath(fields map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := fields
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// Match проверяет документ на соответствие условиям выборки
func (q Query) Match(fields map[string]any) bool {
	for _, f := range q.Where {
		v, ok := GetPath(fields, f.Field)
		if !ok {
			return false
		}
		if ToString(v) != ToString(f.Value) {
			return false
		}
	}
	return true
}
