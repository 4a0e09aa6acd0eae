package recycle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	model "github.com/glkeru/recycle/internal/models"
)

// общие функции для хранилищ, где документ лежит в JSON колонке

const documentsTable = "documents"

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// имена полей попадают в текст SQL, поэтому проверяются
func checkFields(q model.Query) error {
	for _, f := range q.Where {
		if !fieldName.MatchString(f.Field) {
			return fmt.Errorf("invalid field name %q", f.Field)
		}
		if f.Op != model.OpEq {
			return fmt.Errorf("unsupported operator %q", f.Op)
		}
	}
	for _, o := range q.OrderBy {
		if !fieldName.MatchString(o.Field) {
			return fmt.Errorf("invalid field name %q", o.Field)
		}
	}
	return nil
}

func decodeDoc(raw []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(raw) == 0 {
		return fields, nil
	}
	err := json.Unmarshal(raw, &fields)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}

func encodeDoc(fields map[string]any) ([]byte, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return raw, nil
}

// applyFields - частичное обновление с путями вида "balance.cash"
func applyFields(doc map[string]any, fields map[string]any) map[string]any {
	for k, v := range fields {
		model.SetPath(doc, k, v)
	}
	return doc
}

// stripReserved - служебные поля хранятся в колонках, а не в документе
func stripReserved(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "id" || k == "version" {
			continue
		}
		out[k] = v
	}
	return out
}

func direction(o model.Order) string {
	if o.Desc {
		return "DESC"
	}
	return "ASC"
}

// jsonPath - "balance.cash" -> "$.balance.cash" (sqlite)
func jsonPath(field string) string {
	return "$." + field
}

// pgPath - "balance.cash" -> '{balance,cash}' (postgres)
func pgPath(field string) string {
	return "'{" + strings.ReplaceAll(field, ".", ",") + "}'"
}
