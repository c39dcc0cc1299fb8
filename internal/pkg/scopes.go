package pkg

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/simp-lee/crmdesk/internal/domain"
)

// validFieldName matches only alphanumeric characters and underscores.
var validFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Column maps a CRM attribute to a database column. Numeric columns get
// their filter values parsed as numbers.
type Column struct {
	Name    string
	Numeric bool
}

// Columns maps attribute names to their columns.
type Columns map[string]Column

func (cs Columns) lookup(attr string) (Column, bool) {
	c, ok := cs[attr]
	if !ok || !validFieldName.MatchString(c.Name) {
		return Column{}, false
	}
	return c, true
}

// Paginate returns a GORM scope that applies OFFSET and LIMIT.
func Paginate(p domain.ListParams) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset).Limit(p.MaxSize)
	}
}

// Sort returns a GORM scope that orders by p.OrderBy. Attributes missing from
// columns are silently ignored.
func Sort(p domain.ListParams, columns Columns) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		col, ok := columns.lookup(p.OrderBy)
		if !ok {
			return db
		}
		dir := "asc"
		if p.Order == "desc" {
			dir = "desc"
		}
		return db.Order(col.Name + " " + dir)
	}
}

// TextFilter returns a GORM scope matching text as a case-insensitive
// substring of any of the given columns.
func TextFilter(text string, columns ...string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		text = strings.TrimSpace(text)
		if text == "" || len(columns) == 0 {
			return db
		}
		parts := make([]string, 0, len(columns))
		args := make([]any, 0, len(columns))
		for _, c := range columns {
			if !validFieldName.MatchString(c) {
				continue
			}
			parts = append(parts, "LOWER("+c+") LIKE ?")
			args = append(args, "%"+strings.ToLower(text)+"%")
		}
		if len(parts) == 0 {
			return db
		}
		return db.Where("("+strings.Join(parts, " OR ")+")", args...)
	}
}

// Where returns a GORM scope applying a where tree. Unknown attributes and
// values of the wrong shape are reported through db.AddError as validation
// errors.
func Where(items []domain.Where, columns Columns) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(items) == 0 {
			return db
		}
		sql, args, err := buildClause(domain.Where{Type: domain.WhereAnd, Items: items}, columns)
		if err != nil {
			_ = db.AddError(err)
			return db
		}
		return db.Where(sql, args...)
	}
}

func buildClause(w domain.Where, columns Columns) (string, []any, error) {
	if w.IsGroup() {
		joiner := " AND "
		if w.Type == domain.WhereOr {
			joiner = " OR "
		}
		parts := make([]string, 0, len(w.Items))
		var args []any
		for _, item := range w.Items {
			sql, a, err := buildClause(item, columns)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			args = append(args, a...)
		}
		return "(" + strings.Join(parts, joiner) + ")", args, nil
	}

	col, ok := columns.lookup(w.Attribute)
	if !ok {
		return "", nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("unknown attribute %q", w.Attribute), nil)
	}

	switch w.Type {
	case domain.WhereIsNull:
		return col.Name + " IS NULL", nil, nil
	case domain.WhereIsNotNull:
		return col.Name + " IS NOT NULL", nil, nil
	case domain.WhereIn, domain.WhereNotIn:
		list, err := listValue(w, col)
		if err != nil {
			return "", nil, err
		}
		if len(list) == 0 {
			if w.Type == domain.WhereIn {
				return "1 = 0", nil, nil
			}
			return "1 = 1", nil, nil
		}
		op := " IN ?"
		if w.Type == domain.WhereNotIn {
			op = " NOT IN ?"
		}
		return col.Name + op, []any{list}, nil
	}

	v, err := scalarValue(w, col)
	if err != nil {
		return "", nil, err
	}
	switch w.Type {
	case domain.WhereEquals:
		return col.Name + " = ?", []any{v}, nil
	case domain.WhereNotEquals:
		return col.Name + " <> ?", []any{v}, nil
	case domain.WhereGreaterThan:
		return col.Name + " > ?", []any{v}, nil
	case domain.WhereLessThan:
		return col.Name + " < ?", []any{v}, nil
	case domain.WhereLike:
		return col.Name + " LIKE ?", []any{fmt.Sprint(v)}, nil
	case domain.WhereContains:
		return col.Name + " LIKE ?", []any{"%" + fmt.Sprint(v) + "%"}, nil
	default:
		return "", nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("unsupported type %q", w.Type), nil)
	}
}

func scalarValue(w domain.Where, col Column) (any, error) {
	switch w.Value.(type) {
	case []any, []string:
		return nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("%s on %q expects a single value", w.Type, w.Attribute), nil)
	case nil:
		return nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("%s on %q requires a value", w.Type, w.Attribute), nil)
	}
	if w.Type == domain.WhereLike || w.Type == domain.WhereContains {
		return w.Value, nil
	}
	return coerce(w.Value, col, w.Attribute)
}

func listValue(w domain.Where, col Column) ([]any, error) {
	var raw []any
	switch v := w.Value.(type) {
	case []any:
		raw = v
	case []string:
		raw = toAnySlice(v)
	case nil:
		return nil, nil
	default:
		raw = []any{v}
	}
	out := make([]any, 0, len(raw))
	for _, item := range raw {
		v, err := coerce(item, col, w.Attribute)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// coerce parses string values for numeric columns.
func coerce(v any, col Column, attr string) (any, error) {
	if !col.Numeric {
		return v, nil
	}
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("%q expects a number, got %q", attr, s), err)
	}
	return f, nil
}
