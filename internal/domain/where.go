package domain

import (
	"fmt"
	"strings"
)

// Where item types understood by the CRM list endpoint.
const (
	WhereEquals      = "equals"
	WhereNotEquals   = "notEquals"
	WhereLike        = "like"
	WhereContains    = "contains"
	WhereIn          = "in"
	WhereNotIn       = "notIn"
	WhereGreaterThan = "greaterThan"
	WhereLessThan    = "lessThan"
	WhereIsNull      = "isNull"
	WhereIsNotNull   = "isNotNull"
	WhereAnd         = "and"
	WhereOr          = "or"
)

// Where is one node of a structured filter tree. Leaf nodes compare
// Attribute against Value; "and"/"or" nodes combine Items.
type Where struct {
	Type      string  `json:"type" binding:"required"`
	Attribute string  `json:"attribute,omitempty"`
	Value     any     `json:"value,omitempty"`
	Items     []Where `json:"items,omitempty"`
}

// IsGroup reports whether w combines child items.
func (w Where) IsGroup() bool {
	return w.Type == WhereAnd || w.Type == WhereOr
}

// ValidateWhere checks a filter tree for unknown types, missing attributes,
// and empty groups.
func ValidateWhere(items []Where) error {
	for i, w := range items {
		if err := validateWhere(w, fmt.Sprintf("where[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func validateWhere(w Where, path string) error {
	switch w.Type {
	case WhereAnd, WhereOr:
		if len(w.Items) == 0 {
			return NewAppError(CodeValidation, path+": group requires items", nil)
		}
		for i, child := range w.Items {
			if err := validateWhere(child, fmt.Sprintf("%s[items][%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case WhereEquals, WhereNotEquals, WhereLike, WhereContains, WhereIn, WhereNotIn,
		WhereGreaterThan, WhereLessThan, WhereIsNull, WhereIsNotNull:
		if strings.TrimSpace(w.Attribute) == "" {
			return NewAppError(CodeValidation, path+": attribute is required", nil)
		}
		return nil
	default:
		return NewAppError(CodeValidation, fmt.Sprintf("%s: unsupported type %q", path, w.Type), nil)
	}
}
