package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/simp-lee/crmdesk/internal/collection"
	"github.com/simp-lee/crmdesk/internal/domain"
)

type listResponse struct {
	List  []collection.Record `json:"list"`
	Total int                 `json:"total"`
}

// FetchPage loads one page of q.Entity. It satisfies collection.Fetcher.
func (c *Client) FetchPage(ctx context.Context, q collection.Query) (collection.Page, error) {
	if q.Entity == "" {
		return collection.Page{}, domain.NewAppError(domain.CodeValidation, "entity is required", nil)
	}
	data, err := c.do(ctx, http.MethodGet, entityPath(q.Entity), ListValues(q), nil)
	if err != nil {
		return collection.Page{}, err
	}

	var out listResponse
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return collection.Page{}, domain.NewAppError(domain.CodeUpstream, "crm returned an unreadable list", err)
	}
	if out.List == nil {
		out.List = []collection.Record{}
	}
	return collection.Page{Records: out.List, Total: out.Total}, nil
}

// ListValues encodes q in the CRM list dialect.
func ListValues(q collection.Query) url.Values {
	v := url.Values{}
	v.Set("offset", strconv.Itoa(q.Offset))
	v.Set("maxSize", strconv.Itoa(q.PageSize))
	if !q.Sort.IsZero() {
		v.Set("orderBy", q.Sort.Key)
		v.Set("order", string(q.Sort.Direction))
	}
	if q.SearchText != "" {
		v.Set("textFilter", q.SearchText)
	}
	if len(q.Select) > 0 {
		v.Set("select", strings.Join(q.Select, ","))
	}
	for i, w := range q.Where {
		encodeWhere(v, fmt.Sprintf("where[%d]", i), w)
	}
	return v
}

// encodeWhere writes w under prefix. Groups nest their items as an indexed
// value array; list values use the "[]" suffix.
func encodeWhere(v url.Values, prefix string, w domain.Where) {
	v.Set(prefix+"[type]", w.Type)
	if w.Attribute != "" {
		v.Set(prefix+"[attribute]", w.Attribute)
	}
	if w.IsGroup() {
		for i, item := range w.Items {
			encodeWhere(v, fmt.Sprintf("%s[value][%d]", prefix, i), item)
		}
		return
	}
	switch w.Type {
	case domain.WhereIsNull, domain.WhereIsNotNull:
		return
	}
	switch val := w.Value.(type) {
	case nil:
	case []any:
		for _, item := range val {
			v.Add(prefix+"[value][]", formatScalar(item))
		}
	case []string:
		for _, item := range val {
			v.Add(prefix+"[value][]", item)
		}
	default:
		v.Set(prefix+"[value]", formatScalar(val))
	}
}

func formatScalar(val any) string {
	switch x := val.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
