package pkg

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/crmdesk/internal/domain"
)

const (
	defaultMaxSize = 20
	maxWhereDepth  = 4
	maxWhereItems  = 64
)

// ParseListParams reads the CRM list dialect from the query string:
// offset, maxSize, orderBy, order, textFilter, select and where[...].
// maxSize is clamped to limit; malformed values are validation errors.
func ParseListParams(c *gin.Context, limit int) (domain.ListParams, error) {
	if limit < 1 {
		limit = defaultMaxSize
	}
	p := domain.ListParams{
		MaxSize: min(defaultMaxSize, limit),
		Order:   "asc",
	}

	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, domain.NewAppError(domain.CodeValidation, "offset must be a non-negative integer", err)
		}
		p.Offset = n
	}
	if raw := c.Query("maxSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, domain.NewAppError(domain.CodeValidation, "maxSize must be a positive integer", err)
		}
		p.MaxSize = min(n, limit)
	}

	p.OrderBy = strings.TrimSpace(c.Query("orderBy"))
	switch order := strings.ToLower(strings.TrimSpace(c.Query("order"))); order {
	case "", "asc":
	case "desc":
		p.Order = "desc"
	default:
		return p, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("order must be asc or desc, got %q", order), nil)
	}

	p.TextFilter = strings.TrimSpace(c.Query("textFilter"))
	p.Select = splitSelect(c.Query("select"))

	where, err := ParseWhere(c.Request.URL.Query())
	if err != nil {
		return p, err
	}
	p.Where = where
	return p, nil
}

func splitSelect(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// whereNode is one bracket level of a where[...] parameter tree.
type whereNode struct {
	values   []string
	list     bool
	children map[string]*whereNode
}

func (n *whereNode) child(key string) *whereNode {
	if n.children == nil {
		n.children = make(map[string]*whereNode)
	}
	c, ok := n.children[key]
	if !ok {
		c = &whereNode{}
		n.children[key] = c
	}
	return c
}

func (n *whereNode) scalar(key string) string {
	c, ok := n.children[key]
	if !ok || len(c.values) == 0 {
		return ""
	}
	return c.values[0]
}

// ParseWhere decodes bracketed where parameters such as
// where[0][type]=in&where[0][attribute]=status&where[0][value][]=Active.
// Groups ("and", "or") list their items under [value][i]. The result is
// validated with domain.ValidateWhere.
func ParseWhere(values url.Values) ([]domain.Where, error) {
	root := &whereNode{}
	found := false
	for key, vals := range values {
		if !strings.HasPrefix(key, "where[") {
			continue
		}
		segs, err := splitBrackets(strings.TrimPrefix(key, "where"))
		if err != nil {
			return nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("malformed parameter %q", key), err)
		}
		if len(segs) > 2*maxWhereDepth+2 {
			return nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("parameter %q is nested too deeply", key), nil)
		}
		node := root
		for i, seg := range segs {
			if seg == "" {
				if i != len(segs)-1 {
					return nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("malformed parameter %q", key), nil)
				}
				node.list = true
				continue
			}
			node = node.child(seg)
		}
		node.values = append(node.values, vals...)
		found = true
	}
	if !found {
		return nil, nil
	}

	items, err := buildWhereItems(root, "where", 0)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateWhere(items); err != nil {
		return nil, err
	}
	return items, nil
}

// splitBrackets turns "[0][value][]" into ["0", "value", ""].
func splitBrackets(s string) ([]string, error) {
	var segs []string
	for s != "" {
		if s[0] != '[' {
			return nil, fmt.Errorf("expected '[' at %q", s)
		}
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return nil, fmt.Errorf("unterminated bracket in %q", s)
		}
		segs = append(segs, s[1:end])
		s = s[end+1:]
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("missing index")
	}
	return segs, nil
}

func buildWhereItems(n *whereNode, path string, depth int) ([]domain.Where, error) {
	if depth > maxWhereDepth {
		return nil, domain.NewAppError(domain.CodeValidation, path+": nested too deeply", nil)
	}
	children, err := indexedChildren(n, path)
	if err != nil {
		return nil, err
	}
	if len(children) > maxWhereItems {
		return nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("%s: at most %d items", path, maxWhereItems), nil)
	}

	items := make([]domain.Where, 0, len(children))
	for i, c := range children {
		item, err := buildWhere(c, fmt.Sprintf("%s[%d]", path, i), depth)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func buildWhere(n *whereNode, path string, depth int) (domain.Where, error) {
	w := domain.Where{
		Type:      n.scalar("type"),
		Attribute: n.scalar("attribute"),
	}
	value, ok := n.children["value"]
	if !ok {
		return w, nil
	}

	if w.IsGroup() {
		items, err := buildWhereItems(value, path+"[value]", depth+1)
		if err != nil {
			return w, err
		}
		w.Items = items
		return w, nil
	}

	switch {
	case value.list:
		w.Value = toAnySlice(value.values)
	case len(value.children) > 0:
		children, err := indexedChildren(value, path+"[value]")
		if err != nil {
			return w, err
		}
		list := make([]string, 0, len(children))
		for _, c := range children {
			list = append(list, c.values...)
		}
		w.Value = toAnySlice(list)
	case len(value.values) > 0:
		w.Value = value.values[0]
	}
	return w, nil
}

// indexedChildren returns n's children ordered by their numeric keys.
func indexedChildren(n *whereNode, path string) ([]*whereNode, error) {
	type indexed struct {
		i    int
		node *whereNode
	}
	list := make([]indexed, 0, len(n.children))
	seen := make(map[int]string, len(n.children))
	for k, c := range n.children {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 {
			return nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("%s: invalid index %q", path, k), nil)
		}
		if prev, dup := seen[i]; dup {
			return nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("%s: indexes %q and %q collide", path, prev, k), nil)
		}
		seen[i] = k
		list = append(list, indexed{i, c})
	}
	slices.SortFunc(list, func(a, b indexed) int { return a.i - b.i })

	out := make([]*whereNode, len(list))
	for j, e := range list {
		out[j] = e.node
	}
	return out, nil
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
