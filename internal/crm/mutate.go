package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/simp-lee/crmdesk/internal/collection"
	"github.com/simp-lee/crmdesk/internal/domain"
)

// Create posts a new record of entity and returns the stored record.
func (c *Client) Create(ctx context.Context, entity string, payload collection.Record) (collection.Record, error) {
	data, err := c.do(ctx, http.MethodPost, entityPath(entity), nil, payload)
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

// Update replaces the given attributes of record id.
func (c *Client) Update(ctx context.Context, entity, id string, payload collection.Record) (collection.Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.NewAppError(domain.CodeValidation, "record id is required", nil)
	}
	data, err := c.do(ctx, http.MethodPut, entityPath(entity, id), nil, payload)
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

// Delete removes record id.
func (c *Client) Delete(ctx context.Context, entity, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.NewAppError(domain.CodeValidation, "record id is required", nil)
	}
	_, err := c.do(ctx, http.MethodDelete, entityPath(entity, id), nil, nil)
	return err
}

func decodeRecord(data []byte) (collection.Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return collection.Record{}, nil
	}
	var rec collection.Record
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, domain.NewAppError(domain.CodeUpstream, "crm returned an unreadable record", err)
	}
	return rec, nil
}
