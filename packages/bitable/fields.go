package bitable

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Bitable field type identifiers (subset used by the test runner).
const (
	FieldTypeText         = 1
	FieldTypeNumber       = 2
	FieldTypeSingleSelect = 3
)

// Field describes one column of a table.
type Field struct {
	ID   string `json:"field_id"`
	Name string `json:"field_name"`
	Type int    `json:"type"`
}

// ListFields returns the table's column schema.
func (c *Client) ListFields(ctx context.Context, tableID string) ([]Field, error) {
	endpoint := fmt.Sprintf("/open-apis/bitable/v1/apps/%s/tables/%s/fields", c.cfg.AppToken, tableID)
	data, err := c.call(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []Field `json:"items"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("bitable: decoding fields: %w", err)
	}
	return payload.Items, nil
}

// CreateField adds a column. Property carries type-specific options,
// e.g. select choices; it may be nil.
func (c *Client) CreateField(ctx context.Context, tableID, name string, fieldType int, property map[string]any) (*Field, error) {
	body := map[string]any{
		"field_name": name,
		"type":       fieldType,
	}
	if property != nil {
		body["property"] = property
	}

	endpoint := fmt.Sprintf("/open-apis/bitable/v1/apps/%s/tables/%s/fields", c.cfg.AppToken, tableID)
	data, err := c.call(ctx, http.MethodPost, endpoint, nil, body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Field Field `json:"field"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("bitable: decoding created field: %w", err)
	}
	c.log.WithField("field", name).Info("created field")
	return &payload.Field, nil
}

// UpdateField renames a column or replaces its property.
func (c *Client) UpdateField(ctx context.Context, tableID, fieldID string, name string, property map[string]any) error {
	body := map[string]any{}
	if name != "" {
		body["field_name"] = name
	}
	if property != nil {
		body["property"] = property
	}
	if len(body) == 0 {
		return fmt.Errorf("bitable: update field: nothing to change")
	}

	endpoint := fmt.Sprintf("/open-apis/bitable/v1/apps/%s/tables/%s/fields/%s", c.cfg.AppToken, tableID, fieldID)
	_, err := c.call(ctx, http.MethodPut, endpoint, nil, body)
	return err
}

// DeleteField removes a column. Irreversible.
func (c *Client) DeleteField(ctx context.Context, tableID, fieldID string) error {
	endpoint := fmt.Sprintf("/open-apis/bitable/v1/apps/%s/tables/%s/fields/%s", c.cfg.AppToken, tableID, fieldID)
	_, err := c.call(ctx, http.MethodDelete, endpoint, nil, nil)
	return err
}

// EnsureField creates the column if no column with that name exists yet
// and returns the existing or freshly created field either way.
func (c *Client) EnsureField(ctx context.Context, tableID, name string, fieldType int, property map[string]any) (*Field, error) {
	fields, err := c.ListFields(ctx, tableID)
	if err != nil {
		return nil, err
	}
	for i := range fields {
		if fields[i].Name == name {
			return &fields[i], nil
		}
	}
	return c.CreateField(ctx, tableID, name, fieldType, property)
}
