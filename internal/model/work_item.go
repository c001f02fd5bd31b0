package model

import "time"

type WorkItem struct {
	ID            int64     `json:"id"`
	OrgID         int64     `json:"org_id"`
	CategoryID    *int64    `json:"category_id,omitempty"`
	Title         string    `json:"title"`
	Description   *string   `json:"description,omitempty"`
	Status        *string   `json:"status,omitempty"`
	Priority      *string   `json:"priority,omitempty"`
	ExternalDocID *string   `json:"doc_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Category struct {
	ID           int64   `json:"id"`
	OrgID        int64   `json:"org_id"`
	Name         string  `json:"name"`
	KeyName      string  `json:"key_name"`
	ExternalTool *string `json:"external_tool,omitempty"`
}

type CustomFieldDataType string

const (
	CustomFieldText    CustomFieldDataType = "text"
	CustomFieldNumber  CustomFieldDataType = "number"
	CustomFieldBoolean CustomFieldDataType = "boolean"
	CustomFieldEnum    CustomFieldDataType = "enum"
)

// CustomFieldMeta is the definition of a custom field within a category.
type CustomFieldMeta struct {
	ID          int64               `json:"id"`
	CategoryID  int64               `json:"category_id"`
	KeyName     string              `json:"key_name"`
	Name        string              `json:"name"`
	DataType    CustomFieldDataType `json:"data_type"`
	Description *string             `json:"description,omitempty"`
	Enums       []string            `json:"enums,omitempty"`
}
