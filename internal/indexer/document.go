package indexer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"worktrack.app/relay/internal/docstore"
	"worktrack.app/relay/internal/model"
)

const untitled = "Untitled"

// BuildDocument renders a work item projection as the plain-text document sent to the
// index. Custom fields are listed in key order so the same projection always renders
// the same content.
func BuildDocument(p model.Projection) docstore.Document {
	title := p.WorkItem.Title
	if title == "" {
		title = untitled
	}
	description := ""
	if p.WorkItem.Description != nil {
		description = *p.WorkItem.Description
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Work Item: %s\n\n", title)

	if description != "" {
		fmt.Fprintf(&b, "Description:\n%s\n\n", description)
	}

	if p.Category != nil && p.Category.Name != "" {
		fmt.Fprintf(&b, "Category:\n%s\n\n", p.Category.Name)
	}

	keys := make([]string, 0, len(p.CustomFields))
	for k, v := range p.CustomFields {
		if v != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		b.WriteString("Custom Fields:\n")
		for _, k := range keys {
			value := formatValue(p.CustomFields[k])
			if meta, ok := p.CustomFieldsMetadata[k]; ok && meta.Description != nil && *meta.Description != "" {
				fmt.Fprintf(&b, "- %s (%s): %s\n", k, *meta.Description, value)
			} else {
				fmt.Fprintf(&b, "- %s: %s\n", k, value)
			}
		}
	}

	return docstore.Document{
		Title:       title,
		Description: description,
		Content:     strings.TrimSpace(b.String()),
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
