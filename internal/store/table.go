package store

import (
	"fmt"
	"slices"
	"strings"
)

// Row is one record as read from or written to a tenant-scoped table.
type Row = map[string]any

// Table describes a tenant-scoped table: what may be read, written, searched
// and filtered. Column names never come from callers, only from here.
type Table struct {
	Name     string
	Columns  []string
	Writable []string
	Required []string
	// Search columns are matched case-insensitively by the list "search" param.
	Search       []string
	Filters      []string
	TagColumn    string
	ArrayColumns []string
	OrderBy      string
	// Touch sets updated_at = now() on every update.
	Touch bool
}

// serverManaged fields are silently dropped from input.
var serverManaged = []string{"id", "tenant_id", "created_at", "updated_at"}

// Input validates a decoded JSON body against the table. Unknown fields are
// rejected; when create is set, Required fields must be present and non-empty.
func (t Table) Input(body map[string]any, create bool) (Row, error) {
	out := make(Row, len(body))
	for k, v := range body {
		if slices.Contains(serverManaged, k) {
			continue
		}
		if !slices.Contains(t.Writable, k) {
			return nil, fmt.Errorf("unknown field %q", k)
		}
		if slices.Contains(t.ArrayColumns, k) {
			arr, err := toStrings(v)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			v = arr
		}
		out[k] = v
	}

	if create {
		var missing []string
		for _, f := range t.Required {
			if isBlank(out[f]) {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no writable fields in body")
	}
	return out, nil
}

func toStrings(v any) ([]string, error) {
	switch vv := v.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return vv, nil
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected an array of strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected an array of strings")
	}
}

func isBlank(v any) bool {
	switch vv := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(vv) == ""
	}
	return false
}

var (
	Contacts = Table{
		Name:         "contacts",
		Columns:      []string{"id", "tenant_id", "name", "phone", "email", "company", "tags", "notes", "custom_fields", "created_at", "updated_at"},
		Writable:     []string{"name", "phone", "email", "company", "tags", "notes", "custom_fields"},
		Required:     []string{"phone"},
		Search:       []string{"name", "phone", "email"},
		TagColumn:    "tags",
		ArrayColumns: []string{"tags"},
		OrderBy:      "created_at DESC",
		Touch:        true,
	}

	Conversations = Table{
		Name:     "conversations",
		Columns:  []string{"id", "tenant_id", "contact_id", "phone", "channel", "status", "assigned_to", "last_message_at", "created_at", "updated_at"},
		Writable: []string{"contact_id", "phone", "channel", "status"},
		Required: []string{"phone"},
		Filters:  []string{"status"},
		OrderBy:  "last_message_at DESC NULLS LAST, created_at DESC",
		Touch:    true,
	}

	Messages = Table{
		Name:    "messages",
		Columns: []string{"id", "tenant_id", "conversation_id", "direction", "content", "message_type", "media_url", "status", "created_at"},
		OrderBy: "created_at DESC",
	}

	Deals = Table{
		Name:     "deals",
		Columns:  []string{"id", "tenant_id", "contact_id", "title", "value", "currency", "stage_id", "status", "expected_close_date", "notes", "created_at", "updated_at"},
		Writable: []string{"contact_id", "title", "value", "currency", "stage_id", "status", "expected_close_date", "notes"},
		Required: []string{"title"},
		Filters:  []string{"status", "stage_id"},
		OrderBy:  "created_at DESC",
		Touch:    true,
	}

	Tasks = Table{
		Name:     "tasks",
		Columns:  []string{"id", "tenant_id", "contact_id", "deal_id", "title", "description", "due_date", "status", "priority", "assigned_to", "created_at", "updated_at"},
		Writable: []string{"contact_id", "deal_id", "title", "description", "due_date", "status", "priority", "assigned_to"},
		Required: []string{"title"},
		Filters:  []string{"status"},
		OrderBy:  "due_date ASC NULLS LAST, created_at DESC",
		Touch:    true,
	}

	// Webhooks lists endpoints without their signing secret.
	Webhooks = Table{
		Name:    "webhooks",
		Columns: []string{"id", "name", "url", "events", "enabled", "created_at"},
		OrderBy: "created_at DESC",
	}
)
