// Package a2ui turns agent narrative and raw tool payloads into typed,
// deduplicated UI components. The component shapes and the intent mapping
// are a fixed contract with the rendering client; only the reconciliation
// narrative is oracle-derived.
package a2ui

// ComponentType discriminates the fixed set of renderable shapes.
type ComponentType string

const (
	TypeTableCard  ComponentType = "table_card"
	TypeCardList   ComponentType = "card_list"
	TypeStatusCard ComponentType = "status_card"
	TypeFormCard   ComponentType = "form_card"
	TypeInfoCard   ComponentType = "info_card"
)

// Component is one renderable UI element. Which fields are populated
// depends on Type; unset fields are omitted from the wire form.
type Component struct {
	Type        ComponentType `json:"type"`
	Title       string        `json:"title,omitempty"`
	Status      string        `json:"status,omitempty"`
	Description string        `json:"description,omitempty"`
	Color       string        `json:"color,omitempty"`
	Icon        string        `json:"icon,omitempty"`

	// table_card
	Columns []string `json:"columns,omitempty"`
	Rows    [][]any  `json:"rows,omitempty"`

	// card_list
	Cards []Component `json:"cards,omitempty"`

	// form_card, fields passed through verbatim
	Fields      []map[string]any `json:"fields,omitempty"`
	SubmitLabel string           `json:"submit_label,omitempty"`

	// info_card
	Pairs []Pair `json:"pairs,omitempty"`
}

// Pair is one labeled value on an info_card.
type Pair struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type statusStyle struct {
	color string
	icon  string
}

// statusStyles is the fixed claim-status presentation table.
var statusStyles = map[string]statusStyle{
	"DRAFT":              {"gray", "📝"},
	"UNDER_AGENT_REVIEW": {"blue", "🤖"},
	"PENDING_APPROVAL":   {"yellow", "⏳"},
	"NEEDS_MORE_INFO":    {"orange", "❓"},
	"APPROVED":           {"green", "✅"},
	"REJECTED":           {"red", "❌"},
}

// StatusColor returns the presentation color for a claim status, defaulting
// to gray for unknown statuses.
func StatusColor(status string) string {
	if s, ok := statusStyles[status]; ok {
		return s.color
	}
	return "gray"
}

// StatusIcon returns the presentation icon for a claim status, defaulting
// to the draft icon for unknown statuses.
func StatusIcon(status string) string {
	if s, ok := statusStyles[status]; ok {
		return s.icon
	}
	return "📝"
}
