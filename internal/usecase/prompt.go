package usecase

import (
	"fmt"
	"strconv"
	"strings"

	"warehouse-wizard/internal/domain"
)

// CompletionMarker is appended by the assistant once every attribute is known.
const CompletionMarker = "[CONFIGURATION_COMPLETE]"

var fieldLabels = map[domain.Field]string{
	domain.FieldHeight:      "height (meters)",
	domain.FieldLength:      "length (meters)",
	domain.FieldWidth:       "width (meters)",
	domain.FieldPalletType:  "pallet type",
	domain.FieldStorage:     "storage capacity (number of pallets)",
	domain.FieldStorageType: "storage type",
}

func buildDialogueMessages(pinnedPrompt string, known domain.Attributes, history []domain.Message) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: buildPolicyPrompt(pinnedPrompt)},
		{Role: domain.RoleSystem, Content: buildKnownAttributesPrompt(known)},
	}
	for _, m := range history {
		if msg, ok := historyToPromptMessage(m); ok {
			messages = append(messages, msg)
		}
	}
	return messages
}

func buildPolicyPrompt(pinnedPrompt string) string {
	lines := []string{
		"Role:",
		"You are a warehouse design assistant collecting the parameters of a warehouse layout.",
		"",
		"Required Information:",
		"- Warehouse height in meters",
		"- Warehouse length in meters",
		"- Warehouse width in meters",
		"- Pallet type (for example standard, euro, block, stringer, plastic, wooden)",
		"- Storage capacity as a number of pallets",
		"- Storage type (for example rack, drive-in, block stacking)",
		"",
		"Behavior Rules:",
		behaviorRules(),
		"",
		"Completion Contract:",
		completionContract(),
	}
	if p := strings.TrimSpace(pinnedPrompt); p != "" {
		lines = append([]string{p, ""}, lines...)
	}
	return strings.Join(lines, "\n")
}

func behaviorRules() string {
	return strings.Join([]string{
		"1) Ask for one missing item at a time, in the order listed above.",
		"2) Do not ask again for values listed as known.",
		"3) Convert feet to meters when the user gives imperial units.",
		"4) Keep responses short and friendly.",
		"5) If an answer is ambiguous, ask the user to confirm it.",
	}, "\n")
}

func completionContract() string {
	return "When every required item is known, reply with a short summary that states all six values " +
		"(height, length, width, pallet type, capacity, storage type) and end the reply with " + CompletionMarker + ". " +
		"Never use " + CompletionMarker + " before every item is known."
}

func buildKnownAttributesPrompt(known domain.Attributes) string {
	var b strings.Builder
	b.WriteString("Known Attributes:\n")
	for _, f := range domain.PromptOrder {
		fmt.Fprintf(&b, "- %s: %s\n", fieldLabels[f], formatField(known, f))
	}
	if missing := known.Missing(); len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, f := range missing {
			names = append(names, fieldLabels[f])
		}
		fmt.Fprintf(&b, "\nStill Missing: %s", strings.Join(names, ", "))
	} else {
		b.WriteString("\nStill Missing: nothing")
	}
	return b.String()
}

func buildExtractionMessages(summary string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{
			Role: domain.RoleSystem,
			Content: "Extract the warehouse configuration from the summary. " +
				"Return dimensions in meters, capacity as a whole number of pallets, " +
				"and pallet_type and storage_type as short lower-case names.",
		},
		{Role: domain.RoleUser, Content: normalizePromptInput(summary)},
	}
}

func historyToPromptMessage(m domain.Message) (domain.ChatMessage, bool) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return domain.ChatMessage{}, false
	}
	switch m.Origin {
	case domain.OriginUser:
		return domain.ChatMessage{Role: domain.RoleUser, Content: text}, true
	case domain.OriginAssistant:
		return domain.ChatMessage{Role: domain.RoleAssistant, Content: text}, true
	}
	return domain.ChatMessage{}, false
}

func formatField(a domain.Attributes, f domain.Field) string {
	switch f {
	case domain.FieldLength:
		return formatFloat(a.Length)
	case domain.FieldWidth:
		return formatFloat(a.Width)
	case domain.FieldHeight:
		return formatFloat(a.Height)
	case domain.FieldPalletType:
		return formatString(a.PalletType)
	case domain.FieldStorage:
		if a.Storage == nil {
			return "unknown"
		}
		return strconv.Itoa(*a.Storage)
	case domain.FieldStorageType:
		return formatString(a.StorageType)
	}
	return "unknown"
}

func formatFloat(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatString(v *string) string {
	if v == nil {
		return "unknown"
	}
	return *v
}

func normalizePromptInput(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
