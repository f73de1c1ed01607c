package usecase

import "warehouse-wizard/internal/domain"

const allKnownReply = "Thanks! I have everything I need. Generating your warehouse layout now."

var fallbackQuestions = map[domain.Field]string{
	domain.FieldHeight:      "What's the height requirement for your warehouse, in meters?",
	domain.FieldLength:      "How long is the warehouse floor, in meters?",
	domain.FieldWidth:       "How wide is the warehouse floor, in meters?",
	domain.FieldPalletType:  "What type of pallets will you use (for example standard, euro or plastic)?",
	domain.FieldStorage:     "How many pallets do you need to store in total?",
	domain.FieldStorageType: "Which storage type do you prefer (for example rack, drive-in or block stacking)?",
}

// NextQuestion returns the question for the first unset field in prompt
// order, or a closing message when the record is complete.
func NextQuestion(a domain.Attributes) string {
	missing := a.Missing()
	if len(missing) == 0 {
		return allKnownReply
	}
	return fallbackQuestions[missing[0]]
}
