package operations

import (
	"strings"

	"studyhub/profiles/internal/model"
)

// Completion is the outcome of a profile completion check.
type Completion struct {
	IsComplete    bool     `json:"isComplete"`
	MissingFields []string `json:"missingFields,omitempty"`
	Message       string   `json:"message"`
}

// RequiredProfileFields lists the fields a profile needs to be complete, in
// report order. Mentor is optional.
var RequiredProfileFields = []string{"name", "grade", "location", "school", "role", "subjects", "language_preference"}

// EvaluateCompletion is the single definition of profile completeness. Blank
// strings and empty lists count as missing.
func EvaluateCompletion(p model.Profile) Completion {
	present := map[string]bool{
		"name":                !blank(p.Name),
		"grade":               !blank(p.Grade),
		"location":            !blank(p.Location),
		"school":              !blank(p.School),
		"role":                !blank(string(p.Role)),
		"subjects":            anyNonBlank(p.Subjects),
		"language_preference": anyNonBlank(p.LanguagePreference),
	}

	var missing []string
	for _, field := range RequiredProfileFields {
		if !present[field] {
			missing = append(missing, field)
		}
	}
	if len(missing) == 0 {
		return Completion{IsComplete: true, Message: "Profile is complete"}
	}
	return Completion{
		IsComplete:    false,
		MissingFields: missing,
		Message:       "Incomplete profile. Missing fields: " + strings.Join(missing, ", "),
	}
}

func blank(value string) bool {
	return strings.TrimSpace(value) == ""
}

func anyNonBlank(values []string) bool {
	for _, value := range values {
		if !blank(value) {
			return true
		}
	}
	return false
}
