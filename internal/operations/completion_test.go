package operations

import (
	"reflect"
	"strings"
	"testing"

	"studyhub/profiles/internal/model"
)

func fullProfile() model.Profile {
	return model.Profile{
		ID:                 "u1",
		Name:               "Ada",
		Grade:              "10",
		Location:           "London",
		School:             "Hill School",
		Role:               model.RoleStudent,
		Subjects:           []string{"math"},
		LanguagePreference: []string{"en"},
	}
}

// clearField blanks one required field. Odd iterations use whitespace or a
// blank list element instead of the zero value.
func clearField(p *model.Profile, field string, variant bool) {
	blankString := ""
	if variant {
		blankString = "   "
	}
	blankList := []string{}
	if variant {
		blankList = []string{" "}
	}
	switch field {
	case "name":
		p.Name = blankString
	case "grade":
		p.Grade = blankString
	case "location":
		p.Location = blankString
	case "school":
		p.School = blankString
	case "role":
		p.Role = model.Role(blankString)
	case "subjects":
		p.Subjects = blankList
	case "language_preference":
		p.LanguagePreference = blankList
	}
}

func TestEvaluateCompletionExhaustive(t *testing.T) {
	fields := RequiredProfileFields
	for mask := 0; mask < 1<<len(fields); mask++ {
		profile := fullProfile()
		var want []string
		for i, field := range fields {
			if mask&(1<<i) != 0 {
				clearField(&profile, field, mask%2 == 1)
				want = append(want, field)
			}
		}

		got := EvaluateCompletion(profile)
		if got.IsComplete != (len(want) == 0) {
			t.Fatalf("mask %07b: isComplete=%v, missing=%v", mask, got.IsComplete, want)
		}
		if !reflect.DeepEqual(got.MissingFields, want) {
			t.Fatalf("mask %07b: expected missing %v, got %v", mask, want, got.MissingFields)
		}
		if got.IsComplete && got.Message != "Profile is complete" {
			t.Fatalf("unexpected message %q", got.Message)
		}
		if !got.IsComplete && got.Message != "Incomplete profile. Missing fields: "+strings.Join(want, ", ") {
			t.Fatalf("unexpected message %q", got.Message)
		}
	}
}

func TestEvaluateCompletionIgnoresMentor(t *testing.T) {
	profile := fullProfile()
	profile.Mentor = nil
	if !EvaluateCompletion(profile).IsComplete {
		t.Fatalf("mentor must not be required")
	}
}

func TestEvaluateCompletionNilLists(t *testing.T) {
	profile := fullProfile()
	profile.Subjects = nil
	profile.LanguagePreference = nil
	got := EvaluateCompletion(profile)
	if got.IsComplete || !reflect.DeepEqual(got.MissingFields, []string{"subjects", "language_preference"}) {
		t.Fatalf("unexpected completion %+v", got)
	}
}
