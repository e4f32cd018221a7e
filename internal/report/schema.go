// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package report

import (
	"encoding/json"
	"fmt"

	"github.com/sesame437/meeting-minutes/internal/model"
)

// requiredFields lists the top-level JSON keys a report of the given
// meeting type must contain, independent of their value. Every type carries
// `summary` and `participants`; the remaining fields are per-type sections.
func requiredFields(mt model.MeetingType) []string {
	switch mt {
	case model.MeetingWeekly:
		return []string{"summary", "teamKPI", "announcements", "projectReviews", "decisions", "actions", "participants", "nextMeeting"}
	case model.MeetingTech:
		return []string{"summary", "topics", "highlights", "lowlights", "actions", "knowledgeBase", "participants", "techStack"}
	case model.MeetingCustomer:
		return []string{"summary", "customerInfo", "awsAttendees", "customerNeeds", "painPoints", "solutionsDiscussed", "commitments", "nextSteps", "participants"}
	default:
		return []string{"summary", "keyTopics", "highlights", "lowlights", "decisions", "actions", "participants", "duration", "meetingType"}
	}
}

var (
	priorities         = map[string]bool{"high": true, "medium": true, "low": true}
	individualStatuses = map[string]bool{"on-track": true, "at-risk": true, "completed": true}
	riskImpacts        = map[string]bool{"high": true, "medium": true, "low": true}
	commitmentParties  = map[string]bool{"AWS": true, "客户": true}
)

// validateEnumField checks that every object in obj[arrayField] whose
// enumField key is present carries one of allowed's values.
func validateEnumField(obj map[string]any, arrayField, enumField string, allowed map[string]bool) error {
	raw, ok := obj[arrayField].([]any)
	if !ok {
		return nil
	}
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		v, ok := m[enumField].(string)
		if !ok {
			continue
		}
		if !allowed[v] {
			return fmt.Errorf("report: invalid %s %q in %s entry", enumField, v, arrayField)
		}
	}
	return nil
}

// validateTeamKPIStatuses checks weekly's nested teamKPI.individuals[].status.
func validateTeamKPIStatuses(obj map[string]any) error {
	teamKPI, ok := obj["teamKPI"].(map[string]any)
	if !ok {
		return nil
	}
	return validateEnumField(teamKPI, "individuals", "status", individualStatuses)
}

// validateProjectReviewRisks checks weekly's nested
// projectReviews[].risks[].impact.
func validateProjectReviewRisks(obj map[string]any) error {
	reviews, ok := obj["projectReviews"].([]any)
	if !ok {
		return nil
	}
	for _, item := range reviews {
		review, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if err := validateEnumField(review, "risks", "impact", riskImpacts); err != nil {
			return err
		}
	}
	return nil
}

// validateEnums rejects an LLM-authored report whose meetingType-specific
// enum-constrained fields carry a value outside their declared set.
func validateEnums(mt model.MeetingType, obj map[string]any) error {
	switch mt {
	case model.MeetingGeneral, model.MeetingTech:
		return validateEnumField(obj, "actions", "priority", priorities)
	case model.MeetingWeekly:
		if err := validateEnumField(obj, "actions", "priority", priorities); err != nil {
			return err
		}
		if err := validateTeamKPIStatuses(obj); err != nil {
			return err
		}
		return validateProjectReviewRisks(obj)
	case model.MeetingCustomer:
		if err := validateEnumField(obj, "customerNeeds", "priority", priorities); err != nil {
			return err
		}
		if err := validateEnumField(obj, "nextSteps", "priority", priorities); err != nil {
			return err
		}
		return validateEnumField(obj, "commitments", "party", commitmentParties)
	}
	return nil
}

// ExtractJSON finds the first balanced {...} object in raw LLM output and
// returns its bytes, tolerating prose the model wrote before or after the
// object.
func ExtractJSON(raw string) ([]byte, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range raw {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return []byte(raw[start : i+1]), nil
			}
		}
	}

	return nil, fmt.Errorf("report: no balanced JSON object found in LLM output")
}

// ValidateReport parses candidate as a JSON object, verifies every field
// requiredFields(mt) names is present, rejects any enum-constrained field
// carrying a value outside its declared set, and returns the decoded object
// and its canonical (key-sorted) re-encoding for storage.
func ValidateReport(mt model.MeetingType, candidate []byte) (map[string]any, []byte, error) {
	var obj map[string]any
	if err := json.Unmarshal(candidate, &obj); err != nil {
		return nil, nil, fmt.Errorf("report: invalid JSON object: %w", err)
	}

	var missing []string
	for _, field := range requiredFields(mt) {
		if _, ok := obj[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("report: missing required fields for meetingType %q: %v", mt, missing)
	}

	if err := validateEnums(mt, obj); err != nil {
		return nil, nil, err
	}

	canonical, err := json.Marshal(obj)
	if err != nil {
		return nil, nil, fmt.Errorf("report: re-encoding validated report: %w", err)
	}
	return obj, canonical, nil
}

// reportTitle extracts the "title" field for use as the ReportDone message's
// MeetingName, tolerating its absence: none of the meetingType schemas
// declare a title field, so this only fires when the LLM volunteered one
// anyway.
func reportTitle(obj map[string]any) string {
	if v, ok := obj["title"].(string); ok {
		return v
	}
	return ""
}
