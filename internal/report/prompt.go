// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package report

import (
	"fmt"
	"strings"

	"github.com/sesame437/meeting-minutes/internal/model"
)

// schemaHint renders the JSON object shape the LLM must emit for mt, used
// verbatim inside the prompt so the model sees the exact key set
// requiredFields(mt) will check for.
func schemaHint(mt model.MeetingType) string {
	switch mt {
	case model.MeetingWeekly:
		return `{
  "summary": "string",
  "teamKPI": {
    "overview": "string",
    "individuals": [{"name": "string", "kpi": "string", "status": "on-track|at-risk|completed"}]
  },
  "announcements": ["string"],
  "projectReviews": [{
    "project": "string", "progress": "string", "followUps": ["string"],
    "highlights": ["string"], "lowlights": ["string"],
    "risks": [{"impact": "high|medium|low", "mitigation": "string"}],
    "challenges": ["string"]
  }],
  "decisions": ["string"],
  "actions": [{"task": "string", "owner": "string", "deadline": "string", "priority": "high|medium|low"}],
  "participants": ["string"],
  "nextMeeting": "string"
}`
	case model.MeetingTech:
		return `{
  "summary": "string",
  "topics": [{"topic": "string", "discussion": "string", "conclusion": "string"}],
  "highlights": ["string"],
  "lowlights": ["string"],
  "actions": [{"task": "string", "owner": "string", "deadline": "string", "priority": "high|medium|low", "estimate": "string"}],
  "knowledgeBase": [{"title": "string", "content": "string"}],
  "participants": ["string"],
  "techStack": ["string"]
}`
	case model.MeetingCustomer:
		return `{
  "summary": "string",
  "customerInfo": {"company": "string", "attendees": ["string"]},
  "awsAttendees": ["string"],
  "customerNeeds": [{"need": "string", "priority": "high|medium|low", "background": "string"}],
  "painPoints": [{"point": "string", "detail": "string"}],
  "solutionsDiscussed": [{"solution": "string", "awsServices": ["string"], "customerFeedback": "string"}],
  "commitments": [{"party": "AWS|客户", "commitment": "string", "owner": "string", "deadline": "string"}],
  "nextSteps": [{"task": "string", "owner": "string", "deadline": "string", "priority": "high|medium|low"}],
  "participants": ["string"]
}`
	default:
		return `{
  "summary": "string",
  "keyTopics": ["string"],
  "highlights": ["string"],
  "lowlights": ["string"],
  "decisions": ["string"],
  "actions": [{"task": "string", "owner": "string", "deadline": "string", "priority": "high|medium|low"}],
  "participants": ["string"],
  "duration": "string",
  "meetingType": "string"
}`
	}
}

// typeInstruction carries the per-meetingType framing the prompt leads with.
func typeInstruction(mt model.MeetingType) string {
	switch mt {
	case model.MeetingWeekly:
		return "This is a weekly status meeting. Pay particular attention to progress since last week and anything blocking further progress."
	case model.MeetingTech:
		return "This is a technical design or review meeting. Pay particular attention to architecture and implementation decisions and the risks they carry."
	case model.MeetingCustomer:
		return "This is a customer-facing meeting. Pay particular attention to what the customer asked for and what follow-up was promised."
	default:
		return "This is a general internal meeting."
	}
}

// buildPrompt assembles the LLM prompt: the type instruction, the schema
// the model must fill, an optional duration note for the types that care
// about pacing, an optional speaker note when the transcript carries a
// literal FunASR speaker tag, an optional glossary note when glossary terms
// are available, and the transcript itself.
func buildPrompt(mt model.MeetingType, transcript string, terms []model.GlossaryTerm, durationSeconds float64, durationOK bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are generating meeting minutes from a transcript. %s\n\n", typeInstruction(mt))
	fmt.Fprintf(&b, "Respond with a single JSON object matching exactly this shape, with no surrounding prose:\n%s\n\n", schemaHint(mt))

	if durationOK && (mt == model.MeetingGeneral || mt == model.MeetingWeekly) {
		fmt.Fprintf(&b, "The recording is approximately %d seconds long. Use that to judge how much ground was plausibly covered.\n\n", int(durationSeconds))
	}

	if strings.Contains(transcript, "[SPEAKER_") {
		b.WriteString("The transcript includes speaker labels like \"[SPEAKER_0] ...\". Use them to attribute actions and decisions to the right owner when possible.\n\n")
	}

	if len(terms) > 0 {
		b.WriteString("The following glossary should be used to resolve names, acronyms, and jargon that speech recognition may have garbled:\n")
		for _, t := range terms {
			if len(t.Aliases) > 0 {
				fmt.Fprintf(&b, "- %s (also written: %s): %s\n", t.Term, strings.Join(t.Aliases, ", "), t.Definition)
			} else {
				fmt.Fprintf(&b, "- %s: %s\n", t.Term, t.Definition)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Transcript:\n")
	b.WriteString(transcript)

	return b.String()
}
