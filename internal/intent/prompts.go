package intent

// Clinical primary-intent tags. The clinical classifier must answer with
// one of these; anything else falls back to symptom_assessment.
const (
	ClinicalIntentProcedureRequest    = "procedure_request"
	ClinicalIntentSymptomAssessment   = "symptom_assessment"
	ClinicalIntentConditionManagement = "condition_management"
	ClinicalIntentScreeningCheck      = "screening_check"
	ClinicalIntentSecondOpinion       = "second_opinion"
	ClinicalIntentPostOperativeCare   = "post_operative_care"
)

var clinicalIntentTags = map[string]struct{}{
	ClinicalIntentProcedureRequest:    {},
	ClinicalIntentSymptomAssessment:   {},
	ClinicalIntentConditionManagement: {},
	ClinicalIntentScreeningCheck:      {},
	ClinicalIntentSecondOpinion:       {},
	ClinicalIntentPostOperativeCare:   {},
}

// insightsPrompt summarizes the conversation into patient insights.
// %s placeholders: conversation transcript, location hint.
const insightsPrompt = `You summarize a patient's conversation with a medical booking assistant.

Conversation:
%s

Known location hint (may be empty): %s

Respond with ONLY a JSON object:
{
  "symptoms": ["reported symptoms, verbatim where possible"],
  "preferences": ["stated preferences: gender, language, insurer, hospital, timing"],
  "urgency": "routine" | "soon" | "urgent",
  "inferred_specialty": "single most likely medical specialty, or empty string",
  "inferred_location": "location the patient mentioned, or empty string",
  "summary": "one sentence describing what the patient needs"
}

Use empty arrays and empty strings when the conversation gives no signal. Do not invent symptoms.`

// generalIntentPrompt classifies what the patient is trying to achieve.
// %s placeholder: patient query.
const generalIntentPrompt = `You classify a patient's free-text request for a medical practitioner.

Patient query: %s

Respond with ONLY a JSON object:
{
  "goal": "diagnostic_workup" | "procedure_intervention" | "ongoing_management" | "second_opinion",
  "specificity": "symptom_only" | "confirmed_diagnosis" | "named_procedure",
  "confidence": 0.0-1.0,
  "expansion_terms": ["6-10 retrieval terms a practitioner profile matching this request would contain"],
  "negative_terms": ["terms that indicate the WRONG kind of practitioner for this request"],
  "anchor_phrases": ["conditions or procedures the patient EXPLICITLY mentioned, verbatim; never inferred; at most 3"],
  "safe_lane_terms": ["up to 4 high-confidence symptom or condition terms from the query"],
  "likely_subspecialties": [{"name": "subspecialty", "confidence": 0.0-1.0}]
}

Rules:
- anchor_phrases only contain text the patient actually wrote. An inferred diagnosis is never an anchor.
- confidence reflects how certain you are about goal and specificity together.
- likely_subspecialties has at most 3 entries.`

// clinicalIntentPrompt extracts clinical retrieval signals.
// %s placeholders: tag list, patient query.
const clinicalIntentPrompt = `You extract clinical retrieval signals from a patient's request for a medical practitioner.

Choose primary_intent from exactly this set: %s

Patient query: %s

Respond with ONLY a JSON object:
{
  "primary_intent": "one tag from the set above",
  "expansion_terms": ["8-12 clinical terms: subspecialty names, procedure names, condition names relevant to this request"],
  "negative_terms": ["5-8 terms marking the wrong subspecialty for this request"],
  "likely_subspecialties": [{"name": "subspecialty", "confidence": 0.0-1.0}]
}

Rules:
- expansion_terms favor the vocabulary of practitioner profiles (procedures, conditions, clinical interests).
- negative_terms name adjacent subspecialties a naive keyword match would wrongly surface.
- likely_subspecialties has at most 3 entries.`

// idealProfilePrompt writes the short ideal-practitioner sketch carried by
// the v5 pipeline. %s placeholder: patient query.
const idealProfilePrompt = `Describe in 2-3 sentences the ideal medical practitioner profile for this patient request. Write it as a profile sketch (specialty, subspecialty focus, relevant procedures), not as advice to the patient.

Patient request: %s`
