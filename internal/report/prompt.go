package report

import "fmt"

// buildPrompt constructs the provider prompt for the requested report kind.
func buildPrompt(kind Kind, transcript string) string {
	if kind == KindAssessment {
		return fmt.Sprintf(assessmentPromptTemplate, transcript)
	}
	return fmt.Sprintf(medicalReportPromptTemplate, transcript)
}

const medicalReportPromptTemplate = `You are an expert medical assistant tasked with analyzing a doctor-patient conversation transcript and creating a structured medical report. Please analyze the following transcript and extract information into the specified sections.

TRANSCRIPT:
%s

Please provide a comprehensive analysis in the following structured format:

## PATIENT DETAILS
- Name, age, gender, contact information and date of visit. Extract each if mentioned, otherwise state "Not specified".

## CHIEF COMPLAINT
- Primary reason for the visit, in the patient's own words where possible.

## SYMPTOMS
- Current symptoms, their duration, severity and any associated symptoms.

## MEDICAL HISTORY
- Past medical history, current medications, allergies, family and social history.

## PHYSICAL EXAMINATION
- Vital signs, physical findings and any diagnostic tests performed or discussed.

## ASSESSMENT
- Primary diagnosis, differential diagnoses and the clinician's overall impression.

## PLAN
- Treatment plan, follow-up instructions, lifestyle recommendations, additional tests or referrals, and patient education.

## NOTES
- Any additional important information or observations from the conversation.

Please ensure all information is extracted accurately from the transcript. If certain information is not available in the transcript, clearly state "Not specified" rather than making assumptions.`

const assessmentPromptTemplate = `You are an advanced AI medical diagnostic assistant. Analyze the following medical conversation transcript and provide a comprehensive medical assessment with disease analysis, severity evaluation and next steps.

TRANSCRIPT:
%s

Provide a detailed assessment with the following sections:

## SYMPTOM ANALYSIS
- List and categorize all symptoms mentioned, their pattern, severity and duration, and any red flags.

## DIFFERENTIAL DIAGNOSIS
- Possible conditions ranked by likelihood with brief clinical reasoning, including serious conditions to rule out.

## SEVERITY ASSESSMENT
- Overall severity (Mild/Moderate/Severe/Critical), urgency level and risk factors.

## RECOMMENDED NEXT STEPS
- Immediate actions, short-term follow-up and long-term management.

## SUGGESTED INVESTIGATIONS
- Laboratory tests, imaging studies and other diagnostic procedures in priority order.

## WARNING SIGNS
- Symptoms that would require immediate medical attention.

IMPORTANT: This is an AI assessment for reference purposes only. Emphasize the need for professional medical evaluation, do not provide specific medication dosages or definitive diagnoses, and be clear about limitations and uncertainties.`
