package report

import "strings"

// sectionAliases maps keywords found in model-produced headings to the
// canonical section names. Matched in order so more specific keywords win.
var sectionAliases = []struct {
	keyword string
	section string
}{
	{"PATIENT", "Patient Details"},
	{"CHIEF", "Chief Complaint"},
	{"SYMPTOM", "Symptoms"},
	{"HISTORY", "Medical History"},
	{"EXAMINATION", "Physical Examination"},
	{"PHYSICAL", "Physical Examination"},
	{"ASSESSMENT", "Assessment"},
	{"PLAN", "Plan"},
	{"RECOMMENDATION", "Plan"},
	{"NOTE", "Notes"},
}

// parseSections splits markdown model output on "##" headings into the fixed
// section set. Headings that match no known section, and any preamble before
// the first heading, are collected under Notes. Sections the model produced
// nothing for are filled with NotSpecified.
func parseSections(raw string) map[string]string {
	sections := make(map[string]string, len(SectionNames))
	bodies := map[string][]string{}
	current := ""

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			heading := strings.ToUpper(strings.TrimSpace(strings.TrimLeft(trimmed, "# ")))
			if heading == "" {
				continue
			}
			current = canonicalSection(heading)
			continue
		}
		if trimmed == "" {
			continue
		}
		key := current
		if key == "" {
			key = "Notes"
		}
		bodies[key] = append(bodies[key], trimmed)
	}

	for _, name := range SectionNames {
		body := strings.TrimSpace(strings.Join(bodies[name], "\n"))
		if body == "" {
			body = NotSpecified
		}
		sections[name] = body
	}
	return sections
}

func canonicalSection(heading string) string {
	for _, alias := range sectionAliases {
		if strings.Contains(heading, alias.keyword) {
			return alias.section
		}
	}
	return "Notes"
}
