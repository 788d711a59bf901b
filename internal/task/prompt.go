package task

import "strings"

const acceptanceHeading = "## Acceptance Criteria"

// PromptBody returns the text sent to the model: the body with any
// "## Acceptance Criteria" section removed. The section runs until the next
// level-two heading. Acceptance criteria are for the reviewer, not the model.
func (r *Record) PromptBody() string {
	return StripAcceptanceCriteria(string(r.Body))
}

// StripAcceptanceCriteria removes "## Acceptance Criteria" sections from body.
// A body without such a section is returned unchanged.
func StripAcceptanceCriteria(body string) string {
	if !strings.Contains(body, acceptanceHeading) {
		return body
	}
	lines := strings.Split(body, "\n")
	kept := make([]string, 0, len(lines))
	skipping := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == acceptanceHeading {
			skipping = true
			continue
		}
		if skipping {
			if !strings.HasPrefix(line, "## ") {
				continue
			}
			skipping = false
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
