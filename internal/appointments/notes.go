package appointments

import "strings"

// proceduresMarker separates procedure notes from the symptom text in the stored column.
const proceduresMarker = "\n\nProcedures:\n"

// SplitNotes separates a stored symptoms column into the symptom text and
// the procedure notes appended on each completion.
func SplitNotes(stored string) (string, []string) {
	parts := strings.Split(stored, proceduresMarker)
	if len(parts) == 1 {
		return stored, nil
	}
	return parts[0], parts[1:]
}

// JoinNotes is the inverse of SplitNotes.
func JoinNotes(symptoms string, procedures []string) string {
	if len(procedures) == 0 {
		return symptoms
	}
	var b strings.Builder
	b.WriteString(symptoms)
	for _, p := range procedures {
		b.WriteString(proceduresMarker)
		b.WriteString(p)
	}
	return b.String()
}
