package entities

import "strings"

// SelectorSeparator joins subdirectory names in a selector string.
const SelectorSeparator = ","

// FormatSelector joins names into a selector. An empty slice yields "",
// meaning "load everything under the mount".
func FormatSelector(names []string) string {
	return strings.Join(names, SelectorSeparator)
}

// ParseSelector splits a selector into subdirectory names. Surrounding
// whitespace and empty segments are dropped; "" yields nil.
func ParseSelector(selector string) []string {
	if strings.TrimSpace(selector) == "" {
		return nil
	}
	var names []string
	for _, part := range strings.Split(selector, SelectorSeparator) {
		part = strings.TrimSpace(part)
		if part != "" {
			names = append(names, part)
		}
	}
	return names
}

// validName reports whether name can appear in a selector. Names are a single
// path segment; nested selection is not supported. Names with surrounding
// whitespace are rejected since ParseSelector strips it.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		strings.TrimSpace(name) == name &&
		!strings.ContainsAny(name, SelectorSeparator+"/\\")
}
