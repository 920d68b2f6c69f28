package platform

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// LanguageName resolves a BCP 47 / ISO 639 language code to its English
// display name. Unknown or empty codes fall back to "Default", matching the
// wire format of format entries without an audio track language.
func LanguageName(code string) string {
	if code == "" {
		return "Default"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "Default"
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return "Default"
	}
	return name
}
