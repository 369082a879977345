package wiki

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// knownLanguages pins the names the generation backend was tuned against.
// Codes outside this set fall through to BCP 47 resolution.
var knownLanguages = map[string]string{
	"en": "English",
	"fr": "French",
	"es": "Spanish",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
}

// LanguageName resolves a language code to the full English name used in
// generation prompts. Unknown or unparseable codes default to English.
func LanguageName(code string) string {
	if name, ok := knownLanguages[code]; ok {
		return name
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "English"
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return "English"
	}
	return name
}
