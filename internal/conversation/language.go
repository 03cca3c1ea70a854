package conversation

import (
	"strings"
	"unicode"
)

// DetectLanguage classifies a message as "ar" or "en" by script. Mixed
// messages lean Arabic: guests who type any Arabic expect Arabic replies.
func DetectLanguage(text string) string {
	var arabic, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Arabic, r):
			arabic++
		case unicode.IsLetter(r) && r < 0x250:
			latin++
		}
	}
	if arabic > 0 {
		return "ar"
	}
	if latin > 0 {
		return "en"
	}
	return ""
}

// Common Arabic given names whose gender the suffix rule gets wrong or
// cannot decide. Kept small; unknown stays unknown rather than guessing.
var femaleNames = map[string]struct{}{
	"نور": {}, "هند": {}, "ريم": {}, "مريم": {}, "سوزان": {},
	"أمل": {}, "امل": {}, "إيمان": {}, "ايمان": {}, "حنين": {},
	"sara": {}, "sarah": {}, "mariam": {}, "maryam": {}, "noor": {},
	"reem": {}, "dana": {}, "lina": {}, "hala": {}, "rana": {},
	"aya": {}, "layla": {}, "leila": {}, "farah": {}, "dina": {},
}

var maleNames = map[string]struct{}{
	"أحمد": {}, "احمد": {}, "محمد": {}, "خالد": {}, "عمر": {},
	"علي": {}, "يوسف": {}, "حسن": {}, "سعد": {}, "فهد": {},
	"ahmed": {}, "ahmad": {}, "mohammed": {}, "mohammad": {}, "muhammad": {},
	"omar": {}, "ali": {}, "khaled": {}, "khalid": {}, "youssef": {},
	"hassan": {}, "saad": {}, "fahad": {}, "faisal": {}, "abdullah": {},
}

// GuessGender infers gender from a WhatsApp profile name. Returns "female",
// "male", or "" when the heuristic has nothing to go on. Only the first
// token (the given name) is considered.
func GuessGender(profileName string) string {
	name := strings.ToLower(strings.TrimSpace(profileName))
	if name == "" {
		return ""
	}
	if i := strings.IndexAny(name, " \t"); i > 0 {
		name = name[:i]
	}

	if _, ok := femaleNames[name]; ok {
		return "female"
	}
	if _, ok := maleNames[name]; ok {
		return "male"
	}

	// Ta marbuta or alef-hamza endings mark most Arabic female names.
	if strings.HasSuffix(name, "ة") || strings.HasSuffix(name, "اء") {
		return "female"
	}
	// Latin-script "-a"/"-ah" endings are a weaker but serviceable signal.
	if isASCIIName(name) && (strings.HasSuffix(name, "a") || strings.HasSuffix(name, "ah")) {
		return "female"
	}
	return ""
}

func isASCIIName(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
