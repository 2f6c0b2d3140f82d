package transcript

// Languages lists the language codes the service accepts, keyed by the code
// callers send. zh_CN and zh_TW are aliases resolved by the command builder.
var Languages = map[string]string{
	"en":    "english",
	"zh_CN": "simplified chinese",
	"zh_TW": "traditional chinese",
	"ja":    "japanese",
	"ko":    "korean",
	"fr":    "french",
	"es":    "spanish",
	"ru":    "russian",
	"ar":    "arabic",
	"th":    "thai",
	"de":    "german",
	"pt":    "portuguese",
	"it":    "italian",
	"hi":    "hindi",
	"id":    "indonesian",
	"tr":    "turkish",
	"vi":    "vietnamese",
	"he":    "hebrew",
	"el":    "greek",
	"pl":    "polish",
	"nl":    "dutch",
	"hu":    "hungarian",
	"no":    "norwegian",
	"sv":    "swedish",
	"fi":    "finnish",
	"cs":    "czech",
	"da":    "danish",
	"lt":    "lithuanian",
	"sk":    "slovak",
	"ms":    "malay",
	"ro":    "romanian",
	"bg":    "bulgarian",
	"hr":    "croatian",
	"lo":    "lao",
	"ur":    "urdu",
	"ta":    "tamil",
}

// SupportedLanguage reports whether code is in Languages. Empty means auto-detect
// and is always accepted.
func SupportedLanguage(code string) bool {
	if code == "" {
		return true
	}
	_, ok := Languages[code]
	return ok
}
