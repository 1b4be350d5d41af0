package manifest

import "strings"

// DefaultLocale is used when neither configuration nor the environment names one.
const DefaultLocale Locale = "en_US"

// Locale is a POSIX-style locale in its normalised form, e.g. "pl_PL".
type Locale string

// ParseLocale accepts "pl-PL", "pl_PL.UTF-8", "pl_PL@euro" and similar spellings.
func ParseLocale(s string) Locale {
	s = strings.TrimSpace(s)

	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}

	s = strings.ReplaceAll(s, "-", "_")

	lang, region, found := strings.Cut(s, "_")
	lang = strings.ToLower(lang)

	if lang == "" || lang == "c" || lang == "posix" {
		return DefaultLocale
	}

	if !found {
		return Locale(lang)
	}

	return Locale(lang + "_" + strings.ToUpper(region))
}

// HasPrefix reports whether the locale starts with the given language tag.
func (l Locale) HasPrefix(tag string) bool {
	return tag != "" && strings.HasPrefix(string(l), strings.ToLower(tag))
}

func (l Locale) String() string {
	return string(l)
}
