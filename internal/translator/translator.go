// Package translator resolves i18n keys used in "notify" payloads into
// locale-specific display strings. It is the "Translator" external
// collaborator from spec.md §1; the lobby itself only ever deals in keys.
package translator

// Translator maps an i18n key and a locale to a human-readable string.
type Translator interface {
	Translate(key, locale string) string
}

// Static is a minimal map-of-maps Translator: {locale: {key: text}}, with
// an "en" fallback when a locale or key is missing.
type Static struct {
	strings map[string]map[string]string
}

const fallbackLocale = "en"

// NewStatic returns a Static translator seeded with the lobby's own i18n
// keys for English; additional locales can be added with AddLocale.
func NewStatic() *Static {
	return &Static{
		strings: map[string]map[string]string{
			fallbackLocale: {
				"lobby.alreadyInGame":      "You are already in a game.",
				"lobby.verificationNeeded": "You must verify your account to play rated games.",
				"lobby.serverRestarting":   "The server is restarting in %d minute(s).",
				"lobby.underMaintenance":   "The server is under maintenance.",
				"lobby.invalidParameters":  "Invalid invite parameters.",
				"lobby.gameAborted":        "That invite is no longer available.",
				"lobby.invalidCode":        "Invalid invite code.",
			},
		},
	}
}

// AddLocale registers (or replaces) the key→text map for a locale.
func (s *Static) AddLocale(locale string, strings map[string]string) {
	s.strings[locale] = strings
}

// Translate resolves key for locale, falling back to "en" and finally to
// the bare key if nothing matches — a missing translation should never
// crash a reply, only look unpolished.
func (s *Static) Translate(key, locale string) string {
	if byKey, ok := s.strings[locale]; ok {
		if text, ok := byKey[key]; ok {
			return text
		}
	}
	if byKey, ok := s.strings[fallbackLocale]; ok {
		if text, ok := byKey[key]; ok {
			return text
		}
	}
	return key
}
