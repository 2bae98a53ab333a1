// Package locale resolves the conversation language from channel hints.
package locale

import (
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	Russian = "ru"
	Kazakh  = "kz"

	// Default is used when neither hint names a supported language.
	Default = Russian
)

var supported = map[string]bool{
	Russian: true,
	Kazakh:  true,
}

// Supported reports whether code is a supported two-letter language.
func Supported(code string) bool {
	return supported[strings.ToLower(code)]
}

// Detect picks the session language. A supported stored preference wins,
// then the channel-reported locale, then Default. Kazakh locales reported
// as "kk" or "kaz", with or without a region suffix, map to "kz".
func Detect(channelLocale, preference string) string {
	if preference != "" {
		normalized := strings.ToLower(strings.TrimSpace(preference))
		if supported[normalized] {
			return normalized
		}
		log.Debug().Str("preference", preference).Msg("Unsupported language preference")
	}

	if channelLocale != "" {
		if code, ok := fromLocale(channelLocale); ok {
			return code
		}
		log.Debug().Str("locale", channelLocale).Msg("Unsupported channel locale")
	}

	return Default
}

func fromLocale(raw string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if lang, ok := mapLanguage(normalized); ok {
		return lang, true
	}

	if strings.ContainsAny(normalized, "_-") {
		base := strings.SplitN(normalized, "_", 2)[0]
		base = strings.SplitN(base, "-", 2)[0]
		return mapLanguage(base)
	}
	return "", false
}

func mapLanguage(code string) (string, bool) {
	switch {
	case code == "kk" || code == "kaz":
		return Kazakh, true
	case supported[code]:
		return code, true
	default:
		return "", false
	}
}
