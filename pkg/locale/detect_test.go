package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name       string
		locale     string
		preference string
		want       string
	}{
		{"nothing known", "", "", "ru"},
		{"preference wins", "ru", "kz", "kz"},
		{"preference case-insensitive", "", "KZ", "kz"},
		{"unsupported preference falls through", "kk", "en", "kz"},
		{"telegram kazakh", "kk", "", "kz"},
		{"iso-639-2 kazakh", "kaz", "", "kz"},
		{"russian", "ru", "", "ru"},
		{"region underscore", "kk_KZ", "", "kz"},
		{"region dash", "ru-RU", "", "ru"},
		{"unsupported locale", "en", "", "ru"},
		{"unsupported region", "en-US", "", "ru"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.locale, tt.preference))
		})
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("ru"))
	assert.True(t, Supported("KZ"))
	assert.False(t, Supported("kk"))
	assert.False(t, Supported("en"))
}
