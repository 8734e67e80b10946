package i18n_test

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tartampluch/go-hebrew-birthday/internal/config"
	"github.com/tartampluch/go-hebrew-birthday/internal/i18n"
)

// TestI18nIntegrity ensures that every translation key defined in config.go
// exists in every locale file.
func TestI18nIntegrity(t *testing.T) {
	keys := []string{
		config.TKeyRefreshSuccess,
		config.TKeyErrUnauth,
		config.TKeyErrPermission,
		config.TKeyErrRateLimited,
		config.TKeyErrRefreshFailed,
		config.TKeyErrInvalidInput,
		config.TKeyErrInternal,
		config.TKeyEvtSummary,
		config.TKeyEvtSummaryAge,
		config.TKeyEvtDescription,
		config.TKeyEvtAfterSunset,
	}

	for _, file := range []string{"locales/active.en.json", "locales/active.he.json"} {
		t.Run(file, func(t *testing.T) {
			content, err := os.ReadFile(file)
			require.NoError(t, err)

			var messages map[string]string
			require.NoError(t, json.Unmarshal(content, &messages))

			for _, k := range keys {
				assert.NotEmpty(t, messages[k], "missing key %s", k)
			}
		})
	}
}

func TestCatalog_Match(t *testing.T) {
	c, err := i18n.NewCatalog()
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "he"}, c.Languages())

	tests := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"he-IL,he;q=0.9,en;q=0.8", "he"},
		{"fr-FR,fr;q=0.9", "en"},
		{"en-US", "en"},
		{"fr;q=0.9, he;q=0.5", "he"},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Match(tt.header))
		})
	}
}

func TestCatalog_Get(t *testing.T) {
	c, err := i18n.NewCatalog()
	require.NoError(t, err)

	assert.Equal(t, "Hebrew birthday: Noa (5)",
		c.Get("en", config.TKeyEvtSummaryAge, map[string]any{"Name": "Noa", "Age": 5}))
	assert.Equal(t, "יום הולדת עברי: Noa",
		c.Get("he", config.TKeyEvtSummary, map[string]any{"Name": "Noa"}))
	assert.Equal(t, "no_such_key", c.Get("en", "no_such_key", nil))
}
