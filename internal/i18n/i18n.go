// Package i18n serves the user-visible strings (API errors, feed summaries) in English and Hebrew.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/tartampluch/go-hebrew-birthday/internal/config"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Catalog holds the loaded message bundle and the languages it supports.
type Catalog struct {
	bundle  *i18n.Bundle
	langs   []string
	tags    []language.Tag
	matcher language.Matcher
}

// NewCatalog loads every embedded active.<lang>.json file. English is the fallback
// and stays first, so the matcher falls back to it.
func NewCatalog() (*Catalog, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/active.*.json")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrLocalesAccess, err)
	}

	c := &Catalog{
		bundle: bundle,
		tags:   []language.Tag{language.English},
		langs:  []string{language.English.String()},
	}
	for _, file := range files {
		mf, err := bundle.LoadMessageFileFS(localeFS, file)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", config.ErrLocaleLoad, file, err)
		}
		slog.Debug(config.MsgLocaleLoaded,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyLang, mf.Tag.String(),
			config.LogKeyFile, file,
		)
		if mf.Tag != language.English {
			c.tags = append(c.tags, mf.Tag)
			c.langs = append(c.langs, mf.Tag.String())
		}
	}

	c.matcher = language.NewMatcher(c.tags)
	return c, nil
}

// Languages lists the supported language codes, default first.
func (c *Catalog) Languages() []string {
	return append([]string(nil), c.langs...)
}

// Match picks the best supported language for an Accept-Language header value.
func (c *Catalog) Match(acceptLanguage string) string {
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return c.langs[0]
	}
	_, idx, _ := c.matcher.Match(prefs...)
	return c.langs[idx]
}

// Get localizes key in lang, returning the key itself when it is unknown.
func (c *Catalog) Get(lang, key string, data map[string]any) string {
	loc := i18n.NewLocalizer(c.bundle, lang)
	msg, err := loc.Localize(&i18n.LocalizeConfig{MessageID: key, TemplateData: data})
	if err != nil || msg == "" {
		slog.Debug(config.MsgTransMissing,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyKey, key,
			config.LogKeyError, err,
		)
		return key
	}
	return msg
}
