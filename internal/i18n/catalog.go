// Package i18n loads the embedded message catalogs and negotiates request locales.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the source locale every key must be defined in.
const BaseLocale = "en-US"

//go:embed locales/*/*.yaml
var embeddedFS embed.FS

var defaultBundle = mustLoadEmbedded()

type catalogFile struct {
	Locale    string            `yaml:"locale"`
	Namespace string            `yaml:"namespace"`
	Messages  map[string]string `yaml:"messages"`
}

// Bundle holds the registered catalogs for all locales.
type Bundle struct {
	builder *catalog.Builder
	tags    []language.Tag
	matcher language.Matcher
	keys    map[language.Tag]map[string]struct{}
}

// Default returns the bundle built from the embedded catalogs.
func Default() *Bundle {
	return defaultBundle
}

// SetDefault replaces the process-wide bundle. Call it once during startup.
func SetDefault(b *Bundle) {
	defaultBundle = b
}

// Embedded loads the embedded catalogs with fallback as the default locale.
func Embedded(fallback string) (*Bundle, error) {
	return LoadFromFS(embeddedFS, fallback)
}

func mustLoadEmbedded() *Bundle {
	b, err := LoadFromFS(embeddedFS, BaseLocale)
	if err != nil {
		panic(fmt.Sprintf("i18n: load embedded catalogs: %v", err))
	}
	return b
}

// LoadFromFS loads locales/<locale>/<namespace>.yaml files from fsys. fallback
// becomes the matcher's default and must be present.
func LoadFromFS(fsys fs.FS, fallback string) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	b := &Bundle{
		builder: catalog.NewBuilder(catalog.Fallback(language.MustParse(BaseLocale))),
		keys:    map[language.Tag]map[string]struct{}{},
	}
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}
		if err := b.add(p, file); err != nil {
			return nil, err
		}
	}

	fallbackTag, err := language.Parse(fallback)
	if err != nil {
		return nil, fmt.Errorf("parse fallback locale %q: %w", fallback, err)
	}
	if _, ok := b.keys[fallbackTag]; !ok {
		return nil, fmt.Errorf("fallback locale %s has no catalog", fallback)
	}
	if _, ok := b.keys[language.MustParse(BaseLocale)]; !ok {
		return nil, fmt.Errorf("base locale %s has no catalog", BaseLocale)
	}
	tags := []language.Tag{fallbackTag}
	for tag := range b.keys {
		if tag != fallbackTag {
			tags = append(tags, tag)
		}
	}
	sort.Slice(tags[1:], func(i, j int) bool { return tags[i+1].String() < tags[j+1].String() })
	b.tags = tags
	b.matcher = language.NewMatcher(tags)
	return b, nil
}

func (b *Bundle) add(p string, file catalogFile) error {
	dirLocale := path.Base(path.Dir(p))
	locale := strings.TrimSpace(file.Locale)
	if locale != dirLocale {
		return fmt.Errorf("catalog %s: locale %q must match directory %q", p, locale, dirLocale)
	}
	if strings.TrimSpace(file.Namespace) == "" {
		return fmt.Errorf("catalog %s: namespace is required", p)
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("catalog %s: parse locale: %w", p, err)
	}
	seen, ok := b.keys[tag]
	if !ok {
		seen = map[string]struct{}{}
		b.keys[tag] = seen
	}
	for key, msg := range file.Messages {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("catalog %s: blank message key", p)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("catalog %s: duplicate key %q in locale %s", p, key, locale)
		}
		seen[key] = struct{}{}
		if err := b.builder.SetString(tag, key, msg); err != nil {
			return fmt.Errorf("catalog %s: set %q: %w", p, key, err)
		}
	}
	return nil
}

// Match negotiates an Accept-Language header value against the loaded locales.
func (b *Bundle) Match(acceptLanguage string) language.Tag {
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return b.tags[0]
	}
	_, idx, _ := b.matcher.Match(prefs...)
	return b.tags[idx]
}

// Sprintf formats the message registered under key for tag.
func (b *Bundle) Sprintf(tag language.Tag, key string, args ...any) string {
	return message.NewPrinter(tag, message.Catalog(b.builder)).Sprintf(key, args...)
}

// Base formats key in the base locale.
func (b *Bundle) Base(key string, args ...any) string {
	return b.Sprintf(language.MustParse(BaseLocale), key, args...)
}

// Has reports whether key is defined for locale.
func (b *Bundle) Has(locale, key string) bool {
	tag, err := language.Parse(locale)
	if err != nil {
		return false
	}
	_, ok := b.keys[tag][key]
	return ok
}

// Locales returns the loaded locales, fallback first.
func (b *Bundle) Locales() []string {
	out := make([]string, 0, len(b.tags))
	for _, t := range b.tags {
		out = append(out, t.String())
	}
	return out
}
