// Package translate resolves dot-path translation keys ("gestures.blink.label")
// against one or more locale JSON files, with language-part and default
// fallback when the exact locale isn't available.
package translate

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Translator looks up a dot-path key in a loaded locale's translation
// tree. A miss returns the key itself, unmodified, so that a caller
// always has displayable text even when translations are incomplete.
type Translator struct {
	tree map[string]interface{}
}

// New loads translations for locale from the given locale directories,
// in order, shallow-merging later directories' files over earlier ones.
// When locale itself has no matching file in any directory, it falls
// back to the locale's language part (e.g. "en" from "en_US"), then to
// "default". If nothing is found, every Lookup call returns its key
// unchanged.
func New(locale string, localesDirs []string) *Translator {
	t := &Translator{}
	t.tree = t.loadTranslations(locale, localesDirs)
	return t
}

func (t *Translator) loadTranslations(locale string, dirs []string) map[string]interface{} {
	log.Printf("translate: loading locale %q", locale)

	if tree, ok := t.loadLocaleFile(locale, dirs); ok {
		return tree
	}

	parts := splitLocale(locale)
	if len(parts) > 1 {
		if tree, ok := t.loadLocaleFile(parts[0], dirs); ok {
			return tree
		}
		log.Printf("translate: locale part not found: %s", locale)
	}

	if tree, ok := t.loadLocaleFile("default", dirs); ok {
		return tree
	}

	log.Printf("translate: locale not found: %s", locale)
	return nil
}

// loadLocaleFile merges <dir>/<localeName>.json across every directory
// that has one, later directories winning on key collision.
func (t *Translator) loadLocaleFile(localeName string, dirs []string) (map[string]interface{}, bool) {
	merged := map[string]interface{}{}
	found := false

	for _, dir := range dirs {
		path := filepath.Join(dir, localeName+".json")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			log.Printf("translate: malformed locale file %s: %v", path, err)
			continue
		}
		for k, v := range doc {
			merged[k] = v
		}
		found = true
	}

	if !found {
		return nil, false
	}
	return merged, true
}

func splitLocale(locale string) []string {
	return strings.Split(locale, "_")
}

// Lookup resolves a dot-path key against the loaded translation tree.
// A missing key, or a node that isn't a string leaf, returns the key
// itself so gesture labels stay readable even with an incomplete catalogue.
func (t *Translator) Lookup(key string) string {
	if t.tree == nil {
		return key
	}

	var current interface{} = t.tree
	for _, token := range strings.Split(key, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return key
		}
		next, ok := m[token]
		if !ok {
			return key
		}
		current = next
	}

	if s, ok := current.(string); ok {
		return s
	}
	return key
}
