package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

const DefaultLocale = "ru"

type Translator struct {
	lang         string
	translations map[string]string
	fallback     map[string]string
}

// NewTranslator loads locales/<lang>.yaml from fsys. Keys missing from lang are
// looked up in the default locale before falling back to the key itself.
func NewTranslator(fsys fs.FS, lang string) (*Translator, error) {
	if lang == "" {
		lang = DefaultLocale
	}
	main, err := readLocale(fsys, lang)
	if err != nil {
		return nil, err
	}
	t := &Translator{lang: lang, translations: main}
	if lang != DefaultLocale {
		if fb, err := readLocale(fsys, DefaultLocale); err == nil {
			t.fallback = fb
		}
	}
	return t, nil
}

func readLocale(fsys fs.FS, lang string) (map[string]string, error) {
	p := path.Join("locales", lang+".yaml")
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", p, err)
	}
	return parseLocale(data)
}

func parseLocale(data []byte) (map[string]string, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return translations, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	m, err := parseLocale(data)
	if err != nil {
		return nil, err
	}
	return &Translator{lang: "test", translations: m}, nil
}

func (t *Translator) Lang() string { return t.lang }

// T formats the message for key with args.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		if format, ok = t.fallback[key]; !ok {
			return key
		}
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}
