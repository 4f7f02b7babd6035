package language

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Info describes a resolved target language.
type Info struct {
	Input string
	Tag   language.Tag
	Code  string
	Name  string
	Known bool
}

// common lists the tags matched by English display name, so "spanish" and
// "Brazilian Portuguese" resolve without a code.
var common = []language.Tag{
	language.English, language.Spanish, language.LatinAmericanSpanish,
	language.French, language.CanadianFrench, language.German, language.Italian,
	language.Portuguese, language.BrazilianPortuguese, language.EuropeanPortuguese,
	language.Japanese, language.Korean, language.Chinese,
	language.SimplifiedChinese, language.TraditionalChinese, language.Russian,
	language.Arabic, language.Hindi, language.Dutch, language.Polish,
	language.Swedish, language.Danish, language.Norwegian, language.Finnish,
	language.Turkish, language.Greek, language.Hebrew, language.Czech,
	language.Hungarian, language.Romanian, language.Ukrainian, language.Vietnamese,
	language.Thai, language.Indonesian, language.Malay, language.Bulgarian,
	language.Croatian, language.Serbian, language.Slovak, language.Slovenian,
}

var (
	namer  = display.English.Tags()
	titler = cases.Title(language.English)
	byName map[string]language.Tag
)

func init() {
	byName = make(map[string]language.Tag, len(common))
	for _, tag := range common {
		byName[strings.ToLower(namer.Name(tag))] = tag
	}
}

// Lookup resolves value as a BCP 47 tag ("es", "pt-BR", "spa") or an English
// language name ("spanish"). Unknown values return an Info with Known false
// and a title-cased Name.
func Lookup(value string) Info {
	trimmed := strings.Join(strings.Fields(value), " ")
	info := Info{Input: trimmed}
	if trimmed == "" {
		return info
	}
	if tag, ok := byName[strings.ToLower(trimmed)]; ok {
		return resolved(info, tag)
	}
	if !strings.Contains(trimmed, " ") {
		if tag, err := language.Parse(trimmed); err == nil && tag != language.Und {
			return resolved(info, tag)
		}
	}
	info.Name = titler.String(trimmed)
	return info
}

func resolved(info Info, tag language.Tag) Info {
	info.Tag = tag
	info.Code = tag.String()
	info.Name = namer.Name(tag)
	info.Known = info.Name != ""
	if !info.Known {
		info.Name = titler.String(info.Input)
	}
	return info
}

// Describe renders value for humans: "Spanish (es)" when it resolves,
// otherwise the title-cased input.
func Describe(value string) string {
	info := Lookup(value)
	if info.Input == "" {
		return "none"
	}
	if !info.Known {
		return info.Name
	}
	return fmt.Sprintf("%s (%s)", info.Name, info.Code)
}

// Validate rejects target languages that cannot be sent to the translation
// service or embedded in a file name.
func Validate(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("target language is empty")
	}
	if len(trimmed) > 64 {
		return fmt.Errorf("target language %q is too long", trimmed)
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return fmt.Errorf("target language %q contains control characters", trimmed)
		}
	}
	if !strings.ContainsFunc(trimmed, unicode.IsLetter) {
		return fmt.Errorf("target language %q contains no letters", trimmed)
	}
	return nil
}
