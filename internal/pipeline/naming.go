package pipeline

import (
	"path/filepath"
	"strings"
	"unicode"
)

// BaseName returns the input file name without directory or extension.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LanguageSuffix makes a target language safe for use in a file name.
// Whitespace runs and path separators become a single underscore.
func LanguageSuffix(language string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.TrimSpace(language) {
		if unicode.IsSpace(r) || r == '/' || r == '\\' {
			pending = true
			continue
		}
		if pending && b.Len() > 0 {
			b.WriteByte('_')
		}
		pending = false
		b.WriteRune(r)
	}
	return b.String()
}

// OutputName is the final subtitle file name: {base}_{lang}.srt, or
// {base}.srt when nothing is translated.
func OutputName(inputPath, language string) string {
	base := BaseName(inputPath)
	if suffix := LanguageSuffix(language); suffix != "" {
		return base + "_" + suffix + ".srt"
	}
	return base + ".srt"
}

// AudioName is the extracted audio file name inside the task scratch dir.
func AudioName(inputPath string) string {
	return BaseName(inputPath) + ".wav"
}

// TranscriptName is the untranslated transcript name inside the task
// scratch dir.
func TranscriptName(inputPath string) string {
	return BaseName(inputPath) + "-original.srt"
}
