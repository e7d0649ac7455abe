// Package naming derives locale information from voice package file names.
//
// Package files follow the "<lang>_<REGION>-<speaker>-<quality>" convention,
// e.g. "en_US-amy-medium.onnx". Names that do not follow it resolve to the
// fallback locale so that an unrecognised package still installs.
package naming

import (
	"path/filepath"
	"strings"
)

// Fallback locale for names that do not follow the convention.
const (
	FallbackLanguage = "en"
	FallbackRegion   = "US"
)

const (
	segmentSeparator = "-"
	localeSeparator  = "_"
	modelExtension   = ".onnx"
	localeParts      = 2
)

// Resolve returns the language and region encoded in a model base name.
// It never fails: anything other than exactly two non-empty "_"-separated parts
// in the first "-" segment yields the fallback locale.
func Resolve(baseName string) (language, region string) {
	prefix, _, _ := strings.Cut(baseName, segmentSeparator)

	parts := strings.Split(prefix, localeSeparator)
	if len(parts) != localeParts || parts[0] == "" || parts[1] == "" {
		return FallbackLanguage, FallbackRegion
	}

	return parts[0], parts[1]
}

// BaseName strips the directory and the model extension from a package file path.
func BaseName(path string) string {
	name := filepath.Base(path)

	if strings.EqualFold(filepath.Ext(name), modelExtension) {
		return name[:len(name)-len(modelExtension)]
	}

	return strings.TrimSuffix(name, filepath.Ext(name))
}
