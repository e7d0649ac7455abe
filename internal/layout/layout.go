// Package layout recognises which voice package family a directory holds.
//
// Families are told apart by companion file names only; model binaries are
// never opened.
package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/book-expert/voice-installer/internal/core"
)

// ExpectedLayouts is the user-facing list of supported package layouts.
const ExpectedLayouts = "Piper (.onnx + .onnx.json), Coqui (.onnx + config.json) " +
	"or Kokoro (model/*.onnx + voices/*.json)"

const (
	extOnnx         = ".onnx"
	extJSON         = ".json"
	suffixPiperJSON = ".onnx.json"
	coquiConfigName = "config.json"
	tokenizerName   = "tokenizer.json"
	tokensName      = "tokens.txt"
)

// ErrNotFound is returned when a directory matches none of the supported layouts.
var ErrNotFound = errors.New("no supported voice package layout found")

var (
	kokoroModelDirs = map[string]struct{}{"model": {}, "models": {}}
	kokoroVoiceDirs = map[string]struct{}{"voice": {}, "voices": {}}
)

// Match is the result of a successful detection. Paths are absolute or relative
// to the same base as the directory passed to Detect.
type Match struct {
	Kind      core.Kind
	Primary   string
	Companion string
	Extras    []string
}

// Files returns every file that makes up the package, primary first.
func (m Match) Files() []string {
	files := make([]string, 0, len(m.Extras)+2)
	files = append(files, m.Primary, m.Companion)

	return append(files, m.Extras...)
}

// Detect walks dir recursively and applies the Piper, Coqui and Kokoro rules in
// that order. The first rule that matches wins.
func Detect(dir string) (Match, error) {
	files, err := listFiles(dir)
	if err != nil {
		return Match{}, err
	}

	if m, ok := detectPiper(files); ok {
		return m, nil
	}

	if m, ok := detectCoqui(files); ok {
		return m, nil
	}

	if m, ok := detectKokoro(files); ok {
		return m, nil
	}

	return Match{}, fmt.Errorf("%w in %s", ErrNotFound, dir)
}

// listFiles returns regular files under dir in lexical walk order.
func listFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if entry.Type().IsRegular() {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	return files, nil
}

func lowerName(path string) string {
	return strings.ToLower(filepath.Base(path))
}

func isModel(path string) bool {
	return strings.EqualFold(filepath.Ext(path), extOnnx)
}

func firstModel(files []string) (string, bool) {
	for _, f := range files {
		if isModel(f) {
			return f, true
		}
	}

	return "", false
}

// detectPiper prefers the first model that has its own <model>.json and
// otherwise pairs the first model with the first *.onnx.json found.
func detectPiper(files []string) (Match, bool) {
	var companion string

	for _, f := range files {
		if strings.HasSuffix(lowerName(f), suffixPiperJSON) {
			companion = f

			break
		}
	}

	if companion == "" {
		return Match{}, false
	}

	for _, model := range files {
		if !isModel(model) {
			continue
		}

		wanted := lowerName(model) + extJSON

		for _, f := range files {
			if lowerName(f) == wanted {
				return Match{Kind: core.KindPiper, Primary: model, Companion: f}, true
			}
		}
	}

	model, ok := firstModel(files)
	if !ok {
		return Match{}, false
	}

	return Match{Kind: core.KindPiper, Primary: model, Companion: companion}, true
}

func detectCoqui(files []string) (Match, bool) {
	model, ok := firstModel(files)
	if !ok {
		return Match{}, false
	}

	for _, f := range files {
		if lowerName(f) == coquiConfigName {
			return Match{Kind: core.KindCoqui, Primary: model, Companion: f}, true
		}
	}

	return Match{}, false
}

func parentName(path string) string {
	return strings.ToLower(filepath.Base(filepath.Dir(path)))
}

func isVoice(path string) bool {
	return strings.EqualFold(filepath.Ext(path), extJSON) && lowerName(path) != tokenizerName
}

func detectKokoro(files []string) (Match, bool) {
	var model, voice string

	for _, f := range files {
		parent := parentName(f)

		if _, ok := kokoroModelDirs[parent]; ok && model == "" && isModel(f) {
			model = f
		}

		if _, ok := kokoroVoiceDirs[parent]; ok && voice == "" && isVoice(f) {
			voice = f
		}
	}

	if model == "" || voice == "" {
		return Match{}, false
	}

	m := Match{Kind: core.KindKokoro, Primary: model, Companion: voice}

	for _, extra := range []string{tokenizerName, tokensName} {
		for _, f := range files {
			if lowerName(f) == extra {
				m.Extras = append(m.Extras, f)

				break
			}
		}
	}

	return m, true
}
