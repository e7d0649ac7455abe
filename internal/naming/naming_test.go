package naming_test

import (
	"testing"

	"github.com/book-expert/voice-installer/internal/naming"
	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		baseName   string
		wantLang   string
		wantRegion string
	}{
		{name: "piper convention", baseName: "en_US-amy-medium", wantLang: "en", wantRegion: "US"},
		{name: "french speaker", baseName: "fr_FR-pierre", wantLang: "fr", wantRegion: "FR"},
		{name: "no separator falls back", baseName: "somemodel", wantLang: "en", wantRegion: "US"},
		{name: "locale only", baseName: "de_DE", wantLang: "de", wantRegion: "DE"},
		{name: "three locale parts fall back", baseName: "zh_CN_x-voice", wantLang: "en", wantRegion: "US"},
		{name: "empty region falls back", baseName: "es_-carlos", wantLang: "en", wantRegion: "US"},
		{name: "empty language falls back", baseName: "_ES-carlos", wantLang: "en", wantRegion: "US"},
		{name: "empty name falls back", baseName: "", wantLang: "en", wantRegion: "US"},
		{name: "kokoro model name falls back", baseName: "kokoro-v1_0", wantLang: "en", wantRegion: "US"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			lang, region := naming.Resolve(testCase.baseName)
			assert.Equal(t, testCase.wantLang, lang)
			assert.Equal(t, testCase.wantRegion, region)
		})
	}
}

func TestBaseName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "de_DE-thorsten-low", naming.BaseName("/tmp/x/de_DE-thorsten-low.onnx"))
	assert.Equal(t, "model", naming.BaseName("model.ONNX"))
	assert.Equal(t, "voice", naming.BaseName("voice.bin"))
	assert.Equal(t, "plain", naming.BaseName("plain"))
}
