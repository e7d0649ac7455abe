package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/book-expert/voice-installer/internal/core"
)

// Persisted field names.
const (
	fieldName       = "name"
	fieldLang       = "lang"
	fieldCountry    = "country"
	fieldSpeakerID  = "speakerId"
	fieldSpeed      = "speed"
	fieldVolume     = "volume"
	fieldModelType  = "modelType"
	fieldFolderName = "folderName"
)

// wireRecord is one persisted object with its fields still undecoded, so that
// a field of the wrong type falls back to its default without affecting the
// other fields or records.
type wireRecord map[string]json.RawMessage

// field returns the raw value for key. An explicit null counts as missing.
func (w wireRecord) field(key string) (json.RawMessage, bool) {
	raw, ok := w[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}

	return raw, true
}

// stringField returns the field as a string. Numbers and booleans are taken in
// their JSON text form; anything else counts as missing.
func (w wireRecord) stringField(key, fallback string) string {
	raw, ok := w.field(key)
	if !ok {
		return fallback
	}

	var s string

	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	var scalar any

	err := json.Unmarshal(raw, &scalar)
	if err != nil {
		return fallback
	}

	switch scalar.(type) {
	case float64, bool:
		return string(bytes.TrimSpace(raw))
	default:
		return fallback
	}
}

// numberField returns the field as a finite number. Numeric strings are accepted.
func (w wireRecord) numberField(key string) (float64, bool) {
	raw, ok := w.field(key)
	if !ok {
		return 0, false
	}

	var n float64

	if json.Unmarshal(raw, &n) != nil {
		var s string

		if json.Unmarshal(raw, &s) != nil {
			return 0, false
		}

		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}

		n = parsed
	}

	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}

	return n, true
}

func (w wireRecord) positiveField(key string, fallback float64) float64 {
	n, ok := w.numberField(key)
	if !ok || n <= 0 {
		return fallback
	}

	return n
}

func (w wireRecord) record() core.PackageRecord {
	lang := w.stringField(fieldLang, core.DefaultLanguage)
	country := w.stringField(fieldCountry, core.DefaultRegion)

	speaker := core.DefaultSpeakerIndex
	if n, ok := w.numberField(fieldSpeakerID); ok && n > 0 && n <= math.MaxInt32 {
		speaker = int(n)
	}

	return core.PackageRecord{
		DisplayName:  w.stringField(fieldName, core.DefaultDisplayName),
		Language:     lang,
		Region:       country,
		SpeakerIndex: speaker,
		Speed:        w.positiveField(fieldSpeed, core.DefaultSpeed),
		Volume:       w.positiveField(fieldVolume, core.DefaultVolume),
		Kind:         core.ParseKind(w.stringField(fieldModelType, core.DefaultKind.String())),
		FolderName:   w.stringField(fieldFolderName, core.FolderName(lang, country)),
	}
}

// Decode parses a persisted registry document. Missing fields and fields of the
// wrong type take their documented defaults, unknown fields are ignored and
// array elements that are not objects are skipped. An empty document is an
// empty registry. Only a document that is not a JSON array is corrupt.
func Decode(data []byte) ([]core.PackageRecord, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var elements []json.RawMessage

	err := json.Unmarshal(data, &elements)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistryCorrupt, err)
	}

	records := make([]core.PackageRecord, 0, len(elements))

	for _, element := range elements {
		var w wireRecord

		if json.Unmarshal(element, &w) != nil || w == nil {
			continue
		}

		records = append(records, w.record())
	}

	return records, nil
}

// Encode serialises records as one JSON array using the persisted field names.
func Encode(records []core.PackageRecord) ([]byte, error) {
	if records == nil {
		records = []core.PackageRecord{}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registry: %w", err)
	}

	return data, nil
}
