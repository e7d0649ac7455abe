package core

import (
	"encoding/json"
	"strings"
)

// Kind identifies the engine family of an installed package.
type Kind string

// Supported package kinds.
const (
	KindPiper  Kind = "piper"
	KindCoqui  Kind = "coqui"
	KindKokoro Kind = "kokoro"
)

// Record defaults, shared by the registry codec and by new installs.
const (
	DefaultDisplayName  = "voice"
	DefaultLanguage     = "en"
	DefaultRegion       = "US"
	DefaultSpeakerIndex = 0
	DefaultSpeed        = 1.0
	DefaultVolume       = 1.0
	DefaultKind         = KindPiper
)

// ParseKind maps a persisted model type onto a Kind. Unknown values fall back to DefaultKind.
func ParseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindPiper:
		return KindPiper
	case KindCoqui:
		return KindCoqui
	case KindKokoro:
		return KindKokoro
	default:
		return DefaultKind
	}
}

// String returns the persisted form of the kind.
func (k Kind) String() string {
	return string(k)
}

// UnmarshalJSON decodes a kind leniently, see ParseKind.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string

	err := json.Unmarshal(data, &s)
	if err != nil {
		return err
	}

	*k = ParseKind(s)

	return nil
}

// PackageRecord is one installed voice as held by the registry.
type PackageRecord struct {
	DisplayName  string  `json:"name"`
	Language     string  `json:"lang"`
	Region       string  `json:"country"`
	SpeakerIndex int     `json:"speakerId"`
	Speed        float64 `json:"speed"`
	Volume       float64 `json:"volume"`
	Kind         Kind    `json:"modelType"`
	FolderName   string  `json:"folderName"`
}

// InstallResult describes a package that was copied into its canonical directory.
type InstallResult struct {
	DestinationPath string   `json:"destinationPath"`
	DisplayName     string   `json:"displayName"`
	Language        string   `json:"language"`
	Region          string   `json:"region"`
	Kind            Kind     `json:"kind"`
	Files           []string `json:"files"`
	// Created is true when the install made DestinationPath rather than reusing it.
	Created bool `json:"created"`
}

// NewRecord builds the default registry record for a finished install.
func NewRecord(result InstallResult) PackageRecord {
	return PackageRecord{
		DisplayName:  result.DisplayName,
		Language:     result.Language,
		Region:       result.Region,
		SpeakerIndex: DefaultSpeakerIndex,
		Speed:        DefaultSpeed,
		Volume:       DefaultVolume,
		Kind:         result.Kind,
		FolderName:   FolderName(result.Language, result.Region),
	}
}

// FolderName is the canonical directory name for a language and region.
func FolderName(language, region string) string {
	return language + region
}
