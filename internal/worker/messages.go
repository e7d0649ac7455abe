package worker

import (
	"github.com/book-expert/events"
	"github.com/book-expert/voice-installer/internal/core"
	"github.com/book-expert/voice-installer/internal/voices"
)

// InstallRequest asks the worker to install a package previously stored in the
// package object bucket under ObjectKey. FileName is the original file name and
// defaults to ObjectKey.
type InstallRequest struct {
	Header    events.EventHeader `json:"header"`
	ObjectKey string             `json:"objectKey"`
	FileName  string             `json:"fileName,omitempty"`
}

// InstallReply answers an InstallRequest.
type InstallReply struct {
	Header events.EventHeader  `json:"header"`
	Result *core.InstallResult `json:"result,omitempty"`
	Record *core.PackageRecord `json:"record,omitempty"`
	Added  bool                `json:"added"`
	Error  string              `json:"error,omitempty"`
}

// DeleteRequest asks the worker to delete the voice installed for Language.
type DeleteRequest struct {
	Header   events.EventHeader `json:"header"`
	Language string             `json:"language"`
}

// DeleteReply answers a DeleteRequest. Error is set for partial deletes as well.
type DeleteReply struct {
	Header   events.EventHeader `json:"header"`
	Language string             `json:"language"`
	Error    string             `json:"error,omitempty"`
}

// ListRequest asks for the installed voices. Its payload is optional.
type ListRequest struct {
	Header events.EventHeader `json:"header"`
}

// ListReply carries the installed voices in registry order.
type ListReply struct {
	Header events.EventHeader      `json:"header"`
	Voices []voices.InstalledVoice `json:"voices"`
	Error  string                  `json:"error,omitempty"`
}
