package media

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownMediaKind indicates a media kind string that is neither audio nor video.
	ErrUnknownMediaKind = errors.New("unknown media kind")

	// ErrUnknownStreamKind indicates an unrecognized stream kind string.
	ErrUnknownStreamKind = errors.New("unknown stream kind")
)

// MediaKind distinguishes audio from video tracks.
type MediaKind uint8

const (
	MediaKindUnknown MediaKind = iota
	MediaKindAudio
	MediaKindVideo
)

func (k MediaKind) String() string {
	switch k {
	case MediaKindAudio:
		return "audio"
	case MediaKindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// ParseMediaKind converts a track metadata string ("audio", "video") into a MediaKind.
func ParseMediaKind(s string) (MediaKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "audio":
		return MediaKindAudio, nil
	case "video":
		return MediaKindVideo, nil
	}
	return MediaKindUnknown, fmt.Errorf("%w: %q", ErrUnknownMediaKind, s)
}

// StreamKind describes the source of a published track within a user's session.
type StreamKind uint8

const (
	StreamKindUnknown StreamKind = iota
	StreamKindCamera
	StreamKindScreen
	StreamKindMicrophone
)

func (k StreamKind) String() string {
	switch k {
	case StreamKindCamera:
		return "camera"
	case StreamKindScreen:
		return "screen"
	case StreamKindMicrophone:
		return "mic"
	default:
		return "unknown"
	}
}

// ParseStreamKind converts a stream kind string into a StreamKind.
// An empty string maps to the default source for the media kind.
func ParseStreamKind(s string, mk MediaKind) (StreamKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		if mk == MediaKindAudio {
			return StreamKindMicrophone, nil
		}
		return StreamKindCamera, nil
	case "camera":
		return StreamKindCamera, nil
	case "screen", "screenshare":
		return StreamKindScreen, nil
	case "mic", "microphone":
		return StreamKindMicrophone, nil
	}
	return StreamKindUnknown, fmt.Errorf("%w: %q", ErrUnknownStreamKind, s)
}

// CodecKind identifies the elementary stream codec of a media packet.
type CodecKind uint8

const (
	CodecKindUnknown CodecKind = iota
	CodecKindH264
	CodecKindOpus
)

func (k CodecKind) String() string {
	switch k {
	case CodecKindH264:
		return "H264"
	case CodecKindOpus:
		return "Opus"
	default:
		return "unknown"
	}
}

// FormatKind is the container format a media packet has been tagged for.
type FormatKind uint8

const (
	// FormatRaw marks an elementary-stream packet not yet tagged for a container.
	FormatRaw FormatKind = iota
	FormatFLV
)

func (k FormatKind) String() string {
	if k == FormatFLV {
		return "flv"
	}
	return "raw"
}
