package probe

import (
	"bytes"
	"strings"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/tcolgate/mp3"
)

// Format identifies a stream's container or codec
type Format string

const (
	FormatUnknown Format = "unknown"
	FormatMP3     Format = "mp3"
	FormatAAC     Format = "aac"
	FormatM4A     Format = "m4a"
	FormatOgg     Format = "ogg"
	FormatFLAC    Format = "flac"
	FormatWAV     Format = "wav"
	FormatHLS     Format = "hls"
	FormatM3U     Format = "m3u"
	FormatPLS     Format = "pls"
)

// IsPlaylist reports whether the format is a playlist rather than audio
func (f Format) IsPlaylist() bool {
	return f == FormatHLS || f == FormatM3U || f == FormatPLS
}

// StreamInfo describes what a stream URL serves
type StreamInfo struct {
	Format      Format `json:"format"`
	ContentType string `json:"contentType,omitempty"`
	Bitrate     int    `json:"bitrate,omitempty"` // kbps
	SampleRate  int    `json:"sampleRate,omitempty"`
	Channels    int    `json:"channels,omitempty"`
}

// Identify determines the stream format from the leading bytes, falling
// back to the Content-Type header when the bytes are inconclusive
func Identify(contentType string, data []byte) StreamInfo {
	info := sniff(data)
	if info.Format == FormatUnknown {
		info.Format = formatFromContentType(contentType)
	}
	info.ContentType = contentType
	return info
}

func sniff(data []byte) StreamInfo {
	switch {
	case len(data) == 0:
		return StreamInfo{Format: FormatUnknown}
	case isPlaylist(data):
		return StreamInfo{Format: playlistFormat(data)}
	case bytes.HasPrefix(data, []byte("OggS")):
		return StreamInfo{Format: FormatOgg}
	case bytes.HasPrefix(data, []byte("fLaC")):
		return sniffFLAC(data)
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WAVE":
		return sniffWAV(data)
	case isADTS(data):
		return StreamInfo{Format: FormatAAC}
	}

	// Tagged files: ID3 prefixed MP3, MP4 family
	if _, fileType, err := tag.Identify(bytes.NewReader(data)); err == nil {
		switch fileType {
		case tag.M4A, tag.M4B, tag.M4P, tag.ALAC:
			return StreamInfo{Format: FormatM4A}
		case tag.FLAC:
			return sniffFLAC(data)
		case tag.OGG:
			return StreamInfo{Format: FormatOgg}
		case tag.MP3:
			if info, ok := sniffMP3(data); ok {
				return info
			}
			return StreamInfo{Format: FormatMP3}
		}
	}

	// Untagged MPEG audio, as served by most Icecast/Shoutcast mounts
	if info, ok := sniffMP3(data); ok {
		return info
	}

	return StreamInfo{Format: FormatUnknown}
}

// sniffMP3 requires two consecutive frames so random bytes that happen
// to contain a sync word are not taken for MPEG audio
func sniffMP3(data []byte) (StreamInfo, bool) {
	dec := mp3.NewDecoder(bytes.NewReader(data))

	var frame mp3.Frame
	var skipped int
	if err := dec.Decode(&frame, &skipped); err != nil {
		return StreamInfo{}, false
	}
	header := frame.Header()

	var next mp3.Frame
	var gap int
	if err := dec.Decode(&next, &gap); err != nil || gap != 0 {
		return StreamInfo{}, false
	}

	channels := 2
	if header.ChannelMode() == mp3.SingleChannel {
		channels = 1
	}

	return StreamInfo{
		Format:     FormatMP3,
		Bitrate:    int(header.BitRate()) / 1000,
		SampleRate: int(header.SampleRate()),
		Channels:   channels,
	}, true
}

func sniffFLAC(data []byte) StreamInfo {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return StreamInfo{Format: FormatFLAC}
	}
	defer stream.Close()

	return StreamInfo{
		Format:     FormatFLAC,
		SampleRate: int(stream.Info.SampleRate),
		Channels:   int(stream.Info.NChannels),
	}
}

func sniffWAV(data []byte) StreamInfo {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return StreamInfo{Format: FormatUnknown}
	}

	info := StreamInfo{
		Format:     FormatWAV,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}
	if dec.SampleRate > 0 && dec.BitDepth > 0 && dec.NumChans > 0 {
		info.Bitrate = int(dec.SampleRate) * int(dec.BitDepth) * int(dec.NumChans) / 1000
	}
	return info
}

// isADTS matches the ADTS sync word with the layer bits zeroed, which
// distinguishes raw AAC from MPEG audio frames
func isADTS(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xF6 == 0xF0
}

func isPlaylist(data []byte) bool {
	text := strings.ToLower(strings.TrimSpace(string(firstLine(data))))
	return strings.HasPrefix(text, "#extm3u") || strings.HasPrefix(text, "[playlist]")
}

func playlistFormat(data []byte) Format {
	text := strings.ToLower(string(bytes.TrimLeft(data, "\ufeff \t\r\n")))
	switch {
	case strings.HasPrefix(text, "[playlist]"):
		return FormatPLS
	case strings.Contains(text, "#ext-x-"):
		return FormatHLS
	default:
		return FormatM3U
	}
}

func firstLine(data []byte) []byte {
	data = bytes.TrimLeft(data, "\ufeff \t\r\n")
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[:i]
	}
	return data
}

// formatFromContentType maps the HTTP Content-Type to a format
func formatFromContentType(contentType string) Format {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch mediaType {
	case "audio/mpeg", "audio/mp3", "audio/mpeg3":
		return FormatMP3
	case "audio/aac", "audio/aacp", "audio/x-aac":
		return FormatAAC
	case "audio/mp4", "audio/x-m4a":
		return FormatM4A
	case "audio/ogg", "application/ogg", "audio/opus", "audio/vorbis":
		return FormatOgg
	case "audio/flac", "audio/x-flac":
		return FormatFLAC
	case "audio/wav", "audio/x-wav", "audio/wave":
		return FormatWAV
	case "application/vnd.apple.mpegurl", "application/x-mpegurl":
		return FormatHLS
	case "audio/x-mpegurl", "audio/mpegurl":
		return FormatM3U
	case "audio/x-scpls":
		return FormatPLS
	default:
		return FormatUnknown
	}
}
