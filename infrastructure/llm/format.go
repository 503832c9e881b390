package llm

import "bytes"

// Format detection is by magic bytes only; the gateway's mime hints are
// not trusted for payloads that reach the LLM provider.

type ImageFormat struct {
	Ext  string
	Mime string
}

type AudioFormat struct {
	Ext  string
	Mime string
}

// DetectImageFormat recognizes JPEG, PNG, GIF and WEBP.
func DetectImageFormat(data []byte) (ImageFormat, bool) {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return ImageFormat{Ext: "jpg", Mime: "image/jpeg"}, true
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return ImageFormat{Ext: "png", Mime: "image/png"}, true
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("GIF8")):
		return ImageFormat{Ext: "gif", Mime: "image/gif"}, true
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return ImageFormat{Ext: "webp", Mime: "image/webp"}, true
	}
	return ImageFormat{}, false
}

// DetectAudioFormat recognizes mp3, mp4/m4a, wav, webm and ogg.
func DetectAudioFormat(data []byte) (AudioFormat, bool) {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], []byte("ID3")):
		return AudioFormat{Ext: "mp3", Mime: "audio/mpeg"}, true
	case len(data) >= 2 && data[0] == 0xFF && (data[1] == 0xFB || data[1] == 0xF3 || data[1] == 0xF2):
		return AudioFormat{Ext: "mp3", Mime: "audio/mpeg"}, true
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return AudioFormat{Ext: "m4a", Mime: "audio/mp4"}, true
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return AudioFormat{Ext: "wav", Mime: "audio/wav"}, true
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return AudioFormat{Ext: "webm", Mime: "audio/webm"}, true
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("OggS")):
		return AudioFormat{Ext: "ogg", Mime: "audio/ogg"}, true
	}
	return AudioFormat{}, false
}
