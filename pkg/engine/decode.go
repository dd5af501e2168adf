package engine

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/font/sfnt"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/animkit/animkit/pkg/protocol"
)

// ImageInfo is what Memory keeps of a decoded image.
type ImageInfo struct {
	Format string
	Width  int
	Height int
}

// FontInfo is what Memory keeps of a decoded font.
type FontInfo struct {
	Family string
	Glyphs int
}

// AudioInfo is what Memory keeps of a decoded audio clip.
type AudioInfo struct {
	MIME string
	Size int
}

func decodeImage(data []byte) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, NewDecodeError(protocol.KindImage, errors.New("empty payload"))
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, NewDecodeError(protocol.KindImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, NewDecodeError(protocol.KindImage, fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height))
	}
	return ImageInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

func decodeFont(data []byte) (FontInfo, error) {
	if len(data) == 0 {
		return FontInfo{}, NewDecodeError(protocol.KindFont, errors.New("empty payload"))
	}
	f, err := sfnt.Parse(data)
	if err != nil {
		return FontInfo{}, NewDecodeError(protocol.KindFont, err)
	}

	var buf sfnt.Buffer
	family, err := f.Name(&buf, sfnt.NameIDFamily)
	if err != nil && !errors.Is(err, sfnt.ErrNotFound) {
		return FontInfo{}, NewDecodeError(protocol.KindFont, err)
	}
	return FontInfo{Family: family, Glyphs: f.NumGlyphs()}, nil
}

func decodeAudio(data []byte) (AudioInfo, error) {
	if len(data) == 0 {
		return AudioInfo{}, NewDecodeError(protocol.KindAudio, errors.New("empty payload"))
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "audio/") {
		return AudioInfo{}, NewDecodeError(protocol.KindAudio, fmt.Errorf("unsupported payload type %s", mt.String()))
	}
	return AudioInfo{MIME: mt.String(), Size: len(data)}, nil
}
