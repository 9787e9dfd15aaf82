package imaging

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"

	"github.com/AldoManuel/juchifood/src/config"
	"github.com/AldoManuel/juchifood/src/logging"
	"github.com/AldoManuel/juchifood/src/models"
	"github.com/AldoManuel/juchifood/src/utils"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const OutputMimeType = "image/jpeg"

type Preset struct {
	MaxDimension int
	// JPEG quality in (0, 1].
	Quality float64
	// Decode budget in pixels. Zero means images.max_pixels from the config.
	MaxPixels int
}

func PresetFor(kind models.OwnerKind) Preset {
	var p config.ImagePreset
	switch kind {
	case models.OwnerProduct:
		p = config.Config.Images.Product
	default:
		p = config.Config.Images.Profile
	}
	return Preset{
		MaxDimension: p.MaxDimension,
		Quality:      p.Quality,
		MaxPixels:    config.Config.Images.MaxPixels,
	}
}

type RecompressedFile struct {
	Content  []byte
	MimeType string
	Width    int
	Height   int

	// False when the original bytes were passed through unchanged.
	Recompressed bool
}

func (f RecompressedFile) ByteSize() int64 {
	return int64(len(f.Content))
}

/*
Scales the image so its longer side is at most preset.MaxDimension and
re-encodes it as JPEG at preset.Quality. Images that already fit are
re-encoded at their original size.

This never fails: if the image cannot be decoded or encoded, the original
file is returned as-is with Recompressed set to false. Images whose header
declares more than preset.MaxPixels pixels are never decoded and count as
undecodable.
*/
func Recompress(asset models.ImageAsset, preset Preset) RecompressedFile {
	original := RecompressedFile{
		Content:  asset.Content,
		MimeType: asset.MimeType,
		Width:    asset.Width,
		Height:   asset.Height,
	}

	maxPixels := utils.OrDefault(preset.MaxPixels, config.Config.Images.MaxPixels)
	header, _, err := image.DecodeConfig(bytes.NewReader(asset.Content))
	if err != nil {
		logging.Debug().Err(err).Str("filename", asset.Filename).Msg("could not read image header; keeping original")
		return original
	}
	if int64(header.Width)*int64(header.Height) > int64(maxPixels) {
		logging.Warn().
			Str("filename", asset.Filename).
			Int("width", header.Width).
			Int("height", header.Height).
			Int("maxPixels", maxPixels).
			Msg("image has too many pixels to decode; keeping original")
		return original
	}

	src, _, err := image.Decode(bytes.NewReader(asset.Content))
	if err != nil {
		logging.Debug().Err(err).Str("filename", asset.Filename).Msg("could not decode image; keeping original")
		return original
	}

	srcBounds := src.Bounds()
	w, h := TargetDimensions(srcBounds.Dx(), srcBounds.Dy(), preset.MaxDimension)

	// JPEG has no alpha, so transparent areas are flattened onto white.
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, srcBounds, draw.Over, nil)

	var buf bytes.Buffer
	err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality(preset.Quality)})
	if err != nil {
		logging.Debug().Err(err).Str("filename", asset.Filename).Msg("could not encode image; keeping original")
		return original
	}

	return RecompressedFile{
		Content:      buf.Bytes(),
		MimeType:     OutputMimeType,
		Width:        w,
		Height:       h,
		Recompressed: true,
	}
}

// Returns the dimensions that fit w×h inside a limit×limit box while keeping
// the aspect ratio. The longer side becomes limit; square images shrink on
// both sides. Images that already fit are unchanged.
func TargetDimensions(w, h, limit int) (int, int) {
	if limit <= 0 || (w <= limit && h <= limit) {
		return w, h
	}

	if w > h {
		return limit, atLeastOne(math.Round(float64(h) * float64(limit) / float64(w)))
	}
	return atLeastOne(math.Round(float64(w) * float64(limit) / float64(h))), limit
}

func atLeastOne(v float64) int {
	if v < 1 {
		return 1
	}
	return int(v)
}

// Maps a 0-1 quality factor onto the 1-100 scale of image/jpeg.
func JPEGQuality(q float64) int {
	quality := int(math.Round(q * 100))
	if quality < 1 {
		return 1
	}
	if quality > 100 {
		return 100
	}
	return quality
}

// Reads the pixel dimensions from the image header without decoding pixel
// data. Returns zeros for formats we cannot read.
func Dimensions(content []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
