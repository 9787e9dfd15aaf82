package imaging

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/AldoManuel/juchifood/src/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = Policy{
	MaxBytes:     5242880,
	AllowedTypes: []string{"image/jpeg", "image/jpg", "image/png", "image/webp"},
}

func TestValidate(t *testing.T) {
	t.Run("accepts allowed types at the limit", func(t *testing.T) {
		for _, mimeType := range testPolicy.AllowedTypes {
			err := testPolicy.Validate(models.ImageAsset{MimeType: mimeType, ByteSize: 5242880})
			assert.Nil(t, err, mimeType)
		}
	})
	t.Run("too large regardless of type", func(t *testing.T) {
		for _, mimeType := range []string{"image/png", "image/gif", "application/pdf", ""} {
			err := testPolicy.Validate(models.ImageAsset{MimeType: mimeType, ByteSize: 5242881})
			var verr *ValidationError
			if assert.ErrorAs(t, err, &verr, mimeType) {
				assert.Equal(t, TooLarge, verr.Reason)
			}
		}
	})
	t.Run("unsupported type even if small", func(t *testing.T) {
		for _, mimeType := range []string{"image/gif", "image/svg+xml", "text/plain", ""} {
			err := testPolicy.Validate(models.ImageAsset{MimeType: mimeType, ByteSize: 10})
			var verr *ValidationError
			if assert.ErrorAs(t, err, &verr, mimeType) {
				assert.Equal(t, UnsupportedType, verr.Reason)
			}
		}
	})
	t.Run("type comparison ignores case", func(t *testing.T) {
		assert.Nil(t, testPolicy.Validate(models.ImageAsset{MimeType: "Image/PNG", ByteSize: 10}))
	})
	t.Run("messages", func(t *testing.T) {
		err := &ValidationError{Reason: TooLarge, ByteSize: 6 * 1024 * 1024, MaxBytes: 5 * 1024 * 1024}
		assert.Contains(t, err.UserMessage(), "5 MB")
		assert.Contains(t, err.Error(), "6291456")
	})
}

func TestTargetDimensions(t *testing.T) {
	type testCase struct {
		w, h, max    int
		wantW, wantH int
	}
	cases := []testCase{
		{300, 200, 400, 300, 200},    // already fits
		{400, 400, 400, 400, 400},    // exactly at the limit
		{1200, 600, 800, 800, 400},   // landscape
		{600, 1200, 800, 400, 800},   // portrait
		{1000, 1000, 400, 400, 400},  // square
		{1000, 333, 400, 400, 133},   // rounds down
		{1000, 337, 400, 400, 135},   // rounds up
		{5000, 2, 400, 400, 1},       // never collapses to zero
		{4032, 3024, 800, 800, 600},  // phone camera
		{3024, 4032, 400, 300, 400},  // phone camera, portrait
		{801, 800, 800, 800, 799},    // barely landscape
		{10, 10, 0, 10, 10},          // no limit
	}
	for _, c := range cases {
		w, h := TargetDimensions(c.w, c.h, c.max)
		assert.Equal(t, c.wantW, w, "%dx%d max %d", c.w, c.h, c.max)
		assert.Equal(t, c.wantH, h, "%dx%d max %d", c.w, c.h, c.max)
	}
}

func TestTargetDimensionsNeverExceedLimit(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		w, h := r.Intn(6000)+1, r.Intn(6000)+1
		limit := r.Intn(1200) + 1
		tw, th := TargetDimensions(w, h, limit)
		assert.LessOrEqual(t, tw, limit)
		assert.LessOrEqual(t, th, limit)
		assert.GreaterOrEqual(t, tw, 1)
		assert.GreaterOrEqual(t, th, 1)
		if w <= limit && h <= limit {
			assert.Equal(t, w, tw)
			assert.Equal(t, h, th)
		} else {
			assert.True(t, tw == limit || th == limit)
		}
	}
}

func TestJPEGQuality(t *testing.T) {
	assert.Equal(t, 70, JPEGQuality(0.7))
	assert.Equal(t, 80, JPEGQuality(0.8))
	assert.Equal(t, 100, JPEGQuality(1))
	assert.Equal(t, 1, JPEGQuality(0))
	assert.Equal(t, 100, JPEGQuality(3))
}

func TestRecompress(t *testing.T) {
	t.Run("product photo is scaled down", func(t *testing.T) {
		input := noisyJPEG(t, 1200, 600)
		asset := models.ImageAsset{
			OwnerKind: models.OwnerProduct,
			OwnerID:   uuid.New(),
			Filename:  "tacos.jpg",
			MimeType:  "image/jpeg",
			ByteSize:  int64(len(input)),
			Width:     1200,
			Height:    600,
			Content:   input,
		}

		out := Recompress(asset, Preset{MaxDimension: 800, Quality: 0.8})
		assert.True(t, out.Recompressed)
		assert.Equal(t, "image/jpeg", out.MimeType)
		assert.Equal(t, 800, out.Width)
		assert.Equal(t, 400, out.Height)
		assert.LessOrEqual(t, out.ByteSize(), asset.ByteSize)

		w, h := Dimensions(out.Content)
		assert.Equal(t, 800, w)
		assert.Equal(t, 400, h)
	})
	t.Run("png becomes jpeg", func(t *testing.T) {
		input := noisyPNG(t, 500, 500)
		out := Recompress(models.ImageAsset{
			Filename: "logo.png",
			MimeType: "image/png",
			ByteSize: int64(len(input)),
			Content:  input,
		}, Preset{MaxDimension: 400, Quality: 0.7})

		assert.True(t, out.Recompressed)
		assert.Equal(t, "image/jpeg", out.MimeType)
		assert.Equal(t, 400, out.Width)
		assert.Equal(t, 400, out.Height)
		_, format, err := image.DecodeConfig(bytes.NewReader(out.Content))
		require.Nil(t, err)
		assert.Equal(t, "jpeg", format)
	})
	t.Run("small image keeps its size", func(t *testing.T) {
		input := noisyPNG(t, 120, 80)
		out := Recompress(models.ImageAsset{MimeType: "image/png", Content: input}, Preset{MaxDimension: 400, Quality: 0.7})
		assert.True(t, out.Recompressed)
		assert.Equal(t, 120, out.Width)
		assert.Equal(t, 80, out.Height)
	})
	t.Run("undecodable input falls back to the original", func(t *testing.T) {
		garbage := []byte("RIFF....WEBPVP8 this is not really a webp")
		asset := models.ImageAsset{
			Filename: "broken.webp",
			MimeType: "image/webp",
			ByteSize: int64(len(garbage)),
			Width:    10,
			Height:   20,
			Content:  garbage,
		}

		out := Recompress(asset, Preset{MaxDimension: 400, Quality: 0.7})
		assert.False(t, out.Recompressed)
		assert.Equal(t, garbage, out.Content)
		assert.Equal(t, "image/webp", out.MimeType)
		assert.Equal(t, 10, out.Width)
		assert.Equal(t, 20, out.Height)
	})
	t.Run("images over the pixel budget are not decoded", func(t *testing.T) {
		input := noisyPNG(t, 300, 200)
		asset := models.ImageAsset{
			Filename: "huge.png",
			MimeType: "image/png",
			ByteSize: int64(len(input)),
			Width:    300,
			Height:   200,
			Content:  input,
		}

		out := Recompress(asset, Preset{MaxDimension: 100, Quality: 0.7, MaxPixels: 300*200 - 1})
		assert.False(t, out.Recompressed)
		assert.Equal(t, input, out.Content)
		assert.Equal(t, "image/png", out.MimeType)
		assert.Equal(t, 300, out.Width)

		out = Recompress(asset, Preset{MaxDimension: 100, Quality: 0.7, MaxPixels: 300 * 200})
		assert.True(t, out.Recompressed)
	})
	t.Run("tiny file declaring a giant canvas is kept as is", func(t *testing.T) {
		input := pngHeaderOnly(t, 100_000, 100_000)
		require.Less(t, len(input), 100)

		out := Recompress(models.ImageAsset{
			Filename: "bomb.png",
			MimeType: "image/png",
			ByteSize: int64(len(input)),
			Content:  input,
		}, Preset{MaxDimension: 400, Quality: 0.7, MaxPixels: 40_000_000})
		assert.False(t, out.Recompressed)
		assert.Equal(t, input, out.Content)
	})
}

// A PNG signature plus an IHDR chunk and nothing else. Enough for
// image.DecodeConfig, with no pixel data behind it.
func pngHeaderOnly(t *testing.T, w, h uint32) []byte {
	t.Helper()

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	require.Nil(t, binary.Write(&buf, binary.BigEndian, uint32(len(ihdr))))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	require.Nil(t, binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk)))

	cfg, format, err := image.DecodeConfig(bytes.NewReader(buf.Bytes()))
	require.Nil(t, err)
	require.Equal(t, "png", format)
	require.Equal(t, int(w), cfg.Width)

	return buf.Bytes()
}

func TestDimensions(t *testing.T) {
	w, h := Dimensions(noisyPNG(t, 33, 44))
	assert.Equal(t, 33, w)
	assert.Equal(t, 44, h)

	w, h = Dimensions([]byte("nope"))
	assert.Equal(t, 0, w)
	assert.Equal(t, 0, h)
}

func noisyImage(w, h int) *image.RGBA {
	r := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(r.Intn(256)), uint8(r.Intn(256)), uint8(r.Intn(256)), 255})
		}
	}
	return img
}

func noisyJPEG(t *testing.T, w, h int) []byte {
	var buf bytes.Buffer
	require.Nil(t, jpeg.Encode(&buf, noisyImage(w, h), &jpeg.Options{Quality: 100}))
	return buf.Bytes()
}

func noisyPNG(t *testing.T, w, h int) []byte {
	var buf bytes.Buffer
	require.Nil(t, png.Encode(&buf, noisyImage(w, h)))
	return buf.Bytes()
}
