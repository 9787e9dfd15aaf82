package imaging

import (
	"fmt"
	"strings"

	"github.com/AldoManuel/juchifood/src/config"
	"github.com/AldoManuel/juchifood/src/models"
)

type ValidationReason string

const (
	UnsupportedType ValidationReason = "unsupported_type"
	TooLarge        ValidationReason = "too_large"
)

type ValidationError struct {
	Reason   ValidationReason
	MimeType string
	ByteSize int64
	MaxBytes int64
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case TooLarge:
		return fmt.Sprintf("image is too large (%d bytes, max %d)", e.ByteSize, e.MaxBytes)
	case UnsupportedType:
		return fmt.Sprintf("unsupported image type %q", e.MimeType)
	default:
		return string(e.Reason)
	}
}

// A message that can be shown to the person uploading the file.
func (e *ValidationError) UserMessage() string {
	switch e.Reason {
	case TooLarge:
		return fmt.Sprintf("The image is too large. The maximum size is %d MB.", e.MaxBytes/(1024*1024))
	case UnsupportedType:
		return "Unsupported image type. Please upload a JPEG, PNG or WebP image."
	default:
		return "The image could not be accepted."
	}
}

type Policy struct {
	MaxBytes     int64
	AllowedTypes []string
}

func PolicyFromConfig() Policy {
	return Policy{
		MaxBytes:     config.Config.Images.MaxUploadBytes,
		AllowedTypes: config.Config.Images.AllowedTypes,
	}
}

// Checks an image against the upload policy using only its metadata. Returns
// nil or a *ValidationError. Size is checked before type, so an oversized
// file is TooLarge no matter what it claims to be.
func (p Policy) Validate(asset models.ImageAsset) error {
	if asset.ByteSize > p.MaxBytes {
		return &ValidationError{
			Reason:   TooLarge,
			MimeType: asset.MimeType,
			ByteSize: asset.ByteSize,
			MaxBytes: p.MaxBytes,
		}
	}

	if !p.allows(asset.MimeType) {
		return &ValidationError{
			Reason:   UnsupportedType,
			MimeType: asset.MimeType,
			ByteSize: asset.ByteSize,
			MaxBytes: p.MaxBytes,
		}
	}

	return nil
}

func (p Policy) allows(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	for _, t := range p.AllowedTypes {
		if mimeType == t {
			return true
		}
	}
	return false
}

// Validate checks asset against the configured policy.
func Validate(asset models.ImageAsset) error {
	return PolicyFromConfig().Validate(asset)
}
