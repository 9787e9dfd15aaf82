// Package assets moves images between clients and the blob store. It owns the
// upload pipeline (validate, recompress, name, upload) and the explicit
// deletion of images that are no longer referenced by any record.
package assets

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/AldoManuel/juchifood/src/config"
	"github.com/AldoManuel/juchifood/src/imaging"
	"github.com/AldoManuel/juchifood/src/logging"
	"github.com/AldoManuel/juchifood/src/models"
	"github.com/AldoManuel/juchifood/src/oops"
	"github.com/AldoManuel/juchifood/src/perf"
	"github.com/google/uuid"
)

// The subset of the blob store client the coordinator needs.
type BlobStore interface {
	Upload(ctx context.Context, bucket, path string, content []byte, contentType string) error
	Delete(ctx context.Context, bucket, path string) error
	PublicURL(bucket, path string) string
	ParseURL(publicURL string) (bucket, path string, err error)
}

type Buckets struct {
	Profile string
	Product string
}

func BucketsFromConfig() Buckets {
	return Buckets{
		Profile: config.Config.Storage.ProfileBucket,
		Product: config.Config.Storage.ProductBucket,
	}
}

func (b Buckets) For(kind models.OwnerKind) (string, error) {
	switch kind {
	case models.OwnerProfile:
		return b.Profile, nil
	case models.OwnerProduct:
		return b.Product, nil
	default:
		return "", oops.New(nil, "unknown image owner kind %q", kind)
	}
}

type Coordinator struct {
	blobs   BlobStore
	buckets Buckets
	policy  imaging.Policy

	now func() time.Time
}

func NewCoordinator(blobs BlobStore, buckets Buckets, policy imaging.Policy) *Coordinator {
	return &Coordinator{
		blobs:   blobs,
		buckets: buckets,
		policy:  policy,
		now:     time.Now,
	}
}

/*
Validates, recompresses and uploads file as the new image for the given owner.

On success the returned ref is fully populated and the caller should write
ref.PublicURL into the owning record, then call RetireImage for previousURL.
previousURL is never touched here.

On failure the ref is the zero value and the error is an
*imaging.ValidationError (nothing was sent anywhere) or a
*blobstore.UploadError (nothing was stored).
*/
func (c *Coordinator) ReplaceImage(
	ctx context.Context,
	kind models.OwnerKind,
	ownerID uuid.UUID,
	file models.ImageAsset,
	previousURL string,
	preset imaging.Preset,
) (models.StoredImageRef, error) {
	p := perf.ExtractPerf(ctx)
	logger := logging.ExtractLogger(ctx).With().
		Str("kind", string(kind)).
		Str("owner", ownerID.String()).
		Logger()

	bucket, err := c.buckets.For(kind)
	if err != nil {
		return models.StoredImageRef{}, err
	}

	if err := c.policy.Validate(file); err != nil {
		logger.Debug().Err(err).Str("filename", file.Filename).Msg("image rejected")
		return models.StoredImageRef{}, err
	}

	b := p.StartBlock("IMAGE", "Recompress")
	out := imaging.Recompress(file, preset)
	b.End()
	if !out.Recompressed {
		logger.Debug().Str("filename", file.Filename).Msg("uploading original image without recompression")
	}

	objectPath := ObjectPath(kind, ownerID, file.Filename, c.now())
	err = c.blobs.Upload(ctx, bucket, objectPath, out.Content, out.MimeType)
	if err != nil {
		return models.StoredImageRef{}, err
	}

	ref := models.StoredImageRef{
		Bucket:    bucket,
		Path:      objectPath,
		PublicURL: c.blobs.PublicURL(bucket, objectPath),
	}
	logger.Info().
		Str("url", ref.PublicURL).
		Int64("original bytes", file.ByteSize).
		Int64("stored bytes", out.ByteSize()).
		Bool("replacing", previousURL != "").
		Msg("stored image")

	return ref, nil
}

// Deletes the image at url from the bucket that belongs to kind. Errors are
// for logging; nothing a caller holds depends on the outcome.
func (c *Coordinator) DeleteImage(ctx context.Context, kind models.OwnerKind, url string) error {
	expected, err := c.buckets.For(kind)
	if err != nil {
		return err
	}

	bucket, objectPath, err := c.blobs.ParseURL(url)
	if err != nil {
		return oops.New(err, "cannot delete image with unrecognized url")
	}
	if bucket != expected {
		return oops.New(nil, "image %s is in bucket %s, expected %s", url, bucket, expected)
	}

	return c.blobs.Delete(ctx, bucket, objectPath)
}

// Deletes previousURL once the owning record points at currentURL instead.
// Failures are logged and otherwise ignored.
func (c *Coordinator) RetireImage(ctx context.Context, kind models.OwnerKind, previousURL, currentURL string) {
	if previousURL == "" || previousURL == currentURL {
		return
	}

	err := c.DeleteImage(ctx, kind, previousURL)
	if err != nil {
		logging.ExtractLogger(ctx).Warn().
			Err(err).
			Str("kind", string(kind)).
			Str("url", previousURL).
			Msg("failed to delete old image")
	}
}

var REIllegalFilenameChars = regexp.MustCompile(`[^\w\-.]`)

func SanitizeFilename(filename string) string {
	if filename == "" {
		return "unnamed"
	}
	return REIllegalFilenameChars.ReplaceAllString(filename, "_")
}

// The extension of the original filename, lowercased. The stored bytes are
// usually JPEG regardless, but URLs keep the name the client uploaded.
func Extension(filename string) string {
	ext := strings.TrimPrefix(path.Ext(strings.TrimSpace(filename)), ".")
	if ext == "" {
		return "jpg"
	}
	return strings.ToLower(SanitizeFilename(ext))
}

// Builds <kind>-<ownerID>-<unixMillis>-<token>.<ext>.
func ObjectPath(kind models.OwnerKind, ownerID uuid.UUID, filename string, now time.Time) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%s-%d-%s.%s", kind, ownerID, now.UnixMilli(), token, Extension(filename))
}
