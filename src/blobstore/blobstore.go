// Package blobstore talks to the S3-compatible object store that holds
// profile and product images.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/AldoManuel/juchifood/src/config"
	"github.com/AldoManuel/juchifood/src/logging"
	"github.com/AldoManuel/juchifood/src/oops"
	"github.com/AldoManuel/juchifood/src/perf"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type Client struct {
	s3            *s3.Client
	publicBaseURL string
}

// Builds a client from config.Config.Storage.
func NewFromConfig(ctx context.Context) (*Client, error) {
	return New(ctx, config.Config.Storage)
}

func New(ctx context.Context, cfg config.StorageConfig) (*Client, error) {
	if cfg.PublicBaseUrl == "" {
		return nil, oops.New(nil, "storage public base url is not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, oops.New(err, "failed to load storage config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = !cfg.VirtualHostStyle
		// One attempt per operation. A failed upload is reported to the user.
		o.Retryer = aws.NopRetryer{}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &Client{
		s3:            client,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseUrl, "/"),
	}, nil
}

/*
Stores content at bucket/path. Never overwrites: if the path is already taken
the store rejects the write and an *UploadError with UploadServerRejected is
returned.

A missing bucket is created on the spot and the write is tried once more.
*/
func (c *Client) Upload(ctx context.Context, bucket, path string, content []byte, contentType string) error {
	b := perf.ExtractPerf(ctx).StartBlock("S3", "Upload "+bucket)
	defer b.End()

	put := func() error {
		_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(path),
			Body:          bytes.NewReader(content),
			ContentLength: aws.Int64(int64(len(content))),
			ContentType:   aws.String(contentType),
			IfNoneMatch:   aws.String("*"),
			ACL:           types.ObjectCannedACLPublicRead,
		})
		return err
	}

	err := put()
	if err != nil && isNoSuchBucket(err) {
		logging.ExtractLogger(ctx).Info().Str("bucket", bucket).Msg("creating missing bucket")
		if cerr := c.EnsureBucket(ctx, bucket); cerr != nil {
			return &UploadError{Reason: classifyUpload(cerr), Bucket: bucket, Path: path, Wrapped: cerr}
		}
		err = put()
	}
	if err != nil {
		return &UploadError{Reason: classifyUpload(err), Bucket: bucket, Path: path, Wrapped: err}
	}

	logging.ExtractLogger(ctx).Debug().
		Str("bucket", bucket).
		Str("path", path).
		Int("bytes", len(content)).
		Msg("uploaded object")
	return nil
}

func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return nil
	}

	_, err = c.s3.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		switch apiErrorCode(err) {
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			return nil
		}
		return oops.New(err, "failed to create bucket %s", bucket)
	}
	return nil
}

/*
Removes bucket/path. The object is looked up first so that a missing object
is reported as a *DeleteError with DeleteNotFound rather than silently
succeeding. Every failure is soft: nothing the caller holds is changed by it.
*/
func (c *Client) Delete(ctx context.Context, bucket, path string) error {
	b := perf.ExtractPerf(ctx).StartBlock("S3", "Delete "+bucket)
	defer b.End()

	_, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return &DeleteError{Reason: DeleteNotFound, Bucket: bucket, Path: path, Wrapped: err}
		}
		return &DeleteError{Reason: DeleteTransport, Bucket: bucket, Path: path, Wrapped: err}
	}

	_, err = c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return &DeleteError{Reason: DeleteTransport, Bucket: bucket, Path: path, Wrapped: err}
	}

	logging.ExtractLogger(ctx).Debug().Str("bucket", bucket).Str("path", path).Msg("deleted object")
	return nil
}

func (c *Client) PublicURL(bucket, path string) string {
	return PublicURL(c.publicBaseURL, bucket, path)
}

func (c *Client) ParseURL(publicURL string) (bucket, path string, err error) {
	return ParseURL(c.publicBaseURL, publicURL)
}

// Returns <base>/<bucket>/<path>, escaping each path segment.
func PublicURL(base, bucket, path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(base, "/"), url.PathEscape(bucket), strings.Join(segments, "/"))
}

// The inverse of PublicURL.
func ParseURL(base, publicURL string) (bucket, path string, err error) {
	prefix := strings.TrimSuffix(base, "/") + "/"
	if !strings.HasPrefix(publicURL, prefix) {
		return "", "", oops.New(nil, "url %q is not under %q", publicURL, prefix)
	}

	rest := strings.TrimPrefix(publicURL, prefix)
	escapedBucket, escapedPath, found := strings.Cut(rest, "/")
	if !found || escapedBucket == "" || escapedPath == "" {
		return "", "", oops.New(nil, "url %q has no bucket and path", publicURL)
	}

	bucket, err = url.PathUnescape(escapedBucket)
	if err != nil {
		return "", "", oops.New(err, "bad bucket in url %q", publicURL)
	}
	path, err = url.PathUnescape(escapedPath)
	if err != nil {
		return "", "", oops.New(err, "bad path in url %q", publicURL)
	}
	return bucket, path, nil
}
