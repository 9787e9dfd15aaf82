package blobstore

import (
	"errors"
	"fmt"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
)

type UploadFailure string

const (
	// The request never got an answer from the store.
	UploadTransport UploadFailure = "transport"
	// The store answered with an error, e.g. the object already exists.
	UploadServerRejected UploadFailure = "server_rejected"
)

type UploadError struct {
	Reason  UploadFailure
	Bucket  string
	Path    string
	Wrapped error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload %s/%s (%s): %v", e.Bucket, e.Path, e.Reason, e.Wrapped)
}

func (e *UploadError) Unwrap() error {
	return e.Wrapped
}

type DeleteFailure string

const (
	DeleteNotFound  DeleteFailure = "not_found"
	DeleteTransport DeleteFailure = "transport"
)

// Deletion failures are never fatal. Callers log them and move on.
type DeleteError struct {
	Reason  DeleteFailure
	Bucket  string
	Path    string
	Wrapped error
}

func (e *DeleteError) Error() string {
	if e.Reason == DeleteNotFound {
		return fmt.Sprintf("object %s/%s does not exist", e.Bucket, e.Path)
	}
	return fmt.Sprintf("failed to delete %s/%s: %v", e.Bucket, e.Path, e.Wrapped)
}

func (e *DeleteError) Unwrap() error {
	return e.Wrapped
}

func IsDeleteNotFound(err error) bool {
	var derr *DeleteError
	return errors.As(err, &derr) && derr.Reason == DeleteNotFound
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func httpStatus(err error) int {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}

func classifyUpload(err error) UploadFailure {
	if apiErrorCode(err) != "" || httpStatus(err) != 0 {
		return UploadServerRejected
	}
	return UploadTransport
}

func isNotFound(err error) bool {
	switch apiErrorCode(err) {
	case "NotFound", "NoSuchKey":
		return true
	}
	return httpStatus(err) == http.StatusNotFound
}

func isNoSuchBucket(err error) bool {
	return apiErrorCode(err) == "NoSuchBucket"
}
