package website

import (
	"errors"
	"io"
	"net/http"

	"github.com/AldoManuel/juchifood/src/config"
	"github.com/AldoManuel/juchifood/src/imaging"
	"github.com/AldoManuel/juchifood/src/models"
	"github.com/AldoManuel/juchifood/src/oops"
)

const imageFieldName = "image"

// Room for the other multipart fields and boundaries on top of the image.
const multipartSlack = 64 * 1024

/*
Reads an image file from multipart form data. If the form has no file in the
image field, this returns nil and no error.

The type is sniffed from the content rather than trusted from the client. The
result has not been validated yet; that happens in the asset coordinator, so
an oversized body that still fits under the read limit comes back with its
real size and is rejected there.
*/
func readFormImage(c *RequestContext) (*models.ImageAsset, error) {
	maxBytes := config.Config.Images.MaxUploadBytes
	c.Req.Body = http.MaxBytesReader(c.Res, c.Req.Body, maxBytes+multipartSlack)

	err := c.Req.ParseMultipartForm(maxBytes + multipartSlack)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, &imaging.ValidationError{
				Reason:   imaging.TooLarge,
				ByteSize: tooBig.Limit,
				MaxBytes: maxBytes,
			}
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, NewSafeError(err, "Images must be sent as multipart/form-data.")
		}
		return nil, NewSafeError(err, "The upload could not be read.")
	}

	file, header, err := c.Req.FormFile(imageFieldName)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, oops.New(err, "failed to open uploaded file")
	}
	defer file.Close()

	b := c.Perf.StartBlock("IMAGE", "Reading upload")
	content, err := io.ReadAll(file)
	b.End()
	if err != nil {
		return nil, oops.New(err, "failed to read uploaded file")
	}

	width, height := imaging.Dimensions(content)
	return &models.ImageAsset{
		Filename: header.Filename,
		MimeType: http.DetectContentType(content),
		ByteSize: int64(len(content)),
		Width:    width,
		Height:   height,
		Content:  content,
	}, nil
}

// Like readFormImage, but a missing file is an error.
func requireFormImage(c *RequestContext) (models.ImageAsset, error) {
	asset, err := readFormImage(c)
	if err != nil {
		return models.ImageAsset{}, err
	}
	if asset == nil {
		return models.ImageAsset{}, NewSafeError(nil, "Please choose an image to upload.")
	}
	return *asset, nil
}
