package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/AldoManuel/juchifood/src/oops"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPrettyWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(NewPrettyZerologWriter(&buf))

	logger.Info().Str("bucket", "profile-images").Err(errors.New("upload failed")).Msg("failed to upload image")

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "failed to upload image")
	assert.Contains(t, out, "upload failed")
	assert.Contains(t, out, "bucket: \"profile-images\"")
}

func TestPrettyWriterPassesThroughNonJSON(t *testing.T) {
	var buf bytes.Buffer
	w := NewPrettyZerologWriter(&buf)

	n, err := w.Write([]byte("plain text\n"))
	assert.Nil(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, "plain text\n", buf.String())
}

func TestContextLogger(t *testing.T) {
	assert.Same(t, GlobalLogger(), ExtractLogger(context.Background()))

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ctx := AttachLoggerToContext(&logger, context.Background())
	assert.Same(t, &logger, ExtractLogger(ctx))
}

func TestLogPanicValue(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogPanicValue(&logger, oops.New(nil, "kaboom"), "handled panic")
	assert.Contains(t, buf.String(), "kaboom")
	assert.Contains(t, buf.String(), "handled panic")

	buf.Reset()
	LogPanicValue(&logger, "just a string", "handled panic")
	assert.Contains(t, buf.String(), "just a string")
}
