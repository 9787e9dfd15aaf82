package admintools

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubTerminal(t *testing.T, tty bool, typed string, readErr error, piped string) {
	t.Helper()
	oldRead, oldIsTerminal, oldStdin := readPassword, isTerminal, stdin
	t.Cleanup(func() {
		readPassword, isTerminal, stdin = oldRead, oldIsTerminal, oldStdin
	})

	isTerminal = func(int) bool { return tty }
	readPassword = func(int) ([]byte, error) { return []byte(typed), readErr }
	stdin = strings.NewReader(piped)
}

func TestPromptPasswordTerminal(t *testing.T) {
	stubTerminal(t, true, "s3cret!", nil, "")

	var out bytes.Buffer
	pw, err := PromptPassword(&out)
	require.Nil(t, err)
	assert.Equal(t, "s3cret!", pw)
	assert.Equal(t, "Password: \n", out.String())
}

func TestPromptPasswordTerminalError(t *testing.T) {
	stubTerminal(t, true, "", errors.New("tty gone"), "")

	_, err := PromptPassword(io.Discard)
	assert.NotNil(t, err)
}

func TestPromptPasswordPiped(t *testing.T) {
	stubTerminal(t, false, "", nil, "from-a-pipe\r\nignored\n")

	var out bytes.Buffer
	pw, err := PromptPassword(&out)
	require.Nil(t, err)
	assert.Equal(t, "from-a-pipe", pw)
	assert.Empty(t, out.String())
}

func TestReadLine(t *testing.T) {
	line, err := readLine(strings.NewReader("no newline"))
	require.Nil(t, err)
	assert.Equal(t, "no newline", line)

	_, err = readLine(strings.NewReader(""))
	assert.ErrorIs(t, err, io.EOF)
}
