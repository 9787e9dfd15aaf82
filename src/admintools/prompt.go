package admintools

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Swapped out in tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
	stdin        io.Reader = os.Stdin
)

// Reads a password without echo when stdin is a terminal, or a single line
// when it is piped in.
func PromptPassword(w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return readLine(stdin)
	}

	fmt.Fprint(w, "Password: ")
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
