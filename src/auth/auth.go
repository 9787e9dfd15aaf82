package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/AldoManuel/juchifood/src/db"
	"github.com/AldoManuel/juchifood/src/oops"
	"golang.org/x/crypto/argon2"
)

type HashAlgorithm string

const (
	Argon2id HashAlgorithm = "argon2id"
)

const saltLength = 16
const keyLength = 64

// A password as stored in vendor.password: algorithm$config$salt$hash.
type HashedPassword struct {
	Algorithm  HashAlgorithm
	AlgoConfig string // hash parameters, e.g. "t=1,m=40960,p=1,l=64"

	// Base64, exactly as stored in vendor.password.
	Salt string
	Hash string
}

func ParsePasswordString(s string) (HashedPassword, error) {
	pieces := strings.SplitN(s, "$", 4)
	if len(pieces) < 4 {
		return HashedPassword{}, oops.New(nil, "unrecognized password string format")
	}

	return HashedPassword{
		Algorithm:  HashAlgorithm(pieces[0]),
		AlgoConfig: pieces[1],
		Salt:       pieces[2],
		Hash:       pieces[3],
	}, nil
}

func (p HashedPassword) String() string {
	return fmt.Sprintf("%s$%s$%s$%s", p.Algorithm, p.AlgoConfig, p.Salt, p.Hash)
}

type Argon2idConfig struct {
	Time      uint32
	Memory    uint32
	Threads   uint8
	KeyLength uint32
}

func ParseArgon2idConfig(cfg string) (Argon2idConfig, error) {
	parts := strings.Split(cfg, ",")
	if len(parts) != 4 {
		return Argon2idConfig{}, oops.New(nil, "expected 4 parameters in Argon2id config, got %d", len(parts))
	}
	for _, part := range parts {
		if len(part) < 3 {
			return Argon2idConfig{}, oops.New(nil, "malformed Argon2id parameter %q", part)
		}
	}

	t64, err := strconv.ParseUint(parts[0][2:], 10, 32)
	if err != nil {
		return Argon2idConfig{}, oops.New(err, "failed to parse time in Argon2id config")
	}

	m64, err := strconv.ParseUint(parts[1][2:], 10, 32)
	if err != nil {
		return Argon2idConfig{}, oops.New(err, "failed to parse memory in Argon2id config")
	}

	p64, err := strconv.ParseUint(parts[2][2:], 10, 8)
	if err != nil {
		return Argon2idConfig{}, oops.New(err, "failed to parse threads in Argon2id config")
	}

	l64, err := strconv.ParseUint(parts[3][2:], 10, 32)
	if err != nil {
		return Argon2idConfig{}, oops.New(err, "failed to parse key length in Argon2id config")
	}

	return Argon2idConfig{
		Time:      uint32(t64),
		Memory:    uint32(m64),
		Threads:   uint8(p64),
		KeyLength: uint32(l64),
	}, nil
}

func (c Argon2idConfig) String() string {
	return fmt.Sprintf("t=%v,m=%v,p=%v,l=%v", c.Time, c.Memory, c.Threads, c.KeyLength)
}

func CheckPassword(password string, hashedPassword HashedPassword) (bool, error) {
	switch hashedPassword.Algorithm {
	case Argon2id:
		cfg, err := ParseArgon2idConfig(hashedPassword.AlgoConfig)
		if err != nil {
			return false, err
		}

		salt, err := base64.StdEncoding.DecodeString(hashedPassword.Salt)
		if err != nil {
			return false, oops.New(err, "failed to decode salt")
		}

		newHash := argon2.IDKey([]byte(password), salt, cfg.Time, cfg.Memory, cfg.Threads, cfg.KeyLength)
		newHashEnc := base64.StdEncoding.EncodeToString(newHash)

		return subtle.ConstantTimeCompare([]byte(newHashEnc), []byte(hashedPassword.Hash)) == 1, nil
	default:
		return false, oops.New(nil, "unrecognized password hash algorithm: %s", hashedPassword.Algorithm)
	}
}

func HashPassword(password string) HashedPassword {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		panic(oops.New(err, "failed to read random salt"))
	}
	saltEnc := base64.StdEncoding.EncodeToString(salt)

	// OWASP minimums for argon2id. Memory is in KiB.
	cfg := Argon2idConfig{
		Time:      1,
		Memory:    40 * 1024,
		Threads:   1,
		KeyLength: keyLength,
	}

	key := argon2.IDKey([]byte(password), salt, cfg.Time, cfg.Memory, cfg.Threads, cfg.KeyLength)
	keyEnc := base64.StdEncoding.EncodeToString(key)

	return HashedPassword{
		Algorithm:  Argon2id,
		AlgoConfig: cfg.String(),
		Salt:       saltEnc,
		Hash:       keyEnc,
	}
}

var ErrVendorDoesNotExist = errors.New("vendor does not exist")

func UpdatePassword(ctx context.Context, conn db.ConnOrTx, email string, hp HashedPassword) error {
	tag, err := conn.Exec(ctx, "UPDATE vendor SET password = $1 WHERE lower(email) = lower($2)", hp.String(), email)
	if err != nil {
		return oops.New(err, "failed to update password")
	} else if tag.RowsAffected() < 1 {
		return ErrVendorDoesNotExist
	}

	return nil
}

func SetPassword(ctx context.Context, conn db.ConnOrTx, email string, password string) error {
	hp := HashPassword(password)
	return UpdatePassword(ctx, conn, email, hp)
}

// Checks password against a stored password string. Malformed strings never
// match.
func CheckPasswordString(password, stored string) bool {
	hp, err := ParsePasswordString(stored)
	if err != nil {
		return false
	}
	ok, err := CheckPassword(password, hp)
	return err == nil && ok
}
