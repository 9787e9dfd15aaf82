// Package locals3 is a small S3-compatible server that keeps objects on the
// local filesystem. It understands just enough of the protocol for the blob
// store client: path-style bucket creation, conditional puts, get, head and
// delete.
package locals3

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AldoManuel/juchifood/src/config"
	"github.com/AldoManuel/juchifood/src/jobs"
	"github.com/AldoManuel/juchifood/src/logging"
	"github.com/AldoManuel/juchifood/src/oops"
	"github.com/rs/zerolog"
)

// Content types live in a tree of their own so no object key can collide with
// them. Bucket names cannot start with a dot, so this is never a bucket.
const metaDir = ".meta"

var bucketNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,62}$`)

type Server struct {
	dir    string
	logger *zerolog.Logger
}

func NewServer(dir string) (*Server, error) {
	if err := os.MkdirAll(dir, fs.ModePerm); err != nil {
		return nil, oops.New(err, "failed to create storage folder %s", dir)
	}
	logger := logging.With().Str("module", "locals3").Logger()
	return &Server{dir: dir, logger: &logger}, nil
}

// Runs the server from config.Config.LocalS3 as a background job.
func StartServer() *jobs.Job {
	return jobs.Run("local s3", func(ctx context.Context) error {
		srv, err := NewServer(config.Config.LocalS3.Dir)
		if err != nil {
			return err
		}
		return srv.ListenAndServe(ctx, config.Config.LocalS3.Addr)
	})
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := http.Server{
		Addr:    addr,
		Handler: s,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", addr).Str("dir", s.dir).Msg("serving local s3")
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key := bucketAndKey(r)
	s.logger.Debug().Str("method", r.Method).Str("bucket", bucket).Str("key", key).Msg("request")

	if !bucketNameRegex.MatchString(bucket) {
		writeError(w, r, http.StatusBadRequest, "InvalidBucketName", "the specified bucket is not valid")
		return
	}
	if key == "." || key == ".." {
		writeError(w, r, http.StatusBadRequest, "InvalidArgument", "the specified key is not valid")
		return
	}

	if key == "" {
		s.serveBucket(w, r, bucket)
	} else {
		s.serveObject(w, r, bucket, key)
	}
}

func (s *Server) serveBucket(w http.ResponseWriter, r *http.Request, bucket string) {
	bucketDir := s.bucketDir(bucket)

	switch r.Method {
	case http.MethodPut:
		if err := os.MkdirAll(bucketDir, fs.ModePerm); err != nil {
			writeError(w, r, http.StatusInternalServerError, "InternalError", err.Error())
			return
		}
		w.Header().Set("Location", "/"+bucket)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if !dirExists(bucketDir) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, r, http.StatusNotImplemented, "NotImplemented", "unsupported bucket operation")
	}
}

func (s *Server) serveObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	bucketDir := s.bucketDir(bucket)
	objectPath := filepath.Join(bucketDir, url.PathEscape(key))
	typePath := filepath.Join(s.dir, metaDir, bucket, url.PathEscape(key))

	switch r.Method {
	case http.MethodPut:
		if !dirExists(bucketDir) {
			writeError(w, r, http.StatusNotFound, "NoSuchBucket", "the specified bucket does not exist")
			return
		}

		flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if r.Header.Get("If-None-Match") == "*" {
			flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
		}
		f, err := os.OpenFile(objectPath, flags, 0644)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				writeError(w, r, http.StatusPreconditionFailed, "PreconditionFailed", "at least one of the pre-conditions you specified did not hold")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "InternalError", err.Error())
			return
		}
		_, err = io.Copy(f, r.Body)
		closeErr := f.Close()
		if err != nil || closeErr != nil {
			os.Remove(objectPath)
			writeError(w, r, http.StatusInternalServerError, "InternalError", "failed to store object")
			return
		}
		os.Remove(typePath)
		if ct := r.Header.Get("Content-Type"); ct != "" {
			if err := os.MkdirAll(filepath.Dir(typePath), fs.ModePerm); err == nil {
				os.WriteFile(typePath, []byte(ct), 0644)
			}
		}
		w.Header().Set("ETag", `"`+strconv.FormatInt(time.Now().UnixNano(), 16)+`"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		info, err := os.Stat(objectPath)
		if err != nil {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeError(w, r, http.StatusNotFound, "NoSuchKey", "the specified key does not exist")
			return
		}
		if ct, err := os.ReadFile(typePath); err == nil {
			w.Header().Set("Content-Type", string(ct))
		}
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
		w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		f, err := os.Open(objectPath)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "InternalError", err.Error())
			return
		}
		defer f.Close()
		w.WriteHeader(http.StatusOK)
		io.Copy(w, f)
	case http.MethodDelete:
		os.Remove(objectPath)
		os.Remove(typePath)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, http.StatusNotImplemented, "NotImplemented", "unsupported object operation")
	}
}

func (s *Server) bucketDir(bucket string) string {
	return filepath.Join(s.dir, url.PathEscape(bucket))
}

func bucketAndKey(r *http.Request) (string, string) {
	p := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(p, "/")
	return bucket, key
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

type s3Error struct {
	XMLName  xml.Name `xml:"Error"`
	Code     string   `xml:"Code"`
	Message  string   `xml:"Message"`
	Resource string   `xml:"Resource"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	body, _ := xml.Marshal(s3Error{Code: code, Message: message, Resource: r.URL.Path})
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		w.Write([]byte(xml.Header))
		w.Write(body)
	}
}
