// Package remote implements the HTTP wire protocol of spec §4.7: a
// gorilla/mux-routed server exposing a repository, and a client for
// talking to one.
package remote

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/blimp-pm/blimp/pkg/model"
	"github.com/blimp-pm/blimp/pkg/repository"
	"github.com/blimp-pm/blimp/pkg/version"
)

// ServerVersion is reported on GET /.
const ServerVersion = "0.1"

// archiveContentType is the media type streamed for archive downloads.
const archiveContentType = "application/x-gzip-compressed"

// Server holds the state shared across request handlers: the repository
// being served and the message-of-the-day text.
type Server struct {
	Repo repository.Repository
	MOTD string
	Log  *logrus.Logger
}

// NewServer constructs a Server with a default logrus logger if log is nil.
func NewServer(repo repository.Repository, motd string, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{Repo: repo, MOTD: motd, Log: log}
}

// Router builds the gorilla/mux router implementing spec §4.7's wire
// protocol, wrapped in a request-logging middleware.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/motd", s.handleMOTD).Methods(http.MethodGet)
	r.HandleFunc("/package", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/package/{name}/version/{version}", s.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/package/{name}/version/{version}/archive", s.handleArchive).Methods(http.MethodGet, http.MethodHead)

	r.Use(s.loggingMiddleware)
	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Info("handled request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "Blimp server version %s", ServerVersion)
}

func (s *Server) handleMOTD(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, s.MOTD)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	packages, err := s.Repo.ListPackages()
	if err != nil {
		s.Log.WithError(err).Error("could not list packages")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if packages == nil {
		packages = []model.Package{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(packages); err != nil {
		s.Log.WithError(err).Error("could not encode package list")
	}
}

// parsePathParams validates the name/version path parameters, writing a 400
// response and returning ok=false if either is invalid.
func (s *Server) parsePathParams(w http.ResponseWriter, r *http.Request) (name string, v version.Version, ok bool) {
	vars := mux.Vars(r)
	name = vars["name"]
	if !model.IsValidName(name) {
		http.Error(w, "invalid package name", http.StatusBadRequest)
		return "", version.Version{}, false
	}

	v, err := version.Parse(vars["version"])
	if err != nil {
		http.Error(w, "invalid package version", http.StatusBadRequest)
		return "", version.Version{}, false
	}
	return name, v, true
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	name, v, ok := s.parsePathParams(w, r)
	if !ok {
		return
	}

	pkg, found, err := s.Repo.GetPackage(name, v)
	if err != nil {
		s.Log.WithError(err).WithFields(logrus.Fields{"name": name, "version": v.String()}).Error("could not read package")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "package or version not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(pkg); err != nil {
		s.Log.WithError(err).Error("could not encode package")
	}
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	name, v, ok := s.parsePathParams(w, r)
	if !ok {
		return
	}

	_, found, err := s.Repo.GetPackage(name, v)
	if err != nil {
		s.Log.WithError(err).WithFields(logrus.Fields{"name": name, "version": v.String()}).Error("could not read package")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "package or version not found", http.StatusNotFound)
		return
	}

	archivePath := s.Repo.ArchivePath(name, v)
	info, err := os.Stat(archivePath)
	if err != nil {
		s.Log.WithError(err).WithFields(logrus.Fields{"name": name, "version": v.String(), "path": archivePath}).Error("could not stat package archive")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", archiveContentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))

	if r.Method == http.MethodHead {
		return
	}

	f, err := os.Open(archivePath)
	if err != nil {
		s.Log.WithError(err).WithFields(logrus.Fields{"name": name, "version": v.String(), "path": archivePath}).Error("could not open package archive")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		s.Log.WithError(err).Error("could not stream package archive")
	}
}
