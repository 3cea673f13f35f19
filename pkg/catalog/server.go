// Package catalog publishes the models and backends of a registry over
// HTTP. It is read-only: no route creates or operates an instance.
package catalog

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"ampctl/pkg/amp"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type Description struct {
	Name     string `json:"ServerName"`
	Version  string `json:"Version"`
	Location string `json:"Location"`
	ServerID string `json:"ServerID"`
}

// Server answers catalog requests from the contents of a registry.
type Server struct {
	description Description
	reg         *amp.Registry
	tmpl        *template.Template
	logger      log.FieldLogger
}

// NewServer creates a catalog server. A description without ServerID gets
// a random one.
func NewServer(description Description, reg *amp.Registry, tmpl *template.Template, logger log.FieldLogger) *Server {
	if description.ServerID == "" {
		description.ServerID = uuid.NewString()
	}
	return &Server{
		description: description,
		reg:         reg,
		tmpl:        tmpl,
		logger:      logger,
	}
}

func (s *Server) Description() Description {
	return s.description
}

func (s *Server) AddRoutes() *http.ServeMux {
	r := http.NewServeMux()

	r.Handle("GET /catalog/apiversions", handleCatalog(s.handleAPIVersions))
	r.Handle("GET /catalog/v1/description", handleCatalog(s.handleDescription))
	r.Handle("GET /catalog/v1/models", handleCatalog(s.handleModels))
	r.Handle("GET /catalog/v1/models/{model}", handleCatalog(s.handleModel))
	r.Handle("GET /catalog/v1/backends", handleCatalog(s.handleBackends))
	r.Handle("GET /catalog/v1/frontend", handleCatalog(s.handleFrontend))
	r.HandleFunc("GET /{$}", s.handleIndex)

	return r
}

func (s *Server) handleAPIVersions(r *http.Request) (any, error) {
	return []int{1}, nil
}

func (s *Server) handleDescription(r *http.Request) (any, error) {
	return s.description, nil
}

// handleModels lists the registered models. The optional level and mfg
// query parameters keep only the models able to read that level or made by
// that manufacturer.
func (s *Server) handleModels(r *http.Request) (any, error) {
	match, err := modelFilter(r)
	if err != nil {
		return nil, err
	}
	return s.models(match), nil
}

func (s *Server) handleModel(r *http.Request) (any, error) {
	id, err := strconv.Atoi(r.PathValue("model"))
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", r.PathValue("model"), amp.ErrInvalid)
	}
	caps, err := s.reg.Lookup(amp.Model(id))
	if err != nil {
		return nil, err
	}
	return Describe(caps), nil
}

func (s *Server) handleBackends(r *http.Request) (any, error) {
	return s.modules(), nil
}

func (s *Server) handleFrontend(r *http.Request) (any, error) {
	return DescribeParams(amp.FrontendParams()), nil
}

// handleIndex renders the registry as an HTML page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Description Description
		Models      []ModelInfo
		Modules     []ModuleInfo
	}{s.description, s.models(nil), s.modules()}

	if err := s.tmpl.ExecuteTemplate(w, "models.html", data); err != nil {
		s.logger.Errorf("Error rendering index: %v", err)
		http.Error(w, "Error rendering template", http.StatusInternalServerError)
	}
}

func (s *Server) models(match func(*amp.Caps) bool) []ModelInfo {
	models := []ModelInfo{}
	for caps := range s.reg.Enumerate(match) {
		models = append(models, Describe(caps))
	}
	return models
}

func (s *Server) modules() []ModuleInfo {
	names := s.reg.Modules()
	modules := make([]ModuleInfo, 0, len(names))
	for _, name := range names {
		modules = append(modules, ModuleInfo{Name: name, Loaded: s.reg.Loaded(name)})
	}
	return modules
}

func modelFilter(r *http.Request) (func(*amp.Caps) bool, error) {
	q := r.URL.Query()

	var level amp.Level
	if name := q.Get("level"); name != "" {
		l, err := amp.ParseLevel(name)
		if err != nil {
			return nil, err
		}
		level = l
	}
	mfg := q.Get("mfg")

	if level == amp.LevelNone && mfg == "" {
		return nil, nil
	}
	return func(caps *amp.Caps) bool {
		if level != amp.LevelNone && !caps.HasGetLevel.Has(level) {
			return false
		}
		return mfg == "" || strings.EqualFold(caps.MfgName, mfg)
	}, nil
}
