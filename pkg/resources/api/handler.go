package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/tendant/simple-resources/pkg/resources"
)

// multipartOverhead is the slack allowed above a class limit for form framing
const multipartOverhead = 1 << 20

// ErrorResponse is the JSON body of every error
type ErrorResponse struct {
	Error string `json:"error"`
}

// OKResponse acknowledges a write
type OKResponse struct {
	OK bool `json:"ok"`
}

// StorageStatusResponse reports whether a durable store is configured
// without revealing any credential.
type StorageStatusResponse struct {
	Configured bool   `json:"configured"`
	CloudName  string `json:"cloud_name"`
	Backend    string `json:"backend,omitempty"`
}

// TimetableUploadResponse adds the timetable display type to the locator
type TimetableUploadResponse struct {
	*resources.UploadLocator
	Type string `json:"type"`
}

// Handler serves the resources API
type Handler struct {
	trees    *resources.TreeStore
	pipeline *resources.Pipeline
	proxy    *resources.Proxy
	store    resources.DurableStore
	auth     *jwtauth.JWTAuth
}

func NewHandler(trees *resources.TreeStore, pipeline *resources.Pipeline, proxy *resources.Proxy, store resources.DurableStore, auth *jwtauth.JWTAuth) *Handler {
	return &Handler{
		trees:    trees,
		pipeline: pipeline,
		proxy:    proxy,
		store:    store,
		auth:     auth,
	}
}

// Routes returns the router for the API, to be mounted under /api
func (h *Handler) Routes() chi.Router {
	requireAuth := RequireAuth(h.auth)
	requireDB := RequireDB(h.trees.Repository(), 2*time.Second)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", h.Health)

	r.Route("/resources", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(requireDB)
			r.Get("/", h.GetTree)
			r.Get("/stats", h.GetStats)
			r.With(requireAuth).Put("/", h.PutTree)
		})
		r.With(requireAuth).Post("/upload", h.Upload(resources.GeneralUploads))
		r.With(requireAuth).Delete("/files/{filename}", h.DeleteFile)
		r.Get("/proxy", h.Proxy)
		r.Get("/storage/status", h.StorageStatus)
	})

	r.With(requireAuth).Post("/timetable/upload", h.UploadTimetable)
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, OKResponse{OK: true})
}

// GetTree returns the whole tree, or the empty default root
func (h *Handler) GetTree(w http.ResponseWriter, r *http.Request) {
	root, err := h.trees.Load(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, root)
}

// PutTree replaces the whole tree with the request body
func (h *Handler) PutTree(w http.ResponseWriter, r *http.Request) {
	var root *resources.Node
	if err := json.NewDecoder(r.Body).Decode(&root); err != nil {
		slog.Warn("Invalid resource tree body", "error", err)
		renderError(w, r, &resources.ValidationError{Field: "root", Message: "root folder required", Err: resources.ErrInvalidTree})
		return
	}
	if err := h.trees.Replace(r.Context(), root); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, OKResponse{OK: true})
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.trees.Stats(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, stats)
}

// Upload streams the multipart "file" field through the pipeline
func (h *Handler) Upload(class resources.UploadClass) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locator, err := h.upload(w, r, class)
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, locator)
	}
}

func (h *Handler) UploadTimetable(w http.ResponseWriter, r *http.Request) {
	locator, err := h.upload(w, r, resources.TimetableUploads)
	if err != nil {
		renderError(w, r, err)
		return
	}
	displayType := "image"
	if locator.MediaType == "application/pdf" {
		displayType = "pdf"
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, TimetableUploadResponse{UploadLocator: locator, Type: displayType})
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request, class resources.UploadClass) (*resources.UploadLocator, error) {
	r.Body = http.MaxBytesReader(w, r.Body, class.MaxBytes+multipartOverhead)
	part, err := filePart(r)
	if err != nil {
		return nil, err
	}
	defer part.Close()

	locator, err := h.pipeline.Upload(r.Context(), resources.UploadRequest{
		Filename:  part.FileName(),
		MediaType: part.Header.Get("Content-Type"),
		Body:      part,
		Class:     class,
	})
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, &resources.ValidationError{Field: "file", Message: "file exceeds upload limit", Err: resources.ErrPayloadTooLarge}
		}
		return nil, err
	}
	return locator, nil
}

// filePart finds the "file" field without buffering the body
func filePart(r *http.Request) (*multipart.Part, error) {
	missing := &resources.ValidationError{Field: "file", Message: "file required", Err: resources.ErrMissingField}
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, missing
	}
	for {
		part, err := reader.NextPart()
		if err != nil {
			return nil, missing
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

// DeleteFile removes a file from the durable store and staging; absent
// files are not an error.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if err := h.pipeline.Delete(r.Context(), filename); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, OKResponse{OK: true})
}

// Proxy streams a durable URL back to the client
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	stream, err := h.proxy.Open(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		if resources.IsClientGone(err) {
			slog.Debug("Client went away before proxy fetch completed")
			return
		}
		renderError(w, r, err)
		return
	}
	defer stream.Body.Close()

	w.Header().Set("Content-Type", stream.ContentType)
	if stream.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(stream.ContentLength, 10))
	}
	if stream.Inline {
		w.Header().Set("Content-Disposition", "inline")
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, stream.Body); err != nil {
		slog.Warn("Proxy stream interrupted", "error", err)
	}
}

func (h *Handler) StorageStatus(w http.ResponseWriter, r *http.Request) {
	resp := StorageStatusResponse{CloudName: "not-set"}
	if h.store != nil {
		resp.Configured = true
		resp.CloudName = "set"
		resp.Backend = h.store.Name()
	}
	render.JSON(w, r, resp)
}

// renderError writes {error} with the status mapped from err
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := resources.HTTPStatus(err)
	message := err.Error()

	var validation *resources.ValidationError
	var upstream *resources.UpstreamError
	switch {
	case errors.As(err, &validation):
		message = validation.Error()
	case errors.As(err, &upstream):
		if upstream.Message != "" {
			message = upstream.Message
		}
		slog.Error("Upstream failure", "op", upstream.Op, "status", upstream.StatusCode, "error", err)
	case status == http.StatusNotFound:
		message = "Not found"
	case status >= http.StatusInternalServerError:
		slog.Error("Request failed", "path", r.URL.Path, "error", err)
		message = http.StatusText(status)
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message})
}
