package handlers

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/alagamento-br/apiserver/internal/authz"
	"github.com/alagamento-br/apiserver/internal/services"
	"github.com/alagamento-br/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	maxMultipartMemory = 8 << 20
	maxPhotoBytes      = 10 << 20
	maxIncidentBody    = maxPhotoBytes + 1<<20

	formFieldDescription = "description"
	formFieldLatitude    = "latitude"
	formFieldLongitude   = "longitude"
	formFieldCity        = "city"
	formFieldPhoto       = "photo"
)

// IncidentHandler provides HTTP handlers for incident reports.
type IncidentHandler struct {
	incidentService *services.IncidentService
	publicBaseURL   string
	logger          zerolog.Logger
}

// NewIncidentHandler constructs the handler. publicBaseURL prefixes photo
// URLs; when empty the request scheme and host are used.
func NewIncidentHandler(incidentService *services.IncidentService, publicBaseURL string, logger zerolog.Logger) *IncidentHandler {
	return &IncidentHandler{
		incidentService: incidentService,
		publicBaseURL:   strings.TrimRight(publicBaseURL, "/"),
		logger:          logger,
	}
}

// IncidentRouter registers incident routes on the given router.
func IncidentRouter(r chi.Router, incidentService *services.IncidentService, guard *Guard, publicBaseURL string, logger zerolog.Logger) {
	handler := NewIncidentHandler(incidentService, publicBaseURL, logger)

	r.With(guard.Require(authz.ListIncidents)).Get("/", handler.List)
	r.With(guard.Require(authz.CreateIncident)).Post("/", handler.Create)
	r.Route("/{incidentID}", func(r chi.Router) {
		r.With(guard.RequireOwner(authz.UpdateIncident, "incidentID", incidentService.Owner)).Put("/", handler.Update)
		r.With(guard.RequireOwner(authz.DeleteIncident, "incidentID", incidentService.Owner)).Delete("/", handler.Delete)
	})
}

func (h *IncidentHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.incidentService.List(r.Context(), h.baseURL(r)+"/uploads")
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list incidents")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *IncidentHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxIncidentBody)
	in, cleanup, err := parseIncidentForm(r)
	defer cleanup()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	incident, err := h.incidentService.Create(r.Context(), principal, in)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to create incident")
		return
	}
	writeJSON(w, http.StatusCreated, IncidentResponse{Message: "incident registered", Incident: incident})
}

func (h *IncidentHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "incidentID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req services.UpdateIncidentInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	incident, err := h.incidentService.Update(r.Context(), principal, id, req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to update incident")
		return
	}
	writeJSON(w, http.StatusOK, IncidentResponse{Message: "incident updated", Incident: incident})
}

func (h *IncidentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "incidentID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.incidentService.Delete(r.Context(), principal, id); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to delete incident")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "incident deleted"})
}

func (h *IncidentHandler) baseURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// IncidentResponse acknowledges a create or update.
type IncidentResponse struct {
	Message  string         `json:"message"`
	Incident types.Incident `json:"incident"`
}

// parseIncidentForm reads a multipart or urlencoded incident form. The
// returned cleanup releases multipart temp files and the photo handle.
func parseIncidentForm(r *http.Request) (services.CreateIncidentInput, func(), error) {
	cleanup := func() {}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return services.CreateIncidentInput{}, cleanup, errors.New("invalid multipart form")
		}
		cleanup = func() { _ = r.MultipartForm.RemoveAll() }
	} else if err := r.ParseForm(); err != nil {
		return services.CreateIncidentInput{}, cleanup, errors.New("invalid form")
	}

	description := strings.TrimSpace(r.FormValue(formFieldDescription))
	rawLat := strings.TrimSpace(r.FormValue(formFieldLatitude))
	rawLon := strings.TrimSpace(r.FormValue(formFieldLongitude))
	if description == "" || rawLat == "" || rawLon == "" {
		return services.CreateIncidentInput{}, cleanup, errors.New("description, latitude and longitude are required")
	}

	latitude, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return services.CreateIncidentInput{}, cleanup, errors.New("invalid latitude")
	}
	longitude, err := strconv.ParseFloat(rawLon, 64)
	if err != nil {
		return services.CreateIncidentInput{}, cleanup, errors.New("invalid longitude")
	}

	in := services.CreateIncidentInput{
		Description: description,
		Latitude:    latitude,
		Longitude:   longitude,
		City:        strings.TrimSpace(r.FormValue(formFieldCity)),
	}

	photo, closePhoto, err := parsePhoto(r.MultipartForm)
	if err != nil {
		return services.CreateIncidentInput{}, cleanup, err
	}
	if photo != nil {
		removeAll := cleanup
		cleanup = func() {
			closePhoto()
			removeAll()
		}
		in.Photo = photo
	}
	return in, cleanup, nil
}

func parsePhoto(form *multipart.Form) (*services.PhotoUpload, func(), error) {
	if form == nil {
		return nil, nil, nil
	}
	files := form.File[formFieldPhoto]
	if len(files) == 0 || files[0].Filename == "" {
		return nil, nil, nil
	}
	if len(files) > 1 {
		return nil, nil, errors.New("only one photo is allowed")
	}

	header := files[0]
	if header.Size > maxPhotoBytes {
		return nil, nil, errors.New("photo too large")
	}
	file, err := header.Open()
	if err != nil {
		return nil, nil, errors.New("failed to read photo")
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &services.PhotoUpload{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}, func() { _ = file.Close() }, nil
}
