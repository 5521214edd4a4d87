package services

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/alagamento-br/apiserver/internal/auth"
	"github.com/alagamento-br/apiserver/internal/mq"
	"github.com/alagamento-br/apiserver/internal/storage"
	"github.com/alagamento-br/apiserver/types"
	"github.com/rs/zerolog"
)

const (
	incidentsTable = "incidents"
	photoPrefix    = "incidents"
)

// IncidentRepository defines persistence operations for incidents.
type IncidentRepository interface {
	List(ctx context.Context) ([]types.IncidentView, error)
	Create(ctx context.Context, incident types.Incident) (types.Incident, error)
	UpdateOwned(ctx context.Context, id int, description, city string, callerID int, isAdmin bool) (types.Incident, error)
	DeleteOwned(ctx context.Context, id, callerID int, isAdmin bool) (*string, error)
	FindOwner(ctx context.Context, table string, id int) (int, bool, error)
}

// PhotoStore persists incident photos.
type PhotoStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// EventPublisher emits incident lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event mq.IncidentEvent) error
}

// PhotoUpload is an optional photo attached to a new incident.
type PhotoUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// CreateIncidentInput is the payload of a new incident report.
type CreateIncidentInput struct {
	Description string
	Latitude    float64
	Longitude   float64
	City        string
	Photo       *PhotoUpload
}

// UpdateIncidentInput carries the editable fields. Empty fields keep their
// stored value.
type UpdateIncidentInput struct {
	Description string `json:"description"`
	City        string `json:"city"`
}

// IncidentService encapsulates incident use-cases.
type IncidentService struct {
	repo   IncidentRepository
	photos PhotoStore
	events EventPublisher
	logger zerolog.Logger
	now    func() time.Time
}

func NewIncidentService(repo IncidentRepository, photos PhotoStore, events EventPublisher, logger zerolog.Logger) *IncidentService {
	return &IncidentService{
		repo:   repo,
		photos: photos,
		events: events,
		logger: logger.With().Str("component", "incidents").Logger(),
		now:    time.Now,
	}
}

// List returns every incident, newest first. Photo URLs are resolved
// against photoBaseURL.
func (s *IncidentService) List(ctx context.Context, photoBaseURL string) ([]types.IncidentView, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	base := strings.TrimRight(photoBaseURL, "/")
	for i := range items {
		if items[i].PhotoKey != nil {
			url := base + "/" + *items[i].PhotoKey
			items[i].PhotoURL = &url
		}
	}
	return items, nil
}

// Create stores a report owned by the principal. The author always comes
// from the principal, never from the input.
func (s *IncidentService) Create(ctx context.Context, principal auth.Principal, in CreateIncidentInput) (types.Incident, error) {
	in.Description = strings.TrimSpace(in.Description)
	in.City = strings.TrimSpace(in.City)
	if in.Description == "" {
		return types.Incident{}, invalid("description is required")
	}
	if math.IsNaN(in.Latitude) || in.Latitude < -90 || in.Latitude > 90 {
		return types.Incident{}, invalid("latitude must be between -90 and 90")
	}
	if math.IsNaN(in.Longitude) || in.Longitude < -180 || in.Longitude > 180 {
		return types.Incident{}, invalid("longitude must be between -180 and 180")
	}

	authorID := principal.SubjectID
	incident := types.Incident{
		AuthorID:    &authorID,
		Description: in.Description,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		City:        in.City,
	}

	if in.Photo != nil && in.Photo.Body != nil {
		key := storage.NewObjectKey(photoPrefix, in.Photo.Filename)
		if err := s.photos.Put(ctx, key, in.Photo.Body, in.Photo.Size, in.Photo.ContentType); err != nil {
			return types.Incident{}, fmt.Errorf("store photo: %w", err)
		}
		incident.PhotoKey = &key
	}

	created, err := s.repo.Create(ctx, incident)
	if err != nil {
		if incident.PhotoKey != nil {
			s.removePhoto(ctx, *incident.PhotoKey)
		}
		return types.Incident{}, fmt.Errorf("create incident: %w", err)
	}

	s.publish(ctx, mq.EventIncidentCreated, created.ID, principal.SubjectID, created.City)
	return created, nil
}

// Owner resolves the author of an incident. It returns nil when the
// incident does not exist or its author was deleted.
func (s *IncidentService) Owner(ctx context.Context, id int) (*int, error) {
	owner, found, err := s.repo.FindOwner(ctx, incidentsTable, id)
	if err != nil {
		return nil, fmt.Errorf("find incident owner: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &owner, nil
}

// Update applies the non-empty fields of in. Ownership is re-checked by the
// update statement itself: if the incident vanished or changed hands after
// authorization, nothing is written and store.ErrNotFound is returned.
func (s *IncidentService) Update(ctx context.Context, principal auth.Principal, id int, in UpdateIncidentInput) (types.Incident, error) {
	in.Description = strings.TrimSpace(in.Description)
	in.City = strings.TrimSpace(in.City)
	if in.Description == "" && in.City == "" {
		return types.Incident{}, invalid("description or city is required")
	}

	updated, err := s.repo.UpdateOwned(ctx, id, in.Description, in.City, principal.SubjectID, principal.IsAdmin())
	if err != nil {
		return types.Incident{}, fmt.Errorf("update incident %d: %w", id, err)
	}

	s.publish(ctx, mq.EventIncidentUpdated, updated.ID, principal.SubjectID, updated.City)
	return updated, nil
}

// Delete removes the incident under the same conditional rule as Update.
// The photo is removed afterwards; a failure there is logged only.
func (s *IncidentService) Delete(ctx context.Context, principal auth.Principal, id int) error {
	photoKey, err := s.repo.DeleteOwned(ctx, id, principal.SubjectID, principal.IsAdmin())
	if err != nil {
		return fmt.Errorf("delete incident %d: %w", id, err)
	}
	if photoKey != nil {
		s.removePhoto(ctx, *photoKey)
	}

	s.publish(ctx, mq.EventIncidentDeleted, id, principal.SubjectID, "")
	return nil
}

func (s *IncidentService) removePhoto(ctx context.Context, key string) {
	if err := s.photos.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("photo_key", key).Msg("failed to remove incident photo")
	}
}

func (s *IncidentService) publish(ctx context.Context, eventType string, incidentID, actorID int, city string) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, mq.IncidentEvent{
		Type:       eventType,
		IncidentID: incidentID,
		ActorID:    actorID,
		City:       city,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Int("incident_id", incidentID).Msg("failed to publish incident event")
	}
}
