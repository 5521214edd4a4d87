package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alagamento-br/apiserver/config"
	"github.com/alagamento-br/apiserver/internal/auth"
	"github.com/alagamento-br/apiserver/internal/mq"
	"github.com/alagamento-br/apiserver/internal/observability"
	"github.com/alagamento-br/apiserver/internal/services"
	"github.com/alagamento-br/apiserver/internal/storage"
	"github.com/alagamento-br/apiserver/internal/store"
	"github.com/alagamento-br/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type memUsers struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func (m *memUsers) GetByID(_ context.Context, id int) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) List(context.Context) ([]types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]types.User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *memUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrDuplicateEmail
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	m.users[user.ID] = user
	return user, nil
}

func (m *memUsers) UpdateRole(_ context.Context, id int, role types.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Role = role
	m.users[id] = user
	return nil
}

func (m *memUsers) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

type memIncidents struct {
	mu        sync.Mutex
	nextID    int
	incidents map[int]types.Incident
	users     *memUsers
}

func (m *memIncidents) List(context.Context) ([]types.IncidentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	views := make([]types.IncidentView, 0, len(m.incidents))
	for _, incident := range m.incidents {
		views = append(views, types.IncidentView{
			ID:          incident.ID,
			Description: incident.Description,
			Location:    types.Location{Latitude: incident.Latitude, Longitude: incident.Longitude, City: incident.City},
			OccurredAt:  incident.OccurredAt,
			PhotoKey:    incident.PhotoKey,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID > views[j].ID })
	return views, nil
}

func (m *memIncidents) Create(ctx context.Context, incident types.Incident) (types.Incident, error) {
	if m.users != nil && incident.AuthorID != nil {
		if _, err := m.users.GetByID(ctx, *incident.AuthorID); err != nil {
			return types.Incident{}, store.ErrUnknownAuthor
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	incident.ID = m.nextID
	incident.OccurredAt = time.Now()
	m.incidents[incident.ID] = incident
	return incident, nil
}

func (m *memIncidents) UpdateOwned(_ context.Context, id int, description, city string, callerID int, isAdmin bool) (types.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	incident, ok := m.incidents[id]
	if !ok || !(isAdmin || (incident.AuthorID != nil && *incident.AuthorID == callerID)) {
		return types.Incident{}, store.ErrNotFound
	}
	if description != "" {
		incident.Description = description
	}
	if city != "" {
		incident.City = city
	}
	m.incidents[id] = incident
	return incident, nil
}

func (m *memIncidents) DeleteOwned(_ context.Context, id, callerID int, isAdmin bool) (*string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	incident, ok := m.incidents[id]
	if !ok || !(isAdmin || (incident.AuthorID != nil && *incident.AuthorID == callerID)) {
		return nil, store.ErrNotFound
	}
	delete(m.incidents, id)
	return incident.PhotoKey, nil
}

func (m *memIncidents) FindOwner(_ context.Context, _ string, id int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	incident, ok := m.incidents[id]
	if !ok || incident.AuthorID == nil {
		return 0, false, nil
	}
	return *incident.AuthorID, true, nil
}

func (m *memIncidents) CountByCity(_ context.Context, city string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, incident := range m.incidents {
		if incident.City == city {
			total++
		}
	}
	return total, nil
}

func (m *memIncidents) has(id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.incidents[id]
	return ok
}

type stubWeather struct {
	precipitation float64
	snapshot      types.WeatherSnapshot
	err           error
	lastCity      string
}

func (s *stubWeather) ForecastPrecipitation(_ context.Context, city string) (float64, error) {
	s.lastCity = city
	return s.precipitation, s.err
}

func (s *stubWeather) Current(_ context.Context, city string) (types.WeatherSnapshot, error) {
	s.lastCity = city
	return s.snapshot, s.err
}

type fixture struct {
	router    http.Handler
	tokens    *auth.TokenService
	users     *memUsers
	incidents *memIncidents
	weather   *stubWeather
	objects   *storage.Storage
	metrics   *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tokens, err := auth.NewTokenService("handler-secret", nil)
	require.NoError(t, err)
	hasher, err := auth.NewPasswordHasher(auth.HasherBcrypt)
	require.NoError(t, err)

	objects, err := storage.Open(context.Background(), storageConfig(t))
	require.NoError(t, err)

	users := &memUsers{users: map[int]types.User{}}
	f := &fixture{
		tokens:    tokens,
		users:     users,
		incidents: &memIncidents{incidents: map[int]types.Incident{}, users: users},
		weather:   &stubWeather{},
		objects:   objects,
		metrics:   observability.NewMetricsForTesting(),
	}

	logger := zerolog.Nop()
	events := mq.NewEventPublisher(mq.New(noopBroker{}), "incidents")
	authService := services.NewAuthService(f.users, hasher, tokens)
	userService := services.NewUserService(f.users)
	incidentService := services.NewIncidentService(f.incidents, objects, events, logger)
	riskService := services.NewRiskService(f.weather, f.incidents, f.metrics)
	guard := NewGuard(tokens, f.metrics, logger)

	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		AuthRouter(r, authService, userService, guard, nil, logger)
	})
	r.Route("/users", func(r chi.Router) {
		UserRouter(r, userService, guard, logger)
	})
	r.Route("/incidents", func(r chi.Router) {
		IncidentRouter(r, incidentService, guard, "http://api.test", logger)
	})
	r.Route("/uploads", func(r chi.Router) {
		UploadsRouter(r, objects, logger)
	})
	RiskRouter(r, riskService, guard, logger)
	f.router = r
	return f
}

func storageConfig(t *testing.T) config.StorageConfig {
	return config.StorageConfig{Backend: "local", LocalDir: t.TempDir()}
}

type noopBroker struct{}

func (noopBroker) Publish(context.Context, string, []byte, map[string]string) (string, error) {
	return "", nil
}
func (noopBroker) Subscribe(context.Context, string, mq.Handler) error { return nil }
func (noopBroker) Close() error { return nil }

// addUser stores a user and returns a bearer token for it.
func (f *fixture) addUser(t *testing.T, name string, role types.Role) (types.User, string) {
	t.Helper()
	user, err := f.users.Create(context.Background(), types.User{Name: name, Email: name + "@example.com", Role: role})
	require.NoError(t, err)
	token, err := f.tokens.Issue(user)
	require.NoError(t, err)
	return user, token
}

func (f *fixture) addIncident(t *testing.T, owner *types.User, city string) types.Incident {
	t.Helper()
	incident := types.Incident{Description: "rua alagada", City: city}
	if owner != nil {
		id := owner.ID
		incident.AuthorID = &id
	}
	created, err := f.incidents.Create(context.Background(), incident)
	require.NoError(t, err)
	return created
}

func (f *fixture) do(t *testing.T, method, target, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := newRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return serve(f, req)
}

func newRequest(method, target string, body io.Reader) *http.Request {
	return httptest.NewRequest(method, target, body)
}

func serve(f *fixture, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) doJSON(t *testing.T, method, target, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return f.do(t, method, target, token, body, "application/json")
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
