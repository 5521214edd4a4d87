package services

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/alagamento-br/apiserver/internal/mq"
	"github.com/alagamento-br/apiserver/internal/store"
	"github.com/alagamento-br/apiserver/types"
)

// fakeUserRepo mirrors the semantics of store.UserRepository in memory.
type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newFakeUserRepo(users ...types.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: map[int]types.User{}}
	for _, user := range users {
		repo.users[user.ID] = user
		if user.ID > repo.nextID {
			repo.nextID = user.ID
		}
	}
	return repo
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) List(context.Context) ([]types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]types.User, 0, len(f.users))
	for _, user := range f.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (f *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrDuplicateEmail
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Now()
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) UpdateRole(_ context.Context, id int, role types.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Role = role
	f.users[id] = user
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// fakeIncidentRepo applies the same ownership predicate as the SQL
// statements of store.IncidentRepository.
type fakeIncidentRepo struct {
	nextID    int
	incidents map[int]types.Incident
	createErr error
}

func newFakeIncidentRepo(incidents ...types.Incident) *fakeIncidentRepo {
	repo := &fakeIncidentRepo{incidents: map[int]types.Incident{}}
	for _, incident := range incidents {
		repo.incidents[incident.ID] = incident
		if incident.ID > repo.nextID {
			repo.nextID = incident.ID
		}
	}
	return repo
}

func (f *fakeIncidentRepo) List(context.Context) ([]types.IncidentView, error) {
	views := make([]types.IncidentView, 0, len(f.incidents))
	for _, incident := range f.incidents {
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

func (f *fakeIncidentRepo) Create(_ context.Context, incident types.Incident) (types.Incident, error) {
	if f.createErr != nil {
		return types.Incident{}, f.createErr
	}
	f.nextID++
	incident.ID = f.nextID
	incident.OccurredAt = time.Now()
	f.incidents[incident.ID] = incident
	return incident, nil
}

func (f *fakeIncidentRepo) allowed(incident types.Incident, callerID int, isAdmin bool) bool {
	return isAdmin || (incident.AuthorID != nil && *incident.AuthorID == callerID)
}

func (f *fakeIncidentRepo) UpdateOwned(_ context.Context, id int, description, city string, callerID int, isAdmin bool) (types.Incident, error) {
	incident, ok := f.incidents[id]
	if !ok || !f.allowed(incident, callerID, isAdmin) {
		return types.Incident{}, store.ErrNotFound
	}
	if description != "" {
		incident.Description = description
	}
	if city != "" {
		incident.City = city
	}
	f.incidents[id] = incident
	return incident, nil
}

func (f *fakeIncidentRepo) DeleteOwned(_ context.Context, id, callerID int, isAdmin bool) (*string, error) {
	incident, ok := f.incidents[id]
	if !ok || !f.allowed(incident, callerID, isAdmin) {
		return nil, store.ErrNotFound
	}
	delete(f.incidents, id)
	return incident.PhotoKey, nil
}

func (f *fakeIncidentRepo) FindOwner(_ context.Context, table string, id int) (int, bool, error) {
	if table != "incidents" {
		return 0, false, errors.New("unsupported table")
	}
	incident, ok := f.incidents[id]
	if !ok || incident.AuthorID == nil {
		return 0, false, nil
	}
	return *incident.AuthorID, true, nil
}

func (f *fakeIncidentRepo) CountByCity(_ context.Context, city string) (int, error) {
	total := 0
	for _, incident := range f.incidents {
		if incident.City == city {
			total++
		}
	}
	return total, nil
}

type fakePhotoStore struct {
	objects   map[string][]byte
	deleteErr error
	deleted   []string
}

func newFakePhotoStore() *fakePhotoStore {
	return &fakePhotoStore{objects: map[string][]byte{}}
}

func (f *fakePhotoStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakePhotoStore) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	return nil
}

type fakeEvents struct {
	events []mq.IncidentEvent
	err    error
}

func (f *fakeEvents) Publish(_ context.Context, event mq.IncidentEvent) error {
	f.events = append(f.events, event)
	return f.err
}

type fakeTokens struct{}

func (fakeTokens) Issue(user types.User) (string, error) {
	return "token-for-" + user.Email, nil
}

type fakeWeather struct {
	precipitation float64
	snapshot      types.WeatherSnapshot
	err           error
	calls         int
}

func (f *fakeWeather) ForecastPrecipitation(context.Context, string) (float64, error) {
	f.calls++
	return f.precipitation, f.err
}

func (f *fakeWeather) Current(context.Context, string) (types.WeatherSnapshot, error) {
	f.calls++
	return f.snapshot, f.err
}
