//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/studylog/internal/domain"
	"github.com/ashureev/studylog/internal/store"
)

type fakeRepo struct {
	mu       sync.Mutex
	subjects map[string]domain.Subject
	apps     map[string]domain.App
	sessions map[string]*domain.Session
	events   map[string][]*domain.Event
	assets   []*domain.Asset
	pingErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		subjects: make(map[string]domain.Subject),
		apps:     make(map[string]domain.App),
		sessions: make(map[string]*domain.Session),
		events:   make(map[string][]*domain.Event),
	}
}

func (f *fakeRepo) UpsertSubject(_ context.Context, subject *domain.Subject) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subjects[subject.SubjectID]; !ok {
		f.subjects[subject.SubjectID] = *subject
	}
	return nil
}

func (f *fakeRepo) UpsertApp(_ context.Context, app *domain.App) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apps[app.AppID] = *app
	return nil
}

func (f *fakeRepo) CreateSession(_ context.Context, session *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *session
	f.sessions[session.SessionID] = &copy
	return nil
}

func (f *fakeRepo) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[sessionID]
	if s == nil {
		return nil, nil
	}
	copy := *s
	copy.EventsCount = len(f.events[sessionID])
	return &copy, nil
}

func (f *fakeRepo) FinishSession(_ context.Context, sessionID string, tsEndUTC string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[sessionID]
	if s == nil {
		return store.ErrSessionNotFound
	}
	s.TSEndUTC = tsEndUTC
	s.Status = domain.SessionFinished
	return nil
}

func (f *fakeRepo) InsertEvent(_ context.Context, event *domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessions[event.SessionID] == nil {
		return store.ErrSessionNotFound
	}
	for _, e := range f.events[event.SessionID] {
		if e.EventIndex == event.EventIndex {
			return store.ErrDuplicateEvent
		}
	}
	copy := *event
	f.events[event.SessionID] = append(f.events[event.SessionID], &copy)
	if s := f.sessions[event.SessionID]; s.Status == domain.SessionAbandoned {
		s.Status = domain.SessionActive
	}
	return nil
}

func (f *fakeRepo) ListEvents(_ context.Context, sessionID string) ([]*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]*domain.Event(nil), f.events[sessionID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].EventIndex < out[j].EventIndex })
	return out, nil
}

func (f *fakeRepo) MarkAbandoned(_ context.Context, _ time.Duration) ([]string, error) {
	return nil, nil
}

func (f *fakeRepo) InsertAsset(_ context.Context, asset *domain.Asset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *asset
	copy.AssetID = int64(len(f.assets) + 1)
	asset.AssetID = copy.AssetID
	f.assets = append(f.assets, &copy)
	return nil
}

func (f *fakeRepo) ListAssets(_ context.Context, sessionID string) ([]*domain.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Asset
	for _, a := range f.assets {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) Ping(_ context.Context) error { return f.pingErr }
func (f *fakeRepo) Close() error                 { return nil }

var errDown = errors.New("database down")
