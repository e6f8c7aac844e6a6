package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/communityhq/communities-backend/api/middleware"
	"github.com/communityhq/communities-backend/internal/servers"
	pkgerrors "github.com/communityhq/communities-backend/pkg/errors"
	"github.com/communityhq/communities-backend/pkg/pagination"
)

type fakeServersService struct {
	createFn   func(ctx context.Context, actorID uuid.UUID, req servers.CreateServerRequest) (*servers.ServerDTO, error)
	getFn      func(ctx context.Context, actorID, serverID uuid.UUID) (*servers.ServerDTO, error)
	listMineFn func(ctx context.Context, actorID uuid.UUID) ([]servers.ServerDTO, error)
	discoverFn func(ctx context.Context, params pagination.Params) (*servers.ServerList, error)
	updateFn   func(ctx context.Context, actorID, serverID uuid.UUID, req servers.UpdateServerRequest) (*servers.ServerDTO, error)
	deleteFn   func(ctx context.Context, actorID, serverID uuid.UUID) error
}

func (f *fakeServersService) Create(ctx context.Context, actorID uuid.UUID, req servers.CreateServerRequest) (*servers.ServerDTO, error) {
	return f.createFn(ctx, actorID, req)
}

func (f *fakeServersService) Get(ctx context.Context, actorID, serverID uuid.UUID) (*servers.ServerDTO, error) {
	return f.getFn(ctx, actorID, serverID)
}

func (f *fakeServersService) ListMine(ctx context.Context, actorID uuid.UUID) ([]servers.ServerDTO, error) {
	return f.listMineFn(ctx, actorID)
}

func (f *fakeServersService) Discover(ctx context.Context, params pagination.Params) (*servers.ServerList, error) {
	return f.discoverFn(ctx, params)
}

func (f *fakeServersService) Update(ctx context.Context, actorID, serverID uuid.UUID, req servers.UpdateServerRequest) (*servers.ServerDTO, error) {
	return f.updateFn(ctx, actorID, serverID, req)
}

func (f *fakeServersService) Delete(ctx context.Context, actorID, serverID uuid.UUID) error {
	return f.deleteFn(ctx, actorID, serverID)
}

func authedRequest(method, target string, body string, userID uuid.UUID) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestServerCreateReturnsCreated(t *testing.T) {
	actor := uuid.New()
	svc := &fakeServersService{
		createFn: func(_ context.Context, actorID uuid.UUID, req servers.CreateServerRequest) (*servers.ServerDTO, error) {
			if actorID != actor {
				t.Fatalf("expected actor %s, got %s", actor, actorID)
			}
			return &servers.ServerDTO{ID: uuid.New(), Name: req.Name, OwnerID: actorID}, nil
		},
	}

	req := authedRequest(http.MethodPost, "/api/v1/servers", `{"name":"gophers"}`, actor)
	rec := httptest.NewRecorder()
	ServerCreate(svc, nil)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Data servers.ServerDTO `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Data.Name != "gophers" || body.Data.OwnerID != actor {
		t.Fatalf("unexpected server payload: %+v", body.Data)
	}
}

func TestServerCreateRequiresAuthContext(t *testing.T) {
	svc := &fakeServersService{
		createFn: func(context.Context, uuid.UUID, servers.CreateServerRequest) (*servers.ServerDTO, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/servers", strings.NewReader(`{"name":"gophers"}`))
	rec := httptest.NewRecorder()
	ServerCreate(svc, nil)(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestServerGetHonorsNotFound(t *testing.T) {
	serverID := uuid.New()
	svc := &fakeServersService{
		getFn: func(context.Context, uuid.UUID, uuid.UUID) (*servers.ServerDTO, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "server not found")
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/servers/"+serverID.String(), "", uuid.New())
	req = withURLParam(req, "serverId", serverID.String())
	rec := httptest.NewRecorder()
	ServerGet(svc, nil)(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServerGetRejectsMalformedID(t *testing.T) {
	svc := &fakeServersService{
		getFn: func(context.Context, uuid.UUID, uuid.UUID) (*servers.ServerDTO, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/servers/nope", "", uuid.New())
	req = withURLParam(req, "serverId", "nope")
	rec := httptest.NewRecorder()
	ServerGet(svc, nil)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServerDiscoverForwardsPageParams(t *testing.T) {
	var got pagination.Params
	svc := &fakeServersService{
		discoverFn: func(_ context.Context, params pagination.Params) (*servers.ServerList, error) {
			got = params
			return &servers.ServerList{Servers: []servers.ServerDTO{}}, nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/servers/discover?limit=5&cursor=abc", "", uuid.New())
	rec := httptest.NewRecorder()
	ServerDiscover(svc, nil)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.Limit != 5 || got.Cursor != "abc" {
		t.Fatalf("unexpected params: %+v", got)
	}
}

func TestServerDeleteForbiddenForNonOwner(t *testing.T) {
	serverID := uuid.New()
	svc := &fakeServersService{
		deleteFn: func(context.Context, uuid.UUID, uuid.UUID) error {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can delete a server")
		},
	}

	req := authedRequest(http.MethodDelete, "/api/v1/servers/"+serverID.String(), "", uuid.New())
	req = withURLParam(req, "serverId", serverID.String())
	rec := httptest.NewRecorder()
	ServerDelete(svc, nil)(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
