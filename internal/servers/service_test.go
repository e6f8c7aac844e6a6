package servers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/communityhq/communities-backend/pkg/db/models"
	"github.com/communityhq/communities-backend/pkg/enums"
	pkgerrors "github.com/communityhq/communities-backend/pkg/errors"
	"github.com/communityhq/communities-backend/pkg/outbox"
	"github.com/communityhq/communities-backend/pkg/pagination"
)

type fakeServerRepo struct {
	createFn       func(ctx context.Context, server *models.Server) (*models.Server, error)
	findByIDFn     func(ctx context.Context, id uuid.UUID) (*models.Server, error)
	listByMemberFn func(ctx context.Context, userID uuid.UUID) ([]models.Server, error)
	listPublicFn   func(ctx context.Context, params pagination.Params) ([]models.Server, error)
	updateFn       func(ctx context.Context, id uuid.UUID, updates map[string]any) error
	deleteFn       func(ctx context.Context, id uuid.UUID) error
}

func (f *fakeServerRepo) WithTx(*gorm.DB) Repository { return f }

func (f *fakeServerRepo) Create(ctx context.Context, server *models.Server) (*models.Server, error) {
	if f.createFn == nil {
		server.ID = uuid.New()
		server.CreatedAt = time.Now().UTC()
		return server, nil
	}
	return f.createFn(ctx, server)
}

func (f *fakeServerRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Server, error) {
	return f.findByIDFn(ctx, id)
}

func (f *fakeServerRepo) ListByMember(ctx context.Context, userID uuid.UUID) ([]models.Server, error) {
	return f.listByMemberFn(ctx, userID)
}

func (f *fakeServerRepo) ListPublic(ctx context.Context, params pagination.Params) ([]models.Server, error) {
	return f.listPublicFn(ctx, params)
}

func (f *fakeServerRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if f.updateFn == nil {
		return nil
	}
	return f.updateFn(ctx, id, updates)
}

func (f *fakeServerRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(ctx, id)
}

type fakeMembersRepo struct {
	addErr   error
	added    []*models.ServerMember
	memberFn func(serverID, userID uuid.UUID) (bool, error)
}

func (f *fakeMembersRepo) AddTx(_ context.Context, _ *gorm.DB, member *models.ServerMember) (*models.ServerMember, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	member.JoinedAt = time.Now().UTC()
	f.added = append(f.added, member)
	return member, nil
}

func (f *fakeMembersRepo) IsMember(_ context.Context, serverID, userID uuid.UUID) (bool, error) {
	if f.memberFn == nil {
		return false, nil
	}
	return f.memberFn(serverID, userID)
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type recordedWrite struct {
	desc    outbox.RoutingDescriptor
	payload any
}

type fakeOutboxWriter struct {
	writes   []recordedWrite
	writeErr error
}

func (f *fakeOutboxWriter) Write(_ context.Context, _ *gorm.DB, desc outbox.RoutingDescriptor, payload any) (uuid.UUID, error) {
	if f.writeErr != nil {
		return uuid.Nil, f.writeErr
	}
	f.writes = append(f.writes, recordedWrite{desc: desc, payload: payload})
	return uuid.New(), nil
}

func newTestServerService(t *testing.T, repo Repository, members membersRepository, writer outboxWriter) Service {
	t.Helper()
	svc, err := NewService(repo, members, fakeTxRunner{}, writer)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestCreateEnrollsOwnerAndQueuesEvents(t *testing.T) {
	ownerID := uuid.New()
	repo := &fakeServerRepo{}
	members := &fakeMembersRepo{}
	writer := &fakeOutboxWriter{}
	svc := newTestServerService(t, repo, members, writer)

	dto, err := svc.Create(context.Background(), ownerID, CreateServerRequest{Name: "gophers"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if dto.OwnerID != ownerID {
		t.Fatalf("owner mismatch")
	}
	if dto.Visibility != enums.VisibilityPublic {
		t.Fatalf("expected public default, got %s", dto.Visibility)
	}
	if len(members.added) != 1 || members.added[0].UserID != ownerID {
		t.Fatalf("owner not enrolled: %+v", members.added)
	}
	if len(writer.writes) != 2 {
		t.Fatalf("expected 2 outbox writes, got %d", len(writer.writes))
	}
	if writer.writes[0].desc != outbox.ServerCreated || writer.writes[1].desc != outbox.MemberCreated {
		t.Fatalf("unexpected descriptors: %+v", writer.writes)
	}
}

func TestCreateRejectsInvalidVisibility(t *testing.T) {
	svc := newTestServerService(t, &fakeServerRepo{}, &fakeMembersRepo{}, &fakeOutboxWriter{})

	_, err := svc.Create(context.Background(), uuid.New(), CreateServerRequest{Name: "x", Visibility: "secret"})
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestCreateAbortsWhenOutboxWriteFails(t *testing.T) {
	writer := &fakeOutboxWriter{writeErr: errors.New("serialization broke")}
	svc := newTestServerService(t, &fakeServerRepo{}, &fakeMembersRepo{}, writer)

	_, err := svc.Create(context.Background(), uuid.New(), CreateServerRequest{Name: "gophers"})
	if err == nil {
		t.Fatalf("expected create to fail when the event cannot be queued")
	}
}

func TestGetHidesPrivateServerFromNonMembers(t *testing.T) {
	serverID := uuid.New()
	repo := &fakeServerRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*models.Server, error) {
			return &models.Server{ID: serverID, Visibility: enums.VisibilityPrivate}, nil
		},
	}
	members := &fakeMembersRepo{
		memberFn: func(uuid.UUID, uuid.UUID) (bool, error) { return false, nil },
	}
	svc := newTestServerService(t, repo, members, &fakeOutboxWriter{})

	_, err := svc.Get(context.Background(), uuid.New(), serverID)
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestGetAllowsPrivateServerForMembers(t *testing.T) {
	serverID := uuid.New()
	actorID := uuid.New()
	repo := &fakeServerRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*models.Server, error) {
			return &models.Server{ID: serverID, Visibility: enums.VisibilityPrivate}, nil
		},
	}
	members := &fakeMembersRepo{
		memberFn: func(_, userID uuid.UUID) (bool, error) { return userID == actorID, nil },
	}
	svc := newTestServerService(t, repo, members, &fakeOutboxWriter{})

	dto, err := svc.Get(context.Background(), actorID, serverID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if dto.ID != serverID {
		t.Fatalf("wrong server returned")
	}
}

func TestDiscoverPaginatesWithCursor(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Second)
	rows := make([]models.Server, 3)
	for i := range rows {
		rows[i] = models.Server{
			ID:         uuid.New(),
			Name:       "server",
			Visibility: enums.VisibilityPublic,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
	}
	repo := &fakeServerRepo{
		listPublicFn: func(context.Context, pagination.Params) ([]models.Server, error) {
			return rows, nil
		},
	}
	svc := newTestServerService(t, repo, &fakeMembersRepo{}, &fakeOutboxWriter{})

	list, err := svc.Discover(context.Background(), pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(list.Servers) != 2 {
		t.Fatalf("expected trimmed page, got %d", len(list.Servers))
	}
	if list.NextCursor == nil {
		t.Fatalf("expected next cursor")
	}
	cursor, err := pagination.ParseCursor(*list.NextCursor)
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if cursor.ID != rows[1].ID {
		t.Fatalf("cursor should point at the last returned row")
	}

	// Fits in one page, no cursor.
	list, err = svc.Discover(context.Background(), pagination.Params{Limit: 5})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if list.NextCursor != nil {
		t.Fatalf("unexpected cursor on final page")
	}
}

func TestUpdateRequiresOwnership(t *testing.T) {
	repo := &fakeServerRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*models.Server, error) {
			return &models.Server{ID: uuid.New(), OwnerID: uuid.New(), Visibility: enums.VisibilityPublic}, nil
		},
	}
	svc := newTestServerService(t, repo, &fakeMembersRepo{}, &fakeOutboxWriter{})

	name := "renamed"
	_, err := svc.Update(context.Background(), uuid.New(), uuid.New(), UpdateServerRequest{Name: &name})
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestUpdateAppliesChangedFields(t *testing.T) {
	ownerID := uuid.New()
	serverID := uuid.New()
	var applied map[string]any
	repo := &fakeServerRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*models.Server, error) {
			return &models.Server{ID: serverID, OwnerID: ownerID, Name: "old", Visibility: enums.VisibilityPublic}, nil
		},
		updateFn: func(_ context.Context, _ uuid.UUID, updates map[string]any) error {
			applied = updates
			return nil
		},
	}
	svc := newTestServerService(t, repo, &fakeMembersRepo{}, &fakeOutboxWriter{})

	name := "new-name"
	visibility := "private"
	dto, err := svc.Update(context.Background(), ownerID, serverID, UpdateServerRequest{
		Name:       &name,
		Visibility: &visibility,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if dto.Name != "new-name" || dto.Visibility != enums.VisibilityPrivate {
		t.Fatalf("dto not updated: %+v", dto)
	}
	if applied["name"] != "new-name" {
		t.Fatalf("name not in updates: %v", applied)
	}
	if _, ok := applied["updated_at"]; !ok {
		t.Fatalf("updated_at missing")
	}
	if _, ok := applied["description"]; ok {
		t.Fatalf("untouched field should not be updated")
	}
}

func TestDeleteQueuesDeletionEvent(t *testing.T) {
	ownerID := uuid.New()
	serverID := uuid.New()
	repo := &fakeServerRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*models.Server, error) {
			return &models.Server{ID: serverID, OwnerID: ownerID}, nil
		},
	}
	writer := &fakeOutboxWriter{}
	svc := newTestServerService(t, repo, &fakeMembersRepo{}, writer)

	if err := svc.Delete(context.Background(), ownerID, serverID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(writer.writes) != 1 || writer.writes[0].desc != outbox.ServerDeleted {
		t.Fatalf("expected a server.deleted event, got %+v", writer.writes)
	}
}

func TestDeleteRejectsNonOwner(t *testing.T) {
	repo := &fakeServerRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*models.Server, error) {
			return &models.Server{ID: uuid.New(), OwnerID: uuid.New()}, nil
		},
	}
	svc := newTestServerService(t, repo, &fakeMembersRepo{}, &fakeOutboxWriter{})

	err := svc.Delete(context.Background(), uuid.New(), uuid.New())
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestGetUnknownServer(t *testing.T) {
	repo := &fakeServerRepo{
		findByIDFn: func(context.Context, uuid.UUID) (*models.Server, error) {
			return nil, gorm.ErrRecordNotFound
		},
	}
	svc := newTestServerService(t, repo, &fakeMembersRepo{}, &fakeOutboxWriter{})

	_, err := svc.Get(context.Background(), uuid.New(), uuid.New())
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s", code)
	}
	appErr := pkgerrors.As(err)
	if appErr == nil {
		t.Fatalf("expected coded error, got %v", err)
	}
	if appErr.Code() != code {
		t.Fatalf("expected code %s, got %s (%v)", code, appErr.Code(), err)
	}
}
