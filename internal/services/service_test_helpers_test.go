package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tuneshare/internal/config"
	"tuneshare/internal/imtypes"
	"tuneshare/internal/models"
	"tuneshare/internal/storage"
)

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []imtypes.RelationshipEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev *imtypes.RelationshipEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *ev)
	return p.err
}

func (p *recordingPublisher) Events() []imtypes.RelationshipEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]imtypes.RelationshipEvent(nil), p.events...)
}

type testEnv struct {
	db        *gorm.DB
	users     storage.UserRepository
	requests  storage.FriendRequestRepository
	friends   storage.FriendshipRepository
	blocks    storage.BlockRepository
	publisher *recordingPublisher
	svc       RelationshipService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.InitDB(config.DatabaseConfig{Type: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, storage.AutoMigrateTables(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	env := &testEnv{
		db:        db,
		users:     storage.NewGormUserRepository(db),
		requests:  storage.NewGormFriendRequestRepository(db),
		friends:   storage.NewGormFriendshipRepository(db),
		blocks:    storage.NewGormBlockRepository(db),
		publisher: &recordingPublisher{},
	}
	env.svc = NewRelationshipService(db, env.users, env.requests, env.friends, env.blocks, env.publisher)
	return env
}

func (e *testEnv) user(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{
		UserID:       name + "42abc",
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "x",
		IsActive:     true,
	}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}
