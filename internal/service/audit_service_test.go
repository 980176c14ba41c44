package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/events"
)

func TestAuditServiceLogsLifecycleEvents(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	NewAuditService(dispatcher, zap.New(core)).RegisterHandlers()

	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		ID:        "evt-1",
		Type:      events.EventUserLoggedOut,
		SubjectID: "u1",
		Actor:     events.Actor{UserID: "u1", Role: domain.RoleUser},
		Payload:   events.LoggedOutPayload{Revoked: true},
	}))
	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{ID: "evt-2", Type: events.EventAdminRegistered, SubjectID: "u2"}))

	entries := logs.FilterMessage("audit").All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "user_logged_out", first["event_type"])
	assert.Equal(t, "u1", first["actor_id"])
	assert.Contains(t, first, "payload")

	second := entries[1].ContextMap()
	assert.Equal(t, "admin_registered", second["event_type"])
	assert.NotContains(t, second, "actor_id")
}
