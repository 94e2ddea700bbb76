package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatikspace/collab/store"
)

func newOfflineSession(t *testing.T) *Session {
	t.Helper()
	s := New(Config{ProjectID: "p1", UserID: "u1", UserName: "Alice", Offline: true})
	s.Open()
	t.Cleanup(s.Close)
	return s
}

func TestOfflineSeedIsDeterministic(t *testing.T) {
	s := newOfflineSession(t)
	snap := s.Snapshot()

	assert.Equal(t, StatusConnected, snap.Status)

	require.NotNil(t, snap.Project)
	assert.Equal(t, "p1", snap.Project.ID)
	assert.Equal(t, "u1", snap.Project.OwnerID)
	require.Len(t, snap.Project.Members, 1)

	owner := snap.Project.Members[0]
	assert.Equal(t, "u1", owner.UserID)
	assert.Equal(t, "Alice", owner.Name)
	assert.Equal(t, store.RoleOwner, owner.Role)
	assert.True(t, owner.Online)

	require.Len(t, snap.Messages, 1)
	assert.Equal(t, store.MessageSystem, snap.Messages[0].Type)

	assert.Equal(t, []string{"u1"}, snap.OnlineUserIDs)
	assert.Empty(t, snap.LastError)
}

func TestOfflineSendMessageAppendsLocally(t *testing.T) {
	s := newOfflineSession(t)

	assert.True(t, s.SendMessage("hello"))
	assert.True(t, s.SendMessage("world"))

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 3) // welcome + two sends
	assert.Equal(t, "hello", snap.Messages[1].Content)
	assert.Equal(t, "world", snap.Messages[2].Content)
	assert.Equal(t, store.MessageText, snap.Messages[1].Type)
	assert.Equal(t, "u1", snap.Messages[1].UserID)
	assert.Equal(t, "Alice", snap.Messages[1].UserName)
	assert.NotEmpty(t, snap.Messages[1].ID)
}

func TestOfflineInviteSynthesizesMember(t *testing.T) {
	s := newOfflineSession(t)

	require.True(t, s.InviteMember("bob@example.com", store.RoleEditor))

	snap := s.Snapshot()
	require.Len(t, snap.Project.Members, 2)
	invited := snap.Project.Members[1]
	assert.NotEmpty(t, invited.UserID)
	assert.Equal(t, "bob", invited.Name, "display name is the local part of the email")
	assert.Equal(t, "bob@example.com", invited.Email)
	assert.Equal(t, store.RoleEditor, invited.Role)
	assert.False(t, invited.Online)
}

func TestOfflineChangeRoleAndRemove(t *testing.T) {
	s := newOfflineSession(t)
	require.True(t, s.InviteMember("bob@example.com", store.RoleViewer))
	bobID := s.Snapshot().Project.Members[1].UserID

	assert.True(t, s.ChangeRole(bobID, store.RoleEditor))
	assert.Equal(t, store.RoleEditor, s.Snapshot().Project.Members[1].Role)

	assert.True(t, s.RemoveMember(bobID))
	assert.Len(t, s.Snapshot().Project.Members, 1)
}

func TestOfflineCommandsOnMissingTargetAreNoOps(t *testing.T) {
	s := newOfflineSession(t)
	before := s.Snapshot()

	assert.True(t, s.ChangeRole("nonexistent", store.RoleViewer))
	assert.True(t, s.RemoveMember("nonexistent"))

	after := s.Snapshot()
	assert.Equal(t, before.Project.Members, after.Project.Members)
}

func TestCapabilitiesDeriveFromRoster(t *testing.T) {
	tests := []struct {
		role      store.Role
		canInvite bool
		canManage bool
	}{
		{store.RoleOwner, true, true},
		{store.RoleEditor, true, false},
		{store.RoleViewer, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			s := New(Config{ProjectID: "p1", UserID: "u1", UserName: "Alice"})
			s.apply(event{kind: evProject, project: &store.Project{
				ID:      "p1",
				Members: []store.Member{{UserID: "u1", Role: tt.role}},
			}})

			assert.Equal(t, tt.role, s.CallerRole())
			assert.Equal(t, tt.canInvite, s.CanInvite())
			assert.Equal(t, tt.canManage, s.CanManage())
		})
	}
}

func TestCapabilitiesWithoutRoster(t *testing.T) {
	s := New(Config{ProjectID: "p1", UserID: "u1", UserName: "Alice"})
	assert.Empty(t, s.CallerRole())
	assert.False(t, s.CanInvite())
	assert.False(t, s.CanManage())
}
