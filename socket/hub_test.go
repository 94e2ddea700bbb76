package socket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatikspace/collab/internal/project/repository"
	"github.com/tatikspace/collab/protocol"
	"github.com/tatikspace/collab/store"
)

// Helper function to read frames from a WebSocket connection with a timeout.
func readFrame(t *testing.T, conn *websocket.Conn) protocol.Inbound {
	t.Helper()
	var frame protocol.Inbound
	// Set a deadline to avoid tests hanging forever.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read frame from WebSocket")
	err = json.Unmarshal(p, &frame)
	require.NoError(t, err, "Failed to unmarshal frame JSON")
	return frame
}

func sendFrame(t *testing.T, conn *websocket.Conn, out protocol.Outbound) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(out))
}

func memberRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "email", "avatar", "role", "joined_at"})
}

func projectRow(projectID, ownerID string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "description", "owner_id", "share_token", "created_at"}).
		AddRow(projectID, "Test Project", "", ownerID, "share-token", time.Now())
}

func TestHubIntegration(t *testing.T) {
	// 1. Setup mock DB and hub
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := repository.NewProjectRepository(db)
	hub := NewHub(repo)
	go hub.Run()

	// 2. Setup test HTTP server. The user id normally comes from the auth
	// middleware; tests pass it straight through.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		ServeWs(hub, w, r, userID, "")
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	projectID := "test-project-1"
	joinedAt := time.Now()

	// --- Client 1 (owner) joins ---

	mock.ExpectQuery("SELECT role FROM project_members").
		WithArgs(projectID, "user1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("owner"))

	// First member of a room triggers a full project load.
	mock.ExpectQuery("SELECT id, name, description, owner_id, share_token, created_at FROM projects").
		WithArgs(projectID).
		WillReturnRows(projectRow(projectID, "user1"))
	mock.ExpectQuery("SELECT u.id, u.name, u.email").
		WithArgs(projectID).
		WillReturnRows(memberRows().
			AddRow("user1", "Alice", "alice@example.com", "", "owner", joinedAt).
			AddRow("user2", "Bob", "bob@example.com", "", "viewer", joinedAt))

	conn1, _, err := websocket.DefaultDialer.Dial(wsURL+"/?user_id=user1", nil)
	require.NoError(t, err, "Client 1 failed to connect")
	defer conn1.Close()

	sendFrame(t, conn1, protocol.Join(projectID, "user1", "Alice"))

	// The joiner gets the roster, the presence set, then the join notice.
	projectFrame := readFrame(t, conn1)
	require.Equal(t, protocol.TypeProject, projectFrame.Type)
	require.NotNil(t, projectFrame.Project)
	assert.Equal(t, projectID, projectFrame.Project.ID)
	require.Len(t, projectFrame.Project.Members, 2)
	assert.True(t, projectFrame.Project.Members[0].Online, "joiner must be marked online")
	assert.False(t, projectFrame.Project.Members[1].Online)

	onlineFrame := readFrame(t, conn1)
	require.Equal(t, protocol.TypeOnline, onlineFrame.Type)
	assert.Equal(t, []string{"user1"}, onlineFrame.UserIDs)

	systemFrame := readFrame(t, conn1)
	require.Equal(t, protocol.TypeSystem, systemFrame.Type)
	require.NotNil(t, systemFrame.Message)
	assert.Equal(t, store.MessageSystem, systemFrame.Message.Type)

	// --- Client 2 (viewer) joins the same room ---

	mock.ExpectQuery("SELECT role FROM project_members").
		WithArgs(projectID, "user2").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("viewer"))

	conn2, _, err := websocket.DefaultDialer.Dial(wsURL+"/?user_id=user2", nil)
	require.NoError(t, err, "Client 2 failed to connect")
	defer conn2.Close()

	sendFrame(t, conn2, protocol.Join(projectID, "user2", "Bob"))

	// Client 2 gets its own snapshot, presence, and notice.
	require.Equal(t, protocol.TypeProject, readFrame(t, conn2).Type)
	online2 := readFrame(t, conn2)
	require.Equal(t, protocol.TypeOnline, online2.Type)
	assert.Equal(t, []string{"user1", "user2"}, online2.UserIDs)
	require.Equal(t, protocol.TypeSystem, readFrame(t, conn2).Type)

	// Client 1 sees the presence change and the join notice.
	presence := readFrame(t, conn1)
	require.Equal(t, protocol.TypeOnline, presence.Type)
	assert.Equal(t, []string{"user1", "user2"}, presence.UserIDs)
	require.Equal(t, protocol.TypeSystem, readFrame(t, conn1).Type)

	// --- Client 2 sends a chat message, echoed to the whole room ---

	sendFrame(t, conn2, protocol.Chat(projectID, "hello everyone"))

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		chat := readFrame(t, conn)
		require.Equal(t, protocol.TypeMessage, chat.Type)
		require.NotNil(t, chat.Message)
		assert.Equal(t, "user2", chat.Message.UserID)
		assert.Equal(t, "hello everyone", chat.Message.Content)
		assert.Equal(t, store.MessageText, chat.Message.Type)
		assert.NotEmpty(t, chat.Message.ID)
	}

	// --- A viewer may not invite; the denial goes only to the caller ---

	sendFrame(t, conn2, protocol.Invite(projectID, "carol@example.com", store.RoleEditor))

	denied := readFrame(t, conn2)
	require.Equal(t, protocol.TypeError, denied.Type)
	assert.Contains(t, denied.Error, "invite")

	// --- The owner removes client 2, which also kicks its connection ---

	mock.ExpectExec("DELETE FROM project_members").
		WithArgs(projectID, "user2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, name, description, owner_id, share_token, created_at FROM projects").
		WithArgs(projectID).
		WillReturnRows(projectRow(projectID, "user1"))
	mock.ExpectQuery("SELECT u.id, u.name, u.email").
		WithArgs(projectID).
		WillReturnRows(memberRows().
			AddRow("user1", "Alice", "alice@example.com", "", "owner", joinedAt))

	sendFrame(t, conn1, protocol.Remove(projectID, "user2"))

	roster := readFrame(t, conn1)
	require.Equal(t, protocol.TypeProject, roster.Type)
	require.NotNil(t, roster.Project)
	assert.Len(t, roster.Project.Members, 1)

	afterKick := readFrame(t, conn1)
	require.Equal(t, protocol.TypeOnline, afterKick.Type)
	assert.Equal(t, []string{"user1"}, afterKick.UserIDs)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHubRejectsNonMembers(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := repository.NewProjectRepository(db)
	hub := NewHub(repo)
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, "outsider", "")
	}))
	defer server.Close()

	mock.ExpectQuery("SELECT role FROM project_members").
		WithArgs("test-project-1", "outsider").
		WillReturnError(sqlmock.ErrCancelled)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	sendFrame(t, conn, protocol.Join("test-project-1", "outsider", "Mallory"))

	// The server closes the connection without admitting the client.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestHubIgnoresMalformedFrames(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := repository.NewProjectRepository(db)
	hub := NewHub(repo)
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, "user1", "Alice")
	}))
	defer server.Close()

	projectID := "test-project-2"
	mock.ExpectQuery("SELECT role FROM project_members").
		WithArgs(projectID, "user1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("owner"))
	mock.ExpectQuery("SELECT id, name, description, owner_id, share_token, created_at FROM projects").
		WithArgs(projectID).
		WillReturnRows(projectRow(projectID, "user1"))
	mock.ExpectQuery("SELECT u.id, u.name, u.email").
		WithArgs(projectID).
		WillReturnRows(memberRows().
			AddRow("user1", "Alice", "alice@example.com", "", "owner", time.Now()))

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	sendFrame(t, conn, protocol.Join(projectID, "user1", "Alice"))
	readFrame(t, conn) // project
	readFrame(t, conn) // online
	readFrame(t, conn) // system

	// Garbage and unknown types must not kill the connection.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json at all")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery"}`)))
	sendFrame(t, conn, protocol.Ping())

	// The connection still works: a chat round-trips.
	sendFrame(t, conn, protocol.Chat(projectID, "still alive"))
	chat := readFrame(t, conn)
	require.Equal(t, protocol.TypeMessage, chat.Type)
	assert.Equal(t, "still alive", chat.Message.Content)
}
