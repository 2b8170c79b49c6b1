package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskhive-dev/taskhive/internal/auth"
	"github.com/taskhive-dev/taskhive/internal/dispatch"
	"github.com/taskhive-dev/taskhive/internal/handlers"
	"github.com/taskhive-dev/taskhive/internal/models"
	"github.com/taskhive-dev/taskhive/internal/realtime"
	"github.com/taskhive-dev/taskhive/internal/router"
	"github.com/taskhive-dev/taskhive/internal/testutil"
	"github.com/taskhive-dev/taskhive/internal/types"
	"gorm.io/gorm"
)

type testServer struct {
	t        *testing.T
	db       *gorm.DB
	engine   *gin.Engine
	registry *realtime.Registry
}

type actor struct {
	user  models.User
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, auth.InitJWTSecret("test-secret"))

	gdb := testutil.NewDB(t)
	registry := realtime.NewRegistry(32)
	t.Cleanup(registry.Shutdown)

	h := handlers.New(gdb, dispatch.New(registry), registry, nil)

	return &testServer{
		t:        t,
		db:       gdb,
		engine:   router.NewRouter(h, []string{"http://localhost:3000"}),
		registry: registry,
	}
}

func (s *testServer) user(name string) actor {
	s.t.Helper()

	u := testutil.CreateUser(s.t, s.db, name)
	token, err := auth.GenerateJWT(u.ID, u.Email)
	require.NoError(s.t, err)

	return actor{user: u, token: token}
}

func (s *testServer) do(method, path string, as actor, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as.token != "" {
		req.Header.Set("Authorization", "Bearer "+as.token)
	}

	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	return rec
}

// listen opens a registry connection that watches a's user room.
func (s *testServer) listen(a actor, projectIDs ...uint) *realtime.Connection {
	s.t.Helper()

	conn, err := s.registry.Connect(a.user.ID)
	require.NoError(s.t, err)
	require.NoError(s.t, s.registry.JoinUserRoom(conn, a.user.ID))
	for _, id := range projectIDs {
		require.NoError(s.t, s.registry.JoinProjectRoom(conn, id))
	}

	return conn
}

type pushed struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func drain(t *testing.T, conn *realtime.Connection) []pushed {
	t.Helper()

	var out []pushed
	for {
		select {
		case raw := <-conn.Frames():
			var p pushed
			require.NoError(t, json.Unmarshal(raw, &p))
			out = append(out, p)
		default:
			return out
		}
	}
}

func events(frames []pushed) []string {
	names := make([]string, 0, len(frames))
	for _, f := range frames {
		names = append(names, f.Event)
	}
	return names
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createProject(owner actor, title string) types.ProjectResponse {
	s.t.Helper()

	rec := s.do(http.MethodPost, "/api/projects", owner, gin.H{"title": title})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	return decode[types.ProjectResponse](s.t, rec)
}

// join invites member into project and accepts on their behalf.
func (s *testServer) join(owner, member actor, projectID uint) {
	s.t.Helper()

	rec := s.do(http.MethodPost, fmt.Sprintf("/api/projects/%d/invitations", projectID), owner, gin.H{"email": member.user.Email})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	invitation := decode[types.NotificationResponse](s.t, rec)

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/notifications/%d/resolve", invitation.ID), member, gin.H{"action": "accept"})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
}

func (s *testServer) unread(a actor) int64 {
	s.t.Helper()

	rec := s.do(http.MethodGet, "/api/notifications/unread-count", a, nil)
	require.Equal(s.t, http.StatusOK, rec.Code)

	return decode[struct {
		Count int64 `json:"count"`
	}](s.t, rec).Count
}

func TestInviteAcceptThenTaskNotifiesMember(t *testing.T) {
	s := newTestServer(t)
	alice := s.user("alice")
	bob := s.user("bob")

	project := s.createProject(alice, "Apollo")
	aliceConn := s.listen(alice)
	bobConn := s.listen(bob)

	rec := s.do(http.MethodPost, fmt.Sprintf("/api/projects/%d/invitations", project.ID), alice, gin.H{"email": "BOB@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	invitation := decode[types.NotificationResponse](t, rec)
	assert.Equal(t, string(models.NotificationInvitation), invitation.Type)
	require.NotNil(t, invitation.InvitationStatus)
	assert.Equal(t, models.InvitationPending, *invitation.InvitationStatus)

	bobFrames := drain(t, bobConn)
	require.Len(t, bobFrames, 1)
	assert.Equal(t, dispatch.EventNotification, bobFrames[0].Event)
	assert.Contains(t, string(bobFrames[0].Data), `"type":"invitation"`)

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/notifications/%d/resolve", invitation.ID), bob, gin.H{"action": "accept"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	aliceFrames := drain(t, aliceConn)
	require.Len(t, aliceFrames, 1)
	assert.Contains(t, string(aliceFrames[0].Data), `"type":"invitation_accepted"`)

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/projects/%d", project.ID), bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []uint{alice.user.ID, bob.user.ID}, decode[types.ProjectResponse](t, rec).MemberIDs)

	require.NoError(t, s.registry.JoinProjectRoom(bobConn, project.ID))
	drain(t, bobConn)

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", project.ID), alice, gin.H{
		"title":       "Launch",
		"assignee_id": bob.user.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, int64(1), s.unread(bob))
	assert.Equal(t, int64(0), s.unread(alice))

	rec = s.do(http.MethodGet, "/api/notifications", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]types.NotificationResponse](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, string(models.NotificationTaskAssigned), list[0].Type)
	assert.Equal(t, "alice", list[0].SenderName)
	assert.Equal(t, "Apollo", list[0].ProjectTitle)
	assert.Equal(t, string(models.NotificationInvitation), list[1].Type)

	assert.ElementsMatch(t, []string{dispatch.EventTaskCreated, dispatch.EventNotification}, events(drain(t, bobConn)))
	assert.Empty(t, drain(t, aliceConn))
}

func TestResolveTwiceIsRejected(t *testing.T) {
	s := newTestServer(t)
	alice := s.user("alice")
	bob := s.user("bob")
	project := s.createProject(alice, "Apollo")

	rec := s.do(http.MethodPost, fmt.Sprintf("/api/projects/%d/invitations", project.ID), alice, gin.H{"email": bob.user.Email})
	require.Equal(t, http.StatusCreated, rec.Code)
	invitation := decode[types.NotificationResponse](t, rec)

	path := fmt.Sprintf("/api/notifications/%d/resolve", invitation.ID)

	rec = s.do(http.MethodPost, path, alice, gin.H{"action": "accept"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, path, bob, gin.H{"action": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, path, bob, gin.H{"action": "decline"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, path, bob, gin.H{"action": "accept"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/projects/%d", project.ID), bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInviteConflictsAndUnknownUser(t *testing.T) {
	s := newTestServer(t)
	alice := s.user("alice")
	bob := s.user("bob")
	carol := s.user("carol")
	project := s.createProject(alice, "Apollo")
	path := fmt.Sprintf("/api/projects/%d/invitations", project.ID)

	rec := s.do(http.MethodPost, path, alice, gin.H{"email": alice.user.Email})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, path, alice, gin.H{"email": bob.user.Email})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(http.MethodPost, path, alice, gin.H{"email": bob.user.Email})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, path, alice, gin.H{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, path, carol, gin.H{"email": "dave@example.com"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestNotFoundBeforeForbidden(t *testing.T) {
	s := newTestServer(t)
	alice := s.user("alice")
	mallory := s.user("mallory")
	project := s.createProject(alice, "Apollo")

	rec := s.do(http.MethodGet, "/api/projects/9999", mallory, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/projects/%d", project.ID), mallory, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPatch, "/api/tasks/9999", mallory, gin.H{"title": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodDelete, "/api/notifications/9999", mallory, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskPermissions(t *testing.T) {
	s := newTestServer(t)
	alice := s.user("alice")
	bob := s.user("bob")
	carol := s.user("carol")
	outsider := s.user("outsider")
	project := s.createProject(alice, "Apollo")
	s.join(alice, bob, project.ID)
	s.join(alice, carol, project.ID)

	rec := s.do(http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", project.ID), alice, gin.H{
		"title":       "Launch",
		"assignee_id": bob.user.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	task := decode[types.TaskResponse](t, rec)
	taskPath := fmt.Sprintf("/api/tasks/%d", task.ID)

	rec = s.do(http.MethodPatch, taskPath, carol, gin.H{"status": models.TaskStatusInProgress})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPatch, taskPath, outsider, gin.H{"status": models.TaskStatusInProgress})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPatch, taskPath, bob, gin.H{"status": "Someday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPatch, taskPath, bob, gin.H{"assignee_id": outsider.user.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPatch, taskPath, bob, gin.H{"status": models.TaskStatusDone})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.TaskStatusDone, decode[types.TaskResponse](t, rec).Status)

	var completed int64
	require.NoError(t, s.db.Model(&models.Notification{}).
		Where("type = ? AND sender_id = ?", models.NotificationTaskCompleted, bob.user.ID).
		Count(&completed).Error)
	assert.Equal(t, int64(2), completed)

	commentPath := taskPath + "/comments"

	rec = s.do(http.MethodPost, commentPath, carol, gin.H{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, commentPath, outsider, gin.H{"text": "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, commentPath, carol, gin.H{"text": "nice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, decode[types.TaskResponse](t, rec).Comments, 1)

	rec = s.do(http.MethodDelete, taskPath, carol, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodDelete, taskPath, alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/projects/%d/tasks", project.ID), bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]types.TaskResponse](t, rec))
}

func TestCommentPushedToProjectRoom(t *testing.T) {
	s := newTestServer(t)
	alice := s.user("alice")
	bob := s.user("bob")
	project := s.createProject(alice, "Apollo")
	s.join(alice, bob, project.ID)

	rec := s.do(http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", project.ID), alice, gin.H{"title": "Launch"})
	require.Equal(t, http.StatusCreated, rec.Code)
	task := decode[types.TaskResponse](t, rec)

	watcher := s.listen(bob, project.ID)

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/comments", task.ID), alice, gin.H{"text": "kickoff"})
	require.Equal(t, http.StatusCreated, rec.Code)

	frames := drain(t, watcher)
	require.Len(t, frames, 1)
	assert.Equal(t, dispatch.EventCommentAdded, frames[0].Event)
	assert.Contains(t, string(frames[0].Data), "kickoff")
}

func TestProjectUpdateAndCascadeDelete(t *testing.T) {
	s := newTestServer(t)
	alice := s.user("alice")
	bob := s.user("bob")
	project := s.createProject(alice, "Apollo")
	s.join(alice, bob, project.ID)
	projectPath := fmt.Sprintf("/api/projects/%d", project.ID)

	rec := s.do(http.MethodPost, projectPath+"/tasks", alice, gin.H{"title": "Launch"})
	require.Equal(t, http.StatusCreated, rec.Code)
	task := decode[types.TaskResponse](t, rec)

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/comments", task.ID), bob, gin.H{"text": "on it"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(http.MethodPatch, projectPath, bob, gin.H{"title": "Artemis"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	watcher := s.listen(bob, project.ID)

	rec = s.do(http.MethodPatch, projectPath, alice, gin.H{"title": "Artemis"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Artemis", decode[types.ProjectResponse](t, rec).Title)
	assert.ElementsMatch(t, []string{dispatch.EventProjectUpdated, dispatch.EventNotification}, events(drain(t, watcher)))

	rec = s.do(http.MethodDelete, projectPath, bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodDelete, projectPath, alice, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{dispatch.EventProjectDeleted}, events(drain(t, watcher)))
	assert.Zero(t, s.registry.Members(realtime.ProjectRoom(project.ID)))
	assert.NotContains(t, watcher.Rooms(), realtime.ProjectRoom(project.ID))

	for _, model := range []any{&models.Task{}, &models.Comment{}, &models.ProjectMembership{}} {
		var count int64
		require.NoError(t, s.db.Unscoped().Model(model).Count(&count).Error)
		assert.Zero(t, count, "%T rows left", model)
	}

	var notes int64
	require.NoError(t, s.db.Unscoped().Model(&models.Notification{}).Where("project_id = ?", project.ID).Count(&notes).Error)
	assert.Zero(t, notes)

	rec = s.do(http.MethodGet, projectPath, alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboard(t *testing.T) {
	s := newTestServer(t)
	alice := s.user("alice")
	bob := s.user("bob")
	outsider := s.user("outsider")

	own := s.createProject(bob, "Gemini")
	shared := s.createProject(alice, "Apollo")
	s.join(alice, bob, shared.ID)
	hidden := s.createProject(outsider, "Mercury")

	for _, task := range []struct {
		project uint
		as      actor
		status  string
	}{
		{own.ID, bob, models.TaskStatusToDo},
		{own.ID, bob, models.TaskStatusDone},
		{shared.ID, alice, models.TaskStatusInProgress},
		{shared.ID, alice, models.TaskStatusDone},
		{hidden.ID, outsider, models.TaskStatusToDo},
	} {
		rec := s.do(http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", task.project), task.as, gin.H{
			"title":  "Task",
			"status": task.status,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := s.do(http.MethodGet, "/api/projects/dashboard", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dash := decode[handlers.DashboardResponse](t, rec)

	var projectIDs []uint
	for _, p := range dash.Projects {
		projectIDs = append(projectIDs, p.ID)
	}
	assert.ElementsMatch(t, []uint{own.ID, shared.ID}, projectIDs)

	require.Len(t, dash.Tasks, 4)
	for _, task := range dash.Tasks {
		assert.NotEqual(t, hidden.ID, task.ProjectID)
	}
	assert.Equal(t, map[string]int64{
		models.TaskStatusToDo:       1,
		models.TaskStatusInProgress: 1,
		models.TaskStatusDone:       2,
	}, dash.StatusCounts)

	loner := s.user("loner")
	rec = s.do(http.MethodGet, "/api/projects/dashboard", loner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"projects":[],"tasks":[],"statusCounts":{"ToDo":0,"InProgress":0,"Done":0}}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/projects/dashboard", actor{}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotificationLifecycleRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.user("alice")
	bob := s.user("bob")
	project := s.createProject(alice, "Apollo")
	s.join(alice, bob, project.ID)

	for _, title := range []string{"One", "Two"} {
		rec := s.do(http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", project.ID), alice, gin.H{"title": title})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	require.Equal(t, int64(2), s.unread(bob))

	rec := s.do(http.MethodGet, "/api/notifications", bob, nil)
	list := decode[[]types.NotificationResponse](t, rec)
	require.Len(t, list, 3)

	rec = s.do(http.MethodPut, fmt.Sprintf("/api/notifications/%d/read", list[0].ID), alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPut, fmt.Sprintf("/api/notifications/%d/read", list[0].ID), bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[types.NotificationResponse](t, rec).IsRead)
	assert.Equal(t, int64(1), s.unread(bob))

	rec = s.do(http.MethodPut, "/api/notifications/read-all", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), s.unread(bob))

	rec = s.do(http.MethodPut, "/api/notifications/read-all", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodDelete, fmt.Sprintf("/api/notifications/%d", list[0].ID), bob, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodDelete, fmt.Sprintf("/api/notifications/%d", list[0].ID), bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/auth/register", actor{}, gin.H{
		"name":     "dana",
		"email":    "Dana@Example.com",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/auth/register", actor{}, gin.H{
		"name":     "dana",
		"email":    "dana@example.com",
		"password": "correct-horse",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/api/auth/login", actor{}, gin.H{"email": "dana@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/auth/login", actor{}, gin.H{"email": "dana@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[struct {
		Token string             `json:"token"`
		User  types.UserResponse `json:"user"`
	}](t, rec)
	require.NotEmpty(t, login.Token)

	rec = s.do(http.MethodGet, "/api/auth/me", actor{token: login.Token}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dana@example.com")

	rec = s.do(http.MethodGet, "/api/auth/me", actor{token: "garbage"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/api/projects", actor{}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/health", actor{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
