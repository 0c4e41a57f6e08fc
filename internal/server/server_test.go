package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missiondesk/internal/config"
	"missiondesk/internal/db"
	"missiondesk/internal/domain"
	"missiondesk/internal/engine"
	"missiondesk/internal/events"
	"missiondesk/internal/lifecycle"
	"missiondesk/internal/migrate"
	"missiondesk/internal/repo"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	Admin  domain.User
	E1     domain.User
	E2     domain.User
	E3     domain.User
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, tweak func(*config.Config)) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	if tweak != nil {
		tweak(cfg)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	ctx := context.Background()
	mkUser := func(name string, role domain.Role) domain.User {
		u, err := e.CreateUser(ctx, engine.UserCreateOptions{Name: name, Password: name + "-pw", Role: string(role)})
		if err != nil {
			t.Fatalf("create user %s: %v", name, err)
		}
		return u
	}
	handler, err := New(Config{
		Engine:      e,
		BasePath:    cfg.Server.BasePath,
		Auth:        AuthConfig{Require: cfg.Auth.RequireToken},
		CORSOrigins: cfg.Server.CORSOrigins,
		Locale:      cfg.API.Locale,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String() + "/api",
		Engine: e,
		Admin:  mkUser("admin", domain.RoleAdmin),
		E1:     mkUser("e1", domain.RoleEmployee),
		E2:     mkUser("e2", domain.RoleEmployee),
		E3:     mkUser("e3", domain.RoleEmployee),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorMessage(t *testing.T, data []byte) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body), string(data))
	msg, _ := body["message"].(string)
	return msg
}

func missionDraft(s *testServer) lifecycle.MissionDraft {
	return lifecycle.MissionDraft{
		Subject:    "Deliver parts",
		Location:   "Depot",
		StartTime:  "2024-01-05",
		EndTime:    "2024-01-06",
		AssignedTo: s.E1.ID,
		CreatedBy:  s.Admin.ID,
	}
}

func (s *testServer) createMission(t *testing.T) domain.Mission {
	t.Helper()
	res, data := doJSON(t, s.Client(), http.MethodPost, s.URL+"/missions", map[string]any{
		"subject":    "Inspect substation",
		"location":   "North yard",
		"starttime":  "2024-01-02T08:00",
		"endtime":    "2024-01-02T16:00",
		"assignedto": s.E1.ID,
		"createdby":  s.Admin.ID,
		"checklist":  []map[string]any{{"category": "Safety", "steps": []string{"check A", "check B"}}},
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	require.Empty(t, data)
	loc := res.Header.Get("Location")
	require.True(t, strings.HasPrefix(loc, "/api/missions/"), loc)
	return s.getMission(t, strings.TrimPrefix(loc, "/api/missions/"))
}

func (s *testServer) getMission(t *testing.T, id string) domain.Mission {
	t.Helper()
	res, data := doJSON(t, s.Client(), http.MethodGet, s.URL+"/missions/"+id, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var m domain.Mission
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestLogin(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/login", map[string]any{"username": "ghost", "password": "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "کاربر یافت نشد.", errorMessage(t, data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/login", map[string]any{"username": "e1", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "رمز عبور اشتباه است.", errorMessage(t, data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/login", map[string]any{"username": "e1", "password": "e1-pw"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, srv.E1.ID, body["id"])
	assert.Equal(t, "کارمند", body["role"])
	assert.NotContains(t, body, "password")
	assert.NotContains(t, body, "password_hash")
	// no signing secret configured
	assert.Empty(t, res.Header.Get("X-Auth-Token"))
}

func TestUserCRUD(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/users", map[string]any{
		"name": "e4", "password": "pw", "role": "کارمند", "department": "Ops",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	id := strings.TrimPrefix(res.Header.Get("Location"), "/api/users/")
	require.NotEmpty(t, id)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/users", map[string]any{
		"name": "e4", "password": "pw", "role": "EMPLOYEE",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "این نام کاربری قبلا ثبت شده است.", errorMessage(t, data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/users", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var users []domain.User
	require.NoError(t, json.Unmarshal(data, &users))
	assert.Len(t, users, 5)

	// the web client posts the whole row back, including an empty password
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/users/"+id, map[string]any{
		"id": id, "name": "e4", "password": "", "role": "کارمند", "department": "Field", "phone": "0912",
	}, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))
	u, err := srv.Engine.GetUser(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Field", u.Department)
	assert.Equal(t, "0912", u.Phone)
	_, err = srv.Engine.Login(context.Background(), "e4", "pw")
	assert.NoError(t, err, "password must survive an empty edit")

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/users/"+id, nil, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/users/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "کاربر یافت نشد.", errorMessage(t, data))
}

func TestCreateMissionValidation(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/missions", map[string]any{
		"subject": "Only a subject",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "فیلدهای ماموریت ناقص است. لطفا تمام اطلاعات را وارد کنید.", errorMessage(t, data))

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/missions", map[string]any{
		"subject": "s", "location": "l", "starttime": "2024-01-02", "endtime": "2024-01-03",
		"assignedto": "nobody", "createdby": srv.Admin.ID,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "کاربر مسئول یافت نشد.", errorMessage(t, data))
}

func TestCreateMissionInitialState(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	m := srv.createMission(t)
	assert.Equal(t, domain.StatusNew, m.Status)
	assert.Equal(t, srv.E1.ID, m.AssignedTo)
	assert.Equal(t, domain.ChecklistState{"Safety": {"check A": false, "check B": false}}, m.ChecklistState)
	assert.Empty(t, m.Reports)
	assert.Nil(t, m.DelegationStatus)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/missions", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var all []domain.Mission
	require.NoError(t, json.Unmarshal(data, &all))
	assert.Len(t, all, 1)
}

func TestDelegationEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	m := srv.createMission(t)
	base := srv.URL + "/missions/" + m.ID

	res, data := doJSON(t, client, http.MethodPost, base+"/delegate", map[string]any{
		"targetUserId": srv.E2.ID, "reason": "busy", "initiatorId": srv.E3.ID,
	}, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "شما مسئول این ماموریت نیستید.", errorMessage(t, data))

	res, data = doJSON(t, client, http.MethodPost, base+"/delegate", map[string]any{
		"targetUserId": srv.E2.ID, "reason": "busy", "initiatorId": srv.E1.ID,
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var proposed domain.Mission
	require.NoError(t, json.Unmarshal(data, &proposed))
	require.NotNil(t, proposed.DelegationStatus)
	assert.Equal(t, domain.DelegationPending, *proposed.DelegationStatus)
	assert.Equal(t, srv.E1.ID, proposed.AssignedTo)

	res, data = doJSON(t, client, http.MethodPost, base+"/accept", map[string]any{"userId": srv.E3.ID}, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "این ماموریت به شما ارجاع داده نشده است.", errorMessage(t, data))

	res, data = doJSON(t, client, http.MethodPost, base+"/accept", map[string]any{"userId": srv.E2.ID}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var accepted domain.Mission
	require.NoError(t, json.Unmarshal(data, &accepted))
	assert.Equal(t, srv.E2.ID, accepted.AssignedTo)
	assert.Equal(t, domain.DelegationAccepted, *accepted.DelegationStatus)

	res, data = doJSON(t, client, http.MethodPost, base+"/clear-delegation", map[string]any{"userId": srv.E2.ID}, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "فقط ارجاع دهنده میتواند وضعیت را پاک کند.", errorMessage(t, data))

	res, data = doJSON(t, client, http.MethodPost, base+"/clear-delegation", map[string]any{"userId": srv.E1.ID}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Nil(t, raw["delegation_status"])
	assert.Nil(t, raw["delegated_by"])
	assert.Equal(t, srv.E2.ID, raw["assignedto"])

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/missions/missing/accept", map[string]any{"userId": srv.E2.ID}, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "ماموریت یافت نشد.", errorMessage(t, data))
}

func TestReportEndpointAppendsAfterDelegation(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	m := srv.createMission(t)
	base := srv.URL + "/missions/" + m.ID

	res, data := doJSON(t, client, http.MethodPost, base+"/report", map[string]any{
		"reporterId": srv.E1.ID, "status": "IN_PROGRESS", "summary": "half way",
		"checklistState": map[string]map[string]bool{"Safety": {"check A": true}},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, base+"/delegate", map[string]any{
		"targetUserId": srv.E2.ID, "reason": "shift change", "initiatorId": srv.E1.ID,
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodPost, base+"/accept", map[string]any{"userId": srv.E2.ID}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, base+"/report", map[string]any{
		"reporterId": srv.E2.ID, "status": "تکمیل شده", "summary": "done",
		"checklistState": map[string]map[string]bool{"Safety": {"check B": true}},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var done domain.Mission
	require.NoError(t, json.Unmarshal(data, &done))
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Len(t, done.Reports, 2)
	assert.True(t, done.ChecklistState.Done("Safety", "check A"))
	assert.True(t, done.ChecklistState.Done("Safety", "check B"))

	res, data = doJSON(t, client, http.MethodPost, base+"/report", map[string]any{
		"reporterId": srv.E2.ID, "status": "IN_PROGRESS",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "این ماموریت تکمیل شده است.", errorMessage(t, data))
}

func TestPutMissionRowFilesReport(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	m := srv.createMission(t)

	// what the web client sends after the report form: the whole row with the
	// new report appended, status and checklist state set, plus stale extras
	row := map[string]any{
		"id":             m.ID,
		"subject":        m.Subject,
		"location":       m.Location,
		"starttime":      m.StartTime,
		"endtime":        m.EndTime,
		"status":         string(domain.StatusInProgress),
		"createdby":      m.CreatedBy,
		"assignedto":     srv.E3.ID,
		"checkliststate": map[string]map[string]bool{"Safety": {"check A": true, "check B": false}},
		"reports": []map[string]any{{
			"id":                "client-1",
			"reporterId":        srv.E1.ID,
			"createdAt":         "2024-01-02T10:00:00Z",
			"departureTime":     "08:00",
			"returnTime":        "12:00",
			"summary":           "first visit",
			"checklistSnapshot": map[string]map[string]bool{"Safety": {"check A": true, "check B": false}},
		}},
		"delegation_status": "ACCEPTED",
	}
	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/missions/"+m.ID, row, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))

	got := srv.getMission(t, m.ID)
	assert.Equal(t, domain.StatusInProgress, got.Status)
	assert.Equal(t, srv.E1.ID, got.AssignedTo, "assignment is never copied from the row")
	assert.Nil(t, got.DelegationStatus)
	require.Len(t, got.Reports, 1)
	assert.Equal(t, "first visit", got.Reports[0].Summary)
	assert.Equal(t, srv.E1.ID, got.Reports[0].ReporterID)
	assert.True(t, got.ChecklistState.Done("Safety", "check A"))

	// resending the same row is a no-op
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/missions/"+m.ID, row, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))
	again := srv.getMission(t, m.ID)
	assert.Equal(t, got.Reports, again.Reports)

	// an admin editing the subject goes through the details edit
	row["subject"] = "Inspect substation B"
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/missions/"+m.ID, row, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))
	assert.Equal(t, "Inspect substation B", srv.getMission(t, m.ID).Subject)
}

func TestPutMissionRowIsAllOrNothing(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	m := srv.createMission(t)

	// the edit is valid but the report comes from someone the mission is not
	// assigned to, so neither may be written
	row := map[string]any{
		"subject":  "Renamed by row",
		"location": m.Location,
		"status":   string(domain.StatusInProgress),
		"reports": []map[string]any{{
			"reporterId":    srv.E2.ID,
			"departureTime": "08:00",
			"returnTime":    "12:00",
			"summary":       "not mine",
		}},
	}
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/missions/"+m.ID, row, nil)
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	got := srv.getMission(t, m.ID)
	assert.Equal(t, m.Subject, got.Subject)
	assert.Empty(t, got.Reports)
	assert.Equal(t, m.Status, got.Status)

	evts, err := srv.Engine.RecentEvents(context.Background(), 10, 0, repo.EventFilters{EntityID: m.ID})
	require.NoError(t, err)
	for _, ev := range evts {
		assert.NotEqual(t, events.MissionUpdated, ev.Type)
		assert.NotEqual(t, events.ReportSubmitted, ev.Type)
	}
}

func TestUpdateUserPartialBody(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/users/"+srv.E1.ID, map[string]any{
		"department": "Grid",
		"id":         srv.E1.ID,
	}, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))

	u, err := srv.Engine.GetUser(context.Background(), srv.E1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grid", u.Department)
	assert.Equal(t, "e1", u.Name, "absent keys keep their value")
}

func TestMalformedBodyUsesErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	// a wrongly typed key fails huma's own validation before any handler runs
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/users/"+srv.E1.ID, map[string]any{
		"department": 42,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body), string(data))
	assert.NotEmpty(t, body["message"])
	assert.NotContains(t, body, "errors", "huma's default problem body is replaced")
}

func TestPurgeUserMissions(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	srv.createMission(t)
	srv.createMission(t)

	res, data := doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/missions/user/"+srv.E1.ID, nil, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))
	items, err := srv.Engine.ListMissions(context.Background(), repo.MissionFilters{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestListMissionsByView(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	m := srv.createMission(t)
	srv.createMission(t)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/missions/"+m.ID+"/delegate", map[string]any{
		"targetUserId": srv.E2.ID, "reason": "r", "initiatorId": srv.E1.ID,
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	list := func(query string) []domain.Mission {
		res, data := doJSON(t, client, http.MethodGet, srv.URL+"/missions?"+query, nil, nil)
		require.Equal(t, http.StatusOK, res.StatusCode, string(data))
		var items []domain.Mission
		require.NoError(t, json.Unmarshal(data, &items))
		return items
	}
	assert.Len(t, list("view=MY_MISSIONS&userId="+srv.E1.ID), 2)
	inbox := list("view=DELEGATIONS&userId=" + srv.E2.ID)
	require.Len(t, inbox, 1)
	assert.Equal(t, m.ID, inbox[0].ID)
	assert.Len(t, list("view=CREATED_MISSIONS&userId="+srv.Admin.ID), 2)
	assert.Empty(t, list("view=MY_MISSIONS&userId="+srv.E1.ID+"&status=COMPLETED"))
	assert.Len(t, list("status=NEW"), 2)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/missions?status=bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestPerformanceEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	srv.createMission(t)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/users/"+srv.E1.ID+"/performance", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var perf map[string]any
	require.NoError(t, json.Unmarshal(data, &perf))
	assert.EqualValues(t, 1, perf["assigned"])
	assert.EqualValues(t, 2, perf["checklistTotal"])
}

func TestRequireToken(t *testing.T) {
	srv, cleanup := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.JWTSecret = "test-secret"
		cfg.Auth.RequireToken = true
	})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/missions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "ابتدا وارد شوید.", errorMessage(t, data))

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/missions", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/login", map[string]any{"username": "e1", "password": "e1-pw"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	token := res.Header.Get("X-Auth-Token")
	require.NotEmpty(t, token)
	authz := map[string]string{"Authorization": "Bearer " + token}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/missions", nil, authz)
	assert.Equal(t, http.StatusOK, res.StatusCode, string(data))

	// an employee token cannot create users
	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/users", map[string]any{"name": "x", "password": "y", "role": "کارمند"}, authz)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	// the body cannot claim another user
	m, err := srv.Engine.CreateMission(context.Background(), engine.MissionCreateOptions{MissionDraft: missionDraft(srv)})
	require.NoError(t, err)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/missions/"+m.ID+"/accept", map[string]any{"userId": srv.E2.ID}, authz)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "شناسه کاربر با نشست فعلی مطابقت ندارد.", errorMessage(t, data))

	// userId may be omitted; the token names the actor
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/missions/"+m.ID+"/delegate", map[string]any{"targetUserId": srv.E2.ID, "reason": "r"}, authz)
	assert.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestEnglishLocale(t *testing.T) {
	srv, cleanup := newTestServer(t, func(cfg *config.Config) {
		cfg.API.Locale = "en"
	})
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/missions/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "Mission not found.", errorMessage(t, data))
}

func TestEventsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	srv.createMission(t)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/events?entity_kind=mission&limit=10", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page paginatedEvents
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, events.MissionCreated, page.Items[0].Type)
	assert.Empty(t, page.NextCursor)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/events?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &page))
	assert.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.NextCursor)
}

func TestOpenAPIAndCORS(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "/api/missions/{id}/delegate")
	assert.Contains(t, string(data), "bearerAuth")

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/missions", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	res, err = srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.True(t, res.StatusCode >= 200 && res.StatusCode < 300, "preflight status %d", res.StatusCode)
	assert.Contains(t, []string{"*", "http://localhost:5173"}, res.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, res.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestCORSDisabledWithoutOrigins(t *testing.T) {
	srv, cleanup := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.CORSOrigins = []string{" ", ""}
	})
	defer cleanup()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Empty(t, res.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebhookDispatcher(t *testing.T) {
	received := make(chan *http.Request, 4)
	bodies := make(chan []byte, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		received <- r
		bodies <- data
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	srv, cleanup := newTestServer(t, func(cfg *config.Config) {
		cfg.Webhooks = []config.Webhook{{
			ID:     "notify",
			URL:    hook.URL,
			Events: []string{"mission.delegation.*"},
			Secret: "s3cret",
		}}
	})
	defer cleanup()
	ctx := context.Background()

	d := NewWebhookDispatcher(srv.Engine, nil)
	require.NotNil(t, d)
	// the first pass pins the cursor at the current head
	d.DispatchOnce(ctx)

	m, err := srv.Engine.CreateMission(ctx, engine.MissionCreateOptions{MissionDraft: missionDraft(srv)})
	require.NoError(t, err)
	_, err = srv.Engine.ProposeDelegation(ctx, m.ID, srv.E1.ID, srv.E2.ID, "leave")
	require.NoError(t, err)
	d.DispatchOnce(ctx)

	select {
	case r := <-received:
		body := <-bodies
		assert.Equal(t, events.DelegationProposed, r.Header.Get("X-Missiondesk-Event"))
		assert.Equal(t, "sha256="+sign("s3cret", body), r.Header.Get("X-Missiondesk-Signature"))
		var evt map[string]any
		require.NoError(t, json.Unmarshal(body, &evt))
		assert.Equal(t, m.ID, evt["entity_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not delivered")
	}
	select {
	case r := <-received:
		t.Fatalf("unexpected delivery %s", r.Header.Get("X-Missiondesk-Event"))
	default:
	}
}

func TestNewWebhookDispatcherDisabled(t *testing.T) {
	off := false
	srv, cleanup := newTestServer(t, func(cfg *config.Config) {
		cfg.Webhooks = []config.Webhook{{ID: "off", URL: "http://127.0.0.1:1", Enabled: &off}}
	})
	defer cleanup()
	assert.Nil(t, NewWebhookDispatcher(srv.Engine, nil))
}
