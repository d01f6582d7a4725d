package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"reviewline/internal/authz"
	"reviewline/internal/config"
	"reviewline/internal/correction"
	"reviewline/internal/db"
	"reviewline/internal/domain"
	"reviewline/internal/engine"
	"reviewline/internal/migrate"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL      string
	Engine   engine.Engine
	Site     domain.Site
	Admin    domain.Actor
	User     domain.Actor
	Reviewer domain.Actor
	client   *http.Client
	close    func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func (s *testServer) auth(t *testing.T, a domain.Actor) map[string]string {
	t.Helper()
	token, err := IssueToken(testJWTSecret, a.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default("test-site")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	site, err := e.InitSite(ctx, "test-site", "system")
	if err != nil {
		t.Fatalf("init site: %v", err)
	}
	admin, err := e.CreateActor(ctx, "admin@example.org", true, "system")
	if err != nil {
		t.Fatal(err)
	}
	user, err := e.CreateActor(ctx, "user@example.org", false, admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	reviewer, err := e.CreateActor(ctx, "reviewer@example.org", false, admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	reg := authz.NewRegistry()
	authz.RegisterBuiltins(reg, e.Repo, cfg.Authz.FaultFeature)
	handler, err := New(Config{
		Engine:   e,
		Resolver: authz.Resolver{Registry: reg, Repo: e.Repo},
		Catalog:  correction.NewCatalog(cfg, e.Repo),
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testJWTSecret},
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
		URL:    "http://" + ln.Addr().String(),
		Engine: e, Site: site, Admin: admin, User: user, Reviewer: reviewer,
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

func TestGrantStatusCodes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	get := func(id string, headers map[string]string) int {
		res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/authorizations/"+id, nil, headers)
		return res.StatusCode
	}
	own := authz.BuildID(srv.User.ID, "alwaysTrue", domain.TypeSite, srv.Site.ID)

	if got := get("junk", srv.auth(t, srv.Admin)); got != http.StatusNotFound {
		t.Fatalf("malformed id: %d", got)
	}
	missingActor := authz.BuildID(uuid.NewString(), "alwaysTrue", domain.TypeSite, srv.Site.ID)
	if got := get(missingActor, srv.auth(t, srv.Admin)); got != http.StatusNotFound {
		t.Fatalf("missing actor: %d", got)
	}
	if got := get(own, nil); got != http.StatusUnauthorized {
		t.Fatalf("anonymous on actor-bound grant: %d", got)
	}
	if got := get(own, srv.auth(t, srv.Reviewer)); got != http.StatusForbidden {
		t.Fatalf("foreign grant: %d", got)
	}
	missingTarget := authz.BuildID(srv.User.ID, "alwaysTrue", domain.TypeItem, uuid.NewString())
	if got := get(missingTarget, srv.auth(t, srv.User)); got != http.StatusNotFound {
		t.Fatalf("missing target: %d", got)
	}
	denied := authz.BuildID(srv.User.ID, "alwaysFalse", domain.TypeSite, srv.Site.ID)
	if got := get(denied, srv.auth(t, srv.User)); got != http.StatusNotFound {
		t.Fatalf("denied grant: %d", got)
	}
	notApplicable := authz.BuildID(srv.User.ID, "trueForAdmins", domain.TypeSite, srv.Site.ID)
	if got := get(notApplicable, srv.auth(t, srv.User)); got != http.StatusNotFound {
		t.Fatalf("not-applicable grant: %d", got)
	}
	if got := get(own, srv.auth(t, srv.User)); got != http.StatusOK {
		t.Fatalf("own grant: %d", got)
	}
	if got := get(own, srv.auth(t, srv.Admin)); got != http.StatusOK {
		t.Fatalf("admin view: %d", got)
	}
	anon := authz.BuildID("", "alwaysTrue", domain.TypeSite, srv.Site.ID)
	if got := get(anon, nil); got != http.StatusOK {
		t.Fatalf("anonymous grant: %d", got)
	}
	adminGrant := authz.BuildID(srv.Admin.ID, "trueForAdmins", domain.TypeSite, srv.Site.ID)
	if got := get(adminGrant, srv.auth(t, srv.Admin)); got != http.StatusOK {
		t.Fatalf("admin feature grant: %d", got)
	}
}

func TestCorrectionTypeEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/correctiontypes", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", res.StatusCode, string(data))
	}
	var types []CorrectionTypeResponse
	if err := json.Unmarshal(data, &types); err != nil || len(types) != 2 {
		t.Fatalf("list body: %v %s", err, string(data))
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/correctiontypes/request-withdrawn", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get: %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/correctiontypes/nosuch", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing type: %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/correctiontypes/search/findByTopic?topic=REQUEST%2FWITHDRAWN", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("find by topic: %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/correctiontypes/search/findByTopic?topic=NO%2FTOPIC", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("unknown topic should be 204, got %d", res.StatusCode)
	}
}

func TestWorkflowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	adminHdr := srv.auth(t, srv.Admin)
	userHdr := srv.auth(t, srv.User)
	reviewerHdr := srv.auth(t, srv.Reviewer)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/communities", CreateCommunityRequest{Name: "sciences"}, adminHdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create community: %d %s", res.StatusCode, string(data))
	}
	var community domain.Community
	_ = json.Unmarshal(data, &community)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/groups", CreateGroupRequest{Name: "reviewers"}, adminHdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create group: %d %s", res.StatusCode, string(data))
	}
	var group domain.Group
	_ = json.Unmarshal(data, &group)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/groups/"+group.ID+"/members", AddGroupMemberRequest{ActorID: srv.Reviewer.ID}, adminHdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add member: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/collections", CreateCollectionRequest{
		CommunityID: community.ID, Name: "reviewed", ReviewGroupID: group.ID,
	}, adminHdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create collection: %d %s", res.StatusCode, string(data))
	}
	var col domain.Collection
	_ = json.Unmarshal(data, &col)

	// anonymous submitters are rejected outright
	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/workspaceitems", CreateWorkspaceItemRequest{CollectionID: col.ID}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous create: %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/workspaceitems", CreateWorkspaceItemRequest{
		CollectionID: col.ID, Title: "Test item",
	}, userHdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create workspace item: %d %s", res.StatusCode, string(data))
	}
	var w domain.WorkspaceItem
	_ = json.Unmarshal(data, &w)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/workspaceitems/"+w.ID+"/submit", nil, userHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}
	var submitted engine.SubmitResult
	_ = json.Unmarshal(data, &submitted)
	if submitted.Installed || submitted.WorkflowItem == nil {
		t.Fatalf("expected review path: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/pooltasks", nil, reviewerHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list pool tasks: %d %s", res.StatusCode, string(data))
	}
	var tasks []domain.PoolTask
	if err := json.Unmarshal(data, &tasks); err != nil || len(tasks) != 1 {
		t.Fatalf("pool tasks: %v %s", err, string(data))
	}

	// submitter is not in the reviewer group
	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/pooltasks/"+tasks[0].ID+"/claim", nil, userHdr)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("non-member claim: %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/pooltasks/"+tasks[0].ID+"/claim", nil, reviewerHdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("claim: %d %s", res.StatusCode, string(data))
	}
	var ct domain.ClaimedTask
	_ = json.Unmarshal(data, &ct)

	// a second claim on the same pool task finds it gone
	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/pooltasks/"+tasks[0].ID+"/claim", nil, srv.auth(t, srv.Admin))
	if res.StatusCode != http.StatusNotFound && res.StatusCode != http.StatusConflict {
		t.Fatalf("stale claim: %d", res.StatusCode)
	}

	// only the owner may act on a claimed task
	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/claimedtasks/"+ct.ID+"/approve", nil, adminHdr)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign approve: %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/claimedtasks/"+ct.ID+"/approve", nil, reviewerHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items/"+submitted.ItemID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get item: %d %s", res.StatusCode, string(data))
	}
	var it domain.Item
	_ = json.Unmarshal(data, &it)
	if !it.InArchive {
		t.Fatalf("item should be installed: %s", string(data))
	}

	// the installed item now accepts a withdraw request
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/correctiontypes/search/findByItem?uuid="+it.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("find by item: %d %s", res.StatusCode, string(data))
	}
	var applicable []CorrectionTypeResponse
	if err := json.Unmarshal(data, &applicable); err != nil || len(applicable) != 1 || applicable[0].ID != config.TypeRequestWithdrawn {
		t.Fatalf("applicable types: %v %s", err, string(data))
	}
}

func TestRejectOverHTTPRequiresReason(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	res, _ := doJSON(t, client, http.MethodPost, srv.URL+"/v0/claimedtasks/"+uuid.NewString()+"/reject", RejectRequest{}, srv.auth(t, srv.Reviewer))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty reason: %d", res.StatusCode)
	}
}
