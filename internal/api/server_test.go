package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vityasyyy/dalam-kemasan/internal/config"
	"github.com/vityasyyy/dalam-kemasan/internal/drive"
	"github.com/vityasyyy/dalam-kemasan/internal/logger"
	"github.com/vityasyyy/dalam-kemasan/internal/model"
	"github.com/vityasyyy/dalam-kemasan/internal/query"
	"github.com/vityasyyy/dalam-kemasan/internal/retention"
)

var t0 = time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestServer(t *testing.T) (*Server, *clock) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.SetOutput(io.Discard)
	c := &clock{now: t0}
	store := drive.NewStore(drive.WithClock(c.Now))
	engine, err := query.NewEngine(store, query.Projector{Owners: query.DirectoryMap{"bob": "Bob"}}, 16, query.WithEngineClock(c.Now))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	scheduler := retention.New(store, engine, time.Hour, c.Now)
	cfg := &config.Config{Address: ":0", DefaultOwner: "alice", Views: config.ViewsConfig{RecentLimit: 10}}
	return New(cfg, store, engine, scheduler, WithClock(c.Now)), c
}

func do(t *testing.T, s *Server, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec.Code
}

func TestCreateTrashAndListFlow(t *testing.T) {
	s, c := newTestServer(t)

	var projects query.Item
	if code := do(t, s, http.MethodPost, "/api/entities", map[string]interface{}{"kind": "folder", "name": "Projects"}, &projects); code != http.StatusCreated {
		t.Fatalf("create folder: %d", code)
	}
	if projects.OwnerID != "alice" {
		t.Fatalf("default owner not applied: %q", projects.OwnerID)
	}
	var file query.Item
	if code := do(t, s, http.MethodPost, "/api/entities", map[string]interface{}{"kind": "file", "name": "a.txt", "parentId": projects.ID, "sizeBytes": 12}, &file); code != http.StatusCreated {
		t.Fatalf("create file: %d", code)
	}
	if file.MediaType != model.MediaDocument {
		t.Fatalf("media type not inferred: %q", file.MediaType)
	}

	var children listResponse
	if code := do(t, s, http.MethodGet, "/api/views/children?parent="+projects.ID, nil, &children); code != http.StatusOK {
		t.Fatalf("children: %d", code)
	}
	if children.Count != 1 || children.Items[0].Path != "Projects/a.txt" {
		t.Fatalf("unexpected children: %+v", children)
	}

	if code := do(t, s, http.MethodPost, "/api/entities/"+projects.ID+"/trash", nil, nil); code != http.StatusOK {
		t.Fatalf("trash: %d", code)
	}
	c.Advance(29 * 24 * time.Hour)
	var trash listResponse
	if code := do(t, s, http.MethodGet, "/api/views/trash", nil, &trash); code != http.StatusOK {
		t.Fatalf("trash view: %d", code)
	}
	if trash.Count != 2 || *trash.Items[0].DaysUntilPurge != 1 {
		t.Fatalf("unexpected trash view: %+v", trash)
	}

	c.Advance(24 * time.Hour)
	if code := do(t, s, http.MethodGet, "/api/views/trash", nil, &trash); code != http.StatusOK {
		t.Fatalf("trash view: %d", code)
	}
	if trash.Count != 0 {
		t.Fatalf("expired items still listed: %+v", trash)
	}
	if code := do(t, s, http.MethodGet, "/api/entities/"+file.ID, nil, nil); code != http.StatusNotFound {
		t.Fatalf("purged entity still retrievable: %d", code)
	}
}

func TestErrorMapping(t *testing.T) {
	s, _ := newTestServer(t)
	var a, b query.Item
	do(t, s, http.MethodPost, "/api/entities", map[string]interface{}{"kind": "folder", "name": "A"}, &a)
	do(t, s, http.MethodPost, "/api/entities", map[string]interface{}{"kind": "folder", "name": "B", "parentId": a.ID}, &b)

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"missing entity", http.MethodGet, "/api/entities/nope", nil, http.StatusNotFound},
		{"blank name", http.MethodPost, "/api/entities", map[string]interface{}{"kind": "file", "name": "   "}, http.StatusBadRequest},
		{"cycle", http.MethodPost, "/api/entities/" + a.ID + "/move", map[string]string{"parentId": b.ID}, http.StatusBadRequest},
		{"restore active", http.MethodPost, "/api/entities/" + a.ID + "/restore", nil, http.StatusConflict},
		{"bad sort", http.MethodGet, "/api/views/starred?sort=colour", nil, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/views/recent?limit=-1", nil, http.StatusBadRequest},
		{"flag without value", http.MethodPut, "/api/entities/" + a.ID + "/starred", map[string]string{}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if got := do(t, s, tc.method, tc.path, tc.body, nil); got != tc.want {
			t.Fatalf("%s: status %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestSharedStarredRecentViews(t *testing.T) {
	s, c := newTestServer(t)
	var mine, bobs query.Item
	do(t, s, http.MethodPost, "/api/entities", map[string]interface{}{"kind": "file", "name": "mine.png"}, &mine)
	do(t, s, http.MethodPost, "/api/entities", map[string]interface{}{"kind": "file", "name": "budget.xlsx", "ownerId": "bob"}, &bobs)
	for _, id := range []string{mine.ID, bobs.ID} {
		if code := do(t, s, http.MethodPut, "/api/entities/"+id+"/shared", map[string]bool{"value": true}, nil); code != http.StatusOK {
			t.Fatalf("share: %d", code)
		}
	}
	if code := do(t, s, http.MethodPut, "/api/entities/"+mine.ID+"/starred", map[string]bool{"value": true}, nil); code != http.StatusOK {
		t.Fatalf("star: %d", code)
	}
	c.Advance(time.Minute)
	if code := do(t, s, http.MethodPost, "/api/entities/"+mine.ID+"/open", nil, nil); code != http.StatusOK {
		t.Fatalf("open: %d", code)
	}

	var shared listResponse
	do(t, s, http.MethodGet, "/api/views/shared?q=bob", nil, &shared)
	if shared.Count != 1 || shared.Items[0].ID != bobs.ID {
		t.Fatalf("unexpected shared view: %+v", shared)
	}
	var starred listResponse
	do(t, s, http.MethodGet, "/api/views/starred", nil, &starred)
	if starred.Count != 1 || starred.Items[0].ID != mine.ID {
		t.Fatalf("unexpected starred view: %+v", starred)
	}
	var recent listResponse
	do(t, s, http.MethodGet, "/api/views/recent", nil, &recent)
	if recent.Count != 1 || recent.Items[0].ID != mine.ID {
		t.Fatalf("unexpected recent view: %+v", recent)
	}
}

func TestEmptyTrashAndRestoreAll(t *testing.T) {
	s, _ := newTestServer(t)
	var a, b query.Item
	do(t, s, http.MethodPost, "/api/entities", map[string]interface{}{"kind": "file", "name": "a.txt"}, &a)
	do(t, s, http.MethodPost, "/api/entities", map[string]interface{}{"kind": "file", "name": "b.txt"}, &b)
	do(t, s, http.MethodPost, "/api/entities/"+a.ID+"/trash", nil, nil)
	do(t, s, http.MethodPost, "/api/entities/"+b.ID+"/trash", nil, nil)

	var restored idsResponse
	if code := do(t, s, http.MethodPost, "/api/trash/restore-all", nil, &restored); code != http.StatusOK || len(restored.IDs) != 2 {
		t.Fatalf("restore-all: %d %+v", code, restored)
	}
	do(t, s, http.MethodPost, "/api/entities/"+a.ID+"/trash", nil, nil)
	var purged idsResponse
	if code := do(t, s, http.MethodPost, "/api/trash/empty", nil, &purged); code != http.StatusOK || len(purged.IDs) != 1 || purged.IDs[0] != a.ID {
		t.Fatalf("empty: %d %+v", code, purged)
	}
	var swept idsResponse
	if code := do(t, s, http.MethodPost, "/api/trash/sweep", nil, &swept); code != http.StatusOK || len(swept.IDs) != 0 {
		t.Fatalf("sweep: %d %+v", code, swept)
	}
}

func TestCommandResultsOmitTrashTimeWhileActive(t *testing.T) {
	s, _ := newTestServer(t)
	var created map[string]interface{}
	if code := do(t, s, http.MethodPost, "/api/entities", map[string]interface{}{"kind": "file", "name": "a.txt", "sizeBytes": 3}, &created); code != http.StatusCreated {
		t.Fatalf("create: %d", code)
	}
	id, _ := created["id"].(string)
	assertActive := func(stage string, body map[string]interface{}) {
		t.Helper()
		if v, ok := body["trashedAt"]; ok && v != nil {
			t.Fatalf("%s: active entity reports trashedAt %v", stage, v)
		}
		if _, ok := body["trashedWith"]; ok {
			t.Fatalf("%s: internal trashedWith field exposed", stage)
		}
		if _, ok := body["path"]; !ok {
			t.Fatalf("%s: result lacks the view read shape: %v", stage, body)
		}
	}
	assertActive("create", created)

	var trashed map[string]interface{}
	do(t, s, http.MethodPost, "/api/entities/"+id+"/trash", nil, &trashed)
	if trashed["trashedAt"] == nil || trashed["daysUntilPurge"] != float64(30) {
		t.Fatalf("trash result missing retention fields: %v", trashed)
	}

	var restored map[string]interface{}
	if code := do(t, s, http.MethodPost, "/api/entities/"+id+"/restore", nil, &restored); code != http.StatusOK {
		t.Fatalf("restore: %d", code)
	}
	assertActive("restore", restored)
}
