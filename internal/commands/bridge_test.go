package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basecamp/konnector/internal/appctx"
	"github.com/basecamp/konnector/internal/config"
	"github.com/basecamp/konnector/internal/output"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		r.calls = append(r.calls, req.Method+" "+req.URL.RequestURI())
		r.mu.Unlock()
		h(w, req)
	}
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// newTestApp wires an App against fake Clickup and Todoist servers.
func newTestApp(t *testing.T, rec *recorder, clickupH, todoistH http.HandlerFunc) (*appctx.App, *bytes.Buffer) {
	t.Helper()

	cu := httptest.NewServer(rec.wrap(clickupH))
	t.Cleanup(cu.Close)
	td := httptest.NewServer(rec.wrap(todoistH))
	t.Cleanup(td.Close)

	cfg := config.Default()
	cfg.CacheDir = t.TempDir()
	cfg.LinkBack = false
	cfg.Clickup.BaseURL = cu.URL
	cfg.Clickup.Token = "pk_1"
	cfg.Clickup.InboxListID = "901"
	cfg.Todoist.BaseURL = td.URL
	cfg.Todoist.Token = "td_1"
	cfg.Todoist.InboxProjectIDs = []string{"inbox1"}
	cfg.Todoist.NextActionsProjectID = "next"

	var stdout, stderr bytes.Buffer
	app, err := appctx.NewApp(cfg, appctx.WithStdout(&stdout), appctx.WithStderr(&stderr))
	require.NoError(t, err)
	app.ApplyFlags()
	return app, &stdout
}

func execute(t *testing.T, app *appctx.App, cmd *cobra.Command, args ...string) error {
	t.Helper()
	root := &cobra.Command{Use: "konnector", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(cmd)
	root.SetArgs(args)
	return root.ExecuteContext(appctx.WithApp(t.Context(), app))
}

func decodeOK(t *testing.T, out *bytes.Buffer, data any) string {
	t.Helper()
	var resp struct {
		OK      bool            `json:"ok"`
		Data    json.RawMessage `json:"data"`
		Summary string          `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp), out.String())
	require.True(t, resp.OK)
	if data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp.Summary
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}

func TestSyncClickupCreatesMirror(t *testing.T) {
	rec := &recorder{}
	app, out := newTestApp(t, rec,
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/task/cu1" {
				fmt.Fprint(w, `{"id": "cu1", "name": "Plan trip", "status": {"status": "next action"}}`)
				return
			}
			notFound(w, r)
		},
		func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodGet && r.URL.Path == "/tasks":
				fmt.Fprint(w, `[]`)
			case r.Method == http.MethodPost && r.URL.Path == "/tasks":
				fmt.Fprint(w, `{"id": "td5", "content": "Plan trip", "priority": 1, "project_id": "next"}`)
			default:
				notFound(w, r)
			}
		})

	require.NoError(t, execute(t, app, NewSyncCmd(), "sync", "clickup", "cu1"))

	var data struct {
		ClickupID string `json:"clickup_id"`
		Todoist   struct {
			ID string `json:"id"`
		} `json:"todoist"`
	}
	summary := decodeOK(t, out, &data)
	assert.Equal(t, "cu1", data.ClickupID)
	assert.Equal(t, "td5", data.Todoist.ID)
	assert.Equal(t, "Clickup task cu1 mirrored as Todoist task td5", summary)
	assert.Equal(t, []string{
		"GET /task/cu1",
		"GET /tasks?project_id=next",
		"POST /tasks",
	}, rec.list())
}

func TestSyncClickupWithoutMirror(t *testing.T) {
	rec := &recorder{}
	app, out := newTestApp(t, rec, notFound,
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[]`)
		})

	require.NoError(t, execute(t, app, NewSyncCmd(), "sync", "clickup", "gone"))
	assert.Equal(t, "No Todoist mirror for Clickup task gone", decodeOK(t, out, nil))
}

func TestSyncClickupPropagatesAPIErrors(t *testing.T) {
	rec := &recorder{}
	app, _ := newTestApp(t, rec,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}, notFound)

	err := execute(t, app, NewSyncCmd(), "sync", "clickup", "cu1")
	require.Error(t, err)
	assert.Equal(t, output.CodeForbidden, output.AsError(err).Code)
}

func TestReconcileSweepsInboxList(t *testing.T) {
	rec := &recorder{}
	app, out := newTestApp(t, rec,
		func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/list/901/task":
				fmt.Fprint(w, `{"tasks": [{"id": "cu1", "name": "Someday", "status": {"status": "to do"}}], "last_page": true}`)
			case "/task/cu1":
				fmt.Fprint(w, `{"id": "cu1", "name": "Someday", "status": {"status": "to do"}}`)
			default:
				notFound(w, r)
			}
		},
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[]`)
		})

	require.NoError(t, execute(t, app, NewReconcileCmd(), "reconcile"))

	var res struct {
		Lists  int `json:"lists"`
		Items  int `json:"items"`
		Failed int `json:"failed"`
	}
	summary := decodeOK(t, out, &res)
	assert.Equal(t, 1, res.Lists)
	assert.Equal(t, 1, res.Items)
	assert.Zero(t, res.Failed)
	assert.Equal(t, "Swept 1 tasks in 1 lists (0 failed)", summary)
}

func TestReconcileListFlagOverridesConfig(t *testing.T) {
	rec := &recorder{}
	app, out := newTestApp(t, rec,
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"tasks": [], "last_page": true}`)
		}, notFound)

	require.NoError(t, execute(t, app, NewReconcileCmd(), "reconcile", "--list", "a", "--list", "b"))
	decodeOK(t, out, nil)

	var lists []string
	for _, c := range rec.list() {
		lists = append(lists, strings.SplitN(c, "?", 2)[0])
	}
	assert.Equal(t, []string{"GET /list/a/task", "GET /list/b/task"}, lists)
}

func TestReconcileNeedsLists(t *testing.T) {
	rec := &recorder{}
	app, _ := newTestApp(t, rec, notFound, notFound)
	app.Config.Clickup.InboxListID = ""

	err := execute(t, app, NewReconcileCmd(), "reconcile")
	require.Error(t, err)
	assert.Equal(t, output.CodeUsage, output.AsError(err).Code)
}

func TestItemsTodoist(t *testing.T) {
	rec := &recorder{}
	app, out := newTestApp(t, rec, notFound,
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[{"id": "1", "content": "a", "priority": 1, "project_id": "p"},
				{"id": "2", "content": "b", "priority": 4, "project_id": "p"}]`)
		})

	require.NoError(t, execute(t, app, NewItemsCmd(), "items", "todoist", "p"))

	var items []map[string]any
	assert.Equal(t, "2 tasks in Todoist project p", decodeOK(t, out, &items))
	assert.Len(t, items, 2)
	assert.Equal(t, []string{"GET /tasks?project_id=p"}, rec.list())
}

func TestConfigEntries(t *testing.T) {
	cfg := config.Default()
	cfg.Clickup.Token = "pk_1234567890ABCD"
	cfg.Todoist.WebhookSecret = "short"
	cfg.Todoist.InboxProjectIDs = []string{"a", "b"}
	cfg.Sources["todoist.inbox_project_ids"] = string(config.SourceFile)

	entries := configEntries(cfg)

	assert.Equal(t, map[string]string{"value": "****ABCD", "source": "default"}, entries["clickup.token"])
	assert.Equal(t, map[string]string{"value": "****", "source": "default"}, entries["todoist.webhook_secret"])
	assert.Equal(t, map[string]string{"value": "a,b", "source": "file"}, entries["todoist.inbox_project_ids"])
	assert.NotContains(t, entries, "todoist.token")
	assert.NotContains(t, entries, "clickup.inbox_list_id")
}

func TestReadLine(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"pk_abc\n", "pk_abc", false},
		{"  pk_abc  \nignored\n", "pk_abc", false},
		{"pk_no_newline", "pk_no_newline", false},
		{"", "", true},
		{"\n", "", true},
	}
	for _, tt := range tests {
		got, err := readLine(strings.NewReader(tt.in))
		if tt.wantErr {
			assert.Equal(t, output.CodeUsage, output.AsError(err).Code, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
