package board

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := New(zap.NewNop(), "token")
	c.APIURL = server.URL
	return c
}

func TestSearchAggregatesPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(SearchPath, func(w http.ResponseWriter, r *http.Request) {
		page := 0
		if r.URL.Query().Get("page") == "1" {
			page = 1
		}

		items := [][]map[string]any{
			{
				{"id": "1", "name": "Go Developer", "apply_action": "ref-1"},
				{"id": "2", "name": "Backend Engineer", "apply_action": "ref-2"},
			},
			{
				{"id": "3", "name": "Platform Engineer", "apply_action": "ref-3"},
			},
		}

		json.NewEncoder(w).Encode(map[string]any{
			"items":    items[page],
			"pages":    2,
			"page":     page,
			"per_page": 2,
			"found":    3,
		})
	})

	c := testClient(t, mux)

	postings, err := c.Search(context.Background(), &SearchParams{Text: "golang"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if postings.Len() != 3 {
		t.Fatalf("expected 3 postings, got %d", postings.Len())
	}
	if p := postings.FindByID("3"); p == nil || p.Name != "Platform Engineer" {
		t.Fatalf("unexpected posting: %+v", p)
	}
	for _, p := range postings.Items {
		if p.DiscoveredAt.IsZero() {
			t.Fatalf("expected discovery timestamp on posting %s", p.ID)
		}
	}
}

func TestBuildParamsUsesCustomTag(t *testing.T) {
	q := buildParams(&SearchParams{
		Text:      "golang",
		Areas:     []int{1, 2},
		Schedules: []string{"remote"},
		PerPage:   "100",
	})

	if got := q.Get("text"); got != "golang" {
		t.Fatalf("unexpected text param: %q", got)
	}
	if got := q["area"]; len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Fatalf("unexpected area params: %v", got)
	}
	if got := q.Get("schedule"); got != "remote" {
		t.Fatalf("unexpected schedule param: %q", got)
	}
	if q.Get("period") != "" {
		t.Fatal("zero-valued params must be omitted")
	}
}

func TestPostingsExclude(t *testing.T) {
	postings := &Postings{Items: []*Posting{{ID: "1"}, {ID: "2"}, {ID: "3"}}}

	excluded := postings.Exclude([]string{"2", "nope"})
	if len(excluded) != 1 || excluded[0] != "2" {
		t.Fatalf("unexpected excluded ids: %v", excluded)
	}
	if postings.Len() != 2 {
		t.Fatalf("expected 2 postings left, got %d", postings.Len())
	}
	if postings.FindByID("2") != nil {
		t.Fatal("posting 2 should be gone")
	}
}

func TestOpenApplyActionRequiresRef(t *testing.T) {
	c := New(zap.NewNop(), "token")

	if _, err := c.OpenApplyAction(context.Background(), &Posting{ID: "1"}); err == nil {
		t.Fatal("expected error for posting without apply action")
	}
}

func TestApplicationFormFlow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /applications", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing form: %v", err)
		}
		if got := r.FormValue("apply_action"); got != "ref-1" {
			t.Fatalf("unexpected apply action ref: %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "app-1"})
	})
	mux.HandleFunc("GET /applications/app-1/form", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"fields": []map[string]any{
				{"id": "f1", "kind": "short_text", "required": true, "label": "Full name"},
				{"id": "f2", "kind": "single_choice", "label": "Country", "choices": []string{"Spain", "France"}},
			},
		})
	})
	filled := map[string]string{}
	mux.HandleFunc("POST /applications/app-1/fields", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing form: %v", err)
		}
		filled[r.FormValue("field_id")] = r.FormValue("value")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /applications/app-1/submit", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"status": "received", "receipt": "rcpt-9"})
	})

	c := testClient(t, mux)
	ctx := context.Background()

	action, err := c.OpenApplyAction(ctx, &Posting{ID: "1", ApplyActionRef: "ref-1"})
	if err != nil {
		t.Fatalf("open apply action: %v", err)
	}
	if action.ID != "app-1" || action.PostingID != "1" {
		t.Fatalf("unexpected action: %+v", action)
	}

	fields, err := c.DiscoverFields(ctx, action)
	if err != nil {
		t.Fatalf("discover fields: %v", err)
	}
	if len(fields) != 2 || fields[0].Label != "Full name" || !fields[0].Required {
		t.Fatalf("unexpected fields: %+v", fields)
	}
	if fields[1].Kind != KindSingleChoice || len(fields[1].Choices) != 2 {
		t.Fatalf("unexpected choice field: %+v", fields[1])
	}

	if err := c.Fill(ctx, action, fields[0], "Jane Doe"); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if filled["f1"] != "Jane Doe" {
		t.Fatalf("unexpected filled values: %v", filled)
	}

	result, err := c.Submit(ctx, action)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Acknowledged || result.Receipt != "rcpt-9" {
		t.Fatalf("unexpected submission result: %+v", result)
	}
}

func TestSubmitWithoutAcknowledgment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /applications/app-1/submit", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
	})

	c := testClient(t, mux)

	result, err := c.Submit(context.Background(), &ApplyAction{ID: "app-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Acknowledged {
		t.Fatal("a pending status must not count as acknowledged")
	}
}
