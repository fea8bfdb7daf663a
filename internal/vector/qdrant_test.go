package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeQdrant implements just enough of the Qdrant REST API for the client.
func fakeQdrant(t *testing.T, onSearch func(body map[string]any) any) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.RequestURI())
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/documents":
			_ = json.NewEncoder(w).Encode(map[string]any{"result": true})
		case r.URL.Path == "/collections/documents/points":
			_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"status": "completed"}})
		case r.URL.Path == "/collections/documents/points/search":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			_ = json.NewEncoder(w).Encode(onSearch(body))
		case r.URL.Path == "/collections/documents/points/delete":
			_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"status": "completed"}})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	return srv, &paths
}

func TestQdrantIndex_SearchCarriesTenantFilter(t *testing.T) {
	var gotFilter map[string]any
	srv, _ := fakeQdrant(t, func(body map[string]any) any {
		gotFilter, _ = body["filter"].(map[string]any)
		return map[string]any{"result": []map[string]any{
			{"score": 0.87, "payload": map[string]any{
				"tenant_id":   "alice",
				"document_id": "d1",
				"filename":    "notes.txt",
				"chunk_index": 2,
				"text":        "hello",
			}},
		}}
	})
	defer srv.Close()

	idx, err := NewQdrantIndex(srv.URL, "", "documents", 3, "cosine")
	if err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(context.Background(), "alice", []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}

	if gotFilter == nil {
		t.Fatal("search request carried no filter")
	}
	must, _ := gotFilter["must"].([]any)
	if len(must) != 1 {
		t.Fatalf("filter must clauses = %d, want 1", len(must))
	}
	clause, _ := must[0].(map[string]any)
	if clause["key"] != "tenant_id" {
		t.Errorf("filter key = %v, want tenant_id", clause["key"])
	}

	if len(hits) != 1 {
		t.Fatalf("got %d hits", len(hits))
	}
	h := hits[0]
	if h.Score != 0.87 || h.Payload.TenantID != "alice" || h.Payload.ChunkIndex != 2 || h.Payload.Text != "hello" {
		t.Errorf("hit decoded wrong: %+v", h)
	}
}

func TestQdrantIndex_UpsertWaitsAndDeleteFilters(t *testing.T) {
	srv, paths := fakeQdrant(t, func(map[string]any) any {
		return map[string]any{"result": []map[string]any{}}
	})
	defer srv.Close()

	idx, err := NewQdrantIndex(srv.URL, "", "documents", 2, "cosine")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	err = idx.Upsert(ctx, []Record{record("d1:0", "alice", "d1", 0, "text", []float32{1, 0})})
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.DeleteDocument(ctx, "alice", "d1"); err != nil {
		t.Fatal(err)
	}

	var sawUpsertWait, sawDeleteWait bool
	for _, p := range *paths {
		if p == "PUT /collections/documents/points?wait=true" {
			sawUpsertWait = true
		}
		if p == "POST /collections/documents/points/delete?wait=true" {
			sawDeleteWait = true
		}
	}
	if !sawUpsertWait {
		t.Error("upsert did not request wait=true")
	}
	if !sawDeleteWait {
		t.Error("delete did not request wait=true")
	}
}

func TestQdrantIndex_DistanceFollowsMetric(t *testing.T) {
	tests := []struct {
		metric string
		want   string
	}{
		{"cosine", "Cosine"},
		{"dot", "Dot"},
		{"", "Cosine"},
	}
	for _, tt := range tests {
		var gotDistance string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPut && r.URL.Path == "/collections/documents" {
				var body struct {
					Vectors struct {
						Distance string `json:"distance"`
					} `json:"vectors"`
				}
				_ = json.NewDecoder(r.Body).Decode(&body)
				gotDistance = body.Vectors.Distance
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": true})
		}))
		if _, err := NewQdrantIndex(srv.URL, "", "documents", 2, tt.metric); err != nil {
			t.Fatal(err)
		}
		srv.Close()
		if gotDistance != tt.want {
			t.Errorf("metric %q: collection distance = %q, want %q", tt.metric, gotDistance, tt.want)
		}
	}
}

func TestQdrantIndex_StablePointIDs(t *testing.T) {
	var firstID, secondID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/documents/points" {
			var body struct {
				Points []struct {
					ID string `json:"id"`
				} `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if firstID == "" {
				firstID = body.Points[0].ID
			} else {
				secondID = body.Points[0].ID
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": true})
	}))
	defer srv.Close()

	idx, err := NewQdrantIndex(srv.URL, "", "documents", 2, "cosine")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	rec := record("d1:0", "alice", "d1", 0, "text", []float32{1, 0})
	if err := idx.Upsert(ctx, []Record{rec}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(ctx, []Record{rec}); err != nil {
		t.Fatal(err)
	}
	if firstID == "" || firstID != secondID {
		t.Errorf("re-ingesting the same record must hit the same point: %q vs %q", firstID, secondID)
	}
}
