package coordinator

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestUpdateAssignsGuid(t *testing.T) {
	r := NewRegistry(time.Second)
	info := r.Update(BuilderInfo{Endpoint: "localhost:9000", Toolchains: []string{"msvc"}})
	if info.Guid == "" {
		t.Fatal("expected a guid to be assigned")
	}
	got := r.List()
	if len(got) != 1 || got[0].Guid != info.Guid {
		t.Errorf("List() = %+v, want one entry with guid %q", got, info.Guid)
	}
}

func TestUpdateRefreshesExisting(t *testing.T) {
	r := NewRegistry(time.Second)
	first := r.Update(BuilderInfo{Endpoint: "a", Toolchains: []string{"clang"}})
	r.Update(BuilderInfo{Guid: first.Guid, Endpoint: "a", Toolchains: []string{"clang", "msvc"}})
	got := r.List()
	if len(got) != 1 {
		t.Fatalf("expected the refresh to update, not duplicate: %+v", got)
	}
	if len(got[0].Toolchains) != 2 {
		t.Errorf("Toolchains = %v, want 2 entries", got[0].Toolchains)
	}
}

func TestListExpiresStaleBuilders(t *testing.T) {
	r := NewRegistry(time.Second)
	real := now
	defer func() { now = real }()
	base := time.Now()
	now = func() time.Time { return base }

	r.Update(BuilderInfo{Guid: "stale", Endpoint: "a"})

	now = func() time.Time { return base.Add(10 * time.Second) }
	got := r.List()
	if len(got) != 0 {
		t.Errorf("expected stale builder to be expired, got %+v", got)
	}
}

func TestRouterEndpoints(t *testing.T) {
	r := NewRegistry(time.Minute)
	srv := httptest.NewServer(r.Router())
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+RPCUpdate, "application/json",
		strings.NewReader(`{"endpoint":"localhost:9001","name":"b1","toolchains":["clang"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = srv.Client().Get(srv.URL + RPCBuilderList)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
}
