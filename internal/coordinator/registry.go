// Package coordinator implements the cluster builder registry: a
// directory of live builders that the client queries before offloading
// a compile, and that builders heartbeat into. Grounded on
// _examples/original_source/src/bin/octo_client.rs's use of
// cluster::common::{BuilderInfo, RPC_BUILDER_LIST} (the struct itself lives
// in a common.rs not present in the retrieved pack, reconstructed from its
// call sites) and on _examples/distr1-distri/cmd/autobuilder/autobuilder.go's
// HTTP server idiom (flag-configured listen address, mutex-guarded
// in-memory state).
package coordinator

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// RPCBuilderList and RPCUpdate are the registry's HTTP routes, named after
// the original's RPC_BUILDER_LIST constant.
const (
	RPCBuilderList = "/rpc/v1/builders"
	RPCUpdate      = "/rpc/v1/update"
)

// BuilderInfo describes one registered builder: its dial address, a
// human-readable name, a version string for diagnosing a stale builder
// binary, and the toolchain identifiers (Toolchain.FingerprintID values) it
// can compile for.
type BuilderInfo struct {
	Guid       string   `json:"guid"`
	Endpoint   string   `json:"endpoint"`
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Toolchains []string `json:"toolchains"`
}

type entry struct {
	info BuilderInfo
	seen time.Time
}

// Registry tracks builders by guid, expiring any that stop heartbeating.
type Registry struct {
	mu       sync.Mutex
	builders map[string]entry
	ttl      time.Duration
}

// NewRegistry builds a Registry that considers a builder dead after it has
// not updated for 3x heartbeatInterval, the multiple chosen so that one
// lost heartbeat doesn't evict a live builder.
func NewRegistry(heartbeatInterval time.Duration) *Registry {
	return &Registry{
		builders: make(map[string]entry),
		ttl:      3 * heartbeatInterval,
	}
}

// Update registers or refreshes a builder. A builder with no guid yet is
// assigned one.
func (r *Registry) Update(info BuilderInfo) BuilderInfo {
	if info.Guid == "" {
		info.Guid = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[info.Guid] = entry{info: info, seen: now()}
	return info
}

// List returns all builders that have heartbeated within the registry's
// ttl, dropping the expired ones. The order of the returned builders is not
// defined: it follows map iteration order and may differ between calls.
func (r *Registry) List() []BuilderInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := now().Add(-r.ttl)
	out := make([]BuilderInfo, 0, len(r.builders))
	for guid, e := range r.builders {
		if e.seen.Before(cutoff) {
			delete(r.builders, guid)
			continue
		}
		out = append(out, e.info)
	}
	return out
}

// now is a var, not a direct time.Now() call, only so tests can fake builder
// age without sleeping.
var now = time.Now

// Router builds the mux.Router serving this registry's two endpoints.
func (r *Registry) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc(RPCUpdate, r.handleUpdate).Methods(http.MethodPost)
	router.HandleFunc(RPCBuilderList, r.handleList).Methods(http.MethodGet)
	return router
}

func (r *Registry) handleUpdate(w http.ResponseWriter, req *http.Request) {
	var info BuilderInfo
	if err := json.NewDecoder(req.Body).Decode(&info); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	info = r.Update(info)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

func (r *Registry) handleList(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(r.List())
}
