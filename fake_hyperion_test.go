package hapyperion

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
)

// Minimal Hyperion JSON-RPC endpoint recording every command it receives
type fakeHyperion struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []map[string]any

	// "info" object returned for serverinfo
	info map[string]any

	// commands answered with success=false
	failing map[string]bool

	// if non-zero, every request is answered with this HTTP status
	status int

	// called with the command name before the reply is written
	onCommand func(cmd string)
}

func newFakeHyperion(t *testing.T) *fakeHyperion {
	f := &fakeHyperion{
		info: map[string]any{
			"components": []map[string]any{
				{"name": "ALL", "enabled": true},
				{"name": "LEDDEVICE", "enabled": true},
			},
			"adjustment": []map[string]any{
				{"brightness": 80},
			},
		},
		failing: make(map[string]bool),
	}

	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeHyperion) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != HYPERION_RPC_PATH {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	status, info := f.status, f.info
	cmd, _ := req["command"].(string)
	failing := f.failing[cmd]
	hook := f.onCommand
	f.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}

	if status != 0 {
		http.Error(w, "boom", status)
		return
	}

	resp := map[string]any{"command": cmd, "success": !failing}
	if failing {
		resp["error"] = "rejected"
	} else if cmd == "serverinfo" {
		resp["info"] = info
	}
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeHyperion) setInfo(info map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info = info
}

func (f *fakeHyperion) setFailing(cmd string, failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[cmd] = failing
}

func (f *fakeHyperion) setOnCommand(hook func(cmd string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCommand = hook
}

func (f *fakeHyperion) setStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// Returns the received requests for the given command
func (f *fakeHyperion) commands(cmd string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	var reqs []map[string]any
	for _, r := range f.requests {
		if r["command"] == cmd {
			reqs = append(reqs, r)
		}
	}
	return reqs
}

// Returns a LightConfig pointing at this server
func (f *fakeHyperion) config(accType string) LightConfig {
	u, err := url.Parse(f.srv.URL)
	if err != nil {
		panic(err)
	}
	port, _ := strconv.Atoi(u.Port())

	return LightConfig{
		Accessory: accType,
		Name:      "Test",
		Host:      u.Scheme + "://" + u.Hostname(),
		Port:      port,
	}
}
