package hapyperion

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"
)

func TestEndpointURL(t *testing.T) {
	for _, test := range []struct {
		host string
		port int
		want string
	}{
		{"192.168.1.20", 8090, "http://192.168.1.20:8090/json-rpc"},
		{"http://hyperion.local", 8090, "http://hyperion.local:8090/json-rpc"},
		{"http://hyperion.local/", 19444, "http://hyperion.local:19444/json-rpc"},
		{"https://10.0.0.1", 8092, "https://10.0.0.1:8092/json-rpc"},
		{"HTTP://hyperion.local", 8090, "http://hyperion.local:8090/json-rpc"},
		{"::1", 8090, "http://[::1]:8090/json-rpc"},
		{"[fe80::1]", 8091, "http://[fe80::1]:8091/json-rpc"},
		{"http://[::1]/", 8090, "http://[::1]:8090/json-rpc"},
	} {
		got, err := endpointURL(test.host, test.port)
		if err != nil {
			t.Errorf("endpointURL(%q, %d): %v", test.host, test.port, err)
			continue
		}
		if got != test.want {
			t.Errorf("endpointURL(%q, %d) = %q, want %q", test.host, test.port, got, test.want)
		}
	}

	// ports belong in the port option, not the host
	for _, host := range []string{
		"10.0.0.2:8090",
		"http://10.0.0.2:8090",
		"[::1]:8090",
		"ftp://10.0.0.2",
		"http://10.0.0.2/json-rpc",
		"http://",
	} {
		if got, err := endpointURL(host, 8090); err == nil {
			t.Errorf("endpointURL(%q) = %q, expected error", host, got)
		}
	}
}

func TestNewClientConfig(t *testing.T) {
	if _, err := NewClient(LightConfig{Name: "no host"}); !errors.Is(err, ErrMissingHost) {
		t.Fatalf("expected ErrMissingHost, got %v", err)
	}

	// url is accepted in place of host, port defaults to 8090
	c, err := NewClient(LightConfig{URL: "http://10.1.1.1"})
	if err != nil {
		t.Fatal(err)
	}
	if want := "http://10.1.1.1:8090/json-rpc"; c.URL() != want {
		t.Fatalf("url = %q, want %q", c.URL(), want)
	}

	if _, err := NewClient(LightConfig{Host: "h", Port: 70000}); err == nil {
		t.Fatalf("expected error for invalid port")
	}
	if _, err := NewClient(LightConfig{Host: "10.1.1.1:8090"}); err == nil {
		t.Fatalf("expected error for a port in the host")
	}
}

func TestClientServerInfo(t *testing.T) {
	f := newFakeHyperion(t)
	c, err := NewClient(f.config(ACCESSORY_TYPE_POWER))
	if err != nil {
		t.Fatal(err)
	}

	info, err := c.ServerInfo(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(info.Components) != 2 {
		t.Fatalf("expected 2 components, got %+v", info.Components)
	}
	if comp, ok := info.Component("LEDDEVICE"); !ok || !comp.Enabled {
		t.Errorf("LEDDEVICE not found or disabled: %+v", comp)
	}
	if _, ok := info.Component("SMOOTHING"); ok {
		t.Errorf("unexpected SMOOTHING component")
	}
	if len(info.Adjustment) != 1 || *info.Adjustment[0].Brightness != 80 {
		t.Errorf("unexpected adjustment %+v", info.Adjustment)
	}
}

func TestClientRequests(t *testing.T) {
	f := newFakeHyperion(t)
	c, _ := NewClient(f.config(ACCESSORY_TYPE_COLOR))
	ctx := context.Background()

	if err := c.SetComponentState(ctx, COMPONENT_LEDDEVICE, false); err != nil {
		t.Fatal(err)
	}
	if err := c.SetAdjustment(ctx, 42); err != nil {
		t.Fatal(err)
	}
	if err := c.SetColor(ctx, 50, 255, 128, 0); err != nil {
		t.Fatal(err)
	}

	// values come back from JSON as float64
	for _, test := range []struct {
		cmd  string
		want map[string]any
	}{
		{"componentstate", map[string]any{
			"command":        "componentstate",
			"componentstate": map[string]any{"component": "LEDDEVICE", "state": false},
		}},
		{"adjustment", map[string]any{
			"command":    "adjustment",
			"adjustment": map[string]any{"brightness": 42.},
		}},
		{"color", map[string]any{
			"command":  "color",
			"priority": 50.,
			"color":    []any{255., 128., 0.},
		}},
	} {
		reqs := f.commands(test.cmd)
		if len(reqs) != 1 {
			t.Fatalf("%s: expected 1 request, got %d", test.cmd, len(reqs))
		}
		if !reflect.DeepEqual(reqs[0], test.want) {
			t.Errorf("%s: got %+v, want %+v", test.cmd, reqs[0], test.want)
		}
	}
}

func TestClientErrors(t *testing.T) {
	f := newFakeHyperion(t)
	c, _ := NewClient(f.config(ACCESSORY_TYPE_POWER))
	ctx := context.Background()

	f.setFailing("adjustment", true)
	err := c.SetAdjustment(ctx, 10)

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if cmdErr.Command != "adjustment" || cmdErr.Reason != "rejected" {
		t.Errorf("unexpected CommandError %+v", cmdErr)
	}
	if !IsCommandError(err) {
		t.Errorf("IsCommandError should be true")
	}

	f.setStatus(http.StatusInternalServerError)
	err = c.SetAdjustment(ctx, 10)
	if err == nil || IsCommandError(err) {
		t.Fatalf("expected transport error, got %v", err)
	}

	// nothing listening
	f.srv.Close()
	if _, err := c.ServerInfo(ctx); err == nil || IsCommandError(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
