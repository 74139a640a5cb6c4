package bridge

import (
	"strings"
	"testing"

	"github.com/ktwin/mqtt-bridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerbosity(t *testing.T) {
	tests := []struct {
		in   string
		want Verbosity
		ok   bool
	}{
		{"", VerbosityMinimal, true},
		{"minimal", VerbosityMinimal, true},
		{"FULL", VerbosityFull, true},
		{" off ", VerbosityOff, true},
		{"loud", VerbosityMinimal, false},
	}
	for _, tt := range tests {
		got, ok := ParseVerbosity(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestRouteValidate(t *testing.T) {
	valid := DefaultRoute()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(r *Route)
		errMsg string
	}{
		{"no name", func(r *Route) { r.Name = "" }, "name is required"},
		{"bad method", func(r *Route) { r.Method = "TRACE" }, "unsupported method"},
		{"relative path", func(r *Route) { r.Path = "x" }, "must start with /"},
		{"empty topic", func(r *Route) { r.Topic = "" }, "topic is required"},
		{"plus wildcard", func(r *Route) { r.Topic = "a/+/b" }, "wildcards"},
		{"hash wildcard", func(r *Route) { r.Topic = "a/#" }, "wildcards"},
		{"qos", func(r *Route) { r.QoS = 3 }, "qos"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DefaultRoute()
			tt.mutate(&r)
			assert.ErrorContains(t, r.Validate(), tt.errMsg)
		})
	}
}

func TestNewRouteTable(t *testing.T) {
	t.Run("lookup", func(t *testing.T) {
		r := DefaultRoute()
		r.Method = "post"

		table, err := NewRouteTable(r)
		require.NoError(t, err)

		got, ok := table.Lookup("POST", "/")
		require.True(t, ok)
		assert.Equal(t, "POST", got.Method)
		assert.Equal(t, DefaultTopic, got.Topic)

		_, ok = table.Lookup("GET", "/")
		assert.False(t, ok)

		_, ok = table.ByName(DefaultRouteName)
		assert.True(t, ok)
	})

	t.Run("duplicate binding", func(t *testing.T) {
		a := DefaultRoute()
		b := DefaultRoute()
		b.Name = "other"
		_, err := NewRouteTable(a, b)
		assert.ErrorContains(t, err, "duplicate binding")
	})

	t.Run("duplicate name", func(t *testing.T) {
		a := DefaultRoute()
		b := DefaultRoute()
		b.Path = "/other"
		_, err := NewRouteTable(a, b)
		assert.ErrorContains(t, err, "duplicate name")
	})

	t.Run("server endpoints are reserved", func(t *testing.T) {
		for _, path := range []string{"/healthz", "/readyz", "/metrics", "/v1/exchanges", "/healthz/"} {
			for _, method := range []string{"GET", "POST"} {
				r := DefaultRoute()
				r.Method = method
				r.Path = path
				_, err := NewRouteTable(r)
				assert.ErrorContains(t, err, "reserved", "%s %s", method, path)
			}
		}
	})

	t.Run("empty", func(t *testing.T) {
		_, err := NewRouteTable()
		assert.Error(t, err)
	})

	t.Run("routes is a copy", func(t *testing.T) {
		table, err := NewRouteTable(DefaultRoute())
		require.NoError(t, err)
		routes := table.Routes()
		routes[0].Topic = "changed"
		assert.Equal(t, DefaultTopic, table.Routes()[0].Topic)
	})
}

func TestRoutesFromConfig(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Bridge.Twins = []string{"pump-1"}
	cfg.Bridge.Routes = append(cfg.Bridge.Routes, config.RouteConfig{
		Method: "put",
		Path:   "/raw",
		Topic:  "raw",
		QoS:    1,
	})

	table, err := RoutesFromConfig(cfg.Bridge)
	require.NoError(t, err)

	routes := table.Routes()
	require.Len(t, routes, 3)

	assert.Equal(t, DefaultRoute(), routes[0])

	assert.Equal(t, "PUT /raw", routes[1].Name)
	assert.Equal(t, byte(1), routes[1].QoS)
	assert.Equal(t, VerbosityMinimal, routes[1].Log.Verbosity)

	assert.Equal(t, "/twins/pump-1", routes[2].Path)
	assert.Equal(t, "pump-1-to-real", routes[2].Topic)

	t.Run("bad verbosity", func(t *testing.T) {
		_, err := RoutesFromConfig(config.BridgeConfig{Routes: []config.RouteConfig{{
			Method: "POST", Path: "/", Topic: "t", Log: config.RouteLogConfig{Verbosity: "loud"},
		}}})
		assert.ErrorContains(t, err, "verbosity")
	})
}

func TestTwinNaming(t *testing.T) {
	r, err := TwinRoute("boiler")
	require.NoError(t, err)
	assert.Equal(t, "boiler-int-virtual-real", r.Name)
	assert.Equal(t, "boiler-to-real", r.Topic)
	assert.False(t, r.ClearBody)
	assert.Equal(t, VerbosityFull, r.Log.Verbosity)
	assert.True(t, r.Log.Multiline)

	assert.Equal(t, "boiler-to-virtual", TwinRelayTopic("boiler"))
	assert.Equal(t, "ktwin.real.boiler.generated", TwinEventType("boiler"))
	assert.Equal(t, "boiler-int-real-virtual", TwinRelayName("boiler"))

	long := strings.Repeat("a", 63)
	r, err = TwinRoute(long)
	require.NoError(t, err)
	assert.Len(t, r.Name, 63)
	assert.Equal(t, "/twins/"+long, r.Path)
	assert.Len(t, TwinRelayName(long), 63)
}

func TestTwinNameValidation(t *testing.T) {
	for _, name := range []string{"a", "pump-1", "0", "x9", strings.Repeat("b", 63)} {
		_, err := TwinRoute(name)
		assert.NoError(t, err, name)
	}

	for _, name := range []string{
		"",
		"a/b",
		"a+b",
		"a#b",
		"a b",
		"a:b",
		"a*",
		"a?",
		"a\x00b",
		"Boiler",
		"pump_1",
		"pump.1",
		"-pump",
		"pump-",
		strings.Repeat("c", 64),
	} {
		_, err := TwinRoute(name)
		assert.Error(t, err, "%q", name)
	}
}

func TestTwinRoutes(t *testing.T) {
	ti, err := TwinRoutes(" pump-1 ")
	require.NoError(t, err)

	assert.Equal(t, "pump-1-to-real", ti.ToReal.Topic)
	assert.Equal(t, "/twins/pump-1", ti.ToReal.Path)
	assert.Equal(t, "pump-1-to-virtual", ti.RelayTopic)
	assert.Equal(t, "ktwin.real.pump-1.generated", ti.EventType)
	assert.Equal(t, "pump-1-int-real-virtual", ti.RelayName)

	_, err = TwinRoutes("a#b")
	assert.Error(t, err)
}
