package bridge

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ktwin/mqtt-bridge/internal/config"
)

const (
	DefaultRouteName = "mqtt-response-handler"
	DefaultTopic     = "mytopic-response"
	DefaultBrokerURL = "tcp://mqtt-broker:1883"
)

type Verbosity string

const (
	VerbosityOff     Verbosity = "off"
	VerbosityMinimal Verbosity = "minimal"
	VerbosityFull    Verbosity = "full"
)

// ParseVerbosity normalizes input; empty => minimal.
func ParseVerbosity(s string) (Verbosity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "minimal", "info":
		return VerbosityMinimal, true
	case "full", "all":
		return VerbosityFull, true
	case "off", "none":
		return VerbosityOff, true
	default:
		return VerbosityMinimal, false
	}
}

type LogOptions struct {
	Verbosity Verbosity
	Multiline bool // only honored with VerbosityFull
}

// Route binds an inbound trigger (method + path) to a fixed publish target.
type Route struct {
	Name      string
	Method    string
	Path      string
	Topic     string
	QoS       byte
	Retained  bool
	ClearBody bool
	Log       LogOptions
}

// DefaultRoute is POST / -> mytopic-response with the body cleared and full multiline logging.
func DefaultRoute() Route {
	return Route{
		Name:      DefaultRouteName,
		Method:    http.MethodPost,
		Path:      "/",
		Topic:     DefaultTopic,
		ClearBody: true,
		Log:       LogOptions{Verbosity: VerbosityFull, Multiline: true},
	}
}

// Paths served by the bridge's own HTTP server; routes may not bind them.
const (
	PathHealthz   = "/healthz"
	PathReadyz    = "/readyz"
	PathMetrics   = "/metrics"
	PathExchanges = "/v1/exchanges"
)

var reservedPaths = map[string]struct{}{
	PathHealthz:   {},
	PathReadyz:    {},
	PathMetrics:   {},
	PathExchanges: {},
}

var allowedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

func (r Route) key() string { return r.Method + " " + r.Path }

func (r Route) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("route %q: name is required", r.key())
	}
	if _, ok := allowedMethods[r.Method]; !ok {
		return fmt.Errorf("route %s: unsupported method %q", r.Name, r.Method)
	}
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("route %s: path %q must start with /", r.Name, r.Path)
	}
	if _, reserved := reservedPaths[strings.TrimSuffix(r.Path, "/")]; reserved {
		return fmt.Errorf("route %s: path %q is reserved", r.Name, r.Path)
	}
	if err := ValidateTopic(r.Topic); err != nil {
		return fmt.Errorf("route %s: %w", r.Name, err)
	}
	if r.QoS > 2 {
		return fmt.Errorf("route %s: qos %d out of range", r.Name, r.QoS)
	}
	return nil
}

// ValidateTopic rejects empty topics and wildcards, which are only valid in subscriptions.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("topic is required")
	}
	if strings.ContainsAny(topic, "+#\x00") {
		return fmt.Errorf("topic %q must not contain wildcards", topic)
	}
	return nil
}

// RouteTable is the fixed set of routes registered at startup.
type RouteTable struct {
	routes []Route
	byKey  map[string]int
	byName map[string]int
}

func NewRouteTable(routes ...Route) (*RouteTable, error) {
	t := &RouteTable{
		routes: make([]Route, 0, len(routes)),
		byKey:  make(map[string]int, len(routes)),
		byName: make(map[string]int, len(routes)),
	}

	for _, r := range routes {
		r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := t.byKey[r.key()]; dup {
			return nil, fmt.Errorf("route %s: duplicate binding %s", r.Name, r.key())
		}
		if _, dup := t.byName[r.Name]; dup {
			return nil, fmt.Errorf("route %s: duplicate name", r.Name)
		}
		t.byKey[r.key()] = len(t.routes)
		t.byName[r.Name] = len(t.routes)
		t.routes = append(t.routes, r)
	}

	if len(t.routes) == 0 {
		return nil, fmt.Errorf("route table is empty")
	}
	return t, nil
}

// Routes returns the routes in registration order.
func (t *RouteTable) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

func (t *RouteTable) Lookup(method, path string) (Route, bool) {
	i, ok := t.byKey[strings.ToUpper(method)+" "+path]
	if !ok {
		return Route{}, false
	}
	return t.routes[i], true
}

func (t *RouteTable) ByName(name string) (Route, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Route{}, false
	}
	return t.routes[i], true
}

// RoutesFromConfig builds the table from bridge.routes followed by one route per bridge.twins entry.
func RoutesFromConfig(cfg config.BridgeConfig) (*RouteTable, error) {
	routes := make([]Route, 0, len(cfg.Routes)+len(cfg.Twins))

	for i, rc := range cfg.Routes {
		verbosity, ok := ParseVerbosity(rc.Log.Verbosity)
		if !ok {
			return nil, fmt.Errorf("bridge.routes[%d]: unknown log verbosity %q", i, rc.Log.Verbosity)
		}
		if rc.QoS < 0 || rc.QoS > 2 {
			return nil, fmt.Errorf("bridge.routes[%d]: qos %d out of range", i, rc.QoS)
		}

		name := strings.TrimSpace(rc.Name)
		if name == "" {
			name = strings.ToUpper(rc.Method) + " " + rc.Path
		}

		routes = append(routes, Route{
			Name:      name,
			Method:    rc.Method,
			Path:      rc.Path,
			Topic:     rc.Topic,
			QoS:       byte(rc.QoS),
			Retained:  rc.Retained,
			ClearBody: rc.ClearBody,
			Log:       LogOptions{Verbosity: verbosity, Multiline: rc.Log.Multiline},
		})
	}

	for _, name := range cfg.Twins {
		r, err := TwinRoute(name)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}

	return NewRouteTable(routes...)
}
