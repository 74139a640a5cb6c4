package bridge

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Kubernetes object names are capped at 63 characters.
const maxNameLength = 63

func truncateName(s string) string {
	if len(s) <= maxNameLength {
		return s
	}
	return s[:maxNameLength]
}

// RFC 1123 label: lower-case alphanumerics and '-', alphanumeric at both ends.
var twinNamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// twin names end up in topics, URL paths and object names, so they must be
// valid in all three.
func validTwinName(name string) error {
	if name == "" {
		return fmt.Errorf("twin name is required")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("twin name %q: longer than %d characters", name, maxNameLength)
	}
	if !twinNamePattern.MatchString(name) {
		return fmt.Errorf("twin name %q: must be lower-case alphanumerics or '-', starting and ending with an alphanumeric", name)
	}
	return nil
}

// TwinRoute is the virtual-to-real direction of a twin instance:
// POST /twins/<name> is logged in full and published to <name>-to-real.
func TwinRoute(name string) (Route, error) {
	name = strings.TrimSpace(name)
	if err := validTwinName(name); err != nil {
		return Route{}, err
	}
	return Route{
		Name:   truncateName(name + "-int-virtual-real"),
		Method: http.MethodPost,
		Path:   "/twins/" + name,
		Topic:  name + "-to-real",
		Log:    LogOptions{Verbosity: VerbosityFull, Multiline: true},
	}, nil
}

// TwinRelayTopic is the topic a real twin publishes on for its virtual counterpart.
func TwinRelayTopic(name string) string { return name + "-to-virtual" }

// TwinEventType is the CloudEvents type attached to relayed real-twin messages.
func TwinEventType(name string) string { return "ktwin.real." + name + ".generated" }

// TwinRelayName names the real-to-virtual integration of a twin instance.
func TwinRelayName(name string) string { return truncateName(name + "-int-real-virtual") }

// TwinIntegration is everything generated for one twin instance: the
// virtual-to-real route and the real-to-virtual relay settings.
type TwinIntegration struct {
	ToReal     Route
	RelayName  string
	RelayTopic string
	EventType  string
}

func TwinRoutes(name string) (TwinIntegration, error) {
	r, err := TwinRoute(name)
	if err != nil {
		return TwinIntegration{}, err
	}
	name = strings.TrimSpace(name)
	return TwinIntegration{
		ToReal:     r,
		RelayName:  TwinRelayName(name),
		RelayTopic: TwinRelayTopic(name),
		EventType:  TwinEventType(name),
	}, nil
}
