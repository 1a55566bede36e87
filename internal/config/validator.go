package config

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/vyrodovalexey/dynproxy/internal/observability"
	"github.com/vyrodovalexey/dynproxy/internal/proxy"
	"github.com/vyrodovalexey/dynproxy/internal/util"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e[i].Error())
	}
	return sb.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As, so
// errors.Is(err, proxy.ErrMissingHost) holds for a config without a host.
func (e ValidationErrors) Unwrap() []error {
	errs := make([]error, 0, len(e)+1)
	for i := range e {
		errs = append(errs, &e[i])
	}
	return append(errs, util.ErrConfigInvalid)
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates proxy configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a proxy configuration.
func ValidateConfig(config *ProxyConfig) error {
	return NewValidator().Validate(config)
}

// Validate validates the configuration and returns ValidationErrors when
// anything is wrong.
func (v *Validator) Validate(config *ProxyConfig) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateRoot(config)
	v.validateMetadata(&config.Metadata)
	v.validateSpec(&config.Spec)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// validateRoot validates root-level fields.
func (v *Validator) validateRoot(config *ProxyConfig) {
	if config.APIVersion == "" {
		v.addError("apiVersion", "apiVersion is required")
	} else if !strings.HasPrefix(config.APIVersion, APIVersionPrefix) {
		v.addError("apiVersion", "apiVersion must start with '"+APIVersionPrefix+"'")
	}

	if config.Kind == "" {
		v.addError("kind", "kind is required")
	} else if config.Kind != KindProxy {
		v.addError("kind", "kind must be '"+KindProxy+"'")
	}
}

// validateMetadata validates metadata fields.
func (v *Validator) validateMetadata(metadata *Metadata) {
	if metadata.Name == "" {
		v.addError("metadata.name", "name is required")
	}
}

// validateSpec validates the proxy spec.
func (v *Validator) validateSpec(spec *ProxySpec) {
	v.validateUpstream(&spec.Upstream, "spec.upstream")
	v.validateListener(&spec.Listener, "spec.listener")
	v.validateAdmin(&spec.Admin, spec.Listener.Address, "spec.admin")
	v.validateTransport(&spec.Transport, "spec.transport")
	v.validateObservability(&spec.Observability, "spec.observability")

	if spec.RateLimit != nil {
		v.validateRateLimit(spec.RateLimit, "spec.rateLimit")
	}
}

// validateUpstream checks the fields a proxy cannot start without.
func (v *Validator) validateUpstream(u *UpstreamConfig, path string) {
	if strings.TrimSpace(u.Scheme) == "" {
		v.addErrorWithCause(path+".scheme", "scheme is required", proxy.ErrMissingScheme)
	} else if err := util.ValidateScheme(u.Scheme); err != nil {
		v.addErrorWithCause(path+".scheme", err.Error(), proxy.ErrMissingScheme)
	}

	if strings.TrimSpace(u.Host) == "" {
		v.addErrorWithCause(path+".host", "host is required", proxy.ErrMissingHost)
	} else if err := util.ValidateHostPort(u.Host); err != nil {
		v.addErrorWithCause(path+".host", err.Error(), proxy.ErrMissingHost)
	}

	if err := util.ValidatePathBase(u.PathBase); err != nil {
		v.addError(path+".pathBase", err.Error())
	}

	for i, q := range u.AppendQuery {
		if q.Key == "" {
			v.addError(fmt.Sprintf("%s.appendQuery[%d].key", path, i), "key is required")
		}
	}

	v.validateDurations(path, []namedDuration{
		{"flushInterval", u.FlushInterval},
	})
}

// validateListener validates the proxy listener.
func (v *Validator) validateListener(l *ListenerConfig, path string) {
	if err := validateAddress(l.Address); err != nil {
		v.addError(path+".address", err.Error())
	}

	v.validateDurations(path, []namedDuration{
		{"readTimeout", l.ReadTimeout},
		{"readHeaderTimeout", l.ReadHeaderTimeout},
		{"writeTimeout", l.WriteTimeout},
		{"idleTimeout", l.IdleTimeout},
		{"shutdownTimeout", l.ShutdownTimeout},
	})

	if l.MaxHeaderBytes < 0 {
		v.addError(path+".maxHeaderBytes", "maxHeaderBytes cannot be negative")
	}
}

// validateAdmin validates the admin listener. It may be disabled but must
// not share the proxy listener address.
func (v *Validator) validateAdmin(a *AdminConfig, listenerAddress, path string) {
	if a.Address == "" {
		return
	}
	if err := validateAddress(a.Address); err != nil {
		v.addError(path+".address", err.Error())
		return
	}
	if a.Address == listenerAddress {
		v.addError(path+".address", "admin address must differ from the listener address")
	}
}

// validateTransport validates outbound transport settings.
func (v *Validator) validateTransport(t *TransportConfig, path string) {
	v.validateDurations(path, []namedDuration{
		{"dialTimeout", t.DialTimeout},
		{"keepAlive", t.KeepAlive},
		{"tlsHandshakeTimeout", t.TLSHandshakeTimeout},
		{"responseHeaderTimeout", t.ResponseHeaderTimeout},
		{"idleConnTimeout", t.IdleConnTimeout},
		{"expectContinueTimeout", t.ExpectContinueTimeout},
	})

	if t.MaxIdleConns < 0 {
		v.addError(path+".maxIdleConns", "maxIdleConns cannot be negative")
	}
	if t.MaxIdleConnsPerHost < 0 {
		v.addError(path+".maxIdleConnsPerHost", "maxIdleConnsPerHost cannot be negative")
	}
}

// validateObservability validates observability configuration.
func (v *Validator) validateObservability(o *ObservabilityConfig, path string) {
	if _, err := observability.ParseLevel(o.Logging.Level); err != nil {
		v.addError(path+".logging.level", fmt.Sprintf("invalid log level: %s", o.Logging.Level))
	}

	switch o.Logging.Format {
	case "", observability.FormatJSON, observability.FormatConsole:
	default:
		v.addError(path+".logging.format", "format must be 'json' or 'console'")
	}

	if o.Metrics.Path != "" && !strings.HasPrefix(o.Metrics.Path, "/") {
		v.addError(path+".metrics.path", "metrics path must start with '/'")
	}

	if err := util.ValidateRatio(o.Tracing.SamplingRate); err != nil {
		v.addError(path+".tracing.samplingRate", err.Error())
	}
}

// validateRateLimit validates rate limit configuration.
func (v *Validator) validateRateLimit(rl *RateLimitConfig, path string) {
	if rl.Enabled {
		if rl.RequestsPerSecond <= 0 {
			v.addError(path+".requestsPerSecond", "requestsPerSecond must be positive")
		}
		if rl.Burst <= 0 {
			v.addError(path+".burst", "burst must be positive")
		}
	}

	if err := util.ValidateDuration(rl.ClientTTL.Duration()); err != nil {
		v.addError(path+".clientTTL", err.Error())
	}

	for i, entry := range rl.TrustedProxies {
		if _, err := netip.ParsePrefix(entry); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(entry); err != nil {
			v.addError(fmt.Sprintf("%s.trustedProxies[%d]", path, i), "must be an IP address or CIDR: "+entry)
		}
	}
}

type namedDuration struct {
	name  string
	value Duration
}

func (v *Validator) validateDurations(path string, durations []namedDuration) {
	for _, d := range durations {
		if err := util.ValidateDuration(d.value.Duration()); err != nil {
			v.addError(path+"."+d.name, err.Error())
		}
	}
}

// validateAddress checks a "host:port" listen address. The host may be
// empty; the port must be numeric.
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address is required")
	}
	_, port, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", address, err)
	}
	var n int
	if _, err := fmt.Sscanf(port, "%d", &n); err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port in address %q", address)
	}
	return nil
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) addErrorWithCause(path, message string, cause error) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message, Cause: cause})
}
