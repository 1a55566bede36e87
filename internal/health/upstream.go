package health

import (
	"strconv"
	"strings"
)

// UpstreamInfo describes the upstream configuration a proxy serves with.
type UpstreamInfo struct {
	Scheme                  string
	Host                    string
	PathBase                string
	UseDynamicSchemeAndHost bool
	AppendQuery             string
}

// UpstreamCheck returns a readiness check reporting the upstream
// configuration returned by current. A missing scheme or host is
// unhealthy; current is called on every probe so reloads show up.
func UpstreamCheck(current func() UpstreamInfo) CheckFunc {
	return func() Check {
		info := current()

		details := map[string]string{
			"scheme":  info.Scheme,
			"host":    info.Host,
			"dynamic": strconv.FormatBool(info.UseDynamicSchemeAndHost),
		}
		if info.PathBase != "" {
			details["pathBase"] = info.PathBase
		}
		if info.AppendQuery != "" {
			details["appendQuery"] = info.AppendQuery
		}

		if strings.TrimSpace(info.Scheme) == "" || strings.TrimSpace(info.Host) == "" {
			return Check{
				Status:  StatusUnhealthy,
				Message: "upstream scheme and host must be configured",
				Details: details,
			}
		}

		return Check{
			Status:  StatusHealthy,
			Message: "default upstream " + info.Scheme + "://" + info.Host + info.PathBase,
			Details: details,
		}
	}
}
