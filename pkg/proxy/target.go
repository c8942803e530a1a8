package proxy

import "strings"

const (
	assetPrefix = "/assets"
	abPrefix    = "/ab"
)

// Target is the upstream location a request is forwarded to
type Target struct {
	Host string
	Path string
}

// URL returns the absolute upstream URL of the target
func (t Target) URL(rawQuery string) string {
	u := "https://" + t.Host + t.Path
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

// Origin returns the scheme and host of the target
func (t Target) Origin() string {
	return "https://" + t.Host
}

// OriginRouter maps inbound paths onto the upstream hosts
type OriginRouter struct {
	PrimaryHost string
	ABHost      string
	AssetHost   string
}

// Resolve returns the upstream target of an inbound path. Static assets go to
// the asset host unchanged, the A/B prefix is stripped and sent to the A/B
// host, and everything else goes to the primary host.
func (r OriginRouter) Resolve(path string) Target {
	switch {
	case underPrefix(path, assetPrefix):
		return Target{Host: r.AssetHost, Path: path}
	case underPrefix(path, abPrefix):
		rest := strings.TrimPrefix(path, abPrefix)
		if rest == "" {
			rest = "/"
		}
		return Target{Host: r.ABHost, Path: rest}
	default:
		return Target{Host: r.PrimaryHost, Path: path}
	}
}

// underPrefix reports whether path is prefix itself or a path below it
func underPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
