package entities

import "time"

// UpstreamCookie is a single cookie obtained from the upstream's challenge page
type UpstreamCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Expires  string `json:"expires,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"httponly,omitempty"`
}

// UpstreamCookies is the cookie set that lets the mirror pass the upstream's
// bot challenge. The cookies are only valid together with the user agent and
// egress proxy that obtained them.
type UpstreamCookies struct {
	Cookies   []UpstreamCookie `json:"cookies"`
	UserAgent string           `json:"user_agent,omitempty"`
	ProxyURL  string           `json:"proxy_url,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Age returns how long ago the cookie set was registered
func (c *UpstreamCookies) Age(now time.Time) time.Duration {
	if c.UpdatedAt.IsZero() {
		return 0
	}
	return now.Sub(c.UpdatedAt)
}

// Without returns the cookies whose name is not in the excluded list
func (c *UpstreamCookies) Without(excluded ...string) []UpstreamCookie {
	result := make([]UpstreamCookie, 0, len(c.Cookies))
	for _, cookie := range c.Cookies {
		skip := false
		for _, name := range excluded {
			if cookie.Name == name {
				skip = true
				break
			}
		}
		if !skip {
			result = append(result, cookie)
		}
	}
	return result
}
