package upstream

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeProxy brings a proxy connection string into a form the HTTP
// transport accepts. Schemeless input gets defaultScheme; socks5 proxies
// are reduced to scheme plus netloc (transports reject path/query there).
func NormalizeProxy(proxy, defaultScheme string) (string, error) {
	p := strings.TrimSpace(proxy)
	if p == "" {
		return "", nil
	}
	if defaultScheme == "" {
		defaultScheme = "socks5"
	}
	if !strings.HasPrefix(p, "http://") && !strings.HasPrefix(p, "https://") && !strings.HasPrefix(p, "socks5://") {
		p = defaultScheme + "://" + p
	}
	u, err := url.Parse(p)
	if err != nil {
		return "", fmt.Errorf("%w: parse %q: %v", ErrProxy, proxy, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrProxy, proxy)
	}
	if u.Scheme == "socks5" {
		netloc := u.Host
		if u.User != nil {
			netloc = u.User.String() + "@" + u.Host
		}
		return "socks5://" + netloc, nil
	}
	return p, nil
}
