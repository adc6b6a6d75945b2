package proxy

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Supported proxy schemes.
const (
	SchemeHTTP   = "http"
	SchemeHTTPS  = "https"
	SchemeSOCKS5 = "socks5"
)

// Endpoint is a single proxy. It is immutable once loaded.
type Endpoint struct {
	Scheme   string
	Host     string
	Port     int
	Username string
	Password string
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URL returns the proxy URL including credentials, suitable for
// http.ProxyURL.
func (e Endpoint) URL() *url.URL {
	u := &url.URL{Scheme: e.Scheme, Host: e.Address()}
	if e.Username != "" {
		u.User = url.UserPassword(e.Username, e.Password)
	}
	return u
}

// String returns a redacted form safe for logs.
func (e Endpoint) String() string {
	if e.Username != "" {
		return fmt.Sprintf("%s://%s@%s", e.Scheme, e.Username, e.Address())
	}
	return fmt.Sprintf("%s://%s", e.Scheme, e.Address())
}

// IsZero reports whether e is the zero Endpoint (no proxy).
func (e Endpoint) IsZero() bool {
	return e.Host == ""
}

// ParseEndpoint parses one proxy record. See the package documentation for
// the accepted formats.
func ParseEndpoint(record string) (Endpoint, error) {
	record = strings.TrimSpace(record)
	if record == "" {
		return Endpoint{}, fmt.Errorf("empty record")
	}

	if strings.Contains(record, "://") {
		return parseURLRecord(record)
	}

	// webshare: host:port:user:pass, the password may itself contain ':'
	parts := strings.SplitN(record, ":", 3)
	switch len(parts) {
	case 2:
		port, err := parsePort(parts[1])
		if err != nil {
			return Endpoint{}, err
		}
		return newEndpoint(SchemeHTTP, parts[0], port, "", "")
	case 3:
		port, err := parsePort(parts[1])
		if err != nil {
			return Endpoint{}, err
		}
		user, pass, ok := strings.Cut(parts[2], ":")
		if !ok || user == "" {
			return Endpoint{}, fmt.Errorf("expected host:port:user:pass")
		}
		return newEndpoint(SchemeHTTP, parts[0], port, user, pass)
	default:
		return Endpoint{}, fmt.Errorf("expected host:port[:user:pass] or a proxy URL")
	}
}

func parseURLRecord(record string) (Endpoint, error) {
	u, err := url.Parse(record)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid proxy URL")
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case SchemeHTTP, SchemeHTTPS, SchemeSOCKS5:
	default:
		return Endpoint{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if u.Port() == "" {
		return Endpoint{}, fmt.Errorf("missing port")
	}
	port, err := parsePort(u.Port())
	if err != nil {
		return Endpoint{}, err
	}

	var user, pass string
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}
	return newEndpoint(scheme, u.Hostname(), port, user, pass)
}

func newEndpoint(scheme, host string, port int, user, pass string) (Endpoint, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return Endpoint{}, fmt.Errorf("missing host")
	}
	return Endpoint{
		Scheme:   scheme,
		Host:     host,
		Port:     port,
		Username: user,
		Password: pass,
	}, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}
