// Package target builds the fixed set of downstream servers that receive
// collection triggers.
package target

import (
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/Unidata/tds-sub001/errors"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultAdminPath is the trigger path on remote servers.
	DefaultAdminPath = "thredds/admin/collection/trigger"
	// DefaultLocalPath is the trigger path on loopback servers.
	DefaultLocalPath = "thredds/local/collection/trigger"
	// DefaultTimeout bounds a single trigger call.
	DefaultTimeout = 10 * time.Second
)

// Config describes the servers to build targets for.
type Config struct {
	Servers     []string
	User        string
	Password    string
	AdminPath   string
	LocalPath   string
	TriggerFlag models.UpdateType
	Timeout     time.Duration
}

// Target is one downstream server.
type Target struct {
	Name        string
	BaseURL     *url.URL
	Local       bool
	TriggerPath string

	flag   models.UpdateType
	client *http.Client
}

// TriggerURL returns the trigger URL for a collection.
func (t *Target) TriggerURL(collection string) string {
	u := *t.BaseURL
	u.Path = path.Join("/", t.BaseURL.Path, t.TriggerPath)
	u.RawPath = ""
	u.RawQuery = url.Values{
		"collection": {collection},
		"trigger":    {string(t.flag)},
	}.Encode()
	u.Fragment = ""
	return u.String()
}

// Client returns the session used for this target. Remote sessions carry
// Basic credentials on every request.
func (t *Target) Client() *http.Client {
	return t.client
}

// Info returns a description safe to expose over the control API.
func (t *Target) Info() models.TargetInfo {
	return models.TargetInfo{
		Name:        t.Name,
		BaseURL:     t.BaseURL.String(),
		Local:       t.Local,
		TriggerPath: t.TriggerPath,
	}
}

// Registry is the immutable, ordered list of targets.
type Registry struct {
	targets []*Target
}

// New builds one target per server in list order. A remote server without
// credentials or an unusable URL fails the whole construction.
func New(cfg Config, logger *logrus.Entry) (*Registry, error) {
	if cfg.AdminPath == "" {
		cfg.AdminPath = DefaultAdminPath
	}
	if cfg.LocalPath == "" {
		cfg.LocalPath = DefaultLocalPath
	}
	if cfg.TriggerFlag == "" {
		cfg.TriggerFlag = models.UpdateNever
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	reg := &Registry{targets: make([]*Target, 0, len(cfg.Servers))}
	for _, server := range cfg.Servers {
		t, err := newTarget(server, cfg)
		if err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{
			"target": t.Name,
			"local":  t.Local,
			"path":   t.TriggerPath,
		}).Info("Registered trigger target")
		reg.targets = append(reg.targets, t)
	}
	return reg, nil
}

func newTarget(server string, cfg Config) (*Target, error) {
	u, err := url.Parse(strings.TrimSpace(server))
	if err != nil {
		return nil, errors.InvalidTarget(server, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.InvalidTarget(server, "scheme must be http or https")
	}
	if u.Hostname() == "" {
		return nil, errors.InvalidTarget(server, "missing host")
	}

	t := &Target{
		Name:    u.Host,
		BaseURL: u,
		Local:   IsLoopback(u.Hostname()),
		flag:    cfg.TriggerFlag,
	}

	var transport http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	if t.Local {
		t.TriggerPath = cfg.LocalPath
	} else {
		if cfg.User == "" || cfg.Password == "" {
			return nil, errors.MissingCredentials(server)
		}
		t.TriggerPath = cfg.AdminPath
		transport = &basicAuthTransport{
			user:     cfg.User,
			password: cfg.Password,
			next:     transport,
		}
	}

	t.client = &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
	return t, nil
}

// IsLoopback reports whether host names the local machine.
func IsLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Targets returns a copy of the target list in registration order.
func (r *Registry) Targets() []*Target {
	out := make([]*Target, len(r.targets))
	copy(out, r.targets)
	return out
}

// Len returns the number of targets.
func (r *Registry) Len() int {
	return len(r.targets)
}

// Infos describes every target for the control API.
func (r *Registry) Infos() []models.TargetInfo {
	out := make([]models.TargetInfo, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t.Info())
	}
	return out
}

// basicAuthTransport binds static credentials to every request.
type basicAuthTransport struct {
	user     string
	password string
	next     http.RoundTripper
}

func (b *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.SetBasicAuth(b.user, b.password)
	return b.next.RoundTrip(clone)
}
