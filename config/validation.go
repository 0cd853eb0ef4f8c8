package config

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/Unidata/tds-sub001/errors"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/moby/patternmatcher"
)

var collectionNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validateServers(c.Servers); err != nil {
		return err
	}

	if c.SendTriggersEnabled() && len(c.Servers) == 0 {
		for _, coll := range c.Collections {
			if coll.TriggerEnabled() {
				return errors.New(errors.ErrCodeConfigValidation, "servers cannot be empty when triggers are enabled").
					WithDetail("collection", coll.Name)
			}
		}
	}

	if c.TriggerFlag != "" {
		if _, err := models.ParseUpdateType(c.TriggerFlag); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid trigger_flag").
				WithDetail("trigger_flag", c.TriggerFlag)
		}
	}

	if c.Workers < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "workers cannot be negative").
			WithDetail("workers", c.Workers)
	}

	for name, d := range map[string]Duration{
		"token_timeout":   c.TokenTimeout,
		"request_timeout": c.RequestTimeout,
	} {
		if d < 0 {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("%s cannot be negative", name)).
				WithDetail(name, d.Std().String())
		}
	}

	if c.Fanout.RequestsPerSecond < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "fanout.requests_per_second cannot be negative")
	}

	if c.Redis != nil && c.Redis.Addr == "" {
		return errors.New(errors.ErrCodeConfigValidation, "redis.addr cannot be empty when redis is configured")
	}

	seen := make(map[string]bool, len(c.Collections))
	for _, coll := range c.Collections {
		if err := validateCollection(coll); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigValidation, fmt.Sprintf("invalid collection '%s'", coll.Name)).
				WithDetail("collection", coll.Name)
		}
		if seen[coll.Name] {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("duplicate collection name '%s'", coll.Name)).
				WithDetail("collection", coll.Name)
		}
		seen[coll.Name] = true
	}

	return nil
}

// validateServers only checks syntax. Credential rules are enforced when the
// target registry is built.
func validateServers(servers []string) error {
	for _, server := range servers {
		u, err := url.Parse(server)
		if err != nil {
			return errors.InvalidTarget(server, err.Error())
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.InvalidTarget(server, "scheme must be http or https")
		}
		if u.Host == "" {
			return errors.InvalidTarget(server, "missing host")
		}
	}
	return nil
}

func validateCollection(coll CollectionConfig) error {
	if !collectionNameRegex.MatchString(coll.Name) {
		return errors.New(errors.ErrCodeInvalidInput, "collection name must start with a letter or digit and contain only letters, digits, '.', '_' and '-'").
			WithDetail("name", coll.Name)
	}

	if coll.UpdateType != "" {
		if _, err := models.ParseUpdateType(coll.UpdateType); err != nil {
			return err
		}
	}

	if coll.Settle < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "settle cannot be negative")
	}
	if coll.Rescan < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "rescan cannot be negative")
	}

	if len(coll.Include) > 0 {
		if _, err := patternmatcher.New(coll.Include); err != nil {
			return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid include pattern")
		}
	}

	return nil
}
