package config

// mergeConfigs merges override configuration into base
func mergeConfigs(base, override *Config) *Config {
	result := *base

	if len(override.Servers) > 0 {
		result.Servers = override.Servers
	}
	if override.User != "" {
		result.User = override.User
	}
	if override.Password != "" {
		result.Password = override.Password
	}
	if override.AdminPath != "" {
		result.AdminPath = override.AdminPath
	}
	if override.LocalPath != "" {
		result.LocalPath = override.LocalPath
	}
	if override.TriggerFlag != "" {
		result.TriggerFlag = override.TriggerFlag
	}
	if override.SendTriggers != nil {
		result.SendTriggers = override.SendTriggers
	}
	if override.Workers != 0 {
		result.Workers = override.Workers
	}
	if override.TokenTimeout != 0 {
		result.TokenTimeout = override.TokenTimeout
	}
	if override.RequestTimeout != 0 {
		result.RequestTimeout = override.RequestTimeout
	}
	if override.SecretKeyFile != "" {
		result.SecretKeyFile = override.SecretKeyFile
	}
	if override.Fanout.RequestsPerSecond != 0 {
		result.Fanout.RequestsPerSecond = override.Fanout.RequestsPerSecond
	}

	result.Rebuild = mergeRebuild(base.Rebuild, override.Rebuild)
	result.Collections = mergeCollections(base.Collections, override.Collections)

	if override.Redis != nil {
		if base.Redis == nil {
			result.Redis = override.Redis
		} else {
			redis := *base.Redis
			if override.Redis.Addr != "" {
				redis.Addr = override.Redis.Addr
			}
			if override.Redis.Password != "" {
				redis.Password = override.Redis.Password
			}
			if override.Redis.DB != 0 {
				redis.DB = override.Redis.DB
			}
			if override.Redis.Channel != "" {
				redis.Channel = override.Redis.Channel
			}
			result.Redis = &redis
		}
	}

	// Merge extensions
	if override.Extensions != nil {
		merged := make(map[string]interface{}, len(base.Extensions)+len(override.Extensions))
		for key, value := range base.Extensions {
			merged[key] = value
		}
		for key, value := range override.Extensions {
			// If both base and override have the same extension key, merge them
			if baseMap, ok := merged[key].(map[string]interface{}); ok {
				if overrideMap, ok := value.(map[string]interface{}); ok {
					mergedMap := make(map[string]interface{}, len(baseMap)+len(overrideMap))
					for k, v := range baseMap {
						mergedMap[k] = v
					}
					for k, v := range overrideMap {
						mergedMap[k] = v
					}
					merged[key] = mergedMap
					continue
				}
			}
			// Otherwise just replace
			merged[key] = value
		}
		result.Extensions = merged
	}

	return &result
}

func mergeRebuild(base, override RebuildConfig) RebuildConfig {
	result := base

	if len(override.Command) > 0 {
		result.Command = override.Command
	}
	if override.UnchangedExitCode != 0 {
		result.UnchangedExitCode = override.UnchangedExitCode
	}
	if override.Dir != "" {
		result.Dir = override.Dir
	}

	return result
}

// mergeCollections matches collections by name. Overrides of an existing
// collection replace only the fields they set; new names are appended.
func mergeCollections(base, override []CollectionConfig) []CollectionConfig {
	if len(override) == 0 {
		return base
	}

	result := make([]CollectionConfig, len(base))
	copy(result, base)

	index := make(map[string]int, len(result))
	for i, c := range result {
		index[c.Name] = i
	}

	for _, o := range override {
		i, ok := index[o.Name]
		if !ok {
			index[o.Name] = len(result)
			result = append(result, o)
			continue
		}

		c := &result[i]
		if o.Trigger != nil {
			c.Trigger = o.Trigger
		}
		if o.UpdateType != "" {
			c.UpdateType = o.UpdateType
		}
		if o.Dir != "" {
			c.Dir = o.Dir
		}
		if len(o.Watch) > 0 {
			c.Watch = o.Watch
		}
		if len(o.Include) > 0 {
			c.Include = o.Include
		}
		if o.Settle != 0 {
			c.Settle = o.Settle
		}
		if o.Rescan != 0 {
			c.Rescan = o.Rescan
		}
		if o.UpdateOnStartup {
			c.UpdateOnStartup = true
		}
	}

	return result
}
