package config

// Path returns the config file path: flagValue when set, then
// TRAEFIKDNS_CONFIG, then DefaultConfigPath.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := getEnv(EnvPrefix + "CONFIG"); v != "" {
		return v
	}
	return DefaultConfigPath
}

// Load reads the config file at path, applies defaults and environment
// overrides and validates the result. Every problem found is returned
// together in a *ValidationError.
func Load(path string) (*Config, error) {
	fileCfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, errs := fileCfg.ToConfig()
	errs = append(errs, applyEnvOverrides(cfg)...)
	errs = append(errs, validateConfig(cfg)...)

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}
