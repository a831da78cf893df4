// Package config handles loading and validating relay configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with RELAY_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// The application config is separate from the bindings file: this file
// says where things live and how to reach them, the bindings file says
// what each trigger does.
//
// Security Considerations:
//   - Sensitive values (passwords, tokens, the JWT secret) should be set via
//     environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Bindings.Path)
package config
