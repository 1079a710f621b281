// Package config handles loading and validation of Homeworks Core configuration.
//
// Configuration is read from a YAML file with environment variable overrides
// for deployment-specific and sensitive values (credentials, hosts, ports).
//
// # Loading Order
//
//  1. Hardcoded defaults
//  2. YAML file values
//  3. Environment variables (HOMEWORKS_* prefix)
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Processor.Host)
package config
