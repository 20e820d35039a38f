// Package config provides configuration loading for LumiGrid Core.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by LUMIGRID_* environment variables. The loaded
// Config is validated before use; validation gathers every problem into a
// single error rather than stopping at the first.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
//
// Secrets (MQTT password, InfluxDB token) should be supplied via environment
// variables rather than committed to the YAML file.
package config
