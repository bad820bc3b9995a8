// Package config provides configuration parsing for reactor.
//
// The configuration is stored in reactor.json. This package handles loading,
// saving, and validating it. Missing fields take their defaults.
//
// # Configuration File Structure
//
//	{
//	  "runtime": {
//	    "maxEffectRuns": 100000,
//	    "debug": false
//	  },
//	  "server": {
//	    "addr": "localhost:3000",
//	    "tickInterval": "1s",
//	    "writeTimeout": "10s",
//	    "items": 8
//	  },
//	  "metrics": {
//	    "enabled": true,
//	    "namespace": "reactor",
//	    "path": "/metrics"
//	  },
//	  "tracing": {
//	    "enabled": false,
//	    "exporter": "otlp",
//	    "endpoint": "localhost:4317",
//	    "insecure": true
//	  },
//	  "snapshot": {
//	    "driver": "s3",
//	    "bucket": "my-snapshots",
//	    "prefix": "demo/",
//	    "region": "eu-west-1"
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.LoadOrDefault(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
