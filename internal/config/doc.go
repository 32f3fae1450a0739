// Package config handles configuration loading for chatd.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${CHATD_JWT_SECRET}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	chat:
//	  server_time_interval: "20s"
//	  dedupe_ttl: "5m"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/chatd/chat.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${CHATD_JWT_SECRET}"
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "chatd"
//	  auth_key: "${TS_AUTHKEY}"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	  file: ""        # rotating JSON log file; empty disables
//
// Metrics:
//
//	metrics:
//	  enabled: false
//	  file: "./logs/chatd_metrics.log"
package config
