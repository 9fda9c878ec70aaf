// Package config handles configuration loading for havend.
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
//	identity:
//	  jwt_secret: "${HAVEND_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	tracking:
//	  interval: "30s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # API surface
//
// Location database:
//
//	database:
//	  path: "/var/lib/havend/havend.db"
//
// Preference storage:
//
//	redis:
//	  enabled: true
//	  addr: "localhost:6379"
//	  password: "${HAVEND_REDIS_PASSWORD}"
//	  db: 0
//
// Identity (exactly one mode):
//
//	identity:
//	  user_id: "user-1"                # static
//	  # or
//	  token_file: "/run/havend/token"  # JWT subject claim
//	  jwt_secret: "${HAVEND_JWT_SECRET}"
//
// Tracking:
//
//	tracking:
//	  interval: "10s"
//	  distance: 10
//	  disable_background: false
//	  notification_title: "Sharing location"
//	  notification_body: "Your location is being shared with your circles"
//
// Permissions (operator-granted, no prompt dialog exists):
//
//	permissions:
//	  foreground: true
//	  background: true
//
// Circle seed (replaced by later membership pushes):
//
//	circles:
//	  - "circle-id"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/havend/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
