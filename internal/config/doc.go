// Package config handles loading and validating gateway configuration.
//
// # Configuration Format
//
// Configuration is stored in YAML:
//
//	gateway:
//	  allow_list: ["api:default", "web:127.0.0.1"]
//	  media_dir: "~/.nanobot/media"
//
//	openaiapi:
//	  enabled: true
//	  addr: "127.0.0.1:8090"
//	  api_key: "${NANOBOT_API_KEY}"
//	  request_timeout: "120s"
//
//	webui:
//	  enabled: true
//	  addr: "127.0.0.1:8091"
//	  username: "admin"
//	  password: "${NANOBOT_WEBUI_PASSWORD}"
//
//	logging:
//	  level: "info"
//	  format: "text"
//
//	metrics:
//	  enabled: false
//	  addr: "127.0.0.1:9090"
//	  path: "/metrics"
//
// # Environment Variables
//
// Values support ${VAR_NAME} expansion, which is applied to the raw YAML
// before parsing. Unset variables expand to empty strings.
//
// # Durations
//
// Duration fields are written as Go duration strings ("90s", "2m") and
// parsed into time.Duration values during Load.
//
// # Validation
//
// Load validates the result and fails fast on misconfiguration. Notably,
// enabling the OpenAI-compatible API without any API key is a startup
// error, not a per-request one: the API must never run unauthenticated.
package config
