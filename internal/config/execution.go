package config

// ExecutionConfig configures the tactile execution backend.
type ExecutionConfig struct {
	// Sandbox selects the executor: "docker" runs inside the image, "none" on the host
	Sandbox string `yaml:"sandbox" json:"sandbox" validate:"oneof=none docker"`

	// Image is the docker image commands run in and rebuilds produce
	Image string `yaml:"image" json:"image,omitempty" validate:"required_if=Sandbox docker"`

	// Shell interprets each command body via "<shell> -c <body>"
	Shell string `yaml:"shell" json:"shell" validate:"required"`

	// Binds are docker volume binds in host:container form
	Binds []string `yaml:"binds" json:"binds,omitempty"`

	// NetworkMode for docker: none, host, bridge
	NetworkMode string `yaml:"network_mode" json:"network_mode,omitempty" validate:"omitempty,oneof=none host bridge"`

	// Dockerfile and BuildContext feed "nexos rebuild"
	Dockerfile   string `yaml:"dockerfile" json:"dockerfile,omitempty"`
	BuildContext string `yaml:"build_context" json:"build_context,omitempty"`

	// Timeout per command; "0s" waits for the backend indefinitely
	Timeout string `yaml:"timeout" json:"timeout,omitempty"`

	// Working directory
	WorkingDirectory string `yaml:"working_directory" json:"working_directory,omitempty"`

	// Environment variables to pass
	AllowedEnvVars []string `yaml:"allowed_env_vars" json:"allowed_env_vars,omitempty"`

	// MaxOutputBytes caps captured output per stream
	MaxOutputBytes int64 `yaml:"max_output_bytes" json:"max_output_bytes,omitempty" validate:"gte=0"`
}
