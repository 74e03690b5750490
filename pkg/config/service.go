package config

import "time"

// ServiceConfig holds runtime configuration for the fnforge service.
type ServiceConfig struct {
	Environment string
	Addr        string
	DatabaseURL string

	// Image build settings.
	DockerHost string
	Workdir    string
	Registry   string
	SDKImage   string

	// Pod execution settings.
	Namespace string

	// Deploy behavior defaults. WithSDK is tri-state: nil means infer from
	// the base image namespace.
	AutoBuild     bool
	WithSDK       *bool
	SkipDeployed  bool
	InPipeline    bool
	ShowOnFailure bool
	PollInterval  time.Duration

	BuildTimeout time.Duration
	GitTimeout   time.Duration

	// FunctionsDir, when set, is scanned at startup for function spec YAML
	// files to preload into the store.
	FunctionsDir string
}

// Load constructs a ServiceConfig from environment variables.
func Load() ServiceConfig {
	return ServiceConfig{
		Environment:   GetString("APP_ENV", "development"),
		Addr:          GetString("FNFORGE_ADDR", ":8080"),
		DatabaseURL:   GetString("DATABASE_URL", ""),
		DockerHost:    GetString("DOCKER_HOST", "unix:///var/run/docker.sock"),
		Workdir:       GetString("FNFORGE_WORKDIR", "/tmp/fnforge"),
		Registry:      GetString("FNFORGE_REGISTRY", "fnforge"),
		SDKImage:      GetString("FNFORGE_SDK_IMAGE", "fnforge/base"),
		Namespace:     GetString("FNFORGE_NAMESPACE", "fnforge"),
		AutoBuild:     GetBool("FNFORGE_AUTO_BUILD", false),
		WithSDK:       GetBoolPtr("FNFORGE_WITH_SDK"),
		SkipDeployed:  GetBool("FNFORGE_SKIP_DEPLOYED", false),
		InPipeline:    GetBool("FNFORGE_IN_PIPELINE", false),
		ShowOnFailure: GetBool("FNFORGE_SHOW_LOGS_ON_FAILURE", false),
		PollInterval:  GetSeconds("FNFORGE_POLL_INTERVAL_SECONDS", 2*time.Second),
		BuildTimeout:  GetSeconds("BUILD_TIMEOUT_SECONDS", 600*time.Second),
		GitTimeout:    GetSeconds("GIT_TIMEOUT_SECONDS", 60*time.Second),
		FunctionsDir:  GetString("FNFORGE_FUNCTIONS_DIR", ""),
	}
}
