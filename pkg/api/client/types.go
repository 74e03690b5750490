package client

import (
	corev1 "k8s.io/api/core/v1"
)

// BuildState tracks the image readiness of a function.
type BuildState string

const (
	StateUnbuilt BuildState = "unbuilt"
	StatePending BuildState = "pending"
	StateRunning BuildState = "running"
	StateReady   BuildState = "ready"
	StateError   BuildState = "error"
)

// Terminal reports whether no further build transitions are possible short
// of a new deploy.
func (s BuildState) Terminal() bool {
	return s == StateReady || s == StateError
}

// RunState tracks a single run of a function.
type RunState string

const (
	RunStatePending   RunState = "pending"
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateError     RunState = "error"
)

// Terminal reports whether the run reached a final state.
func (s RunState) Terminal() bool {
	return s == RunStateSucceeded || s == RunStateError
}

// Meta identifies a function within a project.
type Meta struct {
	Name    string            `json:"name" yaml:"name"`
	Project string            `json:"project" yaml:"project"`
	Labels  map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// BuildSpec describes how the function image is produced.
type BuildSpec struct {
	BaseImage       string   `json:"base_image,omitempty" yaml:"base_image,omitempty"`
	Image           string   `json:"image,omitempty" yaml:"image,omitempty"`
	Commands        []string `json:"commands,omitempty" yaml:"commands,omitempty"`
	Requirements    []string `json:"requirements,omitempty" yaml:"requirements,omitempty"`
	Extra           string   `json:"extra,omitempty" yaml:"extra,omitempty"`
	Source          string   `json:"source,omitempty" yaml:"source,omitempty"`
	LoadSourceOnRun bool     `json:"load_source_on_run,omitempty" yaml:"load_source_on_run,omitempty"`
	Secret          string   `json:"secret,omitempty" yaml:"secret,omitempty"`
	WithSDK         *bool    `json:"with_sdk,omitempty" yaml:"with_sdk,omitempty"`
	AutoBuild       bool     `json:"auto_build,omitempty" yaml:"auto_build,omitempty"`
}

// FunctionSpec is the deployable description of a compute function.
type FunctionSpec struct {
	Image           string                      `json:"image,omitempty" yaml:"image,omitempty"`
	Build           BuildSpec                   `json:"build,omitempty" yaml:"build,omitempty"`
	Workdir         string                      `json:"workdir,omitempty" yaml:"workdir,omitempty"`
	CloneTargetDir  string                      `json:"clone_target_dir,omitempty" yaml:"clone_target_dir,omitempty"`
	Env             []corev1.EnvVar             `json:"env,omitempty" yaml:"env,omitempty"`
	VolumeMounts    []corev1.VolumeMount        `json:"volume_mounts,omitempty" yaml:"volume_mounts,omitempty"`
	Volumes         []corev1.Volume             `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	Resources       corev1.ResourceRequirements `json:"resources,omitempty" yaml:"resources,omitempty"`
	ImagePullPolicy string                      `json:"image_pull_policy,omitempty" yaml:"image_pull_policy,omitempty"`
	ImagePullSecret string                      `json:"image_pull_secret,omitempty" yaml:"image_pull_secret,omitempty"`
	ServiceAccount  string                      `json:"service_account,omitempty" yaml:"service_account,omitempty"`
	DefaultHandler  string                      `json:"default_handler,omitempty" yaml:"default_handler,omitempty"`
}

// FunctionStatus is mutated by the service as build outcomes are observed.
type FunctionStatus struct {
	State    BuildState `json:"state,omitempty" yaml:"state,omitempty"`
	BuildPod string     `json:"build_pod,omitempty" yaml:"build_pod,omitempty"`
}

// Function is a user-defined compute function tracked by fnforge.
type Function struct {
	Meta   Meta           `json:"metadata" yaml:"metadata"`
	Spec   FunctionSpec   `json:"spec" yaml:"spec"`
	Status FunctionStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// Key returns the project-qualified function name.
func (f *Function) Key() string {
	return f.Meta.Project + "/" + f.Meta.Name
}

// RunMeta identifies a run.
type RunMeta struct {
	Name    string            `json:"name" yaml:"name"`
	Project string            `json:"project" yaml:"project"`
	UID     string            `json:"uid" yaml:"uid"`
	Labels  map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// RunSpec holds submission-time overrides for the target function.
type RunSpec struct {
	Function   string          `json:"function" yaml:"function"`
	Handler    string          `json:"handler,omitempty" yaml:"handler,omitempty"`
	OutputPath string          `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	Command    string          `json:"command,omitempty" yaml:"command,omitempty"`
	Args       []string        `json:"args,omitempty" yaml:"args,omitempty"`
	Env        []corev1.EnvVar `json:"env,omitempty" yaml:"env,omitempty"`
}

// RunStatus reflects the observed execution state.
type RunStatus struct {
	State      RunState `json:"state,omitempty" yaml:"state,omitempty"`
	StatusText string   `json:"status_text,omitempty" yaml:"status_text,omitempty"`
	PodName    string   `json:"pod_name,omitempty" yaml:"pod_name,omitempty"`
	Namespace  string   `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// Run is one execution of a function.
type Run struct {
	Meta   RunMeta   `json:"metadata" yaml:"metadata"`
	Spec   RunSpec   `json:"spec" yaml:"spec"`
	Status RunStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// BuildOptions forwards build-time choices to the service. Field names
// match the service wire format.
type BuildOptions struct {
	WithSDK      bool
	SDKVersion   string
	SkipDeployed bool
	BuilderEnv   map[string]string
}

// BuildResult is the service's response to a build submission.
type BuildResult struct {
	Ready          bool
	State          BuildState
	Image          string
	BaseImage      string
	CloneTargetDir string
	TargetImage    string
	BuildPod       string
}

// BuildStatus is a point-in-time view of a build, with the log bytes from
// the requested offset.
type BuildStatus struct {
	State    BuildState `json:"state,omitempty"`
	Image    string     `json:"image,omitempty"`
	BuildPod string     `json:"build_pod,omitempty"`
	Log      string     `json:"log,omitempty"`
}

// DeployOptions tune a coordinated deploy. Unset pointer fields fall back
// to the service's configured defaults.
type DeployOptions struct {
	Watch         bool              `json:"watch,omitempty"`
	WithSDK       *bool             `json:"with_sdk,omitempty"`
	SDKVersion    string            `json:"sdk_version,omitempty"`
	SkipDeployed  *bool             `json:"skip_deployed,omitempty"`
	InPipeline    *bool             `json:"in_pipeline,omitempty"`
	ShowOnFailure *bool             `json:"show_on_failure,omitempty"`
	BuilderEnv    map[string]string `json:"builder_env,omitempty"`
}

// DeployResult reports the outcome of a coordinated deploy.
type DeployResult struct {
	Ready    bool     `json:"ready"`
	Function Function `json:"function"`
}

// RunResponse is the accepted run and its pod identity.
type RunResponse struct {
	Run       Run    `json:"run"`
	Pod       string `json:"pod"`
	Namespace string `json:"namespace"`
}
