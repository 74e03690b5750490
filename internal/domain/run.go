package domain

import (
	"time"

	corev1 "k8s.io/api/core/v1"
)

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

// RunMeta identifies a run. UID is assigned at creation and never reused.
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

// RunStatus is owned by the run and mutated as backend events are observed.
// It is terminal once the state is succeeded or error.
type RunStatus struct {
	State      RunState  `json:"state,omitempty" yaml:"state,omitempty"`
	StatusText string    `json:"status_text,omitempty" yaml:"status_text,omitempty"`
	PodName    string    `json:"pod_name,omitempty" yaml:"pod_name,omitempty"`
	Namespace  string    `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Run is one execution of a function. The spec is never mutated after
// submission; only the status changes.
type Run struct {
	Meta   RunMeta   `json:"metadata" yaml:"metadata"`
	Spec   RunSpec   `json:"spec" yaml:"spec"`
	Status RunStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// ClientVersion returns the optional client version pin from run labels.
func (r *Run) ClientVersion() string {
	if r.Meta.Labels == nil {
		return ""
	}
	return r.Meta.Labels[LabelClientVersion]
}
