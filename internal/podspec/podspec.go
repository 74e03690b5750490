// Package podspec turns a function spec plus run overrides into the pod
// submitted to the cluster. It is a pure transformation: no I/O, no error
// paths (a malformed image reference is the backend's concern).
package podspec

import (
	"fmt"
	"path"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/fnforge/fnforge/internal/domain"
)

const runContainerName = "base"

// ResolveWorkdir applies the working directory policy. A nil result means
// resolution is deferred: the source is loaded in the pod at run time, so
// the workdir can only be known after the clone.
func ResolveWorkdir(spec *domain.FunctionSpec) *string {
	if spec.Build.Source != "" && spec.Build.LoadSourceOnRun {
		return nil
	}

	workdir := spec.Workdir
	if workdir != "" && strings.HasPrefix(workdir, "/") {
		return &workdir
	}

	if spec.CloneTargetDir != "" {
		joined := path.Join(spec.CloneTargetDir, strings.TrimPrefix(workdir, "./"))
		return &joined
	}

	return &workdir
}

// Build assembles the pod for one run of the function. Extra (injected)
// environment entries are placed before the function-declared ones; the two
// lists are concatenated as-is and precedence on key collision is left to
// the backend, so callers must avoid colliding keys.
func Build(image string, fn *domain.Function, run *domain.Run, extraEnv []corev1.EnvVar, command string, args []string, workdir *string) *corev1.Pod {
	spec := &fn.Spec

	env := make([]corev1.EnvVar, 0, len(extraEnv)+len(spec.Env))
	env = append(env, extraEnv...)
	env = append(env, spec.Env...)

	container := corev1.Container{
		Name:         runContainerName,
		Image:        image,
		Env:          env,
		Args:         args,
		VolumeMounts: spec.VolumeMounts,
		Resources:    spec.Resources,
	}
	if command != "" {
		container.Command = []string{command}
	}
	if workdir != nil {
		container.WorkingDir = *workdir
	}
	if spec.ImagePullPolicy != "" {
		container.ImagePullPolicy = corev1.PullPolicy(spec.ImagePullPolicy)
	}

	podSpec := corev1.PodSpec{
		Containers:         []corev1.Container{container},
		Volumes:            spec.Volumes,
		RestartPolicy:      corev1.RestartPolicyNever,
		ServiceAccountName: spec.ServiceAccount,
	}
	if spec.ImagePullSecret != "" {
		podSpec.ImagePullSecrets = []corev1.LocalObjectReference{{Name: spec.ImagePullSecret}}
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: fmt.Sprintf("%s-", fn.Meta.Name),
			Labels:       podLabels(fn, run),
		},
		Spec: podSpec,
	}
}

func podLabels(fn *domain.Function, run *domain.Run) map[string]string {
	labels := map[string]string{
		domain.LabelProject:  fn.Meta.Project,
		domain.LabelFunction: fn.Meta.Name,
	}
	if run != nil {
		for k, v := range run.Meta.Labels {
			labels[k] = v
		}
		if run.Meta.UID != "" {
			labels[domain.LabelRunUID] = run.Meta.UID
		}
	}
	return labels
}
