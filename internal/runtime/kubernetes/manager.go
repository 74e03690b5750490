package kubernetes

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Manager submits and inspects run pods inside Kubernetes.
type Manager struct {
	client    kubernetes.Interface
	namespace string
	logger    *slog.Logger
}

// New creates a Kubernetes-backed pod manager. It prefers in-cluster
// configuration and falls back to KUBECONFIG when running locally.
func New(namespace string, log *slog.Logger) (*Manager, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := strings.TrimSpace(os.Getenv("KUBECONFIG"))
		if kubeconfig == "" {
			return nil, fmt.Errorf("create in-cluster config: %w", err)
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("create kubeconfig client: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return NewWithClient(clientset, namespace, log), nil
}

// NewWithClient wraps an existing clientset.
func NewWithClient(client kubernetes.Interface, namespace string, log *slog.Logger) *Manager {
	if namespace == "" {
		namespace = "default"
	}
	return &Manager{client: client, namespace: namespace, logger: log}
}

// CreatePod submits the pod and returns the server-assigned name and the
// namespace it landed in.
func (m *Manager) CreatePod(ctx context.Context, pod *corev1.Pod) (string, string, error) {
	if pod == nil {
		return "", "", fmt.Errorf("pod cannot be nil")
	}
	namespace := pod.Namespace
	if namespace == "" {
		namespace = m.namespace
	}
	created, err := m.client.CoreV1().Pods(namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return "", "", fmt.Errorf("create pod: %w", err)
	}
	m.logger.Info("pod created", "pod", created.Name, "namespace", namespace)
	return created.Name, namespace, nil
}

// PodPhase returns the current phase of a run pod.
func (m *Manager) PodPhase(ctx context.Context, name string) (corev1.PodPhase, error) {
	pod, err := m.client.CoreV1().Pods(m.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return "", fmt.Errorf("pod %s not found: %w", name, err)
		}
		return "", fmt.Errorf("get pod: %w", err)
	}
	return pod.Status.Phase, nil
}

// PodLogs fetches the full log of the pod's first container.
func (m *Manager) PodLogs(ctx context.Context, name string) ([]byte, error) {
	req := m.client.CoreV1().Pods(m.namespace).GetLogs(name, &corev1.PodLogOptions{})
	stream, err := req.Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("stream pod logs: %w", err)
	}
	defer stream.Close()
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read pod logs: %w", err)
	}
	return data, nil
}

// DeletePod removes a run pod. Missing pods are not an error.
func (m *Manager) DeletePod(ctx context.Context, name string) error {
	err := m.client.CoreV1().Pods(m.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !errors.IsNotFound(err) {
		return fmt.Errorf("delete pod: %w", err)
	}
	return nil
}

// ListRunPods lists pods carrying the given label selector.
func (m *Manager) ListRunPods(ctx context.Context, selector string) ([]corev1.Pod, error) {
	list, err := m.client.CoreV1().Pods(m.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}
	return list.Items, nil
}
