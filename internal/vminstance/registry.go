package vminstance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
)

const (
	// UserLabelKey labels the pod hosting a given user's execution-plane VM.
	UserLabelKey = "semibot.io/user-id"

	annotationStatus    = "semibot.io/connection-status"
	annotationHeartbeat = "semibot.io/last-heartbeat"
	annotationTicket    = "semibot.io/ticket"

	statusReady        = "ready"
	statusDisconnected = "disconnected"
)

// PodsClient is the subset of the Kubernetes pods API the registry needs,
// narrowed for test mocking.
type PodsClient interface {
	List(ctx context.Context, opts metav1.ListOptions) (*corev1.PodList, error)
	Patch(ctx context.Context, name string, pt types.PatchType, data []byte, opts metav1.PatchOptions) (*corev1.Pod, error)
}

type clientsetPods struct {
	clientset *kubernetes.Clientset
	namespace string
}

func (c *clientsetPods) List(ctx context.Context, opts metav1.ListOptions) (*corev1.PodList, error) {
	return c.clientset.CoreV1().Pods(c.namespace).List(ctx, opts)
}

func (c *clientsetPods) Patch(ctx context.Context, name string, pt types.PatchType, data []byte, opts metav1.PatchOptions) (*corev1.Pod, error) {
	return c.clientset.CoreV1().Pods(c.namespace).Patch(ctx, name, pt, data, opts)
}

// Registry implements collaborators.VMInstanceRegistry over pod annotations.
type Registry struct {
	pods PodsClient
}

// NewRegistry constructs a Registry using the process-wide Kubernetes client
// and configured namespace.
func NewRegistry() (*Registry, error) {
	clientset, err := GetClient()
	if err != nil {
		return nil, err
	}
	return &Registry{pods: &clientsetPods{clientset: clientset, namespace: GetNamespace()}}, nil
}

// NewRegistryWithClient constructs a Registry over an injected PodsClient,
// for testing.
func NewRegistryWithClient(pods PodsClient) *Registry {
	return &Registry{pods: pods}
}

func (r *Registry) findPod(ctx context.Context, userID string) (*corev1.Pod, error) {
	list, err := r.pods.List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", UserLabelKey, userID),
	})
	if err != nil {
		return nil, fmt.Errorf("vminstance: list pods for user %s: %w", userID, err)
	}
	if len(list.Items) == 0 {
		return nil, collaborators.ErrNotFound
	}
	return &list.Items[0], nil
}

func (r *Registry) patchAnnotations(ctx context.Context, pod *corev1.Pod, annotations map[string]string) error {
	patch := map[string]any{
		"metadata": map[string]any{
			"annotations": annotations,
		},
	}
	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("vminstance: marshal patch: %w", err)
	}
	if _, err := r.pods.Patch(ctx, pod.Name, types.MergePatchType, data, metav1.PatchOptions{}); err != nil {
		return fmt.Errorf("vminstance: patch pod %s: %w", pod.Name, err)
	}
	return nil
}

func (r *Registry) MarkReady(ctx context.Context, userID string) error {
	pod, err := r.findPod(ctx, userID)
	if err != nil {
		return err
	}
	return r.patchAnnotations(ctx, pod, map[string]string{
		annotationStatus:    statusReady,
		annotationHeartbeat: time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Registry) MarkDisconnected(ctx context.Context, userID string) error {
	pod, err := r.findPod(ctx, userID)
	if err != nil {
		if err == collaborators.ErrNotFound {
			return nil
		}
		return err
	}
	return r.patchAnnotations(ctx, pod, map[string]string{
		annotationStatus: statusDisconnected,
	})
}

func (r *Registry) TouchHeartbeat(ctx context.Context, userID string) error {
	pod, err := r.findPod(ctx, userID)
	if err != nil {
		return err
	}
	return r.patchAnnotations(ctx, pod, map[string]string{
		annotationHeartbeat: time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Registry) Exists(ctx context.Context, userID string) (bool, error) {
	_, err := r.findPod(ctx, userID)
	if err == collaborators.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Registry) ConsumeTicket(ctx context.Context, userID, ticket string) error {
	pod, err := r.findPod(ctx, userID)
	if err != nil {
		return err
	}
	stored, ok := pod.Annotations[annotationTicket]
	if !ok || stored == "" || stored != ticket {
		return collaborators.ErrInvalidTicket
	}
	return r.patchAnnotations(ctx, pod, map[string]string{
		annotationTicket: "",
	})
}
