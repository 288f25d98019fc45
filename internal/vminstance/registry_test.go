package vminstance

import (
	"context"
	"encoding/json"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
)

type fakePodsClient struct {
	pods []corev1.Pod
}

func (f *fakePodsClient) List(_ context.Context, opts metav1.ListOptions) (*corev1.PodList, error) {
	var matched []corev1.Pod
	for _, p := range f.pods {
		if opts.LabelSelector == "" {
			matched = append(matched, p)
			continue
		}
		for k, v := range p.Labels {
			if opts.LabelSelector == k+"="+v {
				matched = append(matched, p)
			}
		}
	}
	return &corev1.PodList{Items: matched}, nil
}

func (f *fakePodsClient) Patch(_ context.Context, name string, _ types.PatchType, data []byte, _ metav1.PatchOptions) (*corev1.Pod, error) {
	for i := range f.pods {
		if f.pods[i].Name != name {
			continue
		}
		var patch struct {
			Metadata struct {
				Annotations map[string]string `json:"annotations"`
			} `json:"metadata"`
		}
		if err := json.Unmarshal(data, &patch); err != nil {
			return nil, err
		}
		if f.pods[i].Annotations == nil {
			f.pods[i].Annotations = map[string]string{}
		}
		for k, v := range patch.Metadata.Annotations {
			f.pods[i].Annotations[k] = v
		}
		return &f.pods[i], nil
	}
	return nil, collaborators.ErrNotFound
}

func podFor(userID string) corev1.Pod {
	return corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:   "vm-" + userID,
			Labels: map[string]string{UserLabelKey: userID},
		},
	}
}

func TestMarkReadySetsAnnotations(t *testing.T) {
	fake := &fakePodsClient{pods: []corev1.Pod{podFor("user-1")}}
	reg := NewRegistryWithClient(fake)

	if err := reg.MarkReady(context.Background(), "user-1"); err != nil {
		t.Fatalf("MarkReady() error = %v", err)
	}
	if fake.pods[0].Annotations[annotationStatus] != statusReady {
		t.Errorf("status annotation = %q, want %q", fake.pods[0].Annotations[annotationStatus], statusReady)
	}
}

func TestMarkDisconnectedNoopWhenPodMissing(t *testing.T) {
	reg := NewRegistryWithClient(&fakePodsClient{})
	if err := reg.MarkDisconnected(context.Background(), "missing"); err != nil {
		t.Errorf("MarkDisconnected() for missing pod error = %v, want nil", err)
	}
}

func TestExistsReflectsPodPresence(t *testing.T) {
	fake := &fakePodsClient{pods: []corev1.Pod{podFor("user-1")}}
	reg := NewRegistryWithClient(fake)

	exists, err := reg.Exists(context.Background(), "user-1")
	if err != nil || !exists {
		t.Fatalf("Exists(user-1) = (%v, %v), want (true, nil)", exists, err)
	}
	exists, err = reg.Exists(context.Background(), "user-2")
	if err != nil || exists {
		t.Fatalf("Exists(user-2) = (%v, %v), want (false, nil)", exists, err)
	}
}

func TestConsumeTicketSucceedsThenClears(t *testing.T) {
	pod := podFor("user-1")
	pod.Annotations = map[string]string{annotationTicket: "tix-1"}
	fake := &fakePodsClient{pods: []corev1.Pod{pod}}
	reg := NewRegistryWithClient(fake)

	if err := reg.ConsumeTicket(context.Background(), "user-1", "tix-1"); err != nil {
		t.Fatalf("ConsumeTicket() error = %v", err)
	}
	if fake.pods[0].Annotations[annotationTicket] != "" {
		t.Errorf("ticket annotation = %q, want cleared", fake.pods[0].Annotations[annotationTicket])
	}

	if err := reg.ConsumeTicket(context.Background(), "user-1", "tix-1"); err != collaborators.ErrInvalidTicket {
		t.Errorf("ConsumeTicket() reuse error = %v, want ErrInvalidTicket", err)
	}
}

func TestConsumeTicketRejectsMismatch(t *testing.T) {
	pod := podFor("user-1")
	pod.Annotations = map[string]string{annotationTicket: "tix-1"}
	fake := &fakePodsClient{pods: []corev1.Pod{pod}}
	reg := NewRegistryWithClient(fake)

	if err := reg.ConsumeTicket(context.Background(), "user-1", "wrong"); err != collaborators.ErrInvalidTicket {
		t.Errorf("ConsumeTicket() error = %v, want ErrInvalidTicket", err)
	}
}
