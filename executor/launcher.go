package executor

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/klog/v2"

	"github.com/skedops/kubexec"
)

// PodLauncher fires worker pods at the cluster. Launch is fire-and-forget:
// a failed create is logged and otherwise dropped, because the missing pod
// never produces a terminal event and the scheduler reissues the task on
// its own timeline.
type PodLauncher struct {
	clientset *kubexec.Clientset
}

func NewPodLauncher(clientset *kubexec.Clientset) *PodLauncher {
	return &PodLauncher{clientset: clientset}
}

// RunPodAsync creates the pod and returns without waiting for it to run.
func (l *PodLauncher) RunPodAsync(ctx context.Context, pod *corev1.Pod) {
	if _, err := l.clientset.CreatePod(ctx, pod.GetNamespace(), pod); err != nil {
		klog.Errorf("failed to create pod, pod=%s, err=%v", pod.GetName(), err)
	}
}

// DeletePod deletes a worker pod. A pod that is already gone counts as
// deleted; every other error goes back to the caller.
func (l *PodLauncher) DeletePod(ctx context.Context, namespace, podName string) error {
	if err := l.clientset.DeletePod(ctx, namespace, podName); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}
