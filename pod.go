package kubexec

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/selection"
	"k8s.io/apimachinery/pkg/watch"
)

func (c *Clientset) CreatePod(ctx context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error) {
	return c.clientset.CoreV1().Pods(namespace).Create(ctx, pod, metav1.CreateOptions{})
}

func (c *Clientset) DeletePod(ctx context.Context, namespace, podName string) error {
	policy := metav1.DeletePropagationForeground
	return c.clientset.CoreV1().Pods(namespace).Delete(ctx, podName, metav1.DeleteOptions{
		PropagationPolicy: &policy,
	})
}

func (c *Clientset) GetPod(ctx context.Context, namespace, podName string) (*corev1.Pod, error) {
	return c.clientset.CoreV1().Pods(namespace).Get(ctx, podName, metav1.GetOptions{})
}

// LabelExistsSelector builds a selector matching objects that carry the
// given label key, whatever its value.
func LabelExistsSelector(key string) (labels.Selector, error) {
	req, err := labels.NewRequirement(key, selection.Exists, nil)
	if err != nil {
		return nil, fmt.Errorf("create label selector: %w", err)
	}
	return labels.NewSelector().Add(*req), nil
}

// ListPod lists all pods in the specified namespace that match the specified labels.
// If no labels are specified, all pods in the namespace are returned.
func (c *Clientset) ListPod(ctx context.Context, namespace string, selectedLabels map[string]string) (*corev1.PodList, error) {
	selector := labels.NewSelector()

	if len(selectedLabels) > 0 {
		for key, value := range selectedLabels {
			req, err := labels.NewRequirement(key, selection.Equals, []string{value})
			if err != nil {
				return nil, fmt.Errorf("create label selector: %w", err)
			}
			selector = selector.Add(*req)
		}
	} else {
		selector = labels.Everything()
	}

	return c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector.String(),
	})
}

// WatchPod opens a watch on pods in the namespace restricted to the given
// label selector. The caller owns the returned watch and must Stop it.
func (c *Clientset) WatchPod(ctx context.Context, namespace string, selector labels.Selector) (watch.Interface, error) {
	return c.clientset.CoreV1().Pods(namespace).Watch(ctx, metav1.ListOptions{
		LabelSelector: selector.String(),
	})
}

type LogLine struct {
	Timestamp time.Time
	Line      string
}

// GetOrTailLogs returns the logs of the specified pod in the specified namespace.
//
// The function sends the log lines to the specified channel and closes the
// channel when it's done. If an error occurs, the function returns the error.
func (c *Clientset) GetOrTailLogs(ctx context.Context, namespace, podName string, logsCh chan<- LogLine, tail bool) error {
	defer close(logsCh)

	logOptions := &corev1.PodLogOptions{
		Timestamps: true,
		Follow:     tail, // log tail
	}

	req := c.clientset.CoreV1().Pods(namespace).GetLogs(podName, logOptions)

	logStream, err := req.Stream(ctx)
	if err != nil {
		return err
	}
	defer logStream.Close()

	reader := bufio.NewReader(logStream)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		lst := strings.SplitN(line, " ", 2)
		if len(lst) < 2 {
			continue
		}
		timestamp, _ := time.Parse(time.RFC3339Nano, lst[0])
		logsCh <- LogLine{
			Timestamp: timestamp,
			Line:      lst[1],
		}
	}
}
