package executor

import (
	"context"
	"sync"
	"sync/atomic"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/klog/v2"

	"github.com/skedops/kubexec"
)

// PodEvent is one terminal pod observation handed to the executor loop.
type PodEvent struct {
	PodName string
	State   TaskState
	Labels  map[string]string
}

// podWatcher is the long-lived subscriber to the cluster's pod event
// stream, restricted to pods carrying the executor's worker label. It runs
// as a supervised goroutine: a cleanly ended stream is reopened in place,
// a stream error kills the watcher and the executor respawns it on the
// next sync.
type podWatcher struct {
	clientset *kubexec.Clientset
	namespace string
	eventCh   chan<- PodEvent

	alive   atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopOnce sync.Once

	// last observed phase per pod, so a re-delivered terminal phase does
	// not produce a second event
	lastPhase map[string]corev1.PodPhase
}

func newPodWatcher(clientset *kubexec.Clientset, namespace string, eventCh chan<- PodEvent) *podWatcher {
	w := &podWatcher{
		clientset: clientset,
		namespace: namespace,
		eventCh:   eventCh,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		lastPhase: make(map[string]corev1.PodPhase),
	}
	w.alive.Store(true)
	go w.run()
	return w
}

func (w *podWatcher) Alive() bool {
	return w.alive.Load()
}

func (w *podWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *podWatcher) run() {
	defer close(w.doneCh)
	defer w.alive.Store(false)

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		err := w.watchOnce()
		if err != nil {
			klog.Errorf("unknown error in pod watcher, failing, err=%v", err)
			return
		}
		select {
		case <-w.stopCh:
			return
		default:
			klog.Warning("watch stream ended gracefully, reopening")
		}
	}
}

// watchOnce opens one watch stream and consumes it until it ends. A nil
// return means the server closed the stream cleanly or the watcher was
// stopped.
func (w *podWatcher) watchOnce() error {
	selector, err := kubexec.LabelExistsSelector(WorkerLabelKey)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := w.clientset.WatchPod(ctx, w.namespace, selector)
	if err != nil {
		return err
	}
	defer stream.Stop()

	klog.Info("pod watch started, namespace=" + w.namespace)
	for {
		select {
		case <-w.stopCh:
			return nil
		case event, ok := <-stream.ResultChan():
			if !ok {
				return nil
			}
			if event.Type == watch.Error {
				return apierrors.FromObject(event.Object)
			}
			w.handleEvent(event)
		}
	}
}

func (w *podWatcher) handleEvent(event watch.Event) {
	pod, ok := event.Object.(*corev1.Pod)
	if !ok {
		klog.Warningf("watch delivered unexpected object type %T", event.Object)
		return
	}

	name := pod.GetName()
	klog.Infof("event: pod %s had an event of type %s", name, event.Type)

	if event.Type == watch.Deleted {
		delete(w.lastPhase, name)
		return
	}

	phase := pod.Status.Phase
	if w.lastPhase[name] == phase {
		return
	}
	w.lastPhase[name] = phase

	w.processStatus(name, phase, pod.GetLabels())
}

func (w *podWatcher) processStatus(podName string, phase corev1.PodPhase, labels map[string]string) {
	switch phase {
	case corev1.PodPending:
		klog.Infof("event: %s Pending", podName)
	case corev1.PodRunning:
		klog.Infof("event: %s is Running", podName)
	case corev1.PodSucceeded:
		klog.Infof("event: %s Succeeded", podName)
		w.emit(PodEvent{PodName: podName, State: StateSuccess, Labels: labels})
	case corev1.PodFailed:
		klog.Infof("event: %s Failed", podName)
		w.emit(PodEvent{PodName: podName, State: StateFailed, Labels: labels})
	default:
		klog.Infof("event: invalid state %s on pod %s with labels %v", phase, podName, labels)
	}
}

func (w *podWatcher) emit(event PodEvent) {
	select {
	case w.eventCh <- event:
	case <-w.stopCh:
	}
}
