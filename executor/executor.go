package executor

import (
	"context"
	"errors"
	"sync"

	"k8s.io/klog/v2"

	"github.com/skedops/kubexec"
	"github.com/skedops/kubexec/config"
	"github.com/skedops/kubexec/validate"
)

const defaultQueueSize = 1024

type queuedTask struct {
	key     TaskKey
	command TaskCommand
}

// TaskResult is one terminal outcome surfaced to the scheduler.
type TaskResult struct {
	Key     TaskKey
	State   TaskState
	PodName string
}

// ErrQueueFull is returned by ExecuteAsync when the task queue cannot take
// another task. The scheduler backs off and resubmits on its next tick.
var ErrQueueFull = errors.New("task queue is full")

// Executor bridges the scheduler's task queue and the cluster's pod API.
// The scheduler drives it by calling Sync on its polling interval; Sync
// never waits on a queue. Its only blocking work is the cluster create and
// delete calls it issues; the watch stream is read by the watcher goroutine.
type Executor struct {
	cfg       *config.Config
	clientset *kubexec.Clientset
	launcher  *PodLauncher
	store     TaskStore

	taskCh   chan queuedTask
	watchCh  chan PodEvent
	resultCh chan TaskResult

	watcher *podWatcher

	// runningTracker maps TaskKey.ID() -> pod name for in-flight tasks
	runningTracker *sync.Map

	// eventBuffer accumulates state transitions between scheduler reads
	eventBufferMu sync.Mutex
	eventBuffer   map[string]TaskResult

	stopped bool
}

// New builds an Executor. The config must already have passed validation;
// it is re-checked here so a hand-built config fails fast too.
func New(cfg *config.Config, clientset *kubexec.Clientset, store TaskStore) (*Executor, error) {
	if err := validate.Validate(cfg); err != nil {
		return nil, err
	}

	queueSize := defaultQueueSize
	if cfg.Parallelism > queueSize {
		queueSize = cfg.Parallelism
	}

	return &Executor{
		cfg:            cfg,
		clientset:      clientset,
		launcher:       NewPodLauncher(clientset),
		store:          store,
		taskCh:         make(chan queuedTask, queueSize),
		watchCh:        make(chan PodEvent, queueSize),
		resultCh:       make(chan TaskResult, queueSize),
		runningTracker: &sync.Map{},
		eventBuffer:    make(map[string]TaskResult),
	}, nil
}

// Start resets stranded QUEUED tasks and spawns the watcher.
func (e *Executor) Start(ctx context.Context) error {
	klog.Info("starting kubernetes executor, namespace=" + e.cfg.Namespace)

	if err := e.store.ResetQueuedTasks(ctx); err != nil {
		return err
	}

	e.watcher = newPodWatcher(e.clientset, e.cfg.Namespace, e.watchCh)
	return nil
}

// ExecuteAsync enqueues one task for launch. Non-blocking.
func (e *Executor) ExecuteAsync(key TaskKey, command TaskCommand) error {
	if e.stopped {
		return errors.New("executor is stopped")
	}
	klog.Infof("adding task %s with command %q", key, command)
	select {
	case e.taskCh <- queuedTask{key: key, command: command}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Sync is one non-blocking tick: respawn the watcher if it died, drain the
// watch queue into results, drain results into the event buffer and the
// store, and launch at most one queued task.
func (e *Executor) Sync(ctx context.Context) {
	e.healthCheckWatcher()

	for {
		select {
		case event := <-e.watchCh:
			e.processWatcherEvent(ctx, event)
			continue
		default:
		}
		break
	}

	for {
		select {
		case result := <-e.resultCh:
			e.changeState(ctx, result)
			continue
		default:
		}
		break
	}

	select {
	case task := <-e.taskCh:
		e.runNext(ctx, task)
	default:
	}
}

// healthCheckWatcher respawns the watcher goroutine after a stream error
// killed it. Re-watching the selector replays the current state of every
// pod still in flight, so nothing the cluster remembers is lost.
func (e *Executor) healthCheckWatcher() {
	if e.watcher != nil && e.watcher.Alive() {
		return
	}
	klog.Error("error while health checking kube watcher, watcher died for unknown reasons, respawning")
	e.watcher = newPodWatcher(e.clientset, e.cfg.Namespace, e.watchCh)
}

// processWatcherEvent decodes one pod event into a task result. Events
// whose labels do not decode are dropped after a warning; the pod itself
// is still deleted so undecodable pods cannot accumulate.
func (e *Executor) processWatcherEvent(ctx context.Context, event PodEvent) {
	klog.Infof("attempting to finish pod, pod=%s, state=%s, labels=%v", event.PodName, event.State, event.Labels)

	key, ok := LabelsToKey(event.Labels)
	if !ok {
		if e.cfg.DeleteWorkerPods {
			if err := e.launcher.DeletePod(ctx, e.cfg.Namespace, event.PodName); err != nil {
				klog.Errorf("failed to delete undecodable pod, pod=%s, err=%v", event.PodName, err)
			}
		}
		return
	}

	klog.Infof("finishing task %s", key)
	select {
	case e.resultCh <- TaskResult{Key: key, State: event.State, PodName: event.PodName}:
	default:
		// the result queue is sized like the watch queue; hitting this
		// means the scheduler stopped calling Sync
		klog.Errorf("result queue full, dropping result for %s", key)
	}
}

// changeState reports one result to the scheduler and reaps the pod.
func (e *Executor) changeState(ctx context.Context, result TaskResult) {
	klog.Infof("setting state of %s to %s", result.Key, result.State)

	if result.State.IsTerminal() {
		if e.cfg.DeleteWorkerPods {
			if err := e.launcher.DeletePod(ctx, e.cfg.Namespace, result.PodName); err != nil {
				klog.Errorf("failed to delete pod, pod=%s, err=%v", result.PodName, err)
			}
		}
		e.runningTracker.Delete(result.Key.ID())
	}

	e.eventBufferMu.Lock()
	e.eventBuffer[result.Key.ID()] = result
	e.eventBufferMu.Unlock()

	if err := e.store.ReportResult(ctx, result.Key, result.State); err != nil {
		klog.Errorf("failed to report result for %s, err=%v", result.Key, err)
	}
}

// runNext builds and launches the pod for one queued task.
func (e *Executor) runNext(ctx context.Context, task queuedTask) {
	klog.Infof("running task %s, command=%q, image=%s", task.key, task.command, e.cfg.ContainerImage)

	podName := MakePodName(task.key.DagID, task.key.TaskID)
	builder := WorkerPodBuilder(e.cfg, e.cfg.Namespace, podName, task.key, task.command)
	if err := validate.Validate(builder); err != nil {
		klog.Errorf("invalid pod spec for %s, err=%v", task.key, err)
		return
	}

	e.runningTracker.Store(task.key.ID(), podName)

	// the watcher monitors the pod from here on, so no waiting
	e.launcher.RunPodAsync(ctx, builder.Pod())
}

// Events returns the buffered state transitions and clears the buffer.
func (e *Executor) Events() map[TaskKey]TaskState {
	e.eventBufferMu.Lock()
	defer e.eventBufferMu.Unlock()

	out := make(map[TaskKey]TaskState, len(e.eventBuffer))
	for _, result := range e.eventBuffer {
		out[result.Key] = result.State
	}
	e.eventBuffer = make(map[string]TaskResult)
	return out
}

// Running reports whether the key has a pod in flight.
func (e *Executor) Running(key TaskKey) bool {
	_, ok := e.runningTracker.Load(key.ID())
	return ok
}

// End stops intake, drains the task queue through Sync ticks, then stops
// the watcher. In-flight pods are left to run; the watcher of the next
// executor incarnation reaps them.
func (e *Executor) End(ctx context.Context) {
	klog.Info("ending kubernetes executor")
	e.stopped = true
	for len(e.taskCh) > 0 {
		e.Sync(ctx)
	}
	e.Sync(ctx)
	if e.watcher != nil {
		e.watcher.Stop()
	}
}

// Terminate aborts without draining.
func (e *Executor) Terminate() {
	klog.Info("terminating kubernetes executor")
	e.stopped = true
	if e.watcher != nil {
		e.watcher.Stop()
	}
}
