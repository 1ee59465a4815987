// Package executor dispatches workflow tasks as worker pods on a Kubernetes
// cluster and reports their terminal state back to the scheduler.
package executor

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// Label keys carried on every worker pod. WorkerLabelKey marks a pod as
// belonging to this executor and is the watch selector; the other three
// round-trip the task identity through the cluster.
const (
	WorkerLabelKey        = "airflow-slave"
	DagIDLabelKey         = "dag_id"
	TaskIDLabelKey        = "task_id"
	ExecutionDateLabelKey = "execution_date"
)

const maxPodNameLen = 253

// TaskKey identifies one attempt of one task.
type TaskKey struct {
	DagID         string
	TaskID        string
	ExecutionDate time.Time
}

func (k TaskKey) String() string {
	return fmt.Sprintf("(%s, %s, %s)", k.DagID, k.TaskID, k.ExecutionDate.Format(time.RFC3339))
}

// ID returns a stable map-key form. time.Time fields make the struct itself
// unreliable as a map key. The date is rendered in UTC, so keys that are
// Equal share one ID.
func (k TaskKey) ID() string {
	return k.DagID + "/" + k.TaskID + "/" + k.ExecutionDate.UTC().Format(time.RFC3339Nano)
}

// Equal compares keys with instant-level time equality.
func (k TaskKey) Equal(other TaskKey) bool {
	return k.DagID == other.DagID &&
		k.TaskID == other.TaskID &&
		k.ExecutionDate.Equal(other.ExecutionDate)
}

// TaskCommand is the shell command a worker pod executes. Opaque here.
type TaskCommand = string

// stripUnsafeChars keeps lowercase alphanumerics only. Pod names must be
// DNS-1123 subdomains and there are placement rules for "-" and ".", so
// everything else is dropped.
func stripUnsafeChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MakePodName derives a unique DNS-1123 pod name from the dag and task ids.
// The sanitized prefix is lossy and only there for operators reading pod
// listings; the random suffix is what makes the name unique.
func MakePodName(dagID, taskID string) string {
	safeUUID := stripUnsafeChars(strings.ReplaceAll(uuid.New().String(), "-", ""))
	safeKey := stripUnsafeChars(dagID) + stripUnsafeChars(taskID)
	if safeKey == "" {
		// ids made of special characters only; the suffix alone is a
		// valid name
		return safeUUID
	}

	if limit := maxPodNameLen - len(safeUUID) - 1; len(safeKey) > limit {
		safeKey = safeKey[:limit]
	}
	return safeKey + "-" + safeUUID
}

// Label values may not contain ":". ISO-8601 datetimes never contain "_",
// so the substitution is reversible.
const labelColonSub = "_"

// EncodeExecutionDate renders an execution date as a label-safe string.
// The time is converted to UTC and loses the "Z" suffix, so the value reads
// as a plain ISO-8601 datetime and never carries a "+" offset (not a label
// character); decoding treats a missing zone as UTC.
func EncodeExecutionDate(t time.Time) string {
	iso := t.UTC().Format(time.RFC3339Nano)
	iso = strings.TrimSuffix(iso, "Z")
	return strings.ReplaceAll(iso, ":", labelColonSub)
}

// executionDateLayouts lists the accepted ISO-8601 shapes, most specific
// first. Naive datetimes are taken as UTC.
var executionDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// DecodeExecutionDate reverses EncodeExecutionDate.
func DecodeExecutionDate(s string) (time.Time, error) {
	restored := strings.ReplaceAll(s, labelColonSub, ":")
	for _, layout := range executionDateLayouts {
		if t, err := time.ParseInLocation(layout, restored, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse execution date %q", s)
}

// MakeLabels returns the label set carried on a worker pod for the key.
func MakeLabels(key TaskKey) map[string]string {
	return map[string]string{
		WorkerLabelKey:        "",
		DagIDLabelKey:         key.DagID,
		TaskIDLabelKey:        key.TaskID,
		ExecutionDateLabelKey: EncodeExecutionDate(key.ExecutionDate),
	}
}

// LabelsToKey decodes a pod label set back into the originating TaskKey.
// Events whose labels do not decode are dropped by the caller; a malformed
// pod must never bring the loop down.
func LabelsToKey(labels map[string]string) (TaskKey, bool) {
	dagID, ok := labels[DagIDLabelKey]
	if !ok {
		klog.Warningf("error while converting labels to key, missing %s, labels=%v", DagIDLabelKey, labels)
		return TaskKey{}, false
	}
	taskID, ok := labels[TaskIDLabelKey]
	if !ok {
		klog.Warningf("error while converting labels to key, missing %s, labels=%v", TaskIDLabelKey, labels)
		return TaskKey{}, false
	}
	rawDate, ok := labels[ExecutionDateLabelKey]
	if !ok {
		klog.Warningf("error while converting labels to key, missing %s, labels=%v", ExecutionDateLabelKey, labels)
		return TaskKey{}, false
	}
	executionDate, err := DecodeExecutionDate(rawDate)
	if err != nil {
		klog.Warningf("error while converting labels to key, labels=%v, err=%v", labels, err)
		return TaskKey{}, false
	}
	return TaskKey{DagID: dagID, TaskID: taskID, ExecutionDate: executionDate}, true
}
