package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"

	"github.com/skedops/kubexec/config"
)

func pvcConfig() *config.Config {
	cfg, _ := config.FromSections(map[string]map[string]string{
		"core": {
			"dags_folder": "/opt/airflow/dags",
			"executor":    "KubernetesExecutor",
			"sql_alchemy_conn": "postgresql://airflow@db/airflow",
		},
		"kubernetes": {
			"container_image":   "airflow-worker:latest",
			"dags_volume_claim": "dags-claim",
			"dags_volume_subpath": "repo",
		},
	})
	return cfg
}

func gitConfig() *config.Config {
	cfg, _ := config.FromSections(map[string]map[string]string{
		"core": {
			"dags_folder": "/opt/airflow/dags",
			"executor":    "KubernetesExecutor",
		},
		"kubernetes": {
			"container_image": "airflow-worker:latest",
			"git_repo":        "https://example.com/dags.git",
			"git_branch":      "main",
			"git_subpath":     "/dags",
			"git_user":        "bot",
			"git_password":    "hunter2",
		},
	})
	return cfg
}

func testKey() TaskKey {
	return TaskKey{
		DagID:         "dag1",
		TaskID:        "task1",
		ExecutionDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func envValue(t *testing.T, env []corev1.EnvVar, name string) string {
	t.Helper()
	for _, e := range env {
		if e.Name == name {
			return e.Value
		}
	}
	t.Fatalf("env %s not found", name)
	return ""
}

func TestWorkerPodPVCMode(t *testing.T) {
	cfg := pvcConfig()
	require.NotNil(t, cfg)

	b := WorkerPodBuilder(cfg, "default", "dag1task1-abc", testKey(), "echo hi")
	require.NoError(t, b.Validate())
	pod := b.Pod()

	assert.Equal(t, "dag1task1-abc", pod.Name)
	assert.Equal(t, "default", pod.Namespace)
	assert.Equal(t, corev1.RestartPolicyNever, pod.Spec.RestartPolicy)
	assert.Empty(t, pod.Spec.InitContainers)

	require.Len(t, pod.Spec.Containers, 1)
	c := pod.Spec.Containers[0]
	assert.Equal(t, "airflow-worker:latest", c.Image)
	assert.Equal(t, []string{"bash", "-cx", "--"}, c.Command)
	assert.Equal(t, []string{"echo hi"}, c.Args)

	// labels carry the executor marker and the task identity
	assert.Contains(t, pod.Labels, WorkerLabelKey)
	assert.Equal(t, "dag1", pod.Labels[DagIDLabelKey])
	assert.Equal(t, "task1", pod.Labels[TaskIDLabelKey])
	assert.Equal(t, "2024-01-01T00_00_00", pod.Labels[ExecutionDateLabelKey])

	// pvc volume, read-only mount with subPath
	require.Len(t, pod.Spec.Volumes, 1)
	require.NotNil(t, pod.Spec.Volumes[0].PersistentVolumeClaim)
	assert.Equal(t, "dags-claim", pod.Spec.Volumes[0].PersistentVolumeClaim.ClaimName)
	require.Len(t, c.VolumeMounts, 1)
	assert.True(t, c.VolumeMounts[0].ReadOnly)
	assert.Equal(t, "/opt/airflow/dags", c.VolumeMounts[0].MountPath)
	assert.Equal(t, "repo", c.VolumeMounts[0].SubPath)

	// scheduler config is materialized, executor overridden
	assert.Equal(t, "LocalExecutor", envValue(t, c.Env, "AIRFLOW__CORE__EXECUTOR"))
	assert.Equal(t, "postgresql://airflow@db/airflow", envValue(t, c.Env, "AIRFLOW__CORE__SQL_ALCHEMY_CONN"))
	assert.Equal(t, "/opt/airflow/dags", envValue(t, c.Env, "AIRFLOW__CORE__DAGS_FOLDER"))
}

func TestWorkerPodGitSyncMode(t *testing.T) {
	cfg := gitConfig()
	require.NotNil(t, cfg)

	b := WorkerPodBuilder(cfg, "workflows", "dag1task1-def", testKey(), "echo hi")
	require.NoError(t, b.Validate())
	pod := b.Pod()

	// emptyDir volume populated by the init container
	require.Len(t, pod.Spec.Volumes, 1)
	assert.NotNil(t, pod.Spec.Volumes[0].EmptyDir)

	require.Len(t, pod.Spec.InitContainers, 1)
	init := pod.Spec.InitContainers[0]
	assert.Equal(t, gitSyncImage, init.Image)
	require.NotNil(t, init.SecurityContext.RunAsUser)
	assert.Equal(t, int64(0), *init.SecurityContext.RunAsUser)

	assert.Equal(t, "https://example.com/dags.git", envValue(t, init.Env, "GIT_SYNC_REPO"))
	assert.Equal(t, "main", envValue(t, init.Env, "GIT_SYNC_BRANCH"))
	assert.Equal(t, "/opt/airflow/dags", envValue(t, init.Env, "GIT_SYNC_ROOT"))
	assert.Equal(t, "true", envValue(t, init.Env, "GIT_SYNC_ONE_TIME"))
	assert.Equal(t, "bot", envValue(t, init.Env, "GIT_SYNC_USERNAME"))
	assert.Equal(t, "hunter2", envValue(t, init.Env, "GIT_SYNC_PASSWORD"))

	// init mount is read-write, worker mount stays read-only
	require.Len(t, init.VolumeMounts, 1)
	assert.False(t, init.VolumeMounts[0].ReadOnly)
	worker := pod.Spec.Containers[0]
	require.Len(t, worker.VolumeMounts, 1)
	assert.True(t, worker.VolumeMounts[0].ReadOnly)

	// dags_folder is rewritten under the git subpath
	assert.Equal(t, "/opt/airflow/dags/dags", envValue(t, worker.Env, "AIRFLOW__CORE__DAGS_FOLDER"))
}

func TestWorkerPodEnvDeterministic(t *testing.T) {
	cfg := pvcConfig()
	a := WorkerPodBuilder(cfg, "default", "p", testKey(), "true").Pod()
	b := WorkerPodBuilder(cfg, "default", "p", testKey(), "true").Pod()
	assert.Equal(t, a.Spec.Containers[0].Env, b.Spec.Containers[0].Env)
}

func TestWorkerPodValidate(t *testing.T) {
	cfg := pvcConfig()
	b := WorkerPodBuilder(cfg, "default", "", testKey(), "true")
	assert.Error(t, b.Validate())

	b = WorkerPodBuilder(cfg, "default", "p", TaskKey{}, "true")
	assert.Error(t, b.Validate())
}
