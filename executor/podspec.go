package executor

import (
	"errors"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/skedops/kubexec/config"
)

const (
	workerContainerName = "base"

	dagsVolumeName = "airflow-dags"

	gitSyncInitContainerName = "git-sync-clone"
	gitSyncImage             = "gcr.io/google-containers/git-sync-amd64:v2.0.5"

	// the in-pod executor must run the task itself, not spawn more pods
	podExecutorOverride = "LocalExecutor"

	envPrefix = "AIRFLOW"
)

var gitSyncRunAsUser int64 = 0

// workerPodBuilder renders one task invocation into a concrete pod spec:
// image and command from config, task identity as labels, the scheduler's
// configuration as environment, and the DAG volume in either PVC or
// git-sync mode.
type workerPodBuilder struct {
	pod *corev1.Pod

	cfg       *config.Config
	namespace string
	name      string
	key       TaskKey
	command   TaskCommand
}

// WorkerPodBuilder creates a new workerPodBuilder instance.
func WorkerPodBuilder(cfg *config.Config, namespace, name string, key TaskKey, command TaskCommand) *workerPodBuilder {
	b := &workerPodBuilder{
		cfg:       cfg,
		namespace: namespace,
		name:      name,
		key:       key,
		command:   command,
	}
	b.initPod()
	return b
}

// initPod initializes the pod if it hasn't been initialized yet.
func (b *workerPodBuilder) initPod() *workerPodBuilder {
	if b.pod != nil {
		return b
	}

	volumes, mounts := b.volumesAndMounts()

	b.pod = &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      b.name,
			Namespace: b.namespace,
			Labels:    MakeLabels(b.key),
		},
		Spec: corev1.PodSpec{
			RestartPolicy:  corev1.RestartPolicyNever,
			InitContainers: b.initContainers(mounts),
			Volumes:        volumes,
			Containers: []corev1.Container{
				{
					Name:         workerContainerName,
					Image:        b.cfg.ContainerImage,
					Command:      []string{"bash", "-cx", "--"},
					Args:         []string{b.command},
					Env:          b.environment(),
					VolumeMounts: mounts,
				},
			},
		},
	}
	return b
}

// environment materializes the scheduler's whole configuration as
// AIRFLOW__<SECTION>__<KEY> variables so the worker sees the same config,
// with the executor forced to the in-process one.
func (b *workerPodBuilder) environment() []corev1.EnvVar {
	overrides := map[string]map[string]string{
		config.CoreSection: {"executor": podExecutorOverride},
	}
	if b.cfg.GitSubpath != "" {
		overrides[config.CoreSection]["dags_folder"] =
			b.cfg.DagsFolder + "/" + strings.TrimLeft(b.cfg.GitSubpath, "/")
	}

	env := make([]corev1.EnvVar, 0, len(b.cfg.Sections)*4)
	for section, kv := range b.cfg.Sections {
		for key, value := range kv {
			if v, ok := overrides[section][key]; ok {
				value = v
			}
			env = append(env, corev1.EnvVar{
				Name:  envPrefix + "__" + strings.ToUpper(section) + "__" + strings.ToUpper(key),
				Value: value,
			})
		}
	}
	for section, kv := range overrides {
		for key, value := range kv {
			if _, ok := b.cfg.Sections[section][key]; ok {
				continue
			}
			env = append(env, corev1.EnvVar{
				Name:  envPrefix + "__" + strings.ToUpper(section) + "__" + strings.ToUpper(key),
				Value: value,
			})
		}
	}

	// map iteration order is random; keep specs deterministic
	sort.Slice(env, func(i, j int) bool { return env[i].Name < env[j].Name })
	return env
}

// volumesAndMounts returns the DAG volume and its worker-side read-only
// mount. PVC mode mounts the claim; git-sync mode mounts an emptyDir that
// the init container populates.
func (b *workerPodBuilder) volumesAndMounts() ([]corev1.Volume, []corev1.VolumeMount) {
	mounts := []corev1.VolumeMount{
		{
			Name:      dagsVolumeName,
			MountPath: b.cfg.DagsFolder,
			ReadOnly:  true,
		},
	}

	if b.cfg.DagsVolumeClaim != "" {
		volumes := []corev1.Volume{
			{
				Name: dagsVolumeName,
				VolumeSource: corev1.VolumeSource{
					PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
						ClaimName: b.cfg.DagsVolumeClaim,
					},
				},
			},
		}
		if b.cfg.DagsVolumeSubpath != "" {
			mounts[0].SubPath = b.cfg.DagsVolumeSubpath
		}
		return volumes, mounts
	}

	volumes := []corev1.Volume{
		{
			Name: dagsVolumeName,
			VolumeSource: corev1.VolumeSource{
				EmptyDir: &corev1.EmptyDirVolumeSource{},
			},
		},
	}
	return volumes, mounts
}

// initContainers returns the git-sync init container in git mode, nothing
// in PVC mode. The init container needs the DAG mount read-write.
func (b *workerPodBuilder) initContainers(workerMounts []corev1.VolumeMount) []corev1.Container {
	if b.cfg.DagsVolumeClaim != "" {
		return nil
	}

	env := []corev1.EnvVar{
		{Name: "GIT_SYNC_REPO", Value: b.cfg.GitRepo},
		{Name: "GIT_SYNC_BRANCH", Value: b.cfg.GitBranch},
		{Name: "GIT_SYNC_ROOT", Value: b.cfg.DagsFolder},
		{Name: "GIT_SYNC_DEST", Value: ""},
		{Name: "GIT_SYNC_ONE_TIME", Value: "true"},
	}
	if b.cfg.GitUser != "" {
		env = append(env, corev1.EnvVar{Name: "GIT_SYNC_USERNAME", Value: b.cfg.GitUser})
	}
	if b.cfg.GitPassword != "" {
		env = append(env, corev1.EnvVar{Name: "GIT_SYNC_PASSWORD", Value: b.cfg.GitPassword})
	}

	mounts := make([]corev1.VolumeMount, len(workerMounts))
	copy(mounts, workerMounts)
	mounts[0].ReadOnly = false

	return []corev1.Container{
		{
			Name:  gitSyncInitContainerName,
			Image: gitSyncImage,
			SecurityContext: &corev1.SecurityContext{
				RunAsUser: &gitSyncRunAsUser,
			},
			Env:          env,
			VolumeMounts: mounts,
		},
	}
}

// Pod returns the built pod spec.
func (b *workerPodBuilder) Pod() *corev1.Pod {
	return b.pod
}

// Validate checks the validity of the pod builder.
func (b *workerPodBuilder) Validate() error {
	if b.pod == nil {
		return errors.New("pod is not initialized")
	}
	if b.name == "" || b.name != b.pod.Name {
		return errors.New("pod name is not valid")
	}
	if b.namespace == "" || b.namespace != b.pod.Namespace {
		return errors.New("namespace is not valid")
	}
	if b.cfg.ContainerImage == "" {
		return errors.New("container image is empty")
	}
	if b.key.DagID == "" || b.key.TaskID == "" {
		return errors.New("task key is incomplete")
	}
	return nil
}
