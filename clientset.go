package kubexec

import (
	"fmt"
	"os"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Clientset wraps a Kubernetes client together with the namespace the
// executor operates in. It is injected into every component that talks to
// the cluster so tests can substitute a fake client.
type Clientset struct {
	clientset kubernetes.Interface
	namespace string
}

func NewKubeClient() (kubernetes.Interface, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		var configPath string
		if p := os.Getenv(clientcmd.RecommendedConfigPathEnvVar); len(p) > 0 {
			configPath = p
		} else {
			configPath = clientcmd.RecommendedHomeFile
		}
		config, err = clientcmd.BuildConfigFromFlags("", configPath)
	}

	if err != nil {
		err = fmt.Errorf("error building kubeconfig: %w", err)
		return nil, err
	}
	return kubernetes.NewForConfig(config)
}

// NewClientset builds a Clientset from in-cluster config, falling back to
// the local kubeconfig.
func NewClientset(namespace string) (*Clientset, error) {
	client, err := NewKubeClient()
	if err != nil {
		return nil, fmt.Errorf("error creating Kubernetes client: %w", err)
	}
	return NewClientsetWithInterface(client, namespace), nil
}

// NewClientsetWithInterface wraps an existing client. Tests pass the
// client-go fake here.
func NewClientsetWithInterface(client kubernetes.Interface, namespace string) *Clientset {
	if namespace == "" {
		// try to read the mounted service account namespace
		if b, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err != nil {
			namespace = "default"
		} else {
			namespace = string(b)
		}
	}
	return &Clientset{
		clientset: client,
		namespace: namespace,
	}
}

func (c *Clientset) GetNamespace() string {
	return c.namespace
}

func (c *Clientset) GetClientSet() kubernetes.Interface {
	return c.clientset
}
