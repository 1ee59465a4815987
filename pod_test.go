package kubexec

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

var testCtx = context.Background()

func newFakeClientset(ns string) *Clientset {
	return NewClientsetWithInterface(fake.NewSimpleClientset(), ns)
}

func TestCreateDeletePod(t *testing.T) {
	namePrefix := "testpod-" + RandLowerStr(4)
	ns := "default"
	tmpl := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: ns,
			Labels: map[string]string{
				"airflow-slave": "",
			},
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{
				{
					Name:  "c",
					Image: "nginx:alpine",
				},
			},
		},
	}
	c := newFakeClientset(ns)

	counting := func() int {
		currPods, err := c.ListPod(testCtx, ns, nil)
		assert.NoError(t, err)
		return len(currPods.Items)
	}
	prePodCount := counting()

	pods := make([]*corev1.Pod, 0)
	for i := 0; i < 10; i++ {
		pod := tmpl.DeepCopy()
		pod.SetName(namePrefix + "-" + strconv.Itoa(i))
		pods = append(pods, pod)
	}

	// create
	for _, pod := range pods {
		_, err := c.CreatePod(testCtx, ns, pod)
		if err != nil {
			t.Fatal(err)
		}
	}
	assert.Equal(t, prePodCount+len(pods), counting())

	// delete
	for _, pod := range pods {
		err := c.DeletePod(testCtx, ns, pod.GetName())
		assert.NoError(t, err)
	}
	assert.Equal(t, prePodCount, counting())
}

func TestListPodWithLabels(t *testing.T) {
	ns := "default"
	c := newFakeClientset(ns)

	mk := func(name string, labels map[string]string) *corev1.Pod {
		return &corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: ns,
				Labels:    labels,
			},
			Spec: corev1.PodSpec{
				Containers: []corev1.Container{{Name: "c", Image: "nginx:alpine"}},
			},
		}
	}

	_, err := c.CreatePod(testCtx, ns, mk("worker-0", map[string]string{"dag_id": "dag1"}))
	assert.NoError(t, err)
	_, err = c.CreatePod(testCtx, ns, mk("worker-1", map[string]string{"dag_id": "dag2"}))
	assert.NoError(t, err)

	lst, err := c.ListPod(testCtx, ns, map[string]string{"dag_id": "dag1"})
	assert.NoError(t, err)
	assert.Len(t, lst.Items, 1)
	assert.Equal(t, "worker-0", lst.Items[0].GetName())
}

func TestLabelExistsSelector(t *testing.T) {
	sel, err := LabelExistsSelector("airflow-slave")
	assert.NoError(t, err)
	assert.Equal(t, "airflow-slave", sel.String())
}
