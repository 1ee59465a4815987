package kubexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestApplyRBAC(t *testing.T) {
	ns := "default"
	c := newFakeClientset(ns)
	cs := c.GetClientSet()

	// seed the objects; the fake tracker patches onto existing state
	_, err := cs.CoreV1().ServiceAccounts(ns).Create(testCtx, &corev1.ServiceAccount{
		ObjectMeta: metav1.ObjectMeta{Name: "kubexec-sa", Namespace: ns},
	}, metav1.CreateOptions{})
	require.NoError(t, err)
	_, err = cs.RbacV1().Roles(ns).Create(testCtx, &rbacv1.Role{
		ObjectMeta: metav1.ObjectMeta{Name: "kubexec-role", Namespace: ns},
	}, metav1.CreateOptions{})
	require.NoError(t, err)
	_, err = cs.RbacV1().RoleBindings(ns).Create(testCtx, &rbacv1.RoleBinding{
		ObjectMeta: metav1.ObjectMeta{Name: "kubexec-role-binding", Namespace: ns},
	}, metav1.CreateOptions{})
	require.NoError(t, err)

	labels := map[string]string{"app": "kubexec"}
	rule := rbacv1.PolicyRule{
		Verbs:     []string{"create", "get", "list", "watch", "delete"},
		APIGroups: []string{""},
		Resources: []string{"pods"},
	}

	assert.NoError(t, c.ApplyServiceAccount(testCtx, "kubexec-sa", labels))
	assert.NoError(t, c.ApplyRole(testCtx, "kubexec-role", rule, labels))
	assert.NoError(t, c.ApplyRoleBinding(testCtx, "kubexec-role-binding", "kubexec-role", "kubexec-sa", labels))

	role, err := cs.RbacV1().Roles(ns).Get(testCtx, "kubexec-role", metav1.GetOptions{})
	require.NoError(t, err)
	require.Len(t, role.Rules, 1)
	assert.Equal(t, []string{"pods"}, role.Rules[0].Resources)
}
