package kubexec

import (
	"context"

	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	applycorev1 "k8s.io/client-go/applyconfigurations/core/v1"
	applyrbacv1 "k8s.io/client-go/applyconfigurations/rbac/v1"
)

func (c *Clientset) ApplyServiceAccount(ctx context.Context, name string, labels map[string]string) error {
	namespace := c.GetNamespace()

	sa := applycorev1.ServiceAccount(name, namespace).
		WithLabels(labels)

	_, err := c.clientset.CoreV1().ServiceAccounts(namespace).Apply(ctx, sa, metav1.ApplyOptions{FieldManager: name})
	if err != nil {
		return err
	}
	return nil
}

func (c *Clientset) ApplyRole(ctx context.Context, name string, rule rbacv1.PolicyRule, labels map[string]string) error {
	namespace := c.GetNamespace()

	r1 := applyrbacv1.PolicyRule().
		WithVerbs(rule.Verbs...).
		WithAPIGroups(rule.APIGroups...).
		WithResources(rule.Resources...)

	role := applyrbacv1.Role(name, namespace).
		WithRules(r1).
		WithLabels(labels)

	_, err := c.clientset.RbacV1().Roles(namespace).Apply(ctx, role, metav1.ApplyOptions{FieldManager: name})
	if err != nil {
		return err
	}
	return nil
}

func (c *Clientset) ApplyRoleBinding(
	ctx context.Context, name, roleName, serviceAccountName string, labels map[string]string) error {

	namespace := c.GetNamespace()

	rb := applyrbacv1.RoleBinding(name, namespace)

	rb.WithSubjects(applyrbacv1.Subject().
		WithKind("ServiceAccount").
		WithName(serviceAccountName).
		WithNamespace(namespace)).
		WithLabels(labels)

	rb.WithRoleRef(applyrbacv1.RoleRef().
		WithKind("Role").
		WithName(roleName).
		WithAPIGroup("rbac.authorization.k8s.io"))

	_, err := c.clientset.RbacV1().RoleBindings(namespace).Apply(ctx, rb, metav1.ApplyOptions{FieldManager: name})
	if err != nil {
		return err
	}
	return nil
}
