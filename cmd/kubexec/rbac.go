package main

import (
	"github.com/spf13/cobra"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/klog/v2"
)

const (
	executorSAName          = "kubexec-executor-sa"
	executorRoleName        = "kubexec-executor-role"
	executorRoleBindingName = "kubexec-executor-role-binding"
)

// the executor needs exactly the pod verbs the control loop exercises
var executorPodRule = rbacv1.PolicyRule{
	Verbs:     []string{"create", "get", "list", "watch", "delete"},
	APIGroups: []string{""},
	Resources: []string{"pods"},
}

var setupRBACCmd = &cobra.Command{
	Use:   "setup-rbac",
	Short: "Apply the service account, role and binding the executor needs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		clientset, err := newClientset(cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		labels := map[string]string{"app.kubernetes.io/name": "kubexec"}

		if err := clientset.ApplyServiceAccount(ctx, executorSAName, labels); err != nil {
			return err
		}
		klog.Infof("apply service account success, serviceAccount=%s", executorSAName)

		if err := clientset.ApplyRole(ctx, executorRoleName, executorPodRule, labels); err != nil {
			return err
		}
		klog.Infof("apply role success, role=%s", executorRoleName)

		if err := clientset.ApplyRoleBinding(ctx, executorRoleBindingName, executorRoleName, executorSAName, labels); err != nil {
			return err
		}
		klog.Infof("apply role binding success, roleBinding=%s", executorRoleBindingName)

		return nil
	},
}
