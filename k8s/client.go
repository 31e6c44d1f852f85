/*
 * ChatCLI - Command Line Interface for LLM interaction
 * Copyright (c) 2024 Edilson Freitas
 * License: MIT
 */
package k8s

import (
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"
)

// buildKubeConfig prefers in-cluster credentials, falling back to the given kubeconfig path
// or the user's default ~/.kube/config.
func buildKubeConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath == "" {
		cfg, err := rest.InClusterConfig()
		if err == nil {
			return cfg, nil
		}
		if home := homedir.HomeDir(); home != "" {
			kubeconfigPath = filepath.Join(home, ".kube", "config")
		}
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
}

// NewClientset builds the core client-go clientset used for pod, deployment, and node reads.
func NewClientset(kubeconfigPath string) (kubernetes.Interface, error) {
	restConfig, err := buildKubeConfig(kubeconfigPath)
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(restConfig)
}

// NewMetricsClient builds the optional metrics.k8s.io client used to enrich pod context with
// live resource usage. It does not contact the cluster: an error means the client could not be
// built from the kubeconfig, and a missing metrics-server API only shows up later as failed
// usage queries.
func NewMetricsClient(kubeconfigPath string) (metricsv.Interface, error) {
	restConfig, err := buildKubeConfig(kubeconfigPath)
	if err != nil {
		return nil, err
	}
	return metricsv.NewForConfig(restConfig)
}
