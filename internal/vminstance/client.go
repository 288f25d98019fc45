// Package vminstance implements the execution-plane VMInstanceRegistry
// collaborator on top of the Kubernetes pod that hosts each user's
// execution-plane VM. It never creates or deletes that pod — only reflects
// the gateway's view of the WebSocket connection lifecycle onto it via
// annotations, so operators can see connection state with kubectl.
package vminstance

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

var (
	clientOnce sync.Once
	client     *kubernetes.Clientset
	clientErr  error

	configuredNamespace  string
	configuredKubeconfig string
)

// Configure sets the namespace and kubeconfig path used by GetClient and
// GetNamespace. Call once at startup before any registry operation.
func Configure(namespace, kubeconfig string) {
	configuredNamespace = namespace
	configuredKubeconfig = kubeconfig
}

// GetNamespace returns the namespace execution-plane pods live in.
// Priority: configured value > in-cluster namespace > "default".
func GetNamespace() string {
	if configuredNamespace != "" {
		return configuredNamespace
	}
	if data, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err == nil {
		return string(data)
	}
	return "default"
}

// GetClient returns a Kubernetes clientset, initializing it on first call.
// It tries in-cluster config first, then falls back to a kubeconfig file.
func GetClient() (*kubernetes.Clientset, error) {
	clientOnce.Do(func() {
		config, err := rest.InClusterConfig()
		if err != nil {
			config, err = buildConfigFromKubeconfig()
			if err != nil {
				clientErr = fmt.Errorf("vminstance: build kubernetes config: %w", err)
				return
			}
		}

		client, clientErr = kubernetes.NewForConfig(config)
		if clientErr != nil {
			clientErr = fmt.Errorf("vminstance: create kubernetes client: %w", clientErr)
		}
	})

	return client, clientErr
}

func buildConfigFromKubeconfig() (*rest.Config, error) {
	kubeconfigPath := configuredKubeconfig
	if kubeconfigPath == "" {
		kubeconfigPath = os.Getenv("KUBECONFIG")
	}
	if kubeconfigPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		kubeconfigPath = filepath.Join(homeDir, ".kube", "config")
	}

	return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
}

// ResetClient resets the client singleton. Used by tests.
func ResetClient() {
	clientOnce = sync.Once{}
	client = nil
	clientErr = nil
	configuredNamespace = ""
	configuredKubeconfig = ""
}
