/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1

import (
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
)

// ExitNodeSpec declares a Chisel exit node: a tunnel server endpoint that is
// reachable from outside the cluster and acts as the reverse proxy for bound
// LoadBalancer services.
type ExitNodeSpec struct {
	// Hostname or IP address of the chisel server.
	// +required
	Host string `json:"host"`
	// Real external hostname or IP the client should dial, when it differs
	// from Host. Falls back to Host when unset.
	// +optional
	ExternalHost *string `json:"external_host,omitempty"`
	// Control plane port of the chisel server.
	// +required
	Port uint16 `json:"port"`
	// Fingerprint of the server public key for host-key validation.
	// +optional
	Fingerprint *string `json:"fingerprint,omitempty"`
	// Name of the Secret holding the tunnel password under the "auth" key.
	// +optional
	Auth *string `json:"auth,omitempty"`
	// Override for the chisel client image. Defaults to jpillora/chisel:latest.
	// +optional
	ChiselImage *string `json:"chisel_image,omitempty"`
	// Whether this exit node should be the default route for the cluster.
	// +optional
	DefaultRoute bool `json:"default_route,omitempty"`
}

// ExitNodeStatus is populated once the node is realized: either synthesized
// for unmanaged nodes or returned by the cloud provisioner for managed ones.
type ExitNodeStatus struct {
	// Provider tag: the qualified provisioner reference for managed nodes,
	// or "unmanaged".
	Provider string `json:"provider"`
	// VM-side display name.
	Name string `json:"name"`
	// Public address of the node.
	Ip string `json:"ip"`
	// Opaque cloud VM identifier, absent for unmanaged nodes.
	// +optional
	Id *string `json:"id,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
type ExitNode struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec ExitNodeSpec `json:"spec"`
	// +optional
	Status *ExitNodeStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true
type ExitNodeList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ExitNode `json:"items"`
}

// AuthSecretName returns the name of the Secret carrying the tunnel password,
// generating the conventional "<name>-auth" when spec.auth is unset.
func (in *ExitNode) AuthSecretName() string {
	if in.Spec.Auth != nil && *in.Spec.Auth != "" {
		return *in.Spec.Auth
	}
	return fmt.Sprintf("%s-auth", in.Name)
}

// EffectiveHost is the address clients dial and the address published on bound
// Services: status.ip when provisioned, then spec.external_host, then spec.host.
func (in *ExitNode) EffectiveHost() string {
	if in.Status != nil && in.Status.Ip != "" {
		return in.Status.Ip
	}
	if in.Spec.ExternalHost != nil && *in.Spec.ExternalHost != "" {
		return *in.Spec.ExternalHost
	}
	return in.Spec.Host
}

// Managed reports whether a cloud provisioner owns this node's lifecycle.
func (in *ExitNode) Managed() bool {
	_, ok := in.Annotations[ExitNodeProvisionerAnnotation]
	return ok
}

// ProvisionerRef resolves the provisioner annotation to a namespaced name,
// defaulting the namespace to the node's own.
func (in *ExitNode) ProvisionerRef() (types.NamespacedName, bool) {
	value, ok := in.Annotations[ExitNodeProvisionerAnnotation]
	if !ok {
		return types.NamespacedName{}, false
	}
	return ParseProvisionerRef(in.Namespace, value), true
}

// ParseProvisionerRef parses a provisioner reference of the form
// "namespace/name" or bare "name", resolving the latter against defaultNamespace.
func ParseProvisionerRef(defaultNamespace, value string) types.NamespacedName {
	if namespace, name, found := strings.Cut(value, "/"); found {
		return types.NamespacedName{Namespace: namespace, Name: name}
	}
	return types.NamespacedName{Namespace: defaultNamespace, Name: value}
}
