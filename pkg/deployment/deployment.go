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

// Package deployment builds the in-cluster chisel client workload that
// bridges a LoadBalancer service to its exit node.
package deployment

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/samber/lo"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	v1 "github.com/fyralabs/chisel-operator/pkg/apis/v1"
)

// DefaultChiselImage runs the client when the exit node does not override it.
const DefaultChiselImage = "jpillora/chisel:latest"

var (
	// ErrNoPortsSet flags a LoadBalancer service without ports.
	ErrNoPortsSet = errors.New("there are no ports set on this LoadBalancer")
	// ErrNoClusterIP flags a service without a cluster IP to forward to.
	ErrNoClusterIP = errors.New("service has no cluster IP")
)

// convertServicePort renders a service port as "<port>" with an optional
// "/tcp" or "/udp" suffix.
func convertServicePort(port corev1.ServicePort) string {
	out := strconv.Itoa(int(port.Port))
	switch port.Protocol {
	case corev1.ProtocolTCP:
		out += "/tcp"
	case corev1.ProtocolUDP:
		out += "/udp"
	}
	return out
}

// RemoteArg renders the chisel server endpoint the client dials. IPv6 hosts
// come out bracketed.
func RemoteArg(node *v1.ExitNode) string {
	return net.JoinHostPort(node.EffectiveHost(), strconv.Itoa(int(node.Spec.Port)))
}

// TunnelArgs renders one reverse-remote argument per service port, in input
// order: "R:<port>:<clusterIP>:<port>[/tcp|/udp]", or "RP:" when the service
// requests proxy-protocol forwarding.
func TunnelArgs(svc *corev1.Service) ([]string, error) {
	if svc.Spec.ClusterIP == "" || svc.Spec.ClusterIP == corev1.ClusterIPNone {
		return nil, ErrNoClusterIP
	}
	if len(svc.Spec.Ports) == 0 {
		return nil, ErrNoPortsSet
	}
	prefix := "R"
	if svc.Annotations[v1.ProxyProtocolAnnotation] == "true" {
		prefix = "RP"
	}
	return lo.Map(svc.Spec.Ports, func(port corev1.ServicePort, _ int) string {
		return fmt.Sprintf("%s:%d:%s:%s", prefix, port.Port, svc.Spec.ClusterIP, convertServicePort(port))
	}), nil
}

// chiselFlags renders client flags derived from the exit node spec.
func chiselFlags(node *v1.ExitNode) []string {
	flags := []string{"-v"}
	if node.Spec.Fingerprint != nil && *node.Spec.Fingerprint != "" {
		flags = append(flags, "--fingerprint", *node.Spec.Fingerprint)
	}
	return flags
}

// PodTemplate builds the chisel client pod for a service/exit-node pair. The
// AUTH variable is only injected when the node names an auth Secret.
func PodTemplate(source *corev1.Service, node *v1.ExitNode) (corev1.PodTemplateSpec, error) {
	args := []string{"client"}
	args = append(args, chiselFlags(node)...)
	args = append(args, RemoteArg(node))
	tunnelArgs, err := TunnelArgs(source)
	if err != nil {
		return corev1.PodTemplateSpec{}, err
	}
	args = append(args, tunnelArgs...)

	var env []corev1.EnvVar
	if node.Spec.Auth != nil && *node.Spec.Auth != "" {
		env = append(env, corev1.EnvVar{
			Name: "AUTH",
			ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: *node.Spec.Auth},
					Key:                  v1.AuthKey,
					Optional:             lo.ToPtr(false),
				},
			},
		})
	}

	return corev1.PodTemplateSpec{
		ObjectMeta: metav1.ObjectMeta{
			Labels: map[string]string{"tunnel": source.Name},
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{
				Name:  "chisel",
				Image: lo.FromPtrOr(node.Spec.ChiselImage, DefaultChiselImage),
				Args:  args,
				Env:   env,
			}},
		},
	}, nil
}

// New builds the client Deployment "chisel-<serviceName>" in the exit node's
// namespace, owned by the exit node. Services may bind nodes in other
// namespaces, and owner references cannot cross namespaces, so the node owns
// the workload and the service finalizer deletes it explicitly.
func New(source *corev1.Service, node *v1.ExitNode) (*appsv1.Deployment, error) {
	template, err := PodTemplate(source, node)
	if err != nil {
		return nil, err
	}
	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{
			APIVersion: appsv1.SchemeGroupVersion.String(),
			Kind:       "Deployment",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      fmt.Sprintf("chisel-%s", source.Name),
			Namespace: node.Namespace,
			OwnerReferences: []metav1.OwnerReference{{
				APIVersion:         v1.SchemeGroupVersion.String(),
				Kind:               "ExitNode",
				Name:               node.Name,
				UID:                node.UID,
				Controller:         lo.ToPtr(true),
				BlockOwnerDeletion: lo.ToPtr(true),
			}},
		},
		Spec: appsv1.DeploymentSpec{
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{"tunnel": source.Name},
			},
			Template: template,
		},
	}, nil
}
