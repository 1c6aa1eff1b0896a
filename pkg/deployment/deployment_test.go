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

package deployment_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	v1 "github.com/fyralabs/chisel-operator/pkg/apis/v1"
	"github.com/fyralabs/chisel-operator/pkg/deployment"
)

var _ = Describe("Deployment", func() {
	var svc *corev1.Service
	var node *v1.ExitNode

	BeforeEach(func() {
		svc = &corev1.Service{
			ObjectMeta: metav1.ObjectMeta{Name: "svc1", Namespace: "default"},
			Spec: corev1.ServiceSpec{
				Type:      corev1.ServiceTypeLoadBalancer,
				ClusterIP: "10.1.2.3",
				Ports:     []corev1.ServicePort{{Port: 443, Protocol: corev1.ProtocolTCP}},
			},
		}
		node = &v1.ExitNode{
			ObjectMeta: metav1.ObjectMeta{Name: "en1", Namespace: "default", UID: types.UID("f0f5b8a2-7f11-4bcd-9f9e-2a7f3e6c1d42")},
			Spec:       v1.ExitNodeSpec{Host: "203.0.113.7", Port: 9090},
			Status:     &v1.ExitNodeStatus{Provider: v1.ProviderUnmanaged, Name: "en1", Ip: "203.0.113.7"},
		}
	})

	Describe("RemoteArg", func() {
		It("should join host and port", func() {
			Expect(deployment.RemoteArg(node)).To(Equal("203.0.113.7:9090"))
		})
		It("should bracket IPv6 hosts", func() {
			node.Spec.Host = "2001:db8::1"
			node.Status = nil
			Expect(deployment.RemoteArg(node)).To(Equal("[2001:db8::1]:9090"))
		})
		It("should leave DNS names alone", func() {
			node.Spec.Host = "tunnel.example.com"
			node.Status = nil
			Expect(deployment.RemoteArg(node)).To(Equal("tunnel.example.com:9090"))
		})
	})

	Describe("TunnelArgs", func() {
		It("should produce one remote per port in input order", func() {
			svc.Spec.Ports = []corev1.ServicePort{
				{Port: 443, Protocol: corev1.ProtocolTCP},
				{Port: 53, Protocol: corev1.ProtocolUDP},
				{Port: 8080},
			}
			Expect(deployment.TunnelArgs(svc)).To(Equal([]string{
				"R:443:10.1.2.3:443/tcp",
				"R:53:10.1.2.3:53/udp",
				"R:8080:10.1.2.3:8080",
			}))
		})
		It("should switch to proxy-protocol remotes when annotated", func() {
			svc.Annotations = map[string]string{v1.ProxyProtocolAnnotation: "true"}
			Expect(deployment.TunnelArgs(svc)).To(Equal([]string{"RP:443:10.1.2.3:443/tcp"}))
		})
		It("should fail without ports", func() {
			svc.Spec.Ports = nil
			_, err := deployment.TunnelArgs(svc)
			Expect(err).To(MatchError(deployment.ErrNoPortsSet))
		})
		It("should fail without a cluster IP", func() {
			svc.Spec.ClusterIP = ""
			_, err := deployment.TunnelArgs(svc)
			Expect(err).To(MatchError(deployment.ErrNoClusterIP))
		})
	})

	Describe("New", func() {
		It("should build the client workload for a bound service", func() {
			workload, err := deployment.New(svc, node)
			Expect(err).ToNot(HaveOccurred())
			Expect(workload.Name).To(Equal("chisel-svc1"))
			Expect(workload.Namespace).To(Equal("default"))
			Expect(workload.Spec.Selector.MatchLabels).To(HaveKeyWithValue("tunnel", "svc1"))
			Expect(workload.Spec.Template.Labels).To(HaveKeyWithValue("tunnel", "svc1"))

			container := workload.Spec.Template.Spec.Containers[0]
			Expect(container.Image).To(Equal("jpillora/chisel:latest"))
			Expect(container.Args).To(Equal([]string{"client", "-v", "203.0.113.7:9090", "R:443:10.1.2.3:443/tcp"}))
			Expect(container.Env).To(BeEmpty())

			owner := workload.OwnerReferences[0]
			Expect(owner.Kind).To(Equal("ExitNode"))
			Expect(owner.Name).To(Equal("en1"))
			Expect(owner.UID).To(Equal(node.UID))
		})
		It("should pass the fingerprint flag through", func() {
			node.Spec.Fingerprint = lo.ToPtr("tEm0421WYzWSQBLB8rLPjsNdzBGnCGfF9GPpzKQ0Ca8=")
			workload, err := deployment.New(svc, node)
			Expect(err).ToNot(HaveOccurred())
			Expect(workload.Spec.Template.Spec.Containers[0].Args).To(Equal([]string{
				"client", "-v",
				"--fingerprint", "tEm0421WYzWSQBLB8rLPjsNdzBGnCGfF9GPpzKQ0Ca8=",
				"203.0.113.7:9090", "R:443:10.1.2.3:443/tcp",
			}))
		})
		It("should inject AUTH from the node's auth secret", func() {
			node.Spec.Auth = lo.ToPtr("en1-auth")
			workload, err := deployment.New(svc, node)
			Expect(err).ToNot(HaveOccurred())
			env := workload.Spec.Template.Spec.Containers[0].Env[0]
			Expect(env.Name).To(Equal("AUTH"))
			Expect(env.ValueFrom.SecretKeyRef.Name).To(Equal("en1-auth"))
			Expect(env.ValueFrom.SecretKeyRef.Key).To(Equal("auth"))
			Expect(*env.ValueFrom.SecretKeyRef.Optional).To(BeFalse())
		})
		It("should honor the image override", func() {
			node.Spec.ChiselImage = lo.ToPtr("jpillora/chisel:1.9.1")
			workload, err := deployment.New(svc, node)
			Expect(err).ToNot(HaveOccurred())
			Expect(workload.Spec.Template.Spec.Containers[0].Image).To(Equal("jpillora/chisel:1.9.1"))
		})
	})
})
