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

package v1_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	v1 "github.com/fyralabs/chisel-operator/pkg/apis/v1"
)

var _ = Describe("ExitNode", func() {
	var node *v1.ExitNode

	BeforeEach(func() {
		node = &v1.ExitNode{
			ObjectMeta: metav1.ObjectMeta{Name: "en1", Namespace: "default"},
			Spec:       v1.ExitNodeSpec{Host: "203.0.113.7", Port: 9090},
		}
	})

	Describe("EffectiveHost", func() {
		It("should fall back to the declared host", func() {
			Expect(node.EffectiveHost()).To(Equal("203.0.113.7"))
		})
		It("should prefer the external host over the declared host", func() {
			node.Spec.ExternalHost = lo.ToPtr("tunnel.example.com")
			Expect(node.EffectiveHost()).To(Equal("tunnel.example.com"))
		})
		It("should prefer the provisioned IP over everything", func() {
			node.Spec.ExternalHost = lo.ToPtr("tunnel.example.com")
			node.Status = &v1.ExitNodeStatus{Provider: "default/do1", Name: "do1-en1", Ip: "198.51.100.4"}
			Expect(node.EffectiveHost()).To(Equal("198.51.100.4"))
		})
	})

	Describe("AuthSecretName", func() {
		It("should derive the conventional name when unset", func() {
			Expect(node.AuthSecretName()).To(Equal("en1-auth"))
		})
		It("should use the declared secret name", func() {
			node.Spec.Auth = lo.ToPtr("my-secret")
			Expect(node.AuthSecretName()).To(Equal("my-secret"))
		})
	})

	Describe("ProvisionerRef", func() {
		It("should report unmanaged nodes", func() {
			Expect(node.Managed()).To(BeFalse())
			_, ok := node.ProvisionerRef()
			Expect(ok).To(BeFalse())
		})
		It("should resolve a bare name against the node namespace", func() {
			node.Annotations = map[string]string{v1.ExitNodeProvisionerAnnotation: "do1"}
			ref, ok := node.ProvisionerRef()
			Expect(ok).To(BeTrue())
			Expect(ref).To(Equal(types.NamespacedName{Namespace: "default", Name: "do1"}))
		})
		It("should split a qualified reference", func() {
			node.Annotations = map[string]string{v1.ExitNodeProvisionerAnnotation: "infra/do1"}
			ref, _ := node.ProvisionerRef()
			Expect(ref).To(Equal(types.NamespacedName{Namespace: "infra", Name: "do1"}))
		})
	})
})

var _ = Describe("ExitNodeProvisioner", func() {
	It("should expose the credentials secret of the active variant", func() {
		provisioner := &v1.ExitNodeProvisioner{
			ObjectMeta: metav1.ObjectMeta{Name: "do1", Namespace: "default"},
			Spec: v1.ExitNodeProvisionerSpec{
				DigitalOcean: &v1.DigitalOceanProvisioner{Auth: "do-creds", Region: "nyc3"},
			},
		}
		Expect(provisioner.AuthSecretName()).To(Equal("do-creds"))
		Expect(provisioner.Qualified()).To(Equal("default/do1"))
	})
	It("should reject an empty union", func() {
		provisioner := &v1.ExitNodeProvisioner{ObjectMeta: metav1.ObjectMeta{Name: "p", Namespace: "default"}}
		_, err := provisioner.AuthSecretName()
		Expect(err).To(HaveOccurred())
	})
})
