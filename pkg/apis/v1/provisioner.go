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

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DigitalOceanProvisioner provisions exit nodes as DigitalOcean droplets.
type DigitalOceanProvisioner struct {
	// Name of the Secret containing the API token under DIGITALOCEAN_TOKEN.
	// The Secret must live in the provisioner's namespace.
	// +required
	Auth string `json:"auth"`
	// Datacenter region. When empty DigitalOcean picks one.
	// +optional
	Region string `json:"region,omitempty"`
	// SSH key fingerprints to install on the droplet.
	// +optional
	SSHFingerprints []string `json:"ssh_fingerprints,omitempty"`
}

// LinodeProvisioner provisions exit nodes as Linode instances.
type LinodeProvisioner struct {
	// Name of the Secret containing the API token under LINODE_TOKEN.
	// +required
	Auth string `json:"auth"`
	// Region ID of the Linode datacenter.
	// +required
	Region string `json:"region"`
	// Instance type, defaults to g6-nanode-1.
	// +optional
	Size string `json:"size,omitempty"`
}

// AWSProvisioner provisions exit nodes as EC2 instances.
type AWSProvisioner struct {
	// Name of the Secret containing AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
	// +required
	Auth string `json:"auth"`
	// AWS region to launch into.
	// +required
	Region string `json:"region"`
	// Security group ID attached to the instance; the default group when unset.
	// +optional
	SecurityGroup *string `json:"security_group,omitempty"`
	// EC2 instance type, defaults to t2.micro.
	// +optional
	Size string `json:"size,omitempty"`
}

// ExitNodeProvisionerSpec is a tagged union: exactly one variant is set. The
// field names match the externally-tagged serialization of the existing CRD.
type ExitNodeProvisionerSpec struct {
	// +optional
	DigitalOcean *DigitalOceanProvisioner `json:"DigitalOcean,omitempty"`
	// +optional
	Linode *LinodeProvisioner `json:"Linode,omitempty"`
	// +optional
	AWS *AWSProvisioner `json:"AWS,omitempty"`
}

// +kubebuilder:object:root=true
type ExitNodeProvisioner struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec ExitNodeProvisionerSpec `json:"spec"`
}

// +kubebuilder:object:root=true
type ExitNodeProvisionerList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ExitNodeProvisioner `json:"items"`
}

// AuthSecretName returns the credentials Secret named by whichever variant is
// set. The Secret is looked up in the provisioner's own namespace.
func (in *ExitNodeProvisioner) AuthSecretName() (string, error) {
	switch {
	case in.Spec.DigitalOcean != nil:
		return in.Spec.DigitalOcean.Auth, nil
	case in.Spec.Linode != nil:
		return in.Spec.Linode.Auth, nil
	case in.Spec.AWS != nil:
		return in.Spec.AWS.Auth, nil
	}
	return "", fmt.Errorf("provisioner %s/%s has no variant set", in.Namespace, in.Name)
}

// Qualified returns the "namespace/name" reference stored in status.provider
// and compared against the provisioner annotation.
func (in *ExitNodeProvisioner) Qualified() string {
	return fmt.Sprintf("%s/%s", in.Namespace, in.Name)
}
