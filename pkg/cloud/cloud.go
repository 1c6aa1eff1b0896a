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

// Package cloud defines the uniform contract between the reconcilers and the
// cloud backends that host managed exit nodes.
package cloud

import (
	"context"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"

	v1 "github.com/fyralabs/chisel-operator/pkg/apis/v1"
	"github.com/fyralabs/chisel-operator/pkg/cloud/aws"
	"github.com/fyralabs/chisel-operator/pkg/cloud/digitalocean"
	"github.com/fyralabs/chisel-operator/pkg/cloud/linode"
)

var (
	// ErrProvisionerNotFound is returned when a provisioner annotation refers
	// to an ExitNodeProvisioner that does not exist.
	ErrProvisionerNotFound = errors.New("cloud provisioner not found in the cluster")
	// ErrProvisionerSecretNotFound is returned when the provisioner's
	// credentials Secret is missing.
	ErrProvisionerSecretNotFound = errors.New("cloud provisioner credentials secret not found")
	// ErrNoPasswordSet is returned when a managed exit node has no tunnel
	// auth Secret to seed the server with.
	ErrNoPasswordSet = errors.New("managed exit node has no auth secret set")
	// ErrAuthFieldNotSet is returned when the tunnel auth Secret exists but
	// is missing the "auth" key.
	ErrAuthFieldNotSet = errors.New("auth secret is missing the auth key")
)

// Provisioner drives the VM lifecycle behind one managed exit node. Create
// blocks (cooperatively, 5s polls) until the VM has a public IPv4. Delete is
// idempotent: a VM that is already gone is success.
type Provisioner interface {
	Create(ctx context.Context, auth *corev1.Secret, node *v1.ExitNode, password string) (*v1.ExitNodeStatus, error)
	Update(ctx context.Context, auth *corev1.Secret, node *v1.ExitNode, password string) (*v1.ExitNodeStatus, error)
	Delete(ctx context.Context, auth *corev1.Secret, node *v1.ExitNode) error
}

// ForProvisioner returns the adapter for whichever variant the
// ExitNodeProvisioner declares.
func ForProvisioner(p *v1.ExitNodeProvisioner) (Provisioner, error) {
	switch {
	case p.Spec.DigitalOcean != nil:
		return digitalocean.NewProvisioner(*p.Spec.DigitalOcean), nil
	case p.Spec.Linode != nil:
		return linode.NewProvisioner(*p.Spec.Linode), nil
	case p.Spec.AWS != nil:
		return aws.NewProvisioner(*p.Spec.AWS), nil
	}
	return nil, fmt.Errorf("provisioner %s/%s declares no variant", p.Namespace, p.Name)
}
