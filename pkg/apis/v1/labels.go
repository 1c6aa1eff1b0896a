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

var (
	// ExitNodeNameLabel names a specific ExitNode for a Service. As a label it
	// selects an existing node ("name" or "namespace/name"); as an annotation
	// next to the provisioner annotation it names the node provisioned for the
	// Service.
	ExitNodeNameLabel = Group + "/exit-node-name"
	// ExitNodeProvisionerAnnotation marks an ExitNode as cloud-managed and
	// names the ExitNodeProvisioner driving it, as "name" or "namespace/name".
	// On a Service it requests a provisioned node for that Service.
	ExitNodeProvisionerAnnotation = Group + "/exit-node-provisioner"
	// ProxyProtocolAnnotation switches the tunnel remotes to proxy-protocol
	// forwarding when set to "true" on the Service.
	ProxyProtocolAnnotation = Group + "/proxy-protocol"

	// LoadBalancerClass is the loadBalancerClass value claimed by this
	// operator. Services with an empty class are also accepted unless
	// REQUIRE_OPERATOR_CLASS is set.
	LoadBalancerClass = Group + "/chisel-operator-class"

	ServiceFinalizer  = "service." + Group + "/finalizer"
	ExitNodeFinalizer = "exitnode." + Group + "/finalizer"
)

const (
	// DefaultChiselPort is the default control channel port for the tunnel.
	DefaultChiselPort uint16 = 9090

	// FieldManager attributes every server-side apply from this operator.
	FieldManager = "chisel-operator"

	// ProviderUnmanaged is the status provider tag for user-operated nodes.
	ProviderUnmanaged = "unmanaged"

	// AuthKey is the key under which tunnel auth Secrets store "chisel:<password>".
	AuthKey = "auth"
)
