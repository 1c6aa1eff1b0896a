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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

const namespace = "chisel_operator"

var (
	// CloudOperations counts provisioner calls by operation and outcome.
	CloudOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cloud",
		Name:      "operations_total",
		Help:      "Number of cloud provisioner operations, partitioned by operation and outcome.",
	}, []string{"operation", "outcome"})

	// ServiceBindings counts exit-node selection outcomes for services.
	ServiceBindings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "service",
		Name:      "bindings_total",
		Help:      "Number of service-to-exit-node binding attempts, partitioned by outcome.",
	}, []string{"outcome"})
)

func init() {
	crmetrics.Registry.MustRegister(CloudOperations, ServiceBindings)
}
