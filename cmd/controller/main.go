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

package main

import (
	"flag"
	"fmt"

	"github.com/awslabs/operatorpkg/env"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	controllerruntime "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/fyralabs/chisel-operator/pkg/apis"
	"github.com/fyralabs/chisel-operator/pkg/controllers"
	"github.com/fyralabs/chisel-operator/pkg/operator"
)

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(apis.AddToScheme(scheme))
}

func main() {
	var (
		metricsPort     int
		healthProbePort int
		leaderElect     bool
	)
	flag.IntVar(&metricsPort, "metrics-port", env.WithDefaultInt("METRICS_PORT", 8080), "The port the metric endpoint binds to for operating metrics about the controller itself")
	flag.IntVar(&healthProbePort, "health-probe-port", env.WithDefaultInt("HEALTH_PROBE_PORT", 8081), "The port the health probe endpoint binds to for reporting controller health")
	flag.BoolVar(&leaderElect, "leader-elect", env.WithDefaultBool("LEADER_ELECT", false), "Enable leader election so only one operator replica reconciles at a time")
	flag.Parse()

	controllerruntime.SetLogger(operator.NewLogger())

	manager, err := controllerruntime.NewManager(controllerruntime.GetConfigOrDie(), controllerruntime.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: fmt.Sprintf(":%d", metricsPort)},
		HealthProbeBindAddress: fmt.Sprintf(":%d", healthProbePort),
		LeaderElection:         leaderElect,
		LeaderElectionID:       "chisel-operator-leader-election",
	})
	if err != nil {
		panic(fmt.Sprintf("Unable to create manager, %s", err.Error()))
	}
	utilruntime.Must(manager.AddHealthzCheck("healthz", healthz.Ping))
	utilruntime.Must(manager.AddReadyzCheck("readyz", healthz.Ping))

	ctx := controllerruntime.SetupSignalHandler()
	if err := controllers.Register(ctx, manager); err != nil {
		panic(fmt.Sprintf("Unable to register controllers, %s", err.Error()))
	}
	if err := manager.Start(ctx); err != nil {
		panic(fmt.Sprintf("Unable to start manager, %s", err.Error()))
	}
}
