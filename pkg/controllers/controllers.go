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

// Package controllers wires the operator's reconcilers into a manager.
package controllers

import (
	"context"

	"go.uber.org/multierr"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	"github.com/fyralabs/chisel-operator/pkg/controllers/exitnode"
	"github.com/fyralabs/chisel-operator/pkg/controllers/service"
)

// Register sets up the Service and ExitNode controllers. The two watch each
// other's primary resource so a change on either side converges both.
func Register(ctx context.Context, m manager.Manager) error {
	return multierr.Combine(
		service.NewController(m.GetClient()).Register(ctx, m),
		exitnode.NewController(m.GetClient()).Register(ctx, m),
	)
}
