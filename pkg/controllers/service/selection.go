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

package service

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// reservationTTL is the window during which a freshly chosen host is hidden
// from other selections, covering the gap between choosing a node and the
// winning service publishing its ingress.
const reservationTTL = 5 * time.Second

// selectionGuard is the process-wide defense against two parallel service
// reconciles binding the same free exit node. It is deliberately not a
// distributed lock; operator HA relies on leader election. The mutex is held
// only across candidate filtering, never across I/O.
type selectionGuard struct {
	mu           sync.Mutex
	reservations *cache.Cache
}

func newSelectionGuard() *selectionGuard {
	return &selectionGuard{
		reservations: cache.New(reservationTTL, time.Minute),
	}
}

// TryLock claims the guard without blocking. Callers that lose simply retry
// the whole selection on the next requeue.
func (g *selectionGuard) TryLock() bool {
	return g.mu.TryLock()
}

func (g *selectionGuard) Unlock() {
	g.mu.Unlock()
}

// Reserved reports whether the host was handed out within the last window.
func (g *selectionGuard) Reserved(host string) bool {
	_, ok := g.reservations.Get(host)
	return ok
}

// Reserve hides the host from other selections for the reservation window.
func (g *selectionGuard) Reserve(host string) {
	g.reservations.SetDefault(host, struct{}{})
}
