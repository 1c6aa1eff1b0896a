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

// Package pwgen generates tunnel passwords. The password gates a publicly
// reachable endpoint, so generation goes through crypto/rand.
package pwgen

import (
	"crypto/rand"
	"math/big"

	"github.com/samber/lo"
)

// DefaultUsername is the tunnel user baked into the auth string.
const DefaultUsername = "chisel"

// DefaultLength is the password length used for generated auth secrets.
const DefaultLength = 32

const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"abcdefghijklmnopqrstuvwxyz" +
	"0123456789)(*&^%#@!~"

// Generate returns a random password of the given length drawn from the
// tunnel-safe charset.
func Generate(length int) string {
	password := make([]byte, length)
	for i := range password {
		idx := lo.Must(rand.Int(rand.Reader, big.NewInt(int64(len(charset)))))
		password[i] = charset[idx.Int64()]
	}
	return string(password)
}
