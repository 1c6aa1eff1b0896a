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

package cloudinit_test

import (
	"encoding/json"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fyralabs/chisel-operator/pkg/cloud/cloudinit"
)

var _ = Describe("Generate", func() {
	It("should render the auth string and the server command", func() {
		doc := cloudinit.Generate("hunter2", 9090)
		Expect(doc).To(HavePrefix("#cloud-config\n"))
		Expect(doc).To(ContainSubstring("AUTH=chisel:hunter2"))
		Expect(doc).To(ContainSubstring("/usr/local/bin/chisel server --port=9090 --reverse --auth chisel:hunter2"))
	})
	It("should render the configured control port", func() {
		Expect(cloudinit.Generate("pw", 8443)).To(ContainSubstring("--port=8443"))
	})
	It("should be deterministic", func() {
		Expect(cloudinit.Generate("pw", 9090)).To(Equal(cloudinit.Generate("pw", 9090)))
	})
	It("should emit a parseable JSON body with the unit and sysconfig files", func() {
		doc := cloudinit.Generate("pw", 9090)
		body := strings.TrimPrefix(doc, "#cloud-config\n")
		var parsed struct {
			RunCmd     []string `json:"runcmd"`
			WriteFiles []struct {
				Path    string `json:"path"`
				Content string `json:"content"`
			} `json:"write_files"`
		}
		Expect(json.Unmarshal([]byte(body), &parsed)).To(Succeed())
		Expect(parsed.RunCmd).To(HaveLen(2))
		Expect(parsed.WriteFiles).To(HaveLen(2))
		Expect(parsed.WriteFiles[0].Path).To(Equal("/etc/systemd/system/chisel.service"))
		Expect(parsed.WriteFiles[1].Path).To(Equal("/etc/sysconfig/chisel"))
		Expect(parsed.WriteFiles[1].Content).To(Equal("AUTH=chisel:pw\n"))
	})
})
