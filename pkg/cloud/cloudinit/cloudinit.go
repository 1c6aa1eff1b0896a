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

// Package cloudinit renders the user-data document that boots a chisel server
// on a freshly provisioned VM.
package cloudinit

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
)

const unitTemplate = `
[Unit]
Description=Chisel Tunnel
Wants=network-online.target
After=network-online.target
StartLimitIntervalSec=0

[Install]
WantedBy=multi-user.target

[Service]
Restart=always
RestartSec=1
User=root
# You can add any additional flags here
# This example uses port 9090 for the tunnel socket. ` + "`--reverse`" + ` is required for our use case.
ExecStart=/usr/local/bin/chisel server --port=%d --reverse --auth chisel:%s
# Additional .env file for auth and secrets
EnvironmentFile=-/etc/sysconfig/chisel
PassEnvironment=AUTH
`

type writeFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type document struct {
	RunCmd     []string    `json:"runcmd"`
	WriteFiles []writeFile `json:"write_files"`
}

// Generate renders the #cloud-config document that installs chisel and starts
// it as a systemd service listening on port, authenticated by password. The
// body stays a JSON object for compatibility with servers already deployed
// from the same template.
func Generate(password string, port uint16) string {
	doc := document{
		RunCmd: []string{
			"curl https://i.jpillora.com/chisel! | bash",
			"systemctl enable --now chisel",
		},
		WriteFiles: []writeFile{
			{
				Path:    "/etc/systemd/system/chisel.service",
				Content: fmt.Sprintf(unitTemplate, port, password),
			},
			{
				Path:    "/etc/sysconfig/chisel",
				Content: fmt.Sprintf("AUTH=chisel:%s\n", password),
			},
		},
	}
	return "#cloud-config\n" + string(lo.Must(json.Marshal(doc)))
}
