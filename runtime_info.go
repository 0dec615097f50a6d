// Copyright 2025 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracelog

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/compute/metadata"
)

const metadataTimeout = 2 * time.Second

var (
	hostName     string
	hostNameOnce sync.Once

	onGCE        = metadata.OnGCE
	instanceName = metadata.InstanceNameWithContext
	osHostname   = os.Hostname
)

// DetectHost returns the name recorded under the "host" metadata key: the
// Compute Engine instance name when the metadata server is reachable,
// otherwise the OS hostname. The result is cached for the process lifetime.
func DetectHost() string {
	hostNameOnce.Do(func() {
		hostName = detectHost()
	})
	return hostName
}

// detectHost performs the lookup behind DetectHost without caching.
func detectHost() string {
	if onGCE() {
		ctx, cancel := context.WithTimeout(context.Background(), metadataTimeout)
		defer cancel()
		if name, err := instanceName(ctx); err == nil {
			if name = strings.TrimSpace(name); name != "" {
				return name
			}
		}
	}
	if name, err := osHostname(); err == nil {
		return strings.TrimSpace(name)
	}
	return ""
}
