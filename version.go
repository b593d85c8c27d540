// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package amqp

import "github.com/packetd/goamqp/common"

// clientProperties is sent in connection.start-ok to identify this library
// and the capabilities it supports. overrides lets a caller toggle
// individual capability flags (e.g. disable consumer_cancel_notify for a
// broker that mishandles it) via Config.Capabilities without having to
// rebuild the whole table; raw values are coerced with the same
// github.com/spf13/cast convention common.Options uses elsewhere.
func clientProperties(overrides common.Options) map[string]any {
	capabilities := map[string]any{
		"publisher_confirms":           true,
		"consumer_cancel_notify":       true,
		"exchange_exchange_bindings":   true,
		"connection.blocked":           true,
		"basic.nack":                   true,
		"authentication_failure_close": true,
	}
	for k := range capabilities {
		if _, ok := overrides[k]; !ok {
			continue
		}
		if v, err := overrides.GetBool(k); err == nil {
			capabilities[k] = v
		}
	}

	return map[string]any{
		"product":      common.App,
		"version":      common.Version,
		"platform":     "Go",
		"copyright":    "",
		"information":  "",
		"capabilities": capabilities,
	}
}
