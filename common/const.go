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

package common

const (
	// App 应用程序名称 用作 Prometheus 指标命名空间
	App = "goamqp"

	// Version 应用程序版本
	Version = "v0.1.0"

	// DefaultFrameMax 是客户端在 connection.tune-ok 中提出的默认帧大小上限
	//
	// RabbitMQ 的默认值同样是 128KB 这里保持一致 避免握手阶段触发不必要的降级协商
	DefaultFrameMax = 131072
)
