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

// Package ioloop owns the transport underneath a connection: a deadline-
// bounded TCP stream, a select-like wait primitive that cooperates with
// process signals, and the heartbeat bookkeeping that detects a half-open
// peer. Nothing above this package touches net.Conn directly.
package ioloop
