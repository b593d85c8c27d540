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

// Package wire implements the AMQP 0-9-1 wire-level codec: the tagged
// field-value encodings, the 7-octet-header/0xCE-trailer frame format, and
// the (class-id, method-id) method registry that drives both.
//
// Everything in this package is a pure function over a cursored byte slice.
// Nothing here blocks or owns a socket; see package ioloop for that.
package wire
