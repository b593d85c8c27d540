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

package wire

import "github.com/pkg/errors"

func newError(format string, args ...any) error {
	format = "wire: " + format
	return errors.Errorf(format, args...)
}

var (
	// ErrMalformedFrame means a frame header or end-octet was invalid, or
	// the wire cursor ran past the end of the available bytes while
	// decoding.
	ErrMalformedFrame = newError("malformed frame")

	// ErrEncoding means a wire-level constraint was violated while
	// encoding (oversized shortstr, oversized table, ...).
	ErrEncoding = newError("encoding error")

	// ErrUnknownMethod means the (class-id, method-id) pair read off the
	// wire has no entry in the registry.
	ErrUnknownMethod = newError("unknown method")
)

func malformed(detail string) error {
	return errors.Wrap(ErrMalformedFrame, detail)
}

func encodingError(detail string) error {
	return errors.Wrap(ErrEncoding, detail)
}
