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

package kverrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBareConstructorDoesNotDoubleMessage(t *testing.T) {
	err := NotFound("Not found: subscription %d", 9527)
	assert.Equal(t, "Not found: subscription 9527", err.Error())
}

func TestWrapDoesNotDoublePrefix(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := Wrap(KindIO, cause, "framing: read header")
	assert.Equal(t, "framing: read header: unexpected EOF", err.Error())
	assert.Equal(t, cause, err.Unwrap())
}

func TestStatusOfMapsKindToHTTPStatus(t *testing.T) {
	assert.Equal(t, uint32(404), StatusOf(NotFound("missing")))
	assert.Equal(t, uint32(400), StatusOf(InvalidCommand("bad")))
	assert.Equal(t, uint32(500), StatusOf(errors.New("plain")))
}
