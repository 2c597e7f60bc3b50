// Copyright 2026 The Zarr-Go Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package codec

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/zarrgo/zarr/internal/base"
)

// Factory constructs a codec from its JSON configuration object. A nil
// configuration means the metadata carried none.
type Factory func(config json.RawMessage) (Codec, error)

// builtins is the compile-time registry, populated by init functions of the
// codec implementations in this package.
var builtins = map[string]Factory{}

func registerBuiltin(name string, f Factory) {
	builtins[name] = f
}

// registrations is the runtime-registration table. It is consulted before
// the built-ins, so a runtime registration shadows a built-in of the same
// name.
var registrations struct {
	sync.RWMutex
	m map[string]Factory
}

// Register installs a runtime codec factory under name, shadowing any
// built-in with the same name. It returns an unregister function.
func Register(name string, f Factory) (unregister func()) {
	registrations.Lock()
	defer registrations.Unlock()
	if registrations.m == nil {
		registrations.m = make(map[string]Factory)
	}
	registrations.m[name] = f
	return func() {
		registrations.Lock()
		defer registrations.Unlock()
		delete(registrations.m, name)
	}
}

// New constructs a codec by registered name. Runtime registrations are
// checked first, then built-ins. An unknown name is a configuration error.
func New(name string, config json.RawMessage) (Codec, error) {
	registrations.RLock()
	f, ok := registrations.m[name]
	registrations.RUnlock()
	if !ok {
		f, ok = builtins[name]
	}
	if !ok {
		return nil, base.ConfigErrorf("unknown codec %q", name)
	}
	c, err := f(config)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Metadata is one codec entry of stored array metadata: a name plus its
// configuration object.
type Metadata struct {
	Name          string          `json:"name"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
}

// NewFromMetadata constructs a codec from a metadata entry.
func NewFromMetadata(m Metadata) (Codec, error) {
	return New(m.Name, m.Configuration)
}

// decodeConfig unmarshals a codec configuration strictly: unknown fields and
// malformed values are configuration errors, never silently defaulted.
func decodeConfig(name string, config json.RawMessage, into any) error {
	if len(config) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(config))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return base.ConfigErrorf("codec %q: invalid configuration: %v", name, err)
	}
	return nil
}

// marshalConfig converts a typed configuration struct into the generic map
// form used by Codec.Configuration.
func marshalConfig(cfg any) map[string]any {
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil
	}
	var m map[string]any
	if json.Unmarshal(b, &m) != nil {
		return nil
	}
	return m
}
