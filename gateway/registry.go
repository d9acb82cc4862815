/*
Copyright 2024 Blnk Finance Authors.

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

package gateway

import (
	"errors"
	"fmt"
	"sync"
)

// Registry owns one Client per tenant. Clients are built once, shared by
// reference, and torn down together by Close.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	closed  bool
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register hands ownership of client to the registry. Registering a tenant twice
// is an error; the caller keeps ownership of the rejected client.
func (r *Registry) Register(tenantID string, client Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.clients[tenantID]; ok {
		return fmt.Errorf("gateway client for tenant %s already registered", tenantID)
	}
	r.clients[tenantID] = client
	return nil
}

func (r *Registry) Get(tenantID string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	client, ok := r.clients[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrClientNotConfigured)
	}
	return client, nil
}

// Tenants lists the registered tenant ids.
func (r *Registry) Tenants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tenants := make([]string, 0, len(r.clients))
	for id := range r.clients {
		tenants = append(tenants, id)
	}
	return tenants
}

// Close closes every client. It is safe to call more than once.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for id, client := range r.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gateway client for tenant %s: %w", id, err))
		}
	}
	r.clients = nil
	return errors.Join(errs...)
}
