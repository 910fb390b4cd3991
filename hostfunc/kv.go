package hostfunc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// KVConfig bounds what a KV store accepts. Zero fields are unlimited.
type KVConfig struct {
	MaxKeySize   int
	MaxValueSize int
	MaxEntries   int
}

func DefaultKVConfig() KVConfig {
	return KVConfig{
		MaxKeySize:   256,
		MaxValueSize: 1 << 20,
		MaxEntries:   10000,
	}
}

// KVOption adjusts a KVConfig.
type KVOption func(*KVConfig)

func WithMaxKeySize(n int) KVOption   { return func(c *KVConfig) { c.MaxKeySize = n } }
func WithMaxValueSize(n int) KVOption { return func(c *KVConfig) { c.MaxValueSize = n } }
func WithMaxEntries(n int) KVOption   { return func(c *KVConfig) { c.MaxEntries = n } }

// KV is an in-memory key-value store. Values are any script value that
// converts to plain data; their size is measured by their JSON encoding.
type KV struct {
	cfg  KVConfig
	data map[string]any
	mu   sync.RWMutex
}

func NewKV(cfg KVConfig, opts ...KVOption) *KV {
	for _, opt := range opts {
		opt(&cfg)
	}
	return &KV{cfg: cfg, data: make(map[string]any)}
}

func (s *KV) Get(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[KVGetRequest]("kv_get", args)
	if err != nil {
		return nil, err
	}
	if req.Key == "" {
		return nil, errors.New("key required")
	}

	s.mu.RLock()
	val, exists := s.data[req.Key]
	s.mu.RUnlock()

	if !exists {
		return req.Default, nil
	}
	return val, nil
}

func (s *KV) Set(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[KVSetRequest]("kv_set", args)
	if err != nil {
		return nil, err
	}
	if req.Key == "" {
		return nil, errors.New("key required")
	}
	if _, ok := args["value"]; !ok {
		return nil, errors.New("value required")
	}
	if s.cfg.MaxKeySize > 0 && len(req.Key) > s.cfg.MaxKeySize {
		return nil, fmt.Errorf("key exceeds max size of %d bytes", s.cfg.MaxKeySize)
	}

	encoded, err := json.Marshal(req.Value)
	if err != nil {
		return nil, fmt.Errorf("value is not storable: %w", err)
	}
	if s.cfg.MaxValueSize > 0 && len(encoded) > s.cfg.MaxValueSize {
		return nil, fmt.Errorf("value exceeds max size of %d bytes", s.cfg.MaxValueSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[req.Key]; !exists && s.cfg.MaxEntries > 0 && len(s.data) >= s.cfg.MaxEntries {
		return nil, fmt.Errorf("store is full (%d entries)", s.cfg.MaxEntries)
	}
	s.data[req.Key] = req.Value
	return nil, nil
}

func (s *KV) Delete(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[KVDeleteRequest]("kv_delete", args)
	if err != nil {
		return nil, err
	}
	if req.Key == "" {
		return nil, errors.New("key required")
	}

	s.mu.Lock()
	_, existed := s.data[req.Key]
	delete(s.data, req.Key)
	s.mu.Unlock()

	return existed, nil
}

// Keys returns the stored keys in sorted order.
func (s *KV) Keys(ctx context.Context, args map[string]any) (any, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	slices.Sort(keys)
	return keys, nil
}

// Register installs the kv_* functions on r.
func (s *KV) Register(r *Registry) {
	r.Register("kv_get", s.Get)
	r.Register("kv_set", s.Set)
	r.Register("kv_delete", s.Delete)
	r.Register("kv_keys", s.Keys)
}
