package dispatcher

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Status describes one dispatcher for the admin API.
type Status struct {
	Addr  string `json:"addr"`
	Ready bool   `json:"ready"`
}

// Manager owns the dispatcher instances and picks one per uid.
//
// A uid maps to the first ready instance clockwise from its hash, so the
// mapping is stable while the member set is stable and fails over to the
// next node when its owner is down.
type Manager struct {
	cfg       InstanceConfig
	replicas  int
	onMessage func(frame []byte)
	logger    *zap.Logger

	mu        sync.RWMutex
	instances map[string]*Instance
	ring      *ring
	closed    bool
}

// NewManager creates an empty manager. onMessage receives every frame pushed
// by any dispatcher.
func NewManager(cfg InstanceConfig, onMessage func(frame []byte), logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:       cfg,
		replicas:  defaultReplicas,
		onMessage: onMessage,
		logger:    logger,
		instances: make(map[string]*Instance),
		ring:      newRing(nil, defaultReplicas),
	}
}

// Update replaces the member set. New addresses are dialed, missing ones are
// closed, unchanged ones keep their streams.
func (m *Manager) Update(addrs []string) {
	want := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		if a != "" {
			want[a] = struct{}{}
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	var removed []*Instance
	for addr, inst := range m.instances {
		if _, ok := want[addr]; !ok {
			removed = append(removed, inst)
			delete(m.instances, addr)
		}
	}
	for addr := range want {
		if _, ok := m.instances[addr]; ok {
			continue
		}
		inst, err := NewInstance(addr, m.cfg, m.onMessage, m.logger)
		if err != nil {
			m.logger.Error("failed to create dispatcher instance", zap.String("dispatcher", addr), zap.Error(err))
			continue
		}
		inst.Start()
		m.instances[addr] = inst
		m.logger.Info("dispatcher added", zap.String("dispatcher", addr))
	}

	members := make([]string, 0, len(m.instances))
	for addr := range m.instances {
		members = append(members, addr)
	}
	m.ring = newRing(members, m.replicas)
	m.mu.Unlock()

	for _, inst := range removed {
		inst.Close()
		m.logger.Info("dispatcher removed", zap.String("dispatcher", inst.Addr()))
	}
}

// Select returns the ready dispatcher responsible for uid.
func (m *Manager) Select(uid string) (Backend, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var picked *Instance
	m.ring.walk(uid, func(addr string) bool {
		inst := m.instances[addr]
		if inst != nil && inst.Ready() {
			picked = inst
			return true
		}
		return false
	})
	if picked == nil {
		return nil, false
	}
	return picked, true
}

// Snapshot lists all dispatchers sorted by address.
func (m *Manager) Snapshot() []Status {
	m.mu.RLock()
	out := make([]Status, 0, len(m.instances))
	for addr, inst := range m.instances {
		out = append(out, Status{Addr: addr, Ready: inst.Ready()})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// ReadyCount returns the number of dispatchers with an open stream.
func (m *Manager) ReadyCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, inst := range m.instances {
		if inst.Ready() {
			n++
		}
	}
	return n
}

// Run feeds member sets from src into Update until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, src Source) error {
	return src.Watch(ctx, m.Update)
}

// Close shuts down every instance. Later Updates are ignored.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	instances := m.instances
	m.instances = make(map[string]*Instance)
	m.ring = newRing(nil, m.replicas)
	m.mu.Unlock()

	for _, inst := range instances {
		inst.Close()
	}
}
