package devicetrust

import (
	"sync"
	"time"
)

// Store holds trusted-device records. The in-memory implementation is the
// intended one: the trust table is a heuristic layer scoped to the process
// lifetime, not a system of record.
type Store interface {
	Get(userID uint, fingerprint string) (*Device, bool)
	Put(device *Device)
	Touch(userID uint, fingerprint string, at time.Time)
	DeleteByFingerprint(userID uint, fingerprint string)
	Delete(userID uint, deviceID string) bool
	ListByUser(userID uint) []*Device
	DeleteExpired(now time.Time) int
	Clear()
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[uint]map[string]*Device
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[uint]map[string]*Device),
	}
}

func (s *MemoryStore) Get(userID uint, fingerprint string) (*Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices, ok := s.data[userID]
	if !ok {
		return nil, false
	}

	device, ok := devices[fingerprint]
	if !ok {
		return nil, false
	}

	copied := *device
	return &copied, true
}

func (s *MemoryStore) Put(device *Device) {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices, ok := s.data[device.UserID]
	if !ok {
		devices = make(map[string]*Device)
		s.data[device.UserID] = devices
	}

	copied := *device
	devices[device.Fingerprint] = &copied
}

func (s *MemoryStore) Touch(userID uint, fingerprint string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if device, ok := s.data[userID][fingerprint]; ok {
		device.LastUsedAt = at
	}
}

func (s *MemoryStore) DeleteByFingerprint(userID uint, fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data[userID], fingerprint)
}

func (s *MemoryStore) Delete(userID uint, deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for fingerprint, device := range s.data[userID] {
		if device.ID == deviceID {
			delete(s.data[userID], fingerprint)
			return true
		}
	}

	return false
}

func (s *MemoryStore) ListByUser(userID uint) []*Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]*Device, 0, len(s.data[userID]))
	for _, device := range s.data[userID] {
		copied := *device
		devices = append(devices, &copied)
	}

	return devices
}

func (s *MemoryStore) DeleteExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for userID, devices := range s.data {
		for fingerprint, device := range devices {
			if device.Expired(now) {
				delete(devices, fingerprint)
				deleted++
			}
		}
		if len(devices) == 0 {
			delete(s.data, userID)
		}
	}

	return deleted
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[uint]map[string]*Device)
}
