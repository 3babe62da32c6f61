package gatt

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/gattc/internal/bledb"
)

// Characteristic is a discovered GATT characteristic. Immutable once added
// to a catalog.
type Characteristic struct {
	UUID        UUID
	ValueHandle uint16
	// CCCDHandle is the Client Characteristic Configuration descriptor handle
	// when the backend's discovery exposes it, 0 otherwise. See ConfigHandleFunc.
	CCCDHandle uint16
	Properties string
}

// KnownName returns the Bluetooth SIG assigned name, or "" if unknown.
func (c *Characteristic) KnownName() string {
	return bledb.LookupCharacteristic(string(c.UUID))
}

// Service is a discovered GATT service with its characteristics keyed by UUID
// in discovery order. Immutable once the owning catalog is published.
type Service struct {
	UUID  UUID
	chars *orderedmap.OrderedMap[UUID, *Characteristic]
}

// KnownName returns the Bluetooth SIG assigned name, or "" if unknown.
func (s *Service) KnownName() string {
	return bledb.LookupService(string(s.UUID))
}

// AddCharacteristic records a characteristic under this service.
// Re-adding an existing UUID replaces the previous entry in place.
func (s *Service) AddCharacteristic(c *Characteristic) {
	s.chars.Set(c.UUID, c)
}

// Characteristic returns the characteristic with the given UUID, if present.
func (s *Service) Characteristic(uuid UUID) (*Characteristic, bool) {
	return s.chars.Get(uuid)
}

// Characteristics returns all characteristics in discovery order.
func (s *Service) Characteristics() []*Characteristic {
	result := make([]*Characteristic, 0, s.chars.Len())
	for pair := s.chars.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

// ServiceCatalog is a snapshot of the services and characteristics discovered
// on a device. A catalog is built wholesale by a discovery round and then
// treated as read-only: a cache miss replaces the whole snapshot, it is never
// mutated incrementally. Iteration order is discovery order, which makes
// unscoped characteristic lookups deterministic within one snapshot.
type ServiceCatalog struct {
	services *orderedmap.OrderedMap[UUID, *Service]
}

// NewServiceCatalog returns an empty catalog.
func NewServiceCatalog() *ServiceCatalog {
	return &ServiceCatalog{services: orderedmap.New[UUID, *Service]()}
}

// AddService returns the service with the given UUID, creating it if absent.
func (sc *ServiceCatalog) AddService(uuid UUID) *Service {
	if svc, ok := sc.services.Get(uuid); ok {
		return svc
	}
	svc := &Service{
		UUID:  uuid,
		chars: orderedmap.New[UUID, *Characteristic](),
	}
	sc.services.Set(uuid, svc)
	return svc
}

// Service returns the service with the given UUID, if present.
func (sc *ServiceCatalog) Service(uuid UUID) (*Service, bool) {
	return sc.services.Get(uuid)
}

// Services returns all services in discovery order.
func (sc *ServiceCatalog) Services() []*Service {
	result := make([]*Service, 0, sc.services.Len())
	for pair := sc.services.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

// Len returns the number of services in the catalog.
func (sc *ServiceCatalog) Len() int {
	return sc.services.Len()
}

// Find looks up a characteristic by UUID. When serviceUUID is non-empty the
// search is restricted to that service; otherwise services are searched in
// discovery order and the first match wins. Unscoped lookups are ambiguous
// when multiple services expose the same characteristic UUID; callers that
// care must scope by service.
func (sc *ServiceCatalog) Find(charUUID UUID, serviceUUID UUID) (*Characteristic, bool) {
	if serviceUUID != "" {
		svc, ok := sc.services.Get(serviceUUID)
		if !ok {
			return nil, false
		}
		return svc.Characteristic(charUUID)
	}

	for pair := sc.services.Oldest(); pair != nil; pair = pair.Next() {
		if c, ok := pair.Value.Characteristic(charUUID); ok {
			return c, true
		}
	}
	return nil, false
}

type characteristicJSON struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name,omitempty"`
	ValueHandle uint16 `json:"value_handle"`
	CCCDHandle  uint16 `json:"cccd_handle,omitempty"`
	Properties  string `json:"properties,omitempty"`
}

type serviceJSON struct {
	UUID            string               `json:"uuid"`
	Name            string               `json:"name,omitempty"`
	Characteristics []characteristicJSON `json:"characteristics"`
}

// MarshalJSON renders the catalog in discovery order for inspect output.
func (sc *ServiceCatalog) MarshalJSON() ([]byte, error) {
	out := make([]serviceJSON, 0, sc.services.Len())
	for pair := sc.services.Oldest(); pair != nil; pair = pair.Next() {
		svc := pair.Value
		sj := serviceJSON{
			UUID:            string(svc.UUID),
			Name:            svc.KnownName(),
			Characteristics: make([]characteristicJSON, 0, svc.chars.Len()),
		}
		for cp := svc.chars.Oldest(); cp != nil; cp = cp.Next() {
			c := cp.Value
			sj.Characteristics = append(sj.Characteristics, characteristicJSON{
				UUID:        string(c.UUID),
				Name:        c.KnownName(),
				ValueHandle: c.ValueHandle,
				CCCDHandle:  c.CCCDHandle,
				Properties:  c.Properties,
			})
		}
		out = append(out, sj)
	}
	return json.Marshal(out)
}
