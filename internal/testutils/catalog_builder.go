package testutils

import "github.com/srg/gattc/internal/gatt"

// CatalogBuilder builds ServiceCatalog fixtures fluently:
//
//	catalog := testutils.NewCatalogBuilder().
//		Service("180d").
//		Char("2a37", 10).
//		Service("180f").
//		Char("2a19", 20).
//		Build()
type CatalogBuilder struct {
	catalog *gatt.ServiceCatalog
	current *gatt.Service
}

// NewCatalogBuilder creates a builder over an empty catalog.
func NewCatalogBuilder() *CatalogBuilder {
	return &CatalogBuilder{catalog: gatt.NewServiceCatalog()}
}

// Service starts a new service; subsequent Char calls add to it.
func (b *CatalogBuilder) Service(uuid string) *CatalogBuilder {
	b.current = b.catalog.AddService(gatt.MustUUID(uuid))
	return b
}

// Char adds a characteristic with the given value handle to the current service.
func (b *CatalogBuilder) Char(uuid string, valueHandle uint16) *CatalogBuilder {
	return b.CharWithCCCD(uuid, valueHandle, 0)
}

// CharWithCCCD adds a characteristic whose discovery reported a real CCCD handle.
func (b *CatalogBuilder) CharWithCCCD(uuid string, valueHandle, cccdHandle uint16) *CatalogBuilder {
	return b.CharWithProps(uuid, valueHandle, cccdHandle, "")
}

// CharWithProps adds a characteristic with an explicit property string,
// e.g. "read|notify".
func (b *CatalogBuilder) CharWithProps(uuid string, valueHandle, cccdHandle uint16, props string) *CatalogBuilder {
	if b.current == nil {
		panic("testutils: Char before Service")
	}
	b.current.AddCharacteristic(&gatt.Characteristic{
		UUID:        gatt.MustUUID(uuid),
		ValueHandle: valueHandle,
		CCCDHandle:  cccdHandle,
		Properties:  props,
	})
	return b
}

// Build returns the assembled catalog.
func (b *CatalogBuilder) Build() *gatt.ServiceCatalog {
	return b.catalog
}
