package gatt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/gattc/internal/gatt"
	"github.com/srg/gattc/internal/testutils"
)

func TestCatalogFind(t *testing.T) {
	catalog := testutils.NewCatalogBuilder().
		Service("180d").
		Char("2a37", 10).
		Char("2a38", 14).
		Service("180f").
		Char("2a19", 20).
		Build()

	t.Run("scoped lookup", func(t *testing.T) {
		c, ok := catalog.Find("2a37", "180d")
		require.True(t, ok)
		assert.Equal(t, uint16(10), c.ValueHandle)
	})

	t.Run("scoped lookup wrong service", func(t *testing.T) {
		_, ok := catalog.Find("2a37", "180f")
		assert.False(t, ok)
	})

	t.Run("scoped lookup unknown service", func(t *testing.T) {
		_, ok := catalog.Find("2a37", "1800")
		assert.False(t, ok)
	})

	t.Run("unscoped lookup", func(t *testing.T) {
		c, ok := catalog.Find("2a19", "")
		require.True(t, ok)
		assert.Equal(t, uint16(20), c.ValueHandle)
	})

	t.Run("unknown characteristic", func(t *testing.T) {
		_, ok := catalog.Find("2a00", "")
		assert.False(t, ok)
	})
}

// Unscoped lookups with duplicate characteristic UUIDs resolve to the first
// service in discovery order; scoping by service disambiguates.
func TestCatalogFindDuplicateUUIDs(t *testing.T) {
	catalog := testutils.NewCatalogBuilder().
		Service("180d").
		Char("2a37", 10).
		Service("181c").
		Char("2a37", 30).
		Build()

	c, ok := catalog.Find("2a37", "")
	require.True(t, ok)
	assert.Equal(t, uint16(10), c.ValueHandle, "unscoped lookup returns first match in discovery order")

	c, ok = catalog.Find("2a37", "181c")
	require.True(t, ok)
	assert.Equal(t, uint16(30), c.ValueHandle)
}

func TestCatalogIterationOrder(t *testing.T) {
	catalog := testutils.NewCatalogBuilder().
		Service("180f").
		Char("2a19", 20).
		Service("180d").
		Char("2a39", 12).
		Char("2a37", 10).
		Build()

	services := catalog.Services()
	require.Len(t, services, 2)
	assert.Equal(t, gatt.UUID("180f"), services[0].UUID)
	assert.Equal(t, gatt.UUID("180d"), services[1].UUID)

	chars := services[1].Characteristics()
	require.Len(t, chars, 2)
	assert.Equal(t, gatt.UUID("2a39"), chars[0].UUID, "characteristics keep discovery order, not sort order")
	assert.Equal(t, gatt.UUID("2a37"), chars[1].UUID)
}

func TestCatalogAddServiceIdempotent(t *testing.T) {
	catalog := gatt.NewServiceCatalog()
	s1 := catalog.AddService("180d")
	s1.AddCharacteristic(&gatt.Characteristic{UUID: "2a37", ValueHandle: 10})
	s2 := catalog.AddService("180d")
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, catalog.Len())
}

func TestCatalogMarshalJSON(t *testing.T) {
	ja := testutils.NewJSONAsserter(t)

	catalog := testutils.NewCatalogBuilder().
		Service("180d").
		CharWithCCCD("2a37", 10, 11).
		Build()

	ja.Assert(testutils.MustJSON(catalog), `[
		{
			"uuid": "180d",
			"name": "Heart Rate",
			"characteristics": [
				{
					"uuid": "2a37",
					"name": "Heart Rate Measurement",
					"value_handle": 10,
					"cccd_handle": 11
				}
			]
		}
	]`)
}
