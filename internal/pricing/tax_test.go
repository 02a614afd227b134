package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gardencraft/storefront-api/internal/pricing"
)

func TestTaxOnlyForConfiguredRegion(t *testing.T) {
	t.Parallel()

	calc := pricing.Calculator{RegionCode: "MD", RegionName: "MARYLAND", RateBPS: 600}

	require.Equal(t, int64(0), calc.Amount(3000, 500, ""))
	require.Equal(t, int64(0), calc.Amount(3000, 500, "VA"))
	require.Equal(t, int64(210), calc.Amount(3000, 500, "MD"))
	require.Equal(t, int64(210), calc.Amount(3000, 500, "maryland"))
}

func TestTaxChargedOnShippingToo(t *testing.T) {
	t.Parallel()

	calc := pricing.Calculator{RegionCode: "MD", RegionName: "MARYLAND", RateBPS: 600}
	withShipping := calc.Amount(10000, 1000, "MD")
	withoutShipping := calc.Amount(10000, 0, "MD")
	require.Greater(t, withShipping, withoutShipping)
	require.Equal(t, int64(660), withShipping)
}

func TestTaxRoundsHalfUp(t *testing.T) {
	t.Parallel()

	calc := pricing.Calculator{RegionCode: "MD", RegionName: "MARYLAND", RateBPS: 600}
	// 1425 * 6% = 85.5 cents, rounds to 86
	require.Equal(t, int64(86), calc.Amount(1425, 0, "MD"))
	// 1408 * 6% = 84.48 cents, rounds to 84
	require.Equal(t, int64(84), calc.Amount(1408, 0, "MD"))
}

func TestTaxZeroRateAndZeroBase(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(0), pricing.Calculator{RegionCode: "MD", RateBPS: 0}.Amount(1000, 0, "MD"))
	require.Equal(t, int64(0), pricing.Calculator{RegionCode: "MD", RateBPS: 600}.Amount(0, 0, "MD"))
}
