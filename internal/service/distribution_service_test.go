package service

import (
	"context"
	"sync"
	"testing"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hcmLat = 10.7769
	hcmLng = 106.7009
)

func TestDistribution_CardOrder_ScenarioA(t *testing.T) {
	env := newTestEnv(t)
	businessID := env.addBusiness(t, hcmLat, hcmLng)
	driverID := env.addDriver(t, hcmLat, hcmLng, 4.8, 10)

	o := env.placeReadyOrder(t, businessID, 12000, domain.PaymentMethodCard)
	delivered := env.deliver(t, o.ID, driverID)

	require.NotNil(t, delivered.BusinessEarnings)
	assert.Equal(t, int64(8400), *delivered.BusinessEarnings)
	assert.Equal(t, int64(2500), *delivered.DeliveryEarnings)
	assert.Equal(t, int64(1100), *delivered.PlatformFee)

	business := env.wallet(t, businessID, domain.OwnerTypeBusiness)
	driver := env.wallet(t, driverID, domain.OwnerTypeDriver)
	platform := env.wallet(t, env.platformID, domain.OwnerTypePlatform)

	assert.Equal(t, int64(8400), business.Balance)
	assert.Equal(t, int64(2500), driver.Balance)
	assert.Zero(t, driver.CashOwed)
	assert.Equal(t, int64(1100), platform.Balance)
	assert.Zero(t, platform.PendingBalance, "captured charge is released on delivery")

	for _, w := range []*domain.Wallet{business, driver, platform} {
		env.replayMatches(t, w)
	}

	stored := env.order(t, o.ID)
	assert.Equal(t, int64(8400), *stored.BusinessEarnings)
	assert.Equal(t, int64(2500), *stored.DeliveryEarnings)
}

func TestDistribution_CashOrder_ScenarioB(t *testing.T) {
	env := newTestEnv(t)
	businessID := env.addBusiness(t, hcmLat, hcmLng)
	driverID := env.addDriver(t, hcmLat, hcmLng, 4.8, 10)

	o := env.placeReadyOrder(t, businessID, 12000, domain.PaymentMethodCash)
	env.deliver(t, o.ID, driverID)

	driver := env.wallet(t, driverID, domain.OwnerTypeDriver)
	assert.Equal(t, int64(9500), driver.CashOwed)
	assert.Zero(t, driver.Balance)

	assert.Equal(t, int64(8400), env.wallet(t, businessID, domain.OwnerTypeBusiness).Balance)
	assert.Equal(t, int64(1100), env.wallet(t, env.platformID, domain.OwnerTypePlatform).Balance)
	env.replayMatches(t, driver)
}

func TestDistribution_Distribute_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	businessID := env.addBusiness(t, hcmLat, hcmLng)
	driverID := env.addDriver(t, hcmLat, hcmLng, 4.8, 10)

	o := env.placeReadyOrder(t, businessID, 12000, domain.PaymentMethodCash)
	env.deliver(t, o.ID, driverID)

	driver := env.wallet(t, driverID, domain.OwnerTypeDriver)
	before, err := env.entries.ListByWallet(ctx, driver.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, env.distributor.Distribute(ctx, o.ID))
		}()
	}
	wg.Wait()

	after, err := env.entries.ListByWallet(ctx, driver.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
	assert.Equal(t, int64(9500), env.wallet(t, driverID, domain.OwnerTypeDriver).CashOwed)
}

func TestDistribution_Distribute_NotDelivered(t *testing.T) {
	env := newTestEnv(t)
	businessID := env.addBusiness(t, hcmLat, hcmLng)
	o := env.placeReadyOrder(t, businessID, 5000, domain.PaymentMethodCash)

	err := env.distributor.Distribute(context.Background(), o.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))
	assert.Nil(t, env.order(t, o.ID).BusinessEarnings)
}

func TestDistribution_Distribute_UnknownOrder(t *testing.T) {
	env := newTestEnv(t)

	err := env.distributor.Distribute(context.Background(), uuid.New())
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}

func TestDistribution_SharesSumToTotal(t *testing.T) {
	env := newTestEnv(t)
	businessID := env.addBusiness(t, hcmLat, hcmLng)
	driverID := env.addDriver(t, hcmLat, hcmLng, 4.8, 10)

	// Smaller than the flat fee: the driver takes what is left after the
	// business share and the platform gets nothing.
	o := env.placeReadyOrder(t, businessID, 3001, domain.PaymentMethodCard)
	d := env.deliver(t, o.ID, driverID)

	assert.Equal(t, int64(2101), *d.BusinessEarnings)
	assert.Equal(t, int64(900), *d.DeliveryEarnings)
	assert.Equal(t, int64(0), *d.PlatformFee)
	assert.Equal(t, d.Total, *d.BusinessEarnings+*d.DeliveryEarnings+*d.PlatformFee)
}
