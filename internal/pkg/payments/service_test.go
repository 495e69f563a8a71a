package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chrismelgar17/tipzy-sub000/app/models"
)

func newTestService(t *testing.T) (*Service, *fakeRepository, *fakeProvider) {
	t.Helper()
	t.Setenv("STRIPE_PRICE_PRO_MONTHLY", "price_monthly_test")
	t.Setenv("STRIPE_PRICE_PRO_YEARLY", "price_yearly_test")

	repo := newFakeRepository()
	provider := newFakeProvider()
	return NewService(repo, provider), repo, provider
}

func seedUser(repo *fakeRepository) *models.User {
	return repo.addUser(models.User{
		Name:   "Mina",
		Email:  "mina@example.com",
		Role:   models.ROLE_USER,
		Status: models.STATUS_ACTIVE,
	})
}

func seedMethod(t *testing.T, repo *fakeRepository, userID uint, ref string, isDefault bool) models.PaymentMethod {
	t.Helper()
	pm := models.PaymentMethod{
		UserID:                  userID,
		Provider:                models.PaymentProviderStripe,
		ProviderPaymentMethodID: ref,
		Brand:                   "visa",
		Last4:                   "4242",
		IsDefault:               isDefault,
	}
	require.NoError(t, repo.UpsertPaymentMethod(&pm))
	return pm
}

func TestEnsureCustomer_ProvisionsOnce(t *testing.T) {
	svc, repo, provider := newTestService(t)
	user := seedUser(repo)

	first, err := svc.EnsureCustomer(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", first)

	second, err := svc.EnsureCustomer(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.customers, "remote customer must be created exactly once")
}

func TestEnsureCustomer_UnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.EnsureCustomer(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStartTrial_RequiresInstrument(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user := seedUser(repo)

	_, err := svc.StartTrial(context.Background(), user.ID, PlanProMonthly)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPaymentMethodRequired))
}

func TestStartTrial_Succeeds(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user := seedUser(repo)
	seedMethod(t, repo, user.ID, "pm_1", true)

	sub, err := svc.StartTrial(context.Background(), user.ID, PlanProMonthly)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusTrialing, sub.Status)
	assert.Equal(t, PlanProMonthly, sub.PlanKey)
	assert.NotNil(t, sub.TrialEnd)
	assert.Equal(t, "sub_1", sub.ProviderSubscriptionID)

	// The trial start lands in the ledger.
	entries := repo.auditEntriesFor(user.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, "subscription.trial_started", entries[0].EventType)
}

func TestStartTrial_AlreadySubscribed(t *testing.T) {
	svc, repo, provider := newTestService(t)
	user := seedUser(repo)
	seedMethod(t, repo, user.ID, "pm_1", true)

	_, err := svc.StartTrial(context.Background(), user.ID, PlanProMonthly)
	require.NoError(t, err)

	_, err = svc.StartTrial(context.Background(), user.ID, PlanProMonthly)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadySubscribed))
	assert.Equal(t, 1, provider.subscriptions, "second trial must not reach the provider")
}

func TestStartTrial_AllowedAfterTerminal(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user := seedUser(repo)
	seedMethod(t, repo, user.ID, "pm_1", true)

	require.NoError(t, repo.UpsertSubscription(&models.Subscription{
		UserID:                 user.ID,
		Provider:               models.PaymentProviderStripe,
		ProviderSubscriptionID: "sub_old",
		PlanKey:                PlanProMonthly,
		Status:                 models.SubscriptionStatusCanceled,
	}))

	sub, err := svc.StartTrial(context.Background(), user.ID, PlanProMonthly)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusTrialing, sub.Status)
}

func TestStartTrial_ProviderFailurePropagates(t *testing.T) {
	svc, repo, provider := newTestService(t)
	user := seedUser(repo)
	seedMethod(t, repo, user.ID, "pm_1", true)
	provider.createSubErr = ErrProviderUnavailable

	_, err := svc.StartTrial(context.Background(), user.ID, PlanProMonthly)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderUnavailable))

	// No local row may exist for a subscription the provider never created.
	_, err = repo.GetSubscriptionByUserID(user.ID)
	assert.Error(t, err)
}

func TestSyncPaymentMethods_ProviderFailurePropagates(t *testing.T) {
	svc, repo, provider := newTestService(t)
	user := seedUser(repo)
	provider.listMethodsErr = ErrProviderUnavailable

	_, err := svc.SyncPaymentMethods(context.Background(), user.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
}

func TestIssueRefund_IntentLookupFailure(t *testing.T) {
	svc, repo, provider := newTestService(t)
	user := seedUser(repo)
	provider.getIntentErr = ErrProviderUnavailable

	_, err := svc.IssueRefund(context.Background(), user.ID, "pi_1", 0, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
	assert.Equal(t, 0, provider.refundsCreated)
}

func TestStartTrial_UnknownPlan(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user := seedUser(repo)
	seedMethod(t, repo, user.ID, "pm_1", true)

	_, err := svc.StartTrial(context.Background(), user.ID, "tipzy_platinum")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestCancelAndReactivate(t *testing.T) {
	svc, repo, provider := newTestService(t)
	user := seedUser(repo)
	seedMethod(t, repo, user.ID, "pm_1", true)

	started, err := svc.StartTrial(context.Background(), user.ID, PlanProMonthly)
	require.NoError(t, err)

	canceled, err := svc.Cancel(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, canceled.CancelAtPeriodEnd)
	// Cancellation at period end does not change the lifecycle status.
	assert.Equal(t, started.Status, canceled.Status)
	assert.True(t, provider.cancelAtPeriodEnd[started.ProviderSubscriptionID])

	reactivated, err := svc.Reactivate(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, reactivated.CancelAtPeriodEnd)
	assert.Equal(t, started.Status, reactivated.Status)
}

func TestCancel_NoSubscription(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user := seedUser(repo)

	_, err := svc.Cancel(context.Background(), user.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCancel_TerminalSubscription(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user := seedUser(repo)
	require.NoError(t, repo.UpsertSubscription(&models.Subscription{
		UserID:                 user.ID,
		ProviderSubscriptionID: "sub_dead",
		PlanKey:                PlanProMonthly,
		Status:                 models.SubscriptionStatusCanceled,
	}))

	_, err := svc.Cancel(context.Background(), user.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSyncPaymentMethods_MirrorsProviderState(t *testing.T) {
	svc, repo, provider := newTestService(t)
	user := seedUser(repo)
	provider.remoteMethods = []ProviderPaymentMethod{
		{ID: "pm_a", Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030},
		{ID: "pm_b", Brand: "mastercard", Last4: "4444", ExpMonth: 6, ExpYear: 2029},
	}
	provider.remoteDefaultID = "pm_b"

	methods, err := svc.SyncPaymentMethods(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, methods, 2)

	defaults := 0
	for _, m := range methods {
		if m.IsDefault {
			defaults++
			assert.Equal(t, "pm_b", m.ProviderPaymentMethodID)
		}
	}
	assert.Equal(t, 1, defaults, "exactly one default after sync")
}

// defaultWatchingRepository records the highest number of rows carrying the
// default flag observed after any instrument write.
type defaultWatchingRepository struct {
	*fakeRepository
	maxDefaults int
}

func (r *defaultWatchingRepository) countDefaults() {
	n := 0
	for _, m := range r.methods {
		if m.IsDefault {
			n++
		}
	}
	if n > r.maxDefaults {
		r.maxDefaults = n
	}
}

func (r *defaultWatchingRepository) UpsertPaymentMethod(pm *models.PaymentMethod) error {
	err := r.fakeRepository.UpsertPaymentMethod(pm)
	r.countDefaults()
	return err
}

func (r *defaultWatchingRepository) SetDefaultPaymentMethod(userID uint, providerPaymentMethodID string) error {
	err := r.fakeRepository.SetDefaultPaymentMethod(userID, providerPaymentMethodID)
	r.countDefaults()
	return err
}

func TestSyncPaymentMethods_NeverTwoDefaultsMidSync(t *testing.T) {
	t.Setenv("STRIPE_PRICE_PRO_MONTHLY", "price_monthly_test")
	t.Setenv("STRIPE_PRICE_PRO_YEARLY", "price_yearly_test")

	repo := &defaultWatchingRepository{fakeRepository: newFakeRepository()}
	provider := newFakeProvider()
	svc := NewService(repo, provider)

	user := seedUser(repo.fakeRepository)
	// Stale local default the provider list no longer contains.
	seedMethod(t, repo.fakeRepository, user.ID, "pm_stale", true)
	provider.remoteMethods = []ProviderPaymentMethod{
		{ID: "pm_new", Brand: "visa", Last4: "4242"},
	}
	provider.remoteDefaultID = "pm_new"

	methods, err := svc.SyncPaymentMethods(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.Equal(t, 1, repo.maxDefaults, "two defaults must never coexist, even between writes")
	for _, m := range methods {
		assert.Equal(t, m.ProviderPaymentMethodID == "pm_new", m.IsDefault)
	}
}

func TestSyncPaymentMethods_Idempotent(t *testing.T) {
	svc, repo, provider := newTestService(t)
	user := seedUser(repo)
	provider.remoteMethods = []ProviderPaymentMethod{
		{ID: "pm_a", Brand: "visa", Last4: "4242"},
	}
	provider.remoteDefaultID = "pm_a"

	first, err := svc.SyncPaymentMethods(context.Background(), user.ID)
	require.NoError(t, err)
	second, err := svc.SyncPaymentMethods(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, len(first), len(second), "re-sync must not duplicate rows")
}

func TestSyncPaymentMethods_NominatesDefaultWhenProviderHasNone(t *testing.T) {
	svc, repo, provider := newTestService(t)
	user := seedUser(repo)
	provider.remoteMethods = []ProviderPaymentMethod{
		{ID: "pm_a", Brand: "visa", Last4: "4242"},
	}
	provider.remoteDefaultID = ""

	methods, err := svc.SyncPaymentMethods(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.True(t, methods[0].IsDefault)
	assert.Contains(t, provider.defaultSet, "pm_a", "nomination must reach the provider")
}

func TestRemovePaymentMethod_PromotesNextDefault(t *testing.T) {
	svc, repo, provider := newTestService(t)
	user := seedUser(repo)
	seedMethod(t, repo, user.ID, "pm_old", false)
	def := seedMethod(t, repo, user.ID, "pm_def", true)

	require.NoError(t, svc.RemovePaymentMethod(context.Background(), user.ID, def.ID))
	assert.Contains(t, provider.detached, "pm_def")

	remaining, err := repo.ListPaymentMethodsByUser(user.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "pm_old", remaining[0].ProviderPaymentMethodID)
	assert.True(t, remaining[0].IsDefault, "remaining instrument must be promoted")
}

func TestRemovePaymentMethod_NonDefaultKeepsDefault(t *testing.T) {
	svc, repo, provider := newTestService(t)
	user := seedUser(repo)
	other := seedMethod(t, repo, user.ID, "pm_other", false)
	seedMethod(t, repo, user.ID, "pm_def", true)

	require.NoError(t, svc.RemovePaymentMethod(context.Background(), user.ID, other.ID))

	remaining, err := repo.ListPaymentMethodsByUser(user.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "pm_def", remaining[0].ProviderPaymentMethodID)
	assert.True(t, remaining[0].IsDefault)
	assert.Empty(t, provider.defaultSet, "no promotion call expected")
}

func TestRemovePaymentMethod_NotFound(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user := seedUser(repo)

	err := svc.RemovePaymentMethod(context.Background(), user.ID, 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSetDefaultPaymentMethod_AtMostOneDefault(t *testing.T) {
	svc, repo, provider := newTestService(t)
	user := seedUser(repo)
	seedMethod(t, repo, user.ID, "pm_a", true)
	b := seedMethod(t, repo, user.ID, "pm_b", false)

	require.NoError(t, svc.SetDefaultPaymentMethod(context.Background(), user.ID, b.ID))
	assert.Contains(t, provider.defaultSet, "pm_b")

	methods, err := repo.ListPaymentMethodsByUser(user.ID)
	require.NoError(t, err)
	defaults := 0
	for _, m := range methods {
		if m.IsDefault {
			defaults++
			assert.Equal(t, "pm_b", m.ProviderPaymentMethodID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestRecordAccountAction_SuspendAndLift(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user := seedUser(repo)

	_, err := svc.RecordAccountAction(context.Background(), models.AccountAction{
		UserID:     user.ID,
		ActionType: models.ActionSuspended,
		Reason:     "tos violation",
	})
	require.NoError(t, err)
	assert.True(t, repo.users[user.ID].IsSuspended)

	_, err = svc.RecordAccountAction(context.Background(), models.AccountAction{
		UserID:     user.ID,
		ActionType: models.ActionUnsuspended,
	})
	require.NoError(t, err)
	assert.False(t, repo.users[user.ID].IsSuspended)
}

func TestRecordAccountAction_BanCascadesToCancel(t *testing.T) {
	svc, repo, provider := newTestService(t)
	user := seedUser(repo)
	seedMethod(t, repo, user.ID, "pm_1", true)
	started, err := svc.StartTrial(context.Background(), user.ID, PlanProMonthly)
	require.NoError(t, err)

	_, err = svc.RecordAccountAction(context.Background(), models.AccountAction{
		UserID:      user.ID,
		ActionType:  models.ActionBanned,
		Reason:      "fraud",
		PerformedBy: "admin:1",
	})
	require.NoError(t, err)

	assert.Equal(t, models.STATUS_BANNED, repo.users[user.ID].Status)
	assert.Contains(t, provider.canceledNow, started.ProviderSubscriptionID)

	sub, err := repo.GetSubscriptionByUserID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)
	assert.NotNil(t, sub.CanceledAt)
}

func TestRecordAccountAction_TrialRevokedWithoutSubscription(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user := seedUser(repo)

	// Cascade with nothing to cancel is a no-op, not an error.
	_, err := svc.RecordAccountAction(context.Background(), models.AccountAction{
		UserID:     user.ID,
		ActionType: models.ActionTrialRevoked,
	})
	require.NoError(t, err)
}

func TestRecordAccountAction_ProviderAlreadyDeleted(t *testing.T) {
	svc, repo, provider := newTestService(t)
	user := seedUser(repo)
	seedMethod(t, repo, user.ID, "pm_1", true)
	_, err := svc.StartTrial(context.Background(), user.ID, PlanProMonthly)
	require.NoError(t, err)

	// The provider no longer knows the subscription: treat as canceled.
	provider.cancelNowErr = ErrNotFound

	_, err = svc.RecordAccountAction(context.Background(), models.AccountAction{
		UserID:     user.ID,
		ActionType: models.ActionSubscriptionCanceled,
	})
	require.NoError(t, err)

	sub, err := repo.GetSubscriptionByUserID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)
}

func TestRecordAccountAction_UnknownType(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user := seedUser(repo)

	_, err := svc.RecordAccountAction(context.Background(), models.AccountAction{
		UserID:     user.ID,
		ActionType: "shadow_banned",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestIssueRefund_FullAndLedgerEntry(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user := seedUser(repo)

	ref, err := svc.IssueRefund(context.Background(), user.ID, "pi_1", 0, "customer request")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), ref.AmountCents)
	assert.Equal(t, "succeeded", ref.Status)
	assert.Equal(t, "pi_1", ref.ProviderPaymentIntentID)

	entries := repo.auditEntriesFor(user.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, "refund.issued", entries[0].EventType)
	assert.Equal(t, int64(-2500), entries[0].AmountCents, "refunds are recorded negative")
}

func TestIssueRefund_NoChargeOnIntent(t *testing.T) {
	svc, repo, provider := newTestService(t)
	user := seedUser(repo)
	provider.paymentIntent = &ProviderPaymentIntent{ID: "pi_1", AmountCents: 2500, Currency: "eur"}

	_, err := svc.IssueRefund(context.Background(), user.ID, "pi_1", 0, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetAuditLog_NewestFirstAndPaged(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user := seedUser(repo)

	for _, eventType := range []string{"a", "b", "c"} {
		created, err := repo.CreateAuditEntryIfNotExists(&models.AuditLogEntry{
			UserID:          user.ID,
			ProviderEventID: "evt_" + eventType,
			EventType:       eventType,
		})
		require.NoError(t, err)
		require.True(t, created)
	}

	entries, err := svc.GetAuditLog(context.Background(), user.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].EventType)
	assert.Equal(t, "b", entries[1].EventType)

	rest, err := svc.GetAuditLog(context.Background(), user.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "a", rest[0].EventType)
}
