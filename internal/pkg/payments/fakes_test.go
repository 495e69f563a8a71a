package payments

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Chrismelgar17/tipzy-sub000/app/models"
)

// fakeRepository is an in-memory Repository with the same not-found and
// ordering semantics as the GORM implementation.
type fakeRepository struct {
	users     map[uint]*models.User
	customers map[uint]*models.PaymentCustomer
	methods   []*models.PaymentMethod
	subs      map[uint]*models.Subscription
	audit     []*models.AuditLogEntry
	actions   []*models.AccountAction
	refunds   map[string]*models.Refund
	webhooks  []*models.WebhookEvent

	nextID uint
	clock  time.Time
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		users:     map[uint]*models.User{},
		customers: map[uint]*models.PaymentCustomer{},
		subs:      map[uint]*models.Subscription{},
		refunds:   map[string]*models.Refund{},
		clock:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *fakeRepository) id() uint {
	r.nextID++
	return r.nextID
}

func (r *fakeRepository) now() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *fakeRepository) addUser(u models.User) *models.User {
	if u.ID == 0 {
		u.ID = r.id()
	}
	r.users[u.ID] = &u
	return &u
}

func (r *fakeRepository) GetUserByID(id uint) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeRepository) SetUserSuspension(userID uint, suspended bool, until *time.Time) error {
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.IsSuspended = suspended
	u.SuspendedUntil = until
	return nil
}

func (r *fakeRepository) SetUserStatus(userID uint, status string) error {
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.Status = status
	return nil
}

func (r *fakeRepository) GetPaymentCustomerByUserID(userID uint) (*models.PaymentCustomer, error) {
	pc, ok := r.customers[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *pc
	return &cp, nil
}

func (r *fakeRepository) GetPaymentCustomerByProviderID(providerCustomerID string) (*models.PaymentCustomer, error) {
	for _, pc := range r.customers {
		if pc.ProviderCustomerID == providerCustomerID {
			cp := *pc
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) CreatePaymentCustomer(pc *models.PaymentCustomer) (*models.PaymentCustomer, error) {
	if existing, ok := r.customers[pc.UserID]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *pc
	cp.ID = r.id()
	r.customers[pc.UserID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeRepository) UpsertPaymentMethod(pm *models.PaymentMethod) error {
	for _, m := range r.methods {
		if m.ProviderPaymentMethodID == pm.ProviderPaymentMethodID {
			m.UserID = pm.UserID
			m.Brand = pm.Brand
			m.Last4 = pm.Last4
			m.ExpMonth = pm.ExpMonth
			m.ExpYear = pm.ExpYear
			m.IsDefault = pm.IsDefault
			*pm = *m
			return nil
		}
	}
	pm.ID = r.id()
	pm.CreatedAt = r.now()
	cp := *pm
	r.methods = append(r.methods, &cp)
	return nil
}

func (r *fakeRepository) ListPaymentMethodsByUser(userID uint) ([]models.PaymentMethod, error) {
	var out []models.PaymentMethod
	// Newest first, like the GORM ordering.
	for i := len(r.methods) - 1; i >= 0; i-- {
		if r.methods[i].UserID == userID {
			out = append(out, *r.methods[i])
		}
	}
	return out, nil
}

func (r *fakeRepository) GetPaymentMethodForUser(userID, id uint) (*models.PaymentMethod, error) {
	for _, m := range r.methods {
		if m.ID == id && m.UserID == userID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) DeletePaymentMethod(id uint) error {
	for i, m := range r.methods {
		if m.ID == id {
			r.methods = append(r.methods[:i], r.methods[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeRepository) SetDefaultPaymentMethod(userID uint, providerPaymentMethodID string) error {
	for _, m := range r.methods {
		if m.UserID == userID {
			m.IsDefault = m.ProviderPaymentMethodID == providerPaymentMethodID && providerPaymentMethodID != ""
		}
	}
	return nil
}

func (r *fakeRepository) GetSubscriptionByUserID(userID uint) (*models.Subscription, error) {
	sub, ok := r.subs[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *fakeRepository) GetSubscriptionByProviderID(providerSubscriptionID string) (*models.Subscription, error) {
	for _, sub := range r.subs {
		if sub.ProviderSubscriptionID == providerSubscriptionID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) UpsertSubscription(sub *models.Subscription) error {
	if existing, ok := r.subs[sub.UserID]; ok {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	} else {
		sub.ID = r.id()
		sub.CreatedAt = r.now()
	}
	cp := *sub
	r.subs[sub.UserID] = &cp
	return nil
}

func (r *fakeRepository) CreateAuditEntryIfNotExists(entry *models.AuditLogEntry) (bool, error) {
	for _, e := range r.audit {
		if e.ProviderEventID == entry.ProviderEventID {
			return false, nil
		}
	}
	entry.ID = r.id()
	entry.CreatedAt = r.now()
	cp := *entry
	r.audit = append(r.audit, &cp)
	return true, nil
}

func (r *fakeRepository) ListAuditEntriesByUser(userID uint, offset, limit int) ([]models.AuditLogEntry, error) {
	var out []models.AuditLogEntry
	for i := len(r.audit) - 1; i >= 0; i-- {
		if r.audit[i].UserID == userID {
			out = append(out, *r.audit[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepository) CreateAccountAction(action *models.AccountAction) error {
	action.ID = r.id()
	action.CreatedAt = r.now()
	cp := *action
	r.actions = append(r.actions, &cp)
	return nil
}

func (r *fakeRepository) ListAccountActionsByUser(userID uint, offset, limit int) ([]models.AccountAction, error) {
	var out []models.AccountAction
	for i := len(r.actions) - 1; i >= 0; i-- {
		if r.actions[i].UserID == userID {
			out = append(out, *r.actions[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepository) LastAccountAction(userID uint, actionType string) (*models.AccountAction, error) {
	for i := len(r.actions) - 1; i >= 0; i-- {
		if r.actions[i].UserID == userID && r.actions[i].ActionType == actionType {
			cp := *r.actions[i]
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) UpsertRefund(ref *models.Refund) error {
	if existing, ok := r.refunds[ref.ProviderRefundID]; ok {
		existing.Status = ref.Status
		*ref = *existing
		return nil
	}
	ref.ID = r.id()
	cp := *ref
	r.refunds[ref.ProviderRefundID] = &cp
	return nil
}

func (r *fakeRepository) GetRefundByProviderID(providerRefundID string) (*models.Refund, error) {
	ref, ok := r.refunds[providerRefundID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *ref
	return &cp, nil
}

func (r *fakeRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	for _, e := range r.webhooks {
		if e.Provider == event.Provider && e.ProviderEventID == event.ProviderEventID {
			cp := *e
			return false, &cp, nil
		}
	}
	event.ID = r.id()
	event.CreatedAt = r.now()
	cp := *event
	r.webhooks = append(r.webhooks, &cp)
	out := cp
	return true, &out, nil
}

func (r *fakeRepository) MarkWebhookProcessed(id uint, processingError string) error {
	for _, e := range r.webhooks {
		if e.ID == id {
			now := r.now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeRepository) auditEntriesFor(userID uint) []*models.AuditLogEntry {
	var out []*models.AuditLogEntry
	for _, e := range r.audit {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

func (r *fakeRepository) actionsOfType(userID uint, actionType string) []*models.AccountAction {
	var out []*models.AccountAction
	for _, a := range r.actions {
		if a.UserID == userID && a.ActionType == actionType {
			out = append(out, a)
		}
	}
	return out
}

// fakeProvider is a scripted Provider. Zero-value methods succeed with
// deterministic ids; set an err field to force a failure.
type fakeProvider struct {
	customers       int
	setupIntents    int
	subscriptions   int
	refundsCreated  int
	detached        []string
	defaultSet      []string
	remoteMethods   []ProviderPaymentMethod
	remoteDefaultID string

	subStatus         string
	cancelNowErr      error
	createSubErr      error
	listMethodsErr    error
	getIntentErr      error
	paymentIntent     *ProviderPaymentIntent
	canceledNow       []string
	cancelAtPeriodEnd map[string]bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{subStatus: models.SubscriptionStatusTrialing, cancelAtPeriodEnd: map[string]bool{}}
}

func (p *fakeProvider) CreateCustomer(ctx context.Context, email, name string, userID uint) (*ProviderCustomer, error) {
	p.customers++
	return &ProviderCustomer{ID: fmt.Sprintf("cus_%d", p.customers), Email: email}, nil
}

func (p *fakeProvider) CreateSetupIntent(ctx context.Context, customerID string) (*ProviderSetupIntent, error) {
	p.setupIntents++
	return &ProviderSetupIntent{
		ID:           fmt.Sprintf("seti_%d", p.setupIntents),
		ClientSecret: fmt.Sprintf("seti_%d_secret", p.setupIntents),
	}, nil
}

func (p *fakeProvider) ListPaymentMethods(ctx context.Context, customerID string) ([]ProviderPaymentMethod, string, error) {
	if p.listMethodsErr != nil {
		return nil, "", p.listMethodsErr
	}
	return p.remoteMethods, p.remoteDefaultID, nil
}

func (p *fakeProvider) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	p.detached = append(p.detached, paymentMethodID)
	return nil
}

func (p *fakeProvider) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	p.defaultSet = append(p.defaultSet, paymentMethodID)
	p.remoteDefaultID = paymentMethodID
	return nil
}

func (p *fakeProvider) CreateSubscription(ctx context.Context, customerID, priceRef, paymentMethodID string, trialDays int64) (*ProviderSubscription, error) {
	if p.createSubErr != nil {
		return nil, p.createSubErr
	}
	p.subscriptions++
	trialStart := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	trialEnd := trialStart.AddDate(0, 0, int(trialDays))
	return &ProviderSubscription{
		ID:                 fmt.Sprintf("sub_%d", p.subscriptions),
		Status:             p.subStatus,
		TrialStart:         &trialStart,
		TrialEnd:           &trialEnd,
		CurrentPeriodStart: &trialStart,
		CurrentPeriodEnd:   &trialEnd,
	}, nil
}

func (p *fakeProvider) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*ProviderSubscription, error) {
	p.cancelAtPeriodEnd[subscriptionID] = cancel
	return &ProviderSubscription{ID: subscriptionID, Status: p.subStatus, CancelAtPeriodEnd: cancel}, nil
}

func (p *fakeProvider) CancelSubscriptionNow(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	if p.cancelNowErr != nil {
		return nil, p.cancelNowErr
	}
	p.canceledNow = append(p.canceledNow, subscriptionID)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &ProviderSubscription{ID: subscriptionID, Status: models.SubscriptionStatusCanceled, CanceledAt: &now}, nil
}

func (p *fakeProvider) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*ProviderPaymentIntent, error) {
	if p.getIntentErr != nil {
		return nil, p.getIntentErr
	}
	if p.paymentIntent != nil {
		return p.paymentIntent, nil
	}
	return &ProviderPaymentIntent{
		ID:             paymentIntentID,
		AmountCents:    2500,
		Currency:       "eur",
		LatestChargeID: "ch_1",
	}, nil
}

func (p *fakeProvider) CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64, reason string) (*ProviderRefund, error) {
	p.refundsCreated++
	amount := amountCents
	if amount == 0 {
		amount = 2500
	}
	return &ProviderRefund{
		ID:          fmt.Sprintf("re_%d", p.refundsCreated),
		Status:      "succeeded",
		AmountCents: amount,
		Currency:    "eur",
	}, nil
}
