// Package memory provides an in-memory implementation of every domain store.
// It backs tests and local development; one mutex covers all resources so
// cross-resource operations such as purchases stay atomic.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"keygate.io/internal/account"
	"keygate.io/internal/audit"
	"keygate.io/internal/ids"
	"keygate.io/internal/killswitch"
	"keygate.io/internal/license"
	"keygate.io/internal/release"
	"keygate.io/internal/reseller"
	"keygate.io/internal/session"
)

// Store holds all state behind a single mutex.
type Store struct {
	mu sync.Mutex

	users        map[string]*account.User
	usersByEmail map[string]string

	sessions map[string]*session.Session // keyed by token

	keys            map[string]*license.LicenseKey
	keysByString    map[string]string
	licenses        map[string]*license.License
	licensesByKeyID map[string]string

	resellers       map[string]*reseller.Reseller
	resellersByUser map[string]string
	transactions    []reseller.WalletTransaction

	killSwitch    killswitch.State
	killSwitchSet bool

	releases map[string]*release.Release

	auditTrail []audit.Entry
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		users:           make(map[string]*account.User),
		usersByEmail:    make(map[string]string),
		sessions:        make(map[string]*session.Session),
		keys:            make(map[string]*license.LicenseKey),
		keysByString:    make(map[string]string),
		licenses:        make(map[string]*license.License),
		licensesByKeyID: make(map[string]string),
		resellers:       make(map[string]*reseller.Reseller),
		resellersByUser: make(map[string]string),
		releases:        make(map[string]*release.Release),
	}
}

// Users returns the user store view.
func (s *Store) Users() account.Store { return &userStore{s} }

// Sessions returns the session store view.
func (s *Store) Sessions() session.Store { return &sessionStore{s} }

// Keys returns the license store view.
func (s *Store) Keys() license.Store { return &licenseStore{s} }

// Resellers returns the reseller store view.
func (s *Store) Resellers() reseller.Store { return &resellerStore{s} }

// KillSwitch returns the kill switch store view.
func (s *Store) KillSwitch() killswitch.Store { return &killSwitchStore{s} }

// Releases returns the release store view.
func (s *Store) Releases() release.Store { return &releaseStore{s} }

// Audit returns the audit store view.
func (s *Store) Audit() audit.Store { return &auditStore{s} }

type userStore struct{ s *Store }

func (u *userStore) Create(_ context.Context, in *account.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	email := strings.ToLower(in.Email)
	if _, ok := u.s.users[in.ID]; ok {
		return account.ErrAlreadyExists
	}
	if _, ok := u.s.usersByEmail[email]; ok {
		return account.ErrAlreadyExists
	}
	cp := *in
	cp.Email = email
	u.s.users[cp.ID] = &cp
	u.s.usersByEmail[email] = cp.ID
	return nil
}

func (u *userStore) Find(_ context.Context, id string) (*account.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	usr, ok := u.s.users[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	cp := *usr
	return &cp, nil
}

func (u *userStore) FindByEmail(_ context.Context, email string) (*account.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	id, ok := u.s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, account.ErrNotFound
	}
	cp := *u.s.users[id]
	return &cp, nil
}

func (u *userStore) SetActive(_ context.Context, id string, active bool) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	usr, ok := u.s.users[id]
	if !ok {
		return account.ErrNotFound
	}
	usr.Active = active
	usr.UpdatedAt = time.Now().UTC()
	return nil
}

func (u *userStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	usr, ok := u.s.users[id]
	if !ok {
		return account.ErrNotFound
	}
	at = at.UTC()
	usr.LastLoginAt = &at
	return nil
}

type sessionStore struct{ s *Store }

func (st *sessionStore) Create(_ context.Context, in *session.Session) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.sessions[in.Token]; ok {
		return session.ErrDuplicateToken
	}
	cp := *in
	st.s.sessions[cp.Token] = &cp
	return nil
}

func (st *sessionStore) FindByToken(_ context.Context, token string) (*session.Session, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	sess, ok := st.s.sessions[token]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (st *sessionStore) DeleteByToken(_ context.Context, token string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.sessions[token]; !ok {
		return session.ErrNotFound
	}
	delete(st.s.sessions, token)
	return nil
}

func (st *sessionStore) DeleteByUser(_ context.Context, userID string) (int64, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var n int64
	for token, sess := range st.s.sessions {
		if sess.UserID == userID {
			delete(st.s.sessions, token)
			n++
		}
	}
	return n, nil
}

type licenseStore struct{ s *Store }

func (ls *licenseStore) CreateKey(_ context.Context, key *license.LicenseKey) error {
	ls.s.mu.Lock()
	defer ls.s.mu.Unlock()
	if _, ok := ls.s.keysByString[key.Key]; ok {
		return license.ErrDuplicateKey
	}
	cp := *key
	ls.s.keys[cp.ID] = &cp
	ls.s.keysByString[cp.Key] = cp.ID
	return nil
}

func (ls *licenseStore) FindKey(_ context.Context, id string) (*license.LicenseKey, error) {
	ls.s.mu.Lock()
	defer ls.s.mu.Unlock()
	key, ok := ls.s.keys[id]
	if !ok {
		return nil, license.ErrKeyNotFound
	}
	cp := *key
	return &cp, nil
}

func (ls *licenseStore) FindKeyByString(_ context.Context, keyString string) (*license.LicenseKey, error) {
	ls.s.mu.Lock()
	defer ls.s.mu.Unlock()
	key, ok := ls.keyByString(keyString)
	if !ok {
		return nil, license.ErrKeyNotFound
	}
	cp := *key
	return &cp, nil
}

func (ls *licenseStore) keyByString(keyString string) (*license.LicenseKey, bool) {
	id, ok := ls.s.keysByString[keyString]
	if !ok {
		return nil, false
	}
	return ls.s.keys[id], true
}

func (ls *licenseStore) RevokeKey(_ context.Context, id string) error {
	ls.s.mu.Lock()
	defer ls.s.mu.Unlock()
	key, ok := ls.s.keys[id]
	if !ok {
		return license.ErrKeyNotFound
	}
	if key.Status != license.KeyAvailable {
		return license.ErrInvalidState
	}
	key.Status = license.KeyRevoked
	key.UpdatedAt = time.Now().UTC()
	return nil
}

func (ls *licenseStore) Redeem(_ context.Context, userID, keyString string, now time.Time) (*license.License, error) {
	ls.s.mu.Lock()
	defer ls.s.mu.Unlock()
	key, ok := ls.keyByString(keyString)
	if !ok {
		return nil, license.ErrKeyNotFound
	}
	switch key.Status {
	case license.KeyRevoked:
		return nil, license.ErrKeyRevoked
	case license.KeyRedeemed:
		return nil, license.ErrAlreadyUsed
	}
	for _, lic := range ls.s.licenses {
		if lic.UserID == userID && lic.Status == license.StatusActive && now.Before(lic.ExpiresAt) {
			return nil, license.ErrAlreadyLicensed
		}
	}
	key.Status = license.KeyRedeemed
	key.UpdatedAt = now
	lic := &license.License{
		ID:           ids.New(),
		UserID:       userID,
		LicenseKeyID: key.ID,
		Status:       license.StatusActive,
		ActivatedAt:  now,
		ExpiresAt:    now.Add(time.Duration(key.DurationDays) * 24 * time.Hour),
	}
	ls.s.licenses[lic.ID] = lic
	ls.s.licensesByKeyID[key.ID] = lic.ID
	cp := *lic
	return &cp, nil
}

func (ls *licenseStore) Verification(_ context.Context, keyString string) (*license.Verification, error) {
	ls.s.mu.Lock()
	defer ls.s.mu.Unlock()
	key, ok := ls.keyByString(keyString)
	if !ok {
		return nil, license.ErrKeyNotFound
	}
	licID, ok := ls.s.licensesByKeyID[key.ID]
	if !ok {
		return nil, license.ErrLicenseNotFound
	}
	lic := ls.s.licenses[licID]
	v := &license.Verification{License: *lic, Key: *key}
	if usr, ok := ls.s.users[lic.UserID]; ok {
		v.UserActive = usr.Active
		v.Username = usr.Username
	}
	return v, nil
}

func (ls *licenseStore) MarkLicenseExpired(_ context.Context, licenseID string) error {
	ls.s.mu.Lock()
	defer ls.s.mu.Unlock()
	lic, ok := ls.s.licenses[licenseID]
	if !ok {
		return license.ErrLicenseNotFound
	}
	if lic.Status == license.StatusActive {
		lic.Status = license.StatusExpired
	}
	return nil
}

func (ls *licenseStore) BindHWID(_ context.Context, licenseID, hwid string, now time.Time) error {
	ls.s.mu.Lock()
	defer ls.s.mu.Unlock()
	lic, ok := ls.s.licenses[licenseID]
	if !ok {
		return license.ErrLicenseNotFound
	}
	if lic.HWID != "" {
		return license.ErrInvalidState
	}
	lic.HWID = hwid
	lic.LastUsedAt = &now
	return nil
}

func (ls *licenseStore) TouchLicense(_ context.Context, licenseID string, now time.Time) error {
	ls.s.mu.Lock()
	defer ls.s.mu.Unlock()
	lic, ok := ls.s.licenses[licenseID]
	if !ok {
		return license.ErrLicenseNotFound
	}
	lic.LastUsedAt = &now
	return nil
}

func (ls *licenseStore) ActiveLicenseForUser(_ context.Context, userID string, now time.Time) (*license.License, error) {
	ls.s.mu.Lock()
	defer ls.s.mu.Unlock()
	for _, lic := range ls.s.licenses {
		if lic.UserID == userID && lic.Status == license.StatusActive && now.Before(lic.ExpiresAt) {
			cp := *lic
			return &cp, nil
		}
	}
	return nil, license.ErrLicenseNotFound
}

func (ls *licenseStore) ResetHWID(_ context.Context, licenseID string) error {
	ls.s.mu.Lock()
	defer ls.s.mu.Unlock()
	lic, ok := ls.s.licenses[licenseID]
	if !ok {
		return license.ErrLicenseNotFound
	}
	lic.HWID = ""
	return nil
}

type resellerStore struct{ s *Store }

func (rs *resellerStore) CreateReseller(_ context.Context, in *reseller.Reseller) error {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	if _, ok := rs.s.resellersByUser[in.UserID]; ok {
		return reseller.ErrResellerExists
	}
	cp := *in
	rs.s.resellers[cp.ID] = &cp
	rs.s.resellersByUser[cp.UserID] = cp.ID
	return nil
}

func (rs *resellerStore) FindReseller(_ context.Context, id string) (*reseller.Reseller, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	r, ok := rs.s.resellers[id]
	if !ok {
		return nil, reseller.ErrResellerNotFound
	}
	cp := *r
	return &cp, nil
}

func (rs *resellerStore) FindResellerByUser(_ context.Context, userID string) (*reseller.Reseller, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	id, ok := rs.s.resellersByUser[userID]
	if !ok {
		return nil, reseller.ErrResellerNotFound
	}
	cp := *rs.s.resellers[id]
	return &cp, nil
}

func (rs *resellerStore) ListResellers(_ context.Context) ([]reseller.Reseller, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	out := make([]reseller.Reseller, 0, len(rs.s.resellers))
	for _, r := range rs.s.resellers {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (rs *resellerStore) Deposit(_ context.Context, resellerID string, amountCents int64, actorID, description string, now time.Time) (*reseller.WalletTransaction, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	r, ok := rs.s.resellers[resellerID]
	if !ok {
		return nil, reseller.ErrResellerNotFound
	}
	r.BalanceCents += amountCents
	r.TotalDepositCents += amountCents
	r.UpdatedAt = now
	return rs.appendTx(r, reseller.TxDeposit, amountCents, actorID, description, now), nil
}

func (rs *resellerStore) Adjust(_ context.Context, resellerID string, amountCents int64, actorID, description string, now time.Time) (*reseller.WalletTransaction, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	r, ok := rs.s.resellers[resellerID]
	if !ok {
		return nil, reseller.ErrResellerNotFound
	}
	if r.BalanceCents+amountCents < 0 {
		return nil, reseller.ErrInsufficientBalance
	}
	r.BalanceCents += amountCents
	r.UpdatedAt = now
	return rs.appendTx(r, reseller.TxAdjustment, amountCents, actorID, description, now), nil
}

func (rs *resellerStore) Purchase(_ context.Context, resellerID string, selector license.KeySelector, quantity int, now time.Time) (*reseller.PurchaseReceipt, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	r, ok := rs.s.resellers[resellerID]
	if !ok {
		return nil, reseller.ErrResellerNotFound
	}

	var candidates []*license.LicenseKey
	for _, key := range rs.s.keys {
		if key.Status != license.KeyAvailable {
			continue
		}
		if key.ProductType != selector.ProductType || key.DurationDays != selector.DurationDays || key.PriceCents != selector.PriceCents {
			continue
		}
		candidates = append(candidates, key)
	}
	if len(candidates) < quantity {
		return nil, &reseller.InsufficientInventoryError{Requested: quantity, Available: len(candidates)}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	candidates = candidates[:quantity]

	cost := selector.PriceCents * int64(quantity)
	if r.BalanceCents < cost {
		return nil, reseller.ErrInsufficientBalance
	}

	r.BalanceCents -= cost
	r.TotalSpentCents += cost
	r.UpdatedAt = now
	tx := rs.appendTx(r, reseller.TxPurchase, -cost, r.UserID, "", now)

	assigned := make([]license.LicenseKey, 0, quantity)
	for _, key := range candidates {
		key.Status = license.KeyAssigned
		key.ResellerID = r.ID
		key.UpdatedAt = now
		assigned = append(assigned, *key)
	}

	return &reseller.PurchaseReceipt{Transaction: *tx, Keys: assigned, Reseller: *r}, nil
}

func (rs *resellerStore) Transactions(_ context.Context, resellerID string, limit int) ([]reseller.WalletTransaction, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	if _, ok := rs.s.resellers[resellerID]; !ok {
		return nil, reseller.ErrResellerNotFound
	}
	var out []reseller.WalletTransaction
	for i := len(rs.s.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if rs.s.transactions[i].ResellerID == resellerID {
			out = append(out, rs.s.transactions[i])
		}
	}
	return out, nil
}

func (rs *resellerStore) appendTx(r *reseller.Reseller, typ reseller.TxType, amountCents int64, actorID, description string, now time.Time) *reseller.WalletTransaction {
	tx := reseller.WalletTransaction{
		ID:           ids.New(),
		ResellerID:   r.ID,
		Type:         typ,
		AmountCents:  amountCents,
		BalanceAfter: r.BalanceCents,
		Description:  description,
		ActorID:      actorID,
		CreatedAt:    now,
	}
	rs.s.transactions = append(rs.s.transactions, tx)
	return &tx
}

type killSwitchStore struct{ s *Store }

func (ks *killSwitchStore) GetOrInit(_ context.Context) (killswitch.State, error) {
	ks.s.mu.Lock()
	defer ks.s.mu.Unlock()
	if !ks.s.killSwitchSet {
		ks.s.killSwitch = killswitch.State{}
		ks.s.killSwitchSet = true
	}
	return ks.s.killSwitch, nil
}

func (ks *killSwitchStore) Update(_ context.Context, state killswitch.State) error {
	ks.s.mu.Lock()
	defer ks.s.mu.Unlock()
	ks.s.killSwitch = state
	ks.s.killSwitchSet = true
	return nil
}

type releaseStore struct{ s *Store }

func (rs *releaseStore) Create(_ context.Context, r *release.Release) error {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	cp := *r
	rs.s.releases[cp.ID] = &cp
	return nil
}

func (rs *releaseStore) LatestPublished(_ context.Context) (*release.Release, error) {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	for _, r := range rs.s.releases {
		if r.Published && r.Latest {
			cp := *r
			return &cp, nil
		}
	}
	return nil, release.ErrNoRelease
}

func (rs *releaseStore) SetPublished(_ context.Context, id string, published bool, now time.Time) error {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	r, ok := rs.s.releases[id]
	if !ok {
		return release.ErrNoRelease
	}
	r.Published = published
	if published {
		for _, other := range rs.s.releases {
			other.Latest = false
		}
		r.Latest = true
		at := now.UTC()
		r.PublishedAt = &at
	} else {
		r.Latest = false
	}
	return nil
}

type auditStore struct{ s *Store }

func (as *auditStore) Append(_ context.Context, e *audit.Entry) error {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	as.s.auditTrail = append(as.s.auditTrail, *e)
	return nil
}

// AuditEntries returns a copy of the trail (tests).
func (s *Store) AuditEntries() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Entry, len(s.auditTrail))
	copy(out, s.auditTrail)
	return out
}
