package adsync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDisable = "disable"
)

type sync struct {
	directory IDirectory
	params    SyncParameters
	logger    logrus.FieldLogger
	now       func() time.Time
}

type SyncOption func(*sync)

// WithClock sets the time source used for account expiration dates.
func WithClock(now func() time.Time) SyncOption {
	return func(s *sync) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger logrus.FieldLogger) SyncOption {
	return func(s *sync) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewAdSync creates a synchronization of the roster described by params into directory.
// params is copied; later changes to it do not affect the returned value.
func NewAdSync(directory IDirectory, params *SyncParameters, options ...SyncOption) IAdSync {
	var s = &sync{
		directory: directory,
		params:    *params,
		logger:    GetLogger(),
		now:       time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *sync) Directory() IDirectory {
	return s.directory
}

// Sync provisions organizational units, reconciles the roster against the
// directory, then creates, updates and disables accounts. Roster, OU and
// directory snapshot failures abort the run; failures for a single person are
// recorded in SyncStat.Failures and the run continues.
func (s *sync) Sync(ctx context.Context) (syncStat *SyncStat, err error) {
	var logger = s.logger.WithField("run_id", uuid.NewString())
	var runDate = s.now()

	var roster []PersonRecord
	if roster, err = s.params.Roster(); err != nil {
		LogError(logger, "Sync", "read roster", s.params.CSVFilePath, err)
		return
	}
	logger.WithField("records", len(roster)).Info("roster loaded")

	syncStat = new(SyncStat)
	if syncStat.CreatedOUs, err = ProvisionOrganizationalUnits(ctx, s.directory, roster, s.params.OUProperty); err != nil {
		LogError(logger, "Sync", "provision organizational units", nil, err)
		return
	}
	for _, name := range syncStat.CreatedOUs {
		logger.WithField("ou", name).Info("organizational unit created")
	}

	var accounts []*DirectoryAccount
	var filter = AccountFilter{Present: []string{s.params.UniqueID}}
	if accounts, err = s.directory.QueryAccounts(ctx, filter, s.params.SyncFieldMap.Canonicals()); err != nil {
		err = directoryError("query accounts", s.params.UniqueID, err)
		LogError(logger, "Sync", "query accounts", nil, err)
		return
	}

	var accountLookup = make(map[string]*DirectoryAccount, len(accounts))
	var directoryRecords = make([]PersonRecord, 0, len(accounts))
	for _, a := range accounts {
		if len(a.UniqueId) == 0 {
			continue
		}
		if _, ok := accountLookup[a.UniqueId]; ok {
			continue
		}
		accountLookup[a.UniqueId] = a
		var record = make(PersonRecord, len(a.Fields)+1)
		for k, v := range a.Fields {
			record[k] = v
		}
		record[s.params.UniqueID] = a.UniqueId
		directoryRecords = append(directoryRecords, record)
	}

	var result = Reconcile(roster, directoryRecords, s.params.UniqueID)
	logger.WithFields(logrus.Fields{
		"new":     len(result.New),
		"matched": len(result.Matched),
		"stale":   len(result.Stale),
	}).Info("reconciliation complete")
	if len(result.Invalid) > 0 {
		logger.WithField("count", len(result.Invalid)).Warnf("records without \"%s\" were ignored", s.params.UniqueID)
	}
	for _, id := range result.Duplicates {
		logger.WithField("unique_id", id).Warn("duplicate unique ID, first occurrence used")
	}

	var fail = func(id string, action string, er1 error) {
		syncStat.Failures = append(syncStat.Failures, &SyncFailure{UniqueId: id, Action: action, Err: er1})
		LogError(logger, "Sync", action, id, er1)
	}

	for _, id := range result.New {
		var accountName string
		var er1 error
		if accountName, er1 = s.createUser(ctx, id, result.NewRecords[id]); er1 != nil {
			fail(id, ActionCreate, er1)
			continue
		}
		syncStat.CreatedUsers = append(syncStat.CreatedUsers, fmt.Sprintf("%s (%s)", id, accountName))
		logger.WithFields(logrus.Fields{"unique_id": id, "account": accountName}).Info("account created")
	}

	for _, id := range result.Matched {
		var account = accountLookup[id]
		var accountName string
		var moved bool
		var er1 error
		if accountName, moved, er1 = s.updateUser(ctx, result.MatchedRecords[id], account); er1 != nil {
			fail(id, ActionUpdate, er1)
			continue
		}
		syncStat.UpdatedUsers = append(syncStat.UpdatedUsers, fmt.Sprintf("%s (%s)", id, accountName))
		if !moved {
			var ouName = result.MatchedRecords[id].Value(s.params.OUProperty)
			if len(ouName) > 0 && ouName != account.OrganizationalUnit {
				syncStat.SkippedMoves = append(syncStat.SkippedMoves, fmt.Sprintf("%s (%s)", id, ouName))
				logger.WithFields(logrus.Fields{"unique_id": id, "ou": ouName}).Warn("organizational unit not found, account not moved")
			}
		}
		logger.WithFields(logrus.Fields{"unique_id": id, "account": accountName}).Debug("account updated")
	}

	var expires = expirationDate(runDate, s.params.KeepDisabledForDays)
	for _, id := range result.Stale {
		var account = accountLookup[id]
		if !account.Enabled {
			logger.WithField("unique_id", id).Debug("account already disabled")
			continue
		}
		if er1 := s.disableUser(ctx, account, expires); er1 != nil {
			fail(id, ActionDisable, er1)
			continue
		}
		syncStat.DisabledUsers = append(syncStat.DisabledUsers, fmt.Sprintf("%s (%s)", id, account.AccountName))
		logger.WithFields(logrus.Fields{"unique_id": id, "account": account.AccountName, "expires": expires.Format(time.DateOnly)}).Info("account disabled")
	}

	return
}

func (s *sync) createUser(ctx context.Context, id string, record PersonRecord) (accountName string, err error) {
	var givenName = record.Value(FieldGivenName)
	var surname = record.Value(FieldSurname)
	if accountName, err = AllocateUsername(ctx, givenName, surname, s.directory.AccountNameExists); err != nil {
		return
	}

	var ouName = record.Value(s.params.OUProperty)
	var ou *OrganizationalUnit
	if len(ouName) > 0 {
		if ou, err = s.directory.FindOrganizationalUnit(ctx, ouName); err != nil {
			err = directoryError("find organizational unit", ouName, err)
			return
		}
	}
	if ou == nil {
		err = fmt.Errorf("%w: \"%s\"", ErrMissingOrganizationalUnit, ouName)
		return
	}

	var pwd string
	if pwd, err = GeneratePassword(s.params.PasswordPolicy()); err != nil {
		return
	}

	var account = &NewAccount{
		GivenName:             givenName,
		Surname:               surname,
		AccountName:           accountName,
		PrincipalName:         s.params.PrincipalName(accountName),
		Password:              pwd,
		Enabled:               true,
		ChangePasswordAtLogon: true,
		Title:                 record.Value(FieldTitle),
		Department:            record.Value(FieldDepartment),
		Office:                record.Value(FieldOffice),
		OrganizationalUnit:    ou,
		UniqueIdProperty:      s.params.UniqueID,
		UniqueId:              id,
	}
	if err = s.directory.CreateAccount(ctx, account); err != nil {
		err = directoryError("create account", accountName, err)
	}
	return
}

func (s *sync) syncedValue(record PersonRecord, field string) *string {
	if !s.params.SyncFieldMap.HasCanonical(field) {
		return nil
	}
	var v = record.Value(field)
	return &v
}

func (s *sync) updateUser(ctx context.Context, record PersonRecord, account *DirectoryAccount) (accountName string, moved bool, err error) {
	if accountName, err = RecheckUsername(ctx, account.AccountName, account.UniqueId,
		record.Value(FieldGivenName), record.Value(FieldSurname), s.directory.AccountNameOwner); err != nil {
		return
	}

	var update = &AccountUpdate{
		AccountName:   accountName,
		PrincipalName: s.params.PrincipalName(accountName),
		Title:         s.syncedValue(record, FieldTitle),
		Department:    s.syncedValue(record, FieldDepartment),
		Office:        s.syncedValue(record, FieldOffice),
	}
	if err = s.directory.UpdateAccount(ctx, account, update); err != nil {
		err = directoryError("update account", account.AccountName, err)
		return
	}

	var ouName = record.Value(s.params.OUProperty)
	if len(ouName) == 0 || ouName == account.OrganizationalUnit {
		return
	}
	var ou *OrganizationalUnit
	var er1 error
	if ou, er1 = s.directory.FindOrganizationalUnit(ctx, ouName); er1 != nil || ou == nil {
		if er1 != nil {
			s.logger.WithFields(logrus.Fields{"ou": ouName, "error": er1}).Debug("organizational unit lookup failed")
		}
		return
	}
	if err = s.directory.MoveAccount(ctx, account, ou); err != nil {
		err = directoryError("move account", accountName, err)
		return
	}
	moved = true
	return
}

func (s *sync) disableUser(ctx context.Context, account *DirectoryAccount, expires time.Time) (err error) {
	if da, ok := s.directory.(IAccountDeactivator); ok {
		if err = da.DeactivateAccount(ctx, account, expires); err != nil {
			return directoryError("deactivate account", account.AccountName, err)
		}
		return
	}
	if err = s.directory.SetAccountExpiration(ctx, account, expires); err != nil {
		return directoryError("set account expiration", account.AccountName, err)
	}
	if err = s.directory.DisableAccount(ctx, account); err != nil {
		return directoryError("disable account", account.AccountName, err)
	}
	return
}

// expirationDate returns midnight UTC of the run date plus days.
func expirationDate(runDate time.Time, days int) time.Time {
	var y, m, d = runDate.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
}
