package adsync

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DryRunEndpoint is an IDirectory that reports mutations instead of applying them.
type DryRunEndpoint struct {
	directory    IDirectory
	logger       logrus.FieldLogger
	createdOUs   map[string]*OrganizationalUnit
	createdNames map[string]string
	actions      []string
}

// NewDryRunEndpoint wraps directory so that queries reach it and mutations are
// only logged. Units and account names "created" during the run are remembered
// so later steps see them.
func NewDryRunEndpoint(directory IDirectory, logger logrus.FieldLogger) *DryRunEndpoint {
	if logger == nil {
		logger = GetLogger()
	}
	return &DryRunEndpoint{
		directory:    directory,
		logger:       logger.WithField("dry_run", true),
		createdOUs:   make(map[string]*OrganizationalUnit),
		createdNames: make(map[string]string),
	}
}

// Actions returns the mutations that would have been applied, in order.
func (d *DryRunEndpoint) Actions() []string {
	return d.actions
}

func (d *DryRunEndpoint) record(format string, args ...any) {
	var action = fmt.Sprintf(format, args...)
	d.actions = append(d.actions, action)
	d.logger.Info(action)
}

func (d *DryRunEndpoint) QueryAccounts(ctx context.Context, filter AccountFilter, properties []string) ([]*DirectoryAccount, error) {
	return d.directory.QueryAccounts(ctx, filter, properties)
}

func (d *DryRunEndpoint) AccountNameExists(ctx context.Context, accountName string) (bool, error) {
	if _, ok := d.createdNames[accountName]; ok {
		return true, nil
	}
	return d.directory.AccountNameExists(ctx, accountName)
}

func (d *DryRunEndpoint) AccountNameOwner(ctx context.Context, accountName string) (string, bool, error) {
	if uid, ok := d.createdNames[accountName]; ok {
		return uid, true, nil
	}
	return d.directory.AccountNameOwner(ctx, accountName)
}

func (d *DryRunEndpoint) FindOrganizationalUnit(ctx context.Context, name string) (*OrganizationalUnit, error) {
	if ou, ok := d.createdOUs[name]; ok {
		return ou, nil
	}
	return d.directory.FindOrganizationalUnit(ctx, name)
}

func (d *DryRunEndpoint) CreateOrganizationalUnit(_ context.Context, name string, protectFromDeletion bool) (*OrganizationalUnit, error) {
	var ou = &OrganizationalUnit{Name: name, ProtectedFromDeletion: protectFromDeletion}
	d.createdOUs[name] = ou
	d.record("create organizational unit \"%s\"", name)
	return ou, nil
}

func (d *DryRunEndpoint) CreateAccount(_ context.Context, account *NewAccount) error {
	d.createdNames[account.AccountName] = account.UniqueId
	var ouName string
	if account.OrganizationalUnit != nil {
		ouName = account.OrganizationalUnit.Name
	}
	d.record("create account \"%s\" for %s in \"%s\"", account.AccountName, account.UniqueId, ouName)
	return nil
}

func (d *DryRunEndpoint) UpdateAccount(_ context.Context, account *DirectoryAccount, update *AccountUpdate) error {
	if update.AccountName != account.AccountName {
		d.createdNames[update.AccountName] = account.UniqueId
		d.record("rename account \"%s\" to \"%s\"", account.AccountName, update.AccountName)
	}
	d.record("update account \"%s\"", update.AccountName)
	return nil
}

func (d *DryRunEndpoint) MoveAccount(_ context.Context, account *DirectoryAccount, ou *OrganizationalUnit) error {
	d.record("move account \"%s\" to \"%s\"", account.AccountName, ou.Name)
	return nil
}

func (d *DryRunEndpoint) SetAccountExpiration(_ context.Context, account *DirectoryAccount, expires time.Time) error {
	d.record("set account \"%s\" expiration to %s", account.AccountName, expires.Format(time.DateOnly))
	return nil
}

func (d *DryRunEndpoint) DisableAccount(_ context.Context, account *DirectoryAccount) error {
	d.record("disable account \"%s\"", account.AccountName)
	return nil
}
