package adsync

import (
	"context"
	"fmt"
	"time"
)

type fakeDirectory struct {
	uniqueId string
	accounts []*DirectoryAccount
	ous      map[string]*OrganizationalUnit
	nextId   int

	// names in hiddenOUs are accepted by CreateOrganizationalUnit but never found
	hiddenOUs  Set[string]
	failCreate map[string]error
	failQuery  error
	failFindOU error
	// failFindOUNames apply once the account snapshot has been queried
	failFindOUNames map[string]error
	queried         bool
	created         []*NewAccount
	createdOUs      []string
	updates         map[string]*AccountUpdate
	nameLookups     int
}

func newFakeDirectory(uniqueId string) *fakeDirectory {
	return &fakeDirectory{
		uniqueId:        uniqueId,
		ous:             make(map[string]*OrganizationalUnit),
		hiddenOUs:       NewSet[string](),
		failCreate:      make(map[string]error),
		failFindOUNames: make(map[string]error),
		updates:         make(map[string]*AccountUpdate),
	}
}

func (fd *fakeDirectory) addOU(name string) {
	fd.ous[name] = &OrganizationalUnit{Id: "OU=" + name, Name: name}
}

func (fd *fakeDirectory) addAccount(uniqueId string, accountName string, ou string, enabled bool, fields PersonRecord) *DirectoryAccount {
	fd.nextId++
	if fields == nil {
		fields = make(PersonRecord)
	}
	var a = &DirectoryAccount{
		Id:                 fmt.Sprintf("id-%d", fd.nextId),
		UniqueId:           uniqueId,
		AccountName:        accountName,
		PrincipalName:      accountName + "@example.com",
		Enabled:            enabled,
		OrganizationalUnit: ou,
		Fields:             fields,
	}
	fd.accounts = append(fd.accounts, a)
	return a
}

func (fd *fakeDirectory) byUniqueId(uniqueId string) *DirectoryAccount {
	for _, a := range fd.accounts {
		if a.UniqueId == uniqueId {
			return a
		}
	}
	return nil
}

func (fd *fakeDirectory) value(a *DirectoryAccount, field string) string {
	if field == fd.uniqueId {
		return a.UniqueId
	}
	return a.Fields.Value(field)
}

func (fd *fakeDirectory) QueryAccounts(_ context.Context, filter AccountFilter, properties []string) (accounts []*DirectoryAccount, err error) {
	if fd.failQuery != nil {
		err = fd.failQuery
		return
	}
	fd.queried = true
outer:
	for _, a := range fd.accounts {
		for _, p := range filter.Present {
			if len(fd.value(a, p)) == 0 {
				continue outer
			}
		}
		for k, v := range filter.Equal {
			if fd.value(a, k) != v {
				continue outer
			}
		}
		var c = *a
		c.Fields = make(PersonRecord)
		for _, p := range properties {
			if v, ok := a.Fields[p]; ok {
				c.Fields[p] = v
			}
		}
		accounts = append(accounts, &c)
	}
	return
}

func (fd *fakeDirectory) AccountNameExists(ctx context.Context, accountName string) (bool, error) {
	var _, found, err = fd.AccountNameOwner(ctx, accountName)
	return found, err
}

func (fd *fakeDirectory) AccountNameOwner(_ context.Context, accountName string) (string, bool, error) {
	fd.nameLookups++
	for _, a := range fd.accounts {
		if a.AccountName == accountName {
			return a.UniqueId, true, nil
		}
	}
	return "", false, nil
}

func (fd *fakeDirectory) FindOrganizationalUnit(_ context.Context, name string) (*OrganizationalUnit, error) {
	if fd.failFindOU != nil {
		return nil, fd.failFindOU
	}
	if err, ok := fd.failFindOUNames[name]; ok && fd.queried {
		return nil, err
	}
	return fd.ous[name], nil
}

func (fd *fakeDirectory) CreateOrganizationalUnit(_ context.Context, name string, protectFromDeletion bool) (*OrganizationalUnit, error) {
	var ou = &OrganizationalUnit{Id: "OU=" + name, Name: name, ProtectedFromDeletion: protectFromDeletion}
	fd.createdOUs = append(fd.createdOUs, name)
	if !fd.hiddenOUs.Has(name) {
		fd.ous[name] = ou
	}
	return ou, nil
}

func (fd *fakeDirectory) CreateAccount(_ context.Context, account *NewAccount) error {
	if err, ok := fd.failCreate[account.UniqueId]; ok {
		return err
	}
	fd.created = append(fd.created, account)
	fd.addAccount(account.UniqueId, account.AccountName, account.OrganizationalUnit.Name, account.Enabled, PersonRecord{
		FieldGivenName:  account.GivenName,
		FieldSurname:    account.Surname,
		FieldTitle:      account.Title,
		FieldDepartment: account.Department,
		FieldOffice:     account.Office,
	})
	return nil
}

func (fd *fakeDirectory) stored(account *DirectoryAccount) *DirectoryAccount {
	for _, a := range fd.accounts {
		if a.Id == account.Id {
			return a
		}
	}
	return nil
}

func (fd *fakeDirectory) UpdateAccount(_ context.Context, account *DirectoryAccount, update *AccountUpdate) error {
	var a = fd.stored(account)
	if a == nil {
		return fmt.Errorf("account %s not found", account.Id)
	}
	fd.updates[a.UniqueId] = update
	a.AccountName = update.AccountName
	a.PrincipalName = update.PrincipalName
	for field, value := range map[string]*string{FieldTitle: update.Title, FieldDepartment: update.Department, FieldOffice: update.Office} {
		if value != nil {
			a.Fields[field] = *value
		}
	}
	return nil
}

func (fd *fakeDirectory) MoveAccount(_ context.Context, account *DirectoryAccount, ou *OrganizationalUnit) error {
	fd.stored(account).OrganizationalUnit = ou.Name
	return nil
}

func (fd *fakeDirectory) SetAccountExpiration(_ context.Context, account *DirectoryAccount, expires time.Time) error {
	fd.stored(account).Expires = &expires
	return nil
}

func (fd *fakeDirectory) DisableAccount(_ context.Context, account *DirectoryAccount) error {
	fd.stored(account).Enabled = false
	return nil
}
