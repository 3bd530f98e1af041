package adsync

import (
	"context"
	"time"
)

// Canonical field names the synchronization reads from every PersonRecord
// in addition to the configured unique-ID and OU fields.
const (
	FieldGivenName  = "GivenName"
	FieldSurname    = "Surname"
	FieldTitle      = "Title"
	FieldDepartment = "Department"
	FieldOffice     = "Office"
)

// FieldMapping projects one source column onto a canonical field name.
type FieldMapping struct {
	Source    string
	Canonical string
}

// FieldMap is an ordered source-column -> canonical-field mapping.
type FieldMap []FieldMapping

// PersonRecord maps canonical field names to values.
type PersonRecord map[string]string

// Value returns the field value or an empty string.
func (pr PersonRecord) Value(field string) string {
	if pr == nil {
		return ""
	}
	return pr[field]
}

type ReconciliationResult struct {
	New     []string
	Matched []string
	Stale   []string

	NewRecords     map[string]PersonRecord
	MatchedRecords map[string]PersonRecord
	StaleRecords   map[string]PersonRecord

	// Invalid holds records without a unique-ID value.
	Invalid []PersonRecord
	// Duplicates holds unique-ID values seen more than once in a single source.
	Duplicates []string
}

type DirectoryAccount struct {
	Id                 string
	UniqueId           string
	AccountName        string
	PrincipalName      string
	Enabled            bool
	Expires            *time.Time
	OrganizationalUnit string
	Fields             PersonRecord
}

type OrganizationalUnit struct {
	Id                    string
	Name                  string
	ProtectedFromDeletion bool
}

// AccountFilter selects directory accounts. All criteria are combined with AND.
// Property names are canonical names; adapters translate and escape them.
type AccountFilter struct {
	Present []string
	Equal   map[string]string
}

type NewAccount struct {
	GivenName             string
	Surname               string
	AccountName           string
	PrincipalName         string
	Password              string
	Enabled               bool
	ChangePasswordAtLogon bool
	Title                 string
	Department            string
	Office                string
	OrganizationalUnit    *OrganizationalUnit
	UniqueIdProperty      string
	UniqueId              string
}

// AccountUpdate lists the synced properties of an existing account.
// A nil property is not managed by the synchronization and is left unchanged;
// an empty value clears it.
type AccountUpdate struct {
	AccountName   string
	PrincipalName string
	Title         *string
	Department    *string
	Office        *string
}

// IDirectory is the capability surface of a directory service.
// Lookups that find nothing return a nil result and a nil error.
type IDirectory interface {
	QueryAccounts(ctx context.Context, filter AccountFilter, properties []string) ([]*DirectoryAccount, error)
	AccountNameExists(ctx context.Context, accountName string) (bool, error)
	AccountNameOwner(ctx context.Context, accountName string) (uniqueId string, found bool, err error)
	FindOrganizationalUnit(ctx context.Context, name string) (*OrganizationalUnit, error)
	CreateOrganizationalUnit(ctx context.Context, name string, protectFromDeletion bool) (*OrganizationalUnit, error)
	CreateAccount(ctx context.Context, account *NewAccount) error
	UpdateAccount(ctx context.Context, account *DirectoryAccount, update *AccountUpdate) error
	MoveAccount(ctx context.Context, account *DirectoryAccount, ou *OrganizationalUnit) error
	SetAccountExpiration(ctx context.Context, account *DirectoryAccount, expires time.Time) error
	DisableAccount(ctx context.Context, account *DirectoryAccount) error
}

// IAccountDeactivator is implemented by directories that can set the expiration
// date and disable an account in a single change.
type IAccountDeactivator interface {
	DeactivateAccount(ctx context.Context, account *DirectoryAccount, expires time.Time) error
}

type SyncFailure struct {
	UniqueId string
	Action   string
	Err      error
}

type SyncStat struct {
	CreatedOUs    []string
	CreatedUsers  []string
	UpdatedUsers  []string
	DisabledUsers []string
	SkippedMoves  []string
	Failures      []*SyncFailure
}

type IAdSync interface {
	Directory() IDirectory
	Sync(ctx context.Context) (*SyncStat, error)
}
