package adsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const googleEmployeeIdType = "organization"

type googleEndpoint struct {
	jwtCredentials []byte
	subject        string
	customer       string
	domain         string
	expirySchema   string
	directory      *admin.Service
	orgUnits       map[string]*admin.OrgUnit
}

// NewGoogleEndpoint creates an IDirectory for Users and Organizational Units in Google Workspace.
// The unique ID is stored as the user's "organization" external ID, the account
// name is the local part of the primary email.
func NewGoogleEndpoint(params *SyncParameters) (endpoint IDirectory, err error) {
	var gp = params.Directory.Google
	if gp == nil {
		err = errors.New("google directory parameters are not set")
		return
	}
	var credentials = gp.Credentials
	if len(credentials) == 0 && len(gp.CredentialsFile) > 0 {
		if credentials, err = os.ReadFile(filepath.Clean(gp.CredentialsFile)); err != nil {
			return
		}
	}
	var ge = &googleEndpoint{
		jwtCredentials: credentials,
		subject:        gp.AdminAccount,
		customer:       gp.Customer,
		domain:         params.Domain,
		expirySchema:   gp.ExpirySchema,
	}
	if len(ge.customer) == 0 {
		ge.customer = DefaultGoogleCustomer
	}
	endpoint = ge
	return
}

func (ge *googleEndpoint) service(ctx context.Context) (directory *admin.Service, err error) {
	if ge.directory != nil {
		directory = ge.directory
		return
	}
	params := google.CredentialsParams{
		Scopes:  []string{admin.AdminDirectoryUserScope, admin.AdminDirectoryOrgunitScope},
		Subject: ge.subject,
	}
	var cred *google.Credentials
	if cred, err = google.CredentialsFromJSONWithParams(ctx, ge.jwtCredentials, params); err != nil {
		err = directoryError("connect", "google workspace", err)
		return
	}
	if ge.directory, err = admin.NewService(ctx, option.WithCredentials(cred)); err != nil {
		err = directoryError("connect", "google workspace", err)
		return
	}
	directory = ge.directory
	return
}

func (ge *googleEndpoint) toAccount(u *admin.User) *DirectoryAccount {
	var account = &DirectoryAccount{
		Id:            u.Id,
		AccountName:   u.PrimaryEmail,
		PrincipalName: u.PrimaryEmail,
		Enabled:       !u.Suspended,
		Fields:        make(PersonRecord),
	}
	if pos := strings.IndexByte(u.PrimaryEmail, '@'); pos > 0 {
		account.AccountName = u.PrimaryEmail[:pos]
	}
	if pos := strings.LastIndexByte(u.OrgUnitPath, '/'); pos >= 0 {
		account.OrganizationalUnit = u.OrgUnitPath[pos+1:]
	}
	if u.Name != nil {
		account.Fields[FieldGivenName] = u.Name.GivenName
		account.Fields[FieldSurname] = u.Name.FamilyName
	}

	// typed as interface{} by the client library: decoded JSON arrays of objects
	if ja, ok := u.ExternalIds.([]any); ok {
		for _, j := range ja {
			if jo, ok := j.(map[string]any); ok {
				if t, _ := toString(jo["type"]); t == googleEmployeeIdType {
					account.UniqueId, _ = toString(jo["value"])
					break
				}
			}
		}
	}
	if ja, ok := u.Organizations.([]any); ok && len(ja) > 0 {
		if jo, ok := ja[0].(map[string]any); ok {
			account.Fields[FieldTitle], _ = toString(jo["title"])
			account.Fields[FieldDepartment], _ = toString(jo["department"])
			account.Fields[FieldOffice], _ = toString(jo["location"])
		}
	}
	if ge.expirySchema != "" && u.CustomSchemas != nil {
		if raw, ok := u.CustomSchemas[ge.expirySchema]; ok {
			var schema map[string]string
			if json.Unmarshal(raw, &schema) == nil {
				if t, er1 := time.Parse(time.DateOnly, schema["ExpiresOn"]); er1 == nil {
					account.Expires = &t
				}
			}
		}
	}
	return account
}

// QueryAccounts lists the customer's users and applies filter to the projected fields.
// The unique ID counts as a projected field.
func (ge *googleEndpoint) QueryAccounts(ctx context.Context, filter AccountFilter, properties []string) (accounts []*DirectoryAccount, err error) {
	var directory *admin.Service
	if directory, err = ge.service(ctx); err != nil {
		return
	}
	var match = func(a *DirectoryAccount) bool {
		for _, p := range filter.Present {
			if len(googleFieldValue(a, p)) == 0 {
				return false
			}
		}
		for k, v := range filter.Equal {
			if googleFieldValue(a, k) != v {
				return false
			}
		}
		return true
	}
	var wanted = MakeSet[string](properties)
	err = directory.Users.List().Customer(ge.customer).Projection("full").MaxResults(500).Pages(ctx, func(users *admin.Users) error {
		for _, u := range users.Users {
			var a = ge.toAccount(u)
			if !match(a) {
				continue
			}
			for k := range a.Fields {
				if !wanted.Has(k) {
					delete(a.Fields, k)
				}
			}
			accounts = append(accounts, a)
		}
		return nil
	})
	if err != nil {
		accounts = nil
		err = directoryError("query accounts", ge.customer, err)
	}
	return
}

var googleFields = MakeSet[string]([]string{FieldGivenName, FieldSurname, FieldTitle, FieldDepartment, FieldOffice})

// googleFieldValue resolves a canonical name against a Google user.
// Any name Google has no attribute for resolves to the employee external ID.
func googleFieldValue(a *DirectoryAccount, field string) string {
	if googleFields.Has(field) {
		return a.Fields.Value(field)
	}
	return a.UniqueId
}

func isNotFound(err error) bool {
	var ge *googleapi.Error
	return errors.As(err, &ge) && ge.Code == http.StatusNotFound
}

func (ge *googleEndpoint) AccountNameExists(ctx context.Context, accountName string) (exists bool, err error) {
	_, exists, err = ge.AccountNameOwner(ctx, accountName)
	return
}

func (ge *googleEndpoint) AccountNameOwner(ctx context.Context, accountName string) (uniqueId string, found bool, err error) {
	var directory *admin.Service
	if directory, err = ge.service(ctx); err != nil {
		return
	}
	var u *admin.User
	if u, err = directory.Users.Get(accountName + "@" + ge.domain).Projection("full").Context(ctx).Do(); err != nil {
		if isNotFound(err) {
			err = nil
		} else {
			err = directoryError("find account name", accountName, err)
		}
		return
	}
	found = true
	uniqueId = ge.toAccount(u).UniqueId
	return
}

func (ge *googleEndpoint) loadOrgUnits(ctx context.Context) (err error) {
	if ge.orgUnits != nil {
		return
	}
	var directory *admin.Service
	if directory, err = ge.service(ctx); err != nil {
		return
	}
	var ous *admin.OrgUnits
	if ous, err = directory.Orgunits.List(ge.customer).Type("all").Context(ctx).Do(); err != nil {
		return directoryError("query organizational units", ge.customer, err)
	}
	ge.orgUnits = make(map[string]*admin.OrgUnit)
	for _, ou := range ous.OrganizationUnits {
		if _, ok := ge.orgUnits[ou.Name]; !ok {
			ge.orgUnits[ou.Name] = ou
		}
	}
	return
}

func (ge *googleEndpoint) FindOrganizationalUnit(ctx context.Context, name string) (ou *OrganizationalUnit, err error) {
	if err = ge.loadOrgUnits(ctx); err != nil {
		return
	}
	if gou, ok := ge.orgUnits[name]; ok {
		ou = &OrganizationalUnit{Id: gou.OrgUnitPath, Name: gou.Name}
	}
	return
}

// CreateOrganizationalUnit creates the unit under the root unit.
func (ge *googleEndpoint) CreateOrganizationalUnit(ctx context.Context, name string, protectFromDeletion bool) (ou *OrganizationalUnit, err error) {
	if protectFromDeletion {
		err = directoryError("create organizational unit", name, errors.New("protection from accidental deletion is not supported"))
		return
	}
	if err = ge.loadOrgUnits(ctx); err != nil {
		return
	}
	var directory *admin.Service
	if directory, err = ge.service(ctx); err != nil {
		return
	}
	var gou *admin.OrgUnit
	if gou, err = directory.Orgunits.Insert(ge.customer, &admin.OrgUnit{
		Name:              name,
		ParentOrgUnitPath: "/",
	}).Context(ctx).Do(); err != nil {
		err = directoryError("create organizational unit", name, err)
		return
	}
	ge.orgUnits[gou.Name] = gou
	ou = &OrganizationalUnit{Id: gou.OrgUnitPath, Name: gou.Name}
	return
}

func (ge *googleEndpoint) CreateAccount(ctx context.Context, account *NewAccount) (err error) {
	if account.OrganizationalUnit == nil {
		return fmt.Errorf("%w: account \"%s\"", ErrMissingOrganizationalUnit, account.AccountName)
	}
	var directory *admin.Service
	if directory, err = ge.service(ctx); err != nil {
		return
	}
	var user = &admin.User{
		PrimaryEmail:              account.PrincipalName,
		Name:                      &admin.UserName{GivenName: account.GivenName, FamilyName: account.Surname},
		Password:                  account.Password,
		ChangePasswordAtNextLogin: account.ChangePasswordAtLogon,
		Suspended:                 !account.Enabled,
		OrgUnitPath:               account.OrganizationalUnit.Id,
		ExternalIds:               []*admin.UserExternalId{{Type: googleEmployeeIdType, Value: account.UniqueId}},
		Organizations: []*admin.UserOrganization{{
			Title:      account.Title,
			Department: account.Department,
			Location:   account.Office,
			Primary:    true,
		}},
	}
	if _, err = directory.Users.Insert(user).Context(ctx).Do(); err != nil {
		err = directoryError("create account", account.AccountName, err)
	}
	return
}

func (ge *googleEndpoint) patch(ctx context.Context, op string, account *DirectoryAccount, user *admin.User) (err error) {
	var directory *admin.Service
	if directory, err = ge.service(ctx); err != nil {
		return
	}
	if _, err = directory.Users.Patch(account.Id, user).Context(ctx).Do(); err != nil {
		err = directoryError(op, account.AccountName, err)
	}
	return
}

// organizations reads every organization entry of the user as stored in the directory.
func (ge *googleEndpoint) organizations(ctx context.Context, account *DirectoryAccount) (orgs []*admin.UserOrganization, err error) {
	var directory *admin.Service
	if directory, err = ge.service(ctx); err != nil {
		return
	}
	var u *admin.User
	if u, err = directory.Users.Get(account.Id).Projection("full").Context(ctx).Do(); err != nil {
		err = directoryError("read account", account.AccountName, err)
		return
	}
	if u.Organizations == nil {
		return
	}
	var raw []byte
	if raw, err = json.Marshal(u.Organizations); err != nil {
		return
	}
	err = json.Unmarshal(raw, &orgs)
	return
}

// UpdateAccount patches the primary organization with the managed values only.
// The organizations array is replaced as a whole, so every stored entry is written back.
func (ge *googleEndpoint) UpdateAccount(ctx context.Context, account *DirectoryAccount, update *AccountUpdate) (err error) {
	var user = &admin.User{PrimaryEmail: update.PrincipalName}
	if update.Title != nil || update.Department != nil || update.Office != nil {
		var orgs []*admin.UserOrganization
		if orgs, err = ge.organizations(ctx, account); err != nil {
			return
		}
		var org *admin.UserOrganization
		for _, o := range orgs {
			if o.Primary {
				org = o
				break
			}
		}
		if org == nil && len(orgs) > 0 {
			org = orgs[0]
		}
		if org == nil {
			org = &admin.UserOrganization{Primary: true}
			orgs = append(orgs, org)
		}
		if update.Title != nil {
			org.Title = *update.Title
		}
		if update.Department != nil {
			org.Department = *update.Department
		}
		if update.Office != nil {
			org.Location = *update.Office
		}
		user.Organizations = orgs
	}
	return ge.patch(ctx, "update account", account, user)
}

func (ge *googleEndpoint) MoveAccount(ctx context.Context, account *DirectoryAccount, ou *OrganizationalUnit) error {
	return ge.patch(ctx, "move account", account, &admin.User{OrgUnitPath: ou.Id})
}

// SetAccountExpiration records the date in the configured custom schema.
// Google Workspace accounts do not expire, so without a schema nothing is recorded.
func (ge *googleEndpoint) SetAccountExpiration(ctx context.Context, account *DirectoryAccount, expires time.Time) (err error) {
	if len(ge.expirySchema) == 0 {
		return
	}
	var raw []byte
	if raw, err = json.Marshal(map[string]string{"ExpiresOn": expires.Format(time.DateOnly)}); err != nil {
		return
	}
	return ge.patch(ctx, "set account expiration", account, &admin.User{
		CustomSchemas: map[string]googleapi.RawMessage{ge.expirySchema: raw},
	})
}

func (ge *googleEndpoint) DisableAccount(ctx context.Context, account *DirectoryAccount) error {
	return ge.patch(ctx, "disable account", account, &admin.User{Suspended: true})
}
