package adsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLdapConn struct {
	entries   []*ldap.Entry
	searches  []*ldap.SearchRequest
	adds      []*ldap.AddRequest
	modifies  []*ldap.ModifyRequest
	modifyDNs []*ldap.ModifyDNRequest
	addErrors []error
	closed    bool
}

func (c *fakeLdapConn) Search(rq *ldap.SearchRequest) (*ldap.SearchResult, error) {
	c.searches = append(c.searches, rq)
	return &ldap.SearchResult{Entries: c.entries}, nil
}

func (c *fakeLdapConn) SearchWithPaging(rq *ldap.SearchRequest, _ uint32) (*ldap.SearchResult, error) {
	return c.Search(rq)
}

func (c *fakeLdapConn) Add(rq *ldap.AddRequest) error {
	c.adds = append(c.adds, rq)
	if len(c.addErrors) > 0 {
		var err = c.addErrors[0]
		c.addErrors = c.addErrors[1:]
		return err
	}
	return nil
}

func (c *fakeLdapConn) Modify(rq *ldap.ModifyRequest) error {
	c.modifies = append(c.modifies, rq)
	return nil
}

func (c *fakeLdapConn) ModifyDN(rq *ldap.ModifyDNRequest) error {
	c.modifyDNs = append(c.modifyDNs, rq)
	return nil
}

func (c *fakeLdapConn) Close() error {
	c.closed = true
	return nil
}

func newTestLdapEndpoint(t *testing.T, conn *fakeLdapConn) *LdapEndpoint {
	t.Helper()
	var params = validParameters()
	le, err := NewLdapEndpoint(params)
	require.NoError(t, err)
	le.dial = func(*LdapParameters) (ldapConn, error) { return conn, nil }
	return le
}

func addAttribute(rq *ldap.AddRequest, name string) []string {
	for _, a := range rq.Attributes {
		if a.Type == name {
			return a.Vals
		}
	}
	return nil
}

func TestAccountFilterString(t *testing.T) {
	var filter = AccountFilter{
		Present: []string{"EmployeeID"},
		Equal:   map[string]string{"Surname": "O*Brien)(cn=*", "GivenName": "Ada"},
	}
	assert.Equal(t,
		`(&(objectCategory=person)(objectClass=user)(employeeID=*)(givenName=Ada)(sn=O\2aBrien\29\28cn=\2a))`,
		accountFilterString(filter))
}

func TestLdapQueryAccounts(t *testing.T) {
	var conn = &fakeLdapConn{entries: []*ldap.Entry{
		ldap.NewEntry("CN=Ada Lovelace,OU=West,DC=example,DC=com", map[string][]string{
			"employeeID":         {"1"},
			"sAMAccountName":     {"LovelaceA"},
			"userPrincipalName":  {"LovelaceA@example.com"},
			"userAccountControl": {"514"},
			"accountExpires":     {"134183520000000000"},
			"title":              {"Analyst"},
		}),
	}}
	var le = newTestLdapEndpoint(t, conn)

	accounts, err := le.QueryAccounts(context.Background(), AccountFilter{Present: []string{"EmployeeID"}}, []string{FieldTitle, "School"})
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	var a = accounts[0]
	assert.Equal(t, "1", a.UniqueId)
	assert.Equal(t, "LovelaceA", a.AccountName)
	assert.False(t, a.Enabled)
	assert.Equal(t, "West", a.OrganizationalUnit)
	assert.Equal(t, "Analyst", a.Fields.Value(FieldTitle))
	assert.Contains(t, a.Fields, "School")
	require.NotNil(t, a.Expires)
	assert.Equal(t, time.Date(2026, time.March, 19, 0, 0, 0, 0, time.UTC), *a.Expires)

	require.Len(t, conn.searches, 1)
	assert.Equal(t, "DC=example,DC=com", conn.searches[0].BaseDN)
	assert.Contains(t, conn.searches[0].Attributes, "employeeID")
	assert.Contains(t, conn.searches[0].Attributes, "title")
}

func TestLdapAccountNameOwner(t *testing.T) {
	var conn = &fakeLdapConn{entries: []*ldap.Entry{
		ldap.NewEntry("CN=x,DC=example,DC=com", map[string][]string{"employeeID": {"42"}}),
	}}
	var le = newTestLdapEndpoint(t, conn)
	uid, found, err := le.AccountNameOwner(context.Background(), "smith*")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "42", uid)
	assert.Equal(t, `(sAMAccountName=smith\2a)`, conn.searches[0].Filter)

	conn.entries = nil
	exists, err := le.AccountNameExists(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLdapCreateOrganizationalUnit(t *testing.T) {
	var conn = &fakeLdapConn{}
	var le = newTestLdapEndpoint(t, conn)
	ou, err := le.CreateOrganizationalUnit(context.Background(), "R&D, East", false)
	require.NoError(t, err)
	assert.Equal(t, `OU=R&D\, East,DC=example,DC=com`, ou.Id)
	assert.Equal(t, []string{"R&D, East"}, addAttribute(conn.adds[0], "ou"))

	_, err = le.CreateOrganizationalUnit(context.Background(), "Locked", true)
	assert.Error(t, err)
}

func TestLdapCreateAccount(t *testing.T) {
	var conn = &fakeLdapConn{addErrors: []error{ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("exists"))}}
	var le = newTestLdapEndpoint(t, conn)
	var account = &NewAccount{
		GivenName:             "Ada",
		Surname:               "Lovelace",
		AccountName:           "LovelaceAd",
		PrincipalName:         "LovelaceAd@example.com",
		Password:              "pw",
		Enabled:               true,
		ChangePasswordAtLogon: true,
		Title:                 "Analyst",
		OrganizationalUnit:    &OrganizationalUnit{Id: "OU=West,DC=example,DC=com", Name: "West"},
		UniqueIdProperty:      "EmployeeID",
		UniqueId:              "2",
	}
	require.NoError(t, le.CreateAccount(context.Background(), account))
	require.Len(t, conn.adds, 2)
	assert.Equal(t, "CN=Ada Lovelace,OU=West,DC=example,DC=com", conn.adds[0].DN)
	assert.Equal(t, "CN=LovelaceAd,OU=West,DC=example,DC=com", conn.adds[1].DN)

	var rq = conn.adds[1]
	assert.Equal(t, []string{"2"}, addAttribute(rq, "employeeID"))
	assert.Equal(t, []string{"512"}, addAttribute(rq, "userAccountControl"))
	assert.Equal(t, []string{"0"}, addAttribute(rq, "pwdLastSet"))
	assert.Nil(t, addAttribute(rq, "department"))
	assert.Equal(t, []string{"\"\x00p\x00w\x00\"\x00"}, addAttribute(rq, "unicodePwd"))

	account.OrganizationalUnit = nil
	assert.ErrorIs(t, le.CreateAccount(context.Background(), account), ErrMissingOrganizationalUnit)
}

func TestLdapUpdateAndDisable(t *testing.T) {
	var conn = &fakeLdapConn{entries: []*ldap.Entry{
		ldap.NewEntry("CN=Ada Lovelace,OU=West,DC=example,DC=com", map[string][]string{"userAccountControl": {"66048"}}),
	}}
	var le = newTestLdapEndpoint(t, conn)
	var account = &DirectoryAccount{Id: "CN=Ada Lovelace,OU=West,DC=example,DC=com", AccountName: "LovelaceA"}
	var empty = ""

	require.NoError(t, le.UpdateAccount(context.Background(), account, &AccountUpdate{
		AccountName:   "LovelaceA",
		PrincipalName: "LovelaceA@example.com",
		Title:         &empty,
	}))
	var changes = conn.modifies[0].Changes
	require.Len(t, changes, 3)
	assert.Equal(t, "title", changes[2].Modification.Type)
	assert.Empty(t, changes[2].Modification.Vals)

	require.NoError(t, le.DisableAccount(context.Background(), account))
	var disable = conn.modifies[1].Changes[0].Modification
	assert.Equal(t, "userAccountControl", disable.Type)
	assert.Equal(t, []string{"66050"}, disable.Vals)

	require.NoError(t, le.MoveAccount(context.Background(), account, &OrganizationalUnit{Id: "OU=East,DC=example,DC=com"}))
	assert.Equal(t, "CN=Ada Lovelace", conn.modifyDNs[0].NewRDN)
	assert.Equal(t, "OU=East,DC=example,DC=com", conn.modifyDNs[0].NewSuperior)

	require.NoError(t, le.SetAccountExpiration(context.Background(), account, time.Date(2026, time.March, 19, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, []string{"134183520000000000"}, conn.modifies[2].Changes[0].Modification.Vals)

	require.NoError(t, le.Close())
	assert.True(t, conn.closed)
}

func TestLdapDeactivateAccount(t *testing.T) {
	var conn = &fakeLdapConn{entries: []*ldap.Entry{
		ldap.NewEntry("CN=Grace Hopper,OU=West,DC=example,DC=com", map[string][]string{"userAccountControl": {"512"}}),
	}}
	var le = newTestLdapEndpoint(t, conn)
	var account = &DirectoryAccount{Id: "CN=Grace Hopper,OU=West,DC=example,DC=com", AccountName: "HopperG"}

	require.NoError(t, le.DeactivateAccount(context.Background(), account, time.Date(2026, time.March, 19, 0, 0, 0, 0, time.UTC)))
	require.Len(t, conn.modifies, 1)
	var changes = conn.modifies[0].Changes
	require.Len(t, changes, 2)
	assert.Equal(t, "accountExpires", changes[0].Modification.Type)
	assert.Equal(t, []string{"134183520000000000"}, changes[0].Modification.Vals)
	assert.Equal(t, "userAccountControl", changes[1].Modification.Type)
	assert.Equal(t, []string{"514"}, changes[1].Modification.Vals)

	var directory IDirectory = le
	_, ok := directory.(IAccountDeactivator)
	assert.True(t, ok)
}

func TestLdapCancelledContext(t *testing.T) {
	var le = newTestLdapEndpoint(t, &fakeLdapConn{})
	var ctx, cancel = context.WithCancel(context.Background())
	cancel()
	_, err := le.QueryAccounts(ctx, AccountFilter{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileTime(t *testing.T) {
	var date = time.Date(2026, time.March, 19, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "134183520000000000", formatFileTime(date))
	assert.Equal(t, date, *parseFileTime(formatFileTime(date)))
	assert.Nil(t, parseFileTime("0"))
	assert.Nil(t, parseFileTime(accountNeverExpires))
	assert.Nil(t, parseFileTime("garbage"))
}

func TestEscapeDNValue(t *testing.T) {
	assert.Equal(t, `Smith\, John`, escapeDNValue("Smith, John"))
	assert.Equal(t, `\#1 \+ 2`, escapeDNValue("#1 + 2"))
	assert.Equal(t, `\ lead trail\ `, escapeDNValue(" lead trail "))
	assert.Equal(t, `a\\b\=c`, escapeDNValue(`a\b=c`))
}

func TestSplitDN(t *testing.T) {
	rdn, parent := splitDN(`CN=Smith\, John,OU=West,DC=example,DC=com`)
	assert.Equal(t, `CN=Smith\, John`, rdn)
	assert.Equal(t, "OU=West,DC=example,DC=com", parent)

	rdn, parent = splitDN("DC=com")
	assert.Equal(t, "DC=com", rdn)
	assert.Equal(t, "", parent)
}

func TestParentOrganizationalUnit(t *testing.T) {
	assert.Equal(t, "West", parentOrganizationalUnit("CN=Ada,OU=West,OU=Schools,DC=example,DC=com"))
	assert.Equal(t, "", parentOrganizationalUnit("CN=Ada,CN=Users,DC=example,DC=com"))
	assert.Equal(t, "", parentOrganizationalUnit("not a dn"))
}
