package adsync

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"golang.org/x/text/encoding/unicode"
)

// userAccountControl flags
const (
	uacAccountDisable = 0x0002
	uacNormalAccount  = 0x0200
)

const (
	ldapPageSize = 500
	// 100ns intervals between 1601-01-01 and 1970-01-01
	fileTimeEpochOffset = 116444736000000000
	accountNeverExpires = "9223372036854775807"
)

// canonical name -> Active Directory LDAP attribute
var ldapAttributeNames = map[string]string{
	"GivenName":         "givenName",
	"Surname":           "sn",
	"DisplayName":       "displayName",
	"Name":              "cn",
	"EmployeeID":        "employeeID",
	"EmployeeNumber":    "employeeNumber",
	"Title":             "title",
	"Department":        "department",
	"Division":          "division",
	"Company":           "company",
	"Office":            "physicalDeliveryOfficeName",
	"Description":       "description",
	"EmailAddress":      "mail",
	"Manager":           "manager",
	"SamAccountName":    "sAMAccountName",
	"UserPrincipalName": "userPrincipalName",
}

func ldapAttribute(canonical string) string {
	if attr, ok := ldapAttributeNames[canonical]; ok {
		return attr
	}
	return canonical
}

type ldapConn interface {
	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchWithPaging(searchRequest *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
	Add(addRequest *ldap.AddRequest) error
	Modify(modifyRequest *ldap.ModifyRequest) error
	ModifyDN(modifyDNRequest *ldap.ModifyDNRequest) error
	Close() error
}

// LdapEndpoint is an IDirectory backed by Active Directory over LDAP.
// The connection is opened on first use.
type LdapEndpoint struct {
	params   LdapParameters
	baseDN   string
	uniqueId string
	dial     func(params *LdapParameters) (ldapConn, error)
	conn     ldapConn
}

// NewLdapEndpoint creates an Active Directory endpoint from params.Directory.Ldap.
// The base DN defaults to the one derived from params.Domain.
func NewLdapEndpoint(params *SyncParameters) (endpoint *LdapEndpoint, err error) {
	if params.Directory.Ldap == nil {
		err = errors.New("LDAP directory parameters are not set")
		return
	}
	endpoint = &LdapEndpoint{
		params:   *params.Directory.Ldap,
		baseDN:   params.Directory.Ldap.BaseDN,
		uniqueId: params.UniqueID,
		dial:     dialLdap,
	}
	if len(endpoint.baseDN) == 0 {
		endpoint.baseDN = DomainBaseDN(params.Domain)
	}
	return
}

func dialLdap(params *LdapParameters) (conn ldapConn, err error) {
	var uri *url.URL
	if uri, err = url.Parse(params.Url); err != nil {
		return
	}
	var tlsConfig = &tls.Config{
		ServerName:         uri.Hostname(),
		InsecureSkipVerify: params.InsecureSkipVerify, //nolint:gosec // G402: opt-in for lab directories
	}
	var lc *ldap.Conn
	if lc, err = ldap.DialURL(params.Url, ldap.DialWithTLSConfig(tlsConfig)); err != nil {
		return
	}
	if strings.EqualFold(uri.Scheme, "ldap") {
		if err = lc.StartTLS(tlsConfig); err != nil {
			_ = lc.Close()
			return
		}
	}
	if err = lc.Bind(params.BindDN, params.BindPassword); err != nil {
		_ = lc.Close()
		return
	}
	conn = lc
	return
}

func (le *LdapEndpoint) connection(ctx context.Context) (conn ldapConn, err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	if le.conn == nil {
		if le.conn, err = le.dial(&le.params); err != nil {
			err = directoryError("connect", le.params.Url, err)
			return
		}
	}
	conn = le.conn
	return
}

func (le *LdapEndpoint) Close() (err error) {
	if le.conn != nil {
		err = le.conn.Close()
		le.conn = nil
	}
	return
}

func accountFilterString(filter AccountFilter) string {
	var sb strings.Builder
	sb.WriteString("(&(objectCategory=person)(objectClass=user)")
	for _, p := range filter.Present {
		sb.WriteString("(" + ldap.EscapeFilter(ldapAttribute(p)) + "=*)")
	}
	var keys = make([]string, 0, len(filter.Equal))
	for k := range filter.Equal {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString("(" + ldap.EscapeFilter(ldapAttribute(k)) + "=" + ldap.EscapeFilter(filter.Equal[k]) + ")")
	}
	sb.WriteString(")")
	return sb.String()
}

func (le *LdapEndpoint) QueryAccounts(ctx context.Context, filter AccountFilter, properties []string) (accounts []*DirectoryAccount, err error) {
	var conn ldapConn
	if conn, err = le.connection(ctx); err != nil {
		return
	}
	var attributes = MakeSet[string]([]string{"sAMAccountName", "userPrincipalName", "userAccountControl", "accountExpires", ldapAttribute(le.uniqueId)})
	for _, p := range properties {
		attributes.Add(ldapAttribute(p))
	}
	var attrs = attributes.ToArray()
	sort.Strings(attrs)

	var rq = ldap.NewSearchRequest(le.baseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		accountFilterString(filter), attrs, nil)
	var rs *ldap.SearchResult
	if rs, err = conn.SearchWithPaging(rq, ldapPageSize); err != nil {
		err = directoryError("query accounts", rq.Filter, err)
		return
	}
	for _, entry := range rs.Entries {
		accounts = append(accounts, le.parseAccount(entry, properties))
	}
	return
}

func (le *LdapEndpoint) parseAccount(entry *ldap.Entry, properties []string) *DirectoryAccount {
	var account = &DirectoryAccount{
		Id:                 entry.DN,
		UniqueId:           entry.GetAttributeValue(ldapAttribute(le.uniqueId)),
		AccountName:        entry.GetAttributeValue("sAMAccountName"),
		PrincipalName:      entry.GetAttributeValue("userPrincipalName"),
		Enabled:            true,
		OrganizationalUnit: parentOrganizationalUnit(entry.DN),
		Fields:             make(PersonRecord, len(properties)),
	}
	if uac, err := strconv.ParseInt(entry.GetAttributeValue("userAccountControl"), 10, 64); err == nil {
		account.Enabled = uac&uacAccountDisable == 0
	}
	account.Expires = parseFileTime(entry.GetAttributeValue("accountExpires"))
	for _, p := range properties {
		account.Fields[p] = entry.GetAttributeValue(ldapAttribute(p))
	}
	return account
}

func (le *LdapEndpoint) AccountNameExists(ctx context.Context, accountName string) (exists bool, err error) {
	_, exists, err = le.AccountNameOwner(ctx, accountName)
	return
}

// AccountNameOwner searches every object class: sAMAccountName is unique across the domain.
func (le *LdapEndpoint) AccountNameOwner(ctx context.Context, accountName string) (uniqueId string, found bool, err error) {
	var conn ldapConn
	if conn, err = le.connection(ctx); err != nil {
		return
	}
	var uniqueAttr = ldapAttribute(le.uniqueId)
	var rq = ldap.NewSearchRequest(le.baseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		"(sAMAccountName="+ldap.EscapeFilter(accountName)+")", []string{"sAMAccountName", uniqueAttr}, nil)
	var rs *ldap.SearchResult
	if rs, err = conn.Search(rq); err != nil {
		err = directoryError("find account name", accountName, err)
		return
	}
	if len(rs.Entries) > 0 {
		found = true
		uniqueId = rs.Entries[0].GetAttributeValue(uniqueAttr)
	}
	return
}

func (le *LdapEndpoint) FindOrganizationalUnit(ctx context.Context, name string) (ou *OrganizationalUnit, err error) {
	var conn ldapConn
	if conn, err = le.connection(ctx); err != nil {
		return
	}
	var rq = ldap.NewSearchRequest(le.baseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		"(&(objectClass=organizationalUnit)(ou="+ldap.EscapeFilter(name)+"))", []string{"ou"}, nil)
	var rs *ldap.SearchResult
	if rs, err = conn.Search(rq); err != nil {
		err = directoryError("find organizational unit", name, err)
		return
	}
	if len(rs.Entries) > 0 {
		ou = &OrganizationalUnit{
			Id:   rs.Entries[0].DN,
			Name: name,
		}
	}
	return
}

// CreateOrganizationalUnit creates the unit directly under the base DN.
// Units created here carry no deny-delete ACE.
func (le *LdapEndpoint) CreateOrganizationalUnit(ctx context.Context, name string, protectFromDeletion bool) (ou *OrganizationalUnit, err error) {
	if protectFromDeletion {
		err = directoryError("create organizational unit", name, errors.New("protection from accidental deletion is not supported"))
		return
	}
	var conn ldapConn
	if conn, err = le.connection(ctx); err != nil {
		return
	}
	var dn = "OU=" + escapeDNValue(name) + "," + le.baseDN
	var rq = ldap.NewAddRequest(dn, nil)
	rq.Attribute("objectClass", []string{"top", "organizationalUnit"})
	rq.Attribute("ou", []string{name})
	if err = conn.Add(rq); err != nil {
		err = directoryError("create organizational unit", name, err)
		return
	}
	ou = &OrganizationalUnit{Id: dn, Name: name}
	return
}

func encodePassword(password string) (string, error) {
	var encoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	return encoder.String("\"" + password + "\"")
}

func (le *LdapEndpoint) CreateAccount(ctx context.Context, account *NewAccount) (err error) {
	if account.OrganizationalUnit == nil {
		return fmt.Errorf("%w: account \"%s\"", ErrMissingOrganizationalUnit, account.AccountName)
	}
	var conn ldapConn
	if conn, err = le.connection(ctx); err != nil {
		return
	}
	var pwd string
	if pwd, err = encodePassword(account.Password); err != nil {
		return
	}

	var displayName = strings.TrimSpace(account.GivenName + " " + account.Surname)
	if len(displayName) == 0 {
		displayName = account.AccountName
	}
	var uac = uacNormalAccount
	if !account.Enabled {
		uac |= uacAccountDisable
	}

	var build = func(cn string) *ldap.AddRequest {
		var rq = ldap.NewAddRequest("CN="+escapeDNValue(cn)+","+account.OrganizationalUnit.Id, nil)
		rq.Attribute("objectClass", []string{"top", "person", "organizationalPerson", "user"})
		rq.Attribute("cn", []string{cn})
		rq.Attribute("sAMAccountName", []string{account.AccountName})
		rq.Attribute("userPrincipalName", []string{account.PrincipalName})
		rq.Attribute("displayName", []string{displayName})
		var optional = [][2]string{
			{"givenName", account.GivenName},
			{"sn", account.Surname},
			{"title", account.Title},
			{"department", account.Department},
			{"physicalDeliveryOfficeName", account.Office},
			{ldapAttribute(account.UniqueIdProperty), account.UniqueId},
		}
		for _, kv := range optional {
			if len(kv[1]) > 0 {
				rq.Attribute(kv[0], []string{kv[1]})
			}
		}
		rq.Attribute("unicodePwd", []string{pwd})
		rq.Attribute("userAccountControl", []string{strconv.Itoa(uac)})
		if account.ChangePasswordAtLogon {
			rq.Attribute("pwdLastSet", []string{"0"})
		}
		return rq
	}

	if err = conn.Add(build(displayName)); err != nil && ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists) {
		err = conn.Add(build(account.AccountName))
	}
	if err != nil {
		err = directoryError("create account", account.AccountName, err)
	}
	return
}

func replaceOptional(rq *ldap.ModifyRequest, attr string, value *string) {
	if value == nil {
		return
	}
	if len(*value) == 0 {
		rq.Replace(attr, []string{})
	} else {
		rq.Replace(attr, []string{*value})
	}
}

func (le *LdapEndpoint) UpdateAccount(ctx context.Context, account *DirectoryAccount, update *AccountUpdate) (err error) {
	var conn ldapConn
	if conn, err = le.connection(ctx); err != nil {
		return
	}
	var rq = ldap.NewModifyRequest(account.Id, nil)
	rq.Replace("sAMAccountName", []string{update.AccountName})
	rq.Replace("userPrincipalName", []string{update.PrincipalName})
	replaceOptional(rq, "title", update.Title)
	replaceOptional(rq, "department", update.Department)
	replaceOptional(rq, "physicalDeliveryOfficeName", update.Office)
	if err = conn.Modify(rq); err != nil {
		err = directoryError("update account", account.AccountName, err)
	}
	return
}

func (le *LdapEndpoint) MoveAccount(ctx context.Context, account *DirectoryAccount, ou *OrganizationalUnit) (err error) {
	var conn ldapConn
	if conn, err = le.connection(ctx); err != nil {
		return
	}
	var rdn, _ = splitDN(account.Id)
	var rq = ldap.NewModifyDNRequest(account.Id, rdn, true, ou.Id)
	if err = conn.ModifyDN(rq); err != nil {
		err = directoryError("move account", account.AccountName, err)
	}
	return
}

func (le *LdapEndpoint) SetAccountExpiration(ctx context.Context, account *DirectoryAccount, expires time.Time) (err error) {
	var conn ldapConn
	if conn, err = le.connection(ctx); err != nil {
		return
	}
	var rq = ldap.NewModifyRequest(account.Id, nil)
	rq.Replace("accountExpires", []string{formatFileTime(expires)})
	if err = conn.Modify(rq); err != nil {
		err = directoryError("set account expiration", account.AccountName, err)
	}
	return
}

func (le *LdapEndpoint) userAccountControl(conn ldapConn, account *DirectoryAccount) (uac int64, err error) {
	var rq = ldap.NewSearchRequest(account.Id, ldap.ScopeBaseObject, ldap.NeverDerefAliases, 0, 0, false,
		"(objectClass=*)", []string{"userAccountControl"}, nil)
	var rs *ldap.SearchResult
	if rs, err = conn.Search(rq); err != nil {
		return
	}
	uac = uacNormalAccount
	if len(rs.Entries) > 0 {
		if v, er1 := strconv.ParseInt(rs.Entries[0].GetAttributeValue("userAccountControl"), 10, 64); er1 == nil {
			uac = v
		}
	}
	return
}

func (le *LdapEndpoint) DisableAccount(ctx context.Context, account *DirectoryAccount) (err error) {
	var conn ldapConn
	if conn, err = le.connection(ctx); err != nil {
		return
	}
	var uac int64
	if uac, err = le.userAccountControl(conn, account); err != nil {
		err = directoryError("disable account", account.AccountName, err)
		return
	}
	var mrq = ldap.NewModifyRequest(account.Id, nil)
	mrq.Replace("userAccountControl", []string{strconv.FormatInt(uac|uacAccountDisable, 10)})
	if err = conn.Modify(mrq); err != nil {
		err = directoryError("disable account", account.AccountName, err)
	}
	return
}

// DeactivateAccount writes accountExpires and the disabled flag in one modify
// request, so a failure leaves the account unchanged.
func (le *LdapEndpoint) DeactivateAccount(ctx context.Context, account *DirectoryAccount, expires time.Time) (err error) {
	var conn ldapConn
	if conn, err = le.connection(ctx); err != nil {
		return
	}
	var uac int64
	if uac, err = le.userAccountControl(conn, account); err != nil {
		err = directoryError("deactivate account", account.AccountName, err)
		return
	}
	var mrq = ldap.NewModifyRequest(account.Id, nil)
	mrq.Replace("accountExpires", []string{formatFileTime(expires)})
	mrq.Replace("userAccountControl", []string{strconv.FormatInt(uac|uacAccountDisable, 10)})
	if err = conn.Modify(mrq); err != nil {
		err = directoryError("deactivate account", account.AccountName, err)
	}
	return
}

func formatFileTime(t time.Time) string {
	return strconv.FormatInt(t.UnixNano()/100+fileTimeEpochOffset, 10)
}

func parseFileTime(value string) *time.Time {
	if len(value) == 0 || value == "0" || value == accountNeverExpires {
		return nil
	}
	var ft, err = strconv.ParseInt(value, 10, 64)
	if err != nil || ft <= fileTimeEpochOffset {
		return nil
	}
	var t = time.Unix(0, (ft-fileTimeEpochOffset)*100).UTC()
	return &t
}

// escapeDNValue escapes an attribute value for use in a DN (RFC 4514).
func escapeDNValue(value string) string {
	var sb strings.Builder
	for i, r := range value {
		switch {
		case strings.ContainsRune(",+\"\\<>;=", r):
			sb.WriteRune('\\')
			sb.WriteRune(r)
		case (r == ' ' || r == '#') && i == 0:
			sb.WriteRune('\\')
			sb.WriteRune(r)
		case r == ' ' && i == len(value)-1:
			sb.WriteString("\\ ")
		case r == 0:
			sb.WriteString("\\00")
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// splitDN splits a DN into its first RDN and the parent DN.
func splitDN(dn string) (rdn string, parent string) {
	var escaped = false
	for i, r := range dn {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == ',':
			return dn[:i], dn[i+1:]
		}
	}
	return dn, ""
}

// parentOrganizationalUnit returns the name of the OU directly containing dn.
func parentOrganizationalUnit(dn string) string {
	var parsed, err = ldap.ParseDN(dn)
	if err != nil || len(parsed.RDNs) < 2 {
		return ""
	}
	for _, attr := range parsed.RDNs[1].Attributes {
		if strings.EqualFold(attr.Type, "OU") {
			return attr.Value
		}
	}
	return ""
}
