package adsync

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultKeepDisabledForDays = 7
	DefaultGoogleCustomer      = "my_customer"
)

type LdapParameters struct {
	Url                string `yaml:"Url" toml:"Url" validate:"required,url"`
	BindDN             string `yaml:"BindDN" toml:"BindDN" validate:"required"`
	BindPassword       string `yaml:"BindPassword" toml:"BindPassword"`
	BaseDN             string `yaml:"BaseDN" toml:"BaseDN"`
	InsecureSkipVerify bool   `yaml:"InsecureSkipVerify" toml:"InsecureSkipVerify"`
}

type GoogleParameters struct {
	Credentials     []byte `yaml:"-" toml:"-"`
	CredentialsFile string `yaml:"CredentialsFile" toml:"CredentialsFile"`
	AdminAccount    string `yaml:"AdminAccount" toml:"AdminAccount" validate:"required,email"`
	Customer        string `yaml:"Customer" toml:"Customer"`
	ExpirySchema    string `yaml:"ExpirySchema" toml:"ExpirySchema"`
}

type DirectoryParameters struct {
	Ldap   *LdapParameters   `yaml:"Ldap" toml:"Ldap"`
	Google *GoogleParameters `yaml:"Google" toml:"Google"`
}

// SyncParameters is the run context shared by every step of a synchronization.
// It is not modified once a run starts.
type SyncParameters struct {
	CSVFilePath string `yaml:"CSVFilePath" toml:"CSVFilePath"`
	// RosterData holds roster content supplied in memory, e.g. a Keeper record attachment.
	RosterData          []byte              `yaml:"-" toml:"-"`
	Delimiter           string              `yaml:"Delimiter" toml:"Delimiter"`
	Domain              string              `yaml:"Domain" toml:"Domain" validate:"required,hostname_rfc1123"`
	SyncFieldMap        FieldMap            `yaml:"SyncFieldMap" toml:"SyncFieldMap"`
	UniqueID            string              `yaml:"UniqueID" toml:"UniqueID" validate:"required"`
	OUProperty          string              `yaml:"OUProperty" toml:"OUProperty" validate:"required"`
	KeepDisabledForDays int                 `yaml:"KeepDisabledForDays" toml:"KeepDisabledForDays" validate:"gte=0"`
	PasswordLength      int                 `yaml:"PasswordLength" toml:"PasswordLength" validate:"gte=0"`
	DryRun              bool                `yaml:"DryRun" toml:"DryRun"`
	Verbose             bool                `yaml:"Verbose" toml:"Verbose"`
	Directory           DirectoryParameters `yaml:"Directory" toml:"Directory"`
}

func DefaultSyncParameters() *SyncParameters {
	return &SyncParameters{
		Delimiter:           DefaultDelimiter,
		KeepDisabledForDays: DefaultKeepDisabledForDays,
		PasswordLength:      DefaultPasswordLength,
	}
}

// LoadSyncParameters reads a YAML file, or a TOML file when the extension is ".toml",
// over the defaults. Environment overrides are applied afterwards.
func LoadSyncParameters(path string) (params *SyncParameters, err error) {
	var cleanPath = filepath.Clean(path)
	var data []byte
	if data, err = os.ReadFile(cleanPath); err != nil {
		err = fmt.Errorf("failed to read config file: %w", err)
		return
	}

	params = DefaultSyncParameters()
	if strings.EqualFold(filepath.Ext(cleanPath), ".toml") {
		err = toml.Unmarshal(data, params)
	} else {
		err = yaml.Unmarshal(data, params)
	}
	if err != nil {
		params = nil
		err = fmt.Errorf("failed to parse config file: %w", err)
		return
	}

	if err = params.ApplyEnvironment(os.LookupEnv); err != nil {
		params = nil
	}
	return
}

// ApplyEnvironment overrides parameters with ADSYNC_* variables.
func (p *SyncParameters) ApplyEnvironment(lookup func(string) (string, bool)) (err error) {
	var v string
	var ok bool
	var str = func(name string, target *string) {
		if v, ok = lookup(name); ok {
			*target = v
		}
	}
	var boolean = func(name string, target *bool) {
		if v, ok = lookup(name); ok {
			var bv bool
			if bv, ok = toBoolean(v); ok {
				*target = bv
			} else if err == nil {
				err = fmt.Errorf("environment variable \"%s\": invalid boolean \"%s\"", name, v)
			}
		}
	}
	var integer = func(name string, target *int) {
		if v, ok = lookup(name); ok {
			var iv int
			var er1 error
			if iv, er1 = strconv.Atoi(strings.TrimSpace(v)); er1 == nil {
				*target = iv
			} else if err == nil {
				err = fmt.Errorf("environment variable \"%s\": %w", name, er1)
			}
		}
	}

	str("ADSYNC_CSV_FILE_PATH", &p.CSVFilePath)
	str("ADSYNC_DELIMITER", &p.Delimiter)
	str("ADSYNC_DOMAIN", &p.Domain)
	str("ADSYNC_UNIQUE_ID", &p.UniqueID)
	str("ADSYNC_OU_PROPERTY", &p.OUProperty)
	integer("ADSYNC_KEEP_DISABLED_FOR_DAYS", &p.KeepDisabledForDays)
	integer("ADSYNC_PASSWORD_LENGTH", &p.PasswordLength)
	boolean("ADSYNC_DRY_RUN", &p.DryRun)
	boolean("ADSYNC_VERBOSE", &p.Verbose)

	if v, ok = lookup("ADSYNC_SYNC_FIELD_MAP"); ok {
		var fm FieldMap
		var er1 error
		if fm, er1 = ParseFieldMap(v); er1 == nil {
			p.SyncFieldMap = fm
		} else if err == nil {
			err = fmt.Errorf("environment variable \"ADSYNC_SYNC_FIELD_MAP\": %w", er1)
		}
	}

	if _, ok = lookup("ADSYNC_LDAP_URL"); ok && p.Directory.Ldap == nil {
		p.Directory.Ldap = new(LdapParameters)
	}
	if p.Directory.Ldap != nil {
		str("ADSYNC_LDAP_URL", &p.Directory.Ldap.Url)
		str("ADSYNC_LDAP_BIND_DN", &p.Directory.Ldap.BindDN)
		str("ADSYNC_LDAP_BIND_PASSWORD", &p.Directory.Ldap.BindPassword)
		str("ADSYNC_LDAP_BASE_DN", &p.Directory.Ldap.BaseDN)
	}
	if _, ok = lookup("ADSYNC_GOOGLE_ADMIN_ACCOUNT"); ok && p.Directory.Google == nil {
		p.Directory.Google = new(GoogleParameters)
	}
	if p.Directory.Google != nil {
		str("ADSYNC_GOOGLE_ADMIN_ACCOUNT", &p.Directory.Google.AdminAccount)
		str("ADSYNC_GOOGLE_CREDENTIALS_FILE", &p.Directory.Google.CredentialsFile)
	}
	return
}

var validate = validator.New()

// Validate checks required options and the cross-field rules of the field map.
func (p *SyncParameters) Validate() (err error) {
	if err = validate.Struct(p); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			var msgs []string
			for _, fe := range ve {
				msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
			}
			err = fmt.Errorf("%w: %s", ErrInvalidParameters, strings.Join(msgs, "; "))
		} else {
			err = fmt.Errorf("%w: %v", ErrInvalidParameters, err)
		}
		return
	}
	if len(p.CSVFilePath) == 0 && len(p.RosterData) == 0 {
		return fmt.Errorf("%w: CSVFilePath is required", ErrInvalidParameters)
	}
	if _, err = parseDelimiter(p.Delimiter); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if err = p.SyncFieldMap.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	for _, field := range []string{p.UniqueID, p.OUProperty, FieldGivenName, FieldSurname} {
		if !p.SyncFieldMap.HasCanonical(field) {
			return fmt.Errorf("%w: SyncFieldMap does not map a column to \"%s\"", ErrInvalidParameters, field)
		}
	}
	if (p.Directory.Ldap == nil) == (p.Directory.Google == nil) {
		return fmt.Errorf("%w: exactly one of Directory.Ldap or Directory.Google must be set", ErrInvalidParameters)
	}
	if p.Directory.Google != nil {
		if len(p.Directory.Google.Credentials) == 0 && len(p.Directory.Google.CredentialsFile) == 0 {
			return fmt.Errorf("%w: Directory.Google requires credentials", ErrInvalidParameters)
		}
	}
	return
}

// Roster reads the roster from RosterData when present, otherwise from CSVFilePath.
func (p *SyncParameters) Roster() ([]PersonRecord, error) {
	if len(p.RosterData) > 0 {
		return ReadRoster(bytes.NewReader(p.RosterData), p.Delimiter, p.SyncFieldMap)
	}
	return LoadRoster(p.CSVFilePath, p.Delimiter, p.SyncFieldMap)
}

func (p *SyncParameters) PasswordPolicy() PasswordPolicy {
	var policy = DefaultPasswordPolicy()
	if p.PasswordLength > 0 {
		policy.Length = p.PasswordLength
	}
	return policy
}

// PrincipalName returns accountName@Domain.
func (p *SyncParameters) PrincipalName(accountName string) string {
	return accountName + "@" + p.Domain
}

// DomainBaseDN converts a DNS domain into its directory base DN, "example.com" -> "DC=example,DC=com".
func DomainBaseDN(domain string) string {
	var parts []string
	for _, label := range strings.Split(strings.Trim(domain, "."), ".") {
		if len(label) > 0 {
			parts = append(parts, "DC="+label)
		}
	}
	return strings.Join(parts, ",")
}

// UnmarshalTOML accepts a table, an array of {source, canonical} tables or the text form.
func (fm *FieldMap) UnmarshalTOML(data any) (err error) {
	switch dt := data.(type) {
	case map[string]any:
		var m = make(map[string]string, len(dt))
		for k, v := range dt {
			var s, ok = toString(v)
			if !ok {
				return fmt.Errorf("field map entry \"%s\": value must be a string", k)
			}
			m[k] = s
		}
		*fm = FieldMapFromMap(m)
	case []map[string]any:
		var result FieldMap
		for _, item := range dt {
			var source, _ = toString(item["source"])
			var canonical, _ = toString(item["canonical"])
			result = append(result, FieldMapping{Source: source, Canonical: canonical})
		}
		*fm = result
	case []any:
		var result FieldMap
		for _, v := range dt {
			var item, ok = v.(map[string]any)
			if !ok {
				return fmt.Errorf("unsupported field map entry %T", v)
			}
			var source, _ = toString(item["source"])
			var canonical, _ = toString(item["canonical"])
			result = append(result, FieldMapping{Source: source, Canonical: canonical})
		}
		*fm = result
	case string:
		var result FieldMap
		if result, err = ParseFieldMap(dt); err != nil {
			return
		}
		*fm = result
	default:
		err = fmt.Errorf("unsupported field map format %T", data)
	}
	return
}

// OpenDirectory connects the directory backend selected by p.
// The endpoint is wrapped in a DryRunEndpoint when p.DryRun is set.
func OpenDirectory(p *SyncParameters) (directory IDirectory, err error) {
	switch {
	case p.Directory.Ldap != nil:
		var le *LdapEndpoint
		if le, err = NewLdapEndpoint(p); err != nil {
			return
		}
		directory = le
	case p.Directory.Google != nil:
		if directory, err = NewGoogleEndpoint(p); err != nil {
			return
		}
	default:
		err = fmt.Errorf("%w: directory backend is not configured", ErrInvalidParameters)
		return
	}
	if p.DryRun {
		directory = NewDryRunEndpoint(directory, GetLogger())
	}
	return
}

// CloseDirectory releases the connection held by directory, if any.
func CloseDirectory(directory IDirectory) (err error) {
	if d, ok := directory.(*DryRunEndpoint); ok {
		directory = d.directory
	}
	if c, ok := directory.(interface{ Close() error }); ok {
		err = c.Close()
	}
	return
}
