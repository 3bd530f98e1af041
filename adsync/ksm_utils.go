package adsync

import (
	"errors"
	"fmt"
	"strings"

	ksm "github.com/keeper-security/secrets-manager-go/core"
)

const DefaultRosterFile = "roster.csv"

func customFieldString(record *ksm.Record, label string) (value string) {
	var fields = record.GetCustomFieldsByLabel(label)
	if len(fields) > 0 {
		var values = ParseFieldValues(fields)
		if len(values) > 0 {
			value = strings.TrimSpace(values[0])
		}
	}
	return
}

// LoadSyncParametersFromRecord builds the run configuration from a Keeper record.
// A "credentials.json" attachment selects Google Workspace; otherwise the record
// login, password and URL are the LDAP bind parameters.
func LoadSyncParametersFromRecord(adRecord *ksm.Record) (params *SyncParameters, err error) {
	params = DefaultSyncParameters()
	params.Domain = customFieldString(adRecord, "Domain")
	params.UniqueID = customFieldString(adRecord, "Unique ID")
	params.OUProperty = customFieldString(adRecord, "OU Property")
	if sv := customFieldString(adRecord, "Delimiter"); len(sv) > 0 {
		params.Delimiter = sv
	}

	var fields = adRecord.GetCustomFieldsByLabel("Sync Field Map")
	if len(fields) == 0 {
		err = errors.New("\"Sync Field Map\" custom field is missing or does not contain any value")
		params = nil
		return
	}
	if params.SyncFieldMap, err = ParseFieldMap(strings.Join(ParseFieldValues(fields), "\n")); err != nil {
		err = fmt.Errorf("\"Sync Field Map\" custom field: %w", err)
		params = nil
		return
	}

	var ok bool
	fields = adRecord.GetCustomFieldsByLabel("Keep Disabled For Days")
	if len(fields) > 0 {
		var iv int64
		if iv, ok = toInt64(fields[0]["value"]); ok {
			params.KeepDisabledForDays = int(iv)
		} else {
			params.KeepDisabledForDays = -1
		}
	}
	var bv bool
	fields = adRecord.GetCustomFieldsByLabel("Verbose")
	if len(fields) > 0 {
		if bv, ok = toBoolean(fields[0]["value"]); ok {
			params.Verbose = bv
		}
	}
	fields = adRecord.GetCustomFieldsByLabel("Dry Run")
	if len(fields) > 0 {
		if bv, ok = toBoolean(fields[0]["value"]); ok {
			params.DryRun = bv
		}
	}

	var rosterFile = customFieldString(adRecord, "Roster File")
	if len(rosterFile) == 0 {
		rosterFile = DefaultRosterFile
	}
	var files = adRecord.FindFiles(rosterFile)
	if len(files) == 0 {
		err = fmt.Errorf("roster file \"%s\" is not attached to the record", rosterFile)
		params = nil
		return
	}
	params.CSVFilePath = rosterFile
	params.RosterData = files[0].GetFileData()

	files = adRecord.FindFiles("credentials.json")
	if len(files) > 0 {
		params.Directory.Google = &GoogleParameters{
			AdminAccount: adRecord.GetFieldValueByType("login"),
			Credentials:  files[0].GetFileData(),
			Customer:     DefaultGoogleCustomer,
		}
		return
	}

	params.Directory.Ldap = &LdapParameters{
		Url:          adRecord.GetFieldValueByType("url"),
		BindDN:       adRecord.GetFieldValueByType("login"),
		BindPassword: adRecord.Password(),
		BaseDN:       customFieldString(adRecord, "Base DN"),
	}
	return
}
