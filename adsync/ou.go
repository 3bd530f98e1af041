package adsync

import (
	"context"
	"sort"
)

// OrganizationalUnitNames returns the distinct non-empty values of ouField, sorted.
func OrganizationalUnitNames(roster []PersonRecord, ouField string) []string {
	var names = NewSet[string]()
	for _, r := range roster {
		if ou := r.Value(ouField); len(ou) > 0 {
			names.Add(ou)
		}
	}
	var result = names.ToArray()
	sort.Strings(result)
	return result
}

// ProvisionOrganizationalUnits creates every OU referenced by the roster that the
// directory does not have yet. Created units are not protected from deletion.
// The first directory error stops provisioning.
func ProvisionOrganizationalUnits(ctx context.Context, dir IDirectory, roster []PersonRecord, ouField string) (created []string, err error) {
	for _, name := range OrganizationalUnitNames(roster, ouField) {
		var ou *OrganizationalUnit
		if ou, err = dir.FindOrganizationalUnit(ctx, name); err != nil {
			err = directoryError("find organizational unit", name, err)
			return
		}
		if ou != nil {
			continue
		}
		if _, err = dir.CreateOrganizationalUnit(ctx, name, false); err != nil {
			err = directoryError("create organizational unit", name, err)
			return
		}
		created = append(created, name)
	}
	return
}
