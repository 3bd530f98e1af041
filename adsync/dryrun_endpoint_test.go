package adsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDryRunDoesNotMutate(t *testing.T) {
	var fd = newFakeDirectory("EmployeeID")
	fd.addOU("West")
	var stale = fd.addAccount("7", "HopperG", "West", true, nil)
	var dry = NewDryRunEndpoint(fd, quietLogger())

	var s = NewAdSync(dry, syncParameters("5,Ada,Lovelace,,Engineering\n6,Adam,Lovelace,,Engineering\n"),
		WithLogger(quietLogger()), WithClock(func() time.Time { return runDate }))
	syncStat, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Engineering"}, syncStat.CreatedOUs)
	assert.Equal(t, []string{"5 (LovelaceA)", "6 (LovelaceAd)"}, syncStat.CreatedUsers)
	assert.Equal(t, []string{"7 (HopperG)"}, syncStat.DisabledUsers)
	assert.Empty(t, syncStat.Failures)

	assert.Empty(t, fd.created)
	assert.Empty(t, fd.createdOUs)
	assert.True(t, stale.Enabled)
	assert.Nil(t, stale.Expires)

	assert.Equal(t, []string{
		`create organizational unit "Engineering"`,
		`create account "LovelaceA" for 5 in "Engineering"`,
		`create account "LovelaceAd" for 6 in "Engineering"`,
		`set account "HopperG" expiration to 2026-03-16`,
		`disable account "HopperG"`,
	}, dry.Actions())
}

func TestDryRunRename(t *testing.T) {
	var fd = newFakeDirectory("EmployeeID")
	var account = fd.addAccount("1", "Old", "West", true, nil)
	var dry = NewDryRunEndpoint(fd, quietLogger())

	require.NoError(t, dry.UpdateAccount(context.Background(), account, &AccountUpdate{AccountName: "New"}))
	assert.Equal(t, "Old", account.AccountName)

	uid, found, err := dry.AccountNameOwner(context.Background(), "New")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", uid)
	assert.Len(t, dry.Actions(), 2)
}
