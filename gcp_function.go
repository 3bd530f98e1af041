package ksm_ad_sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"
	ksm "github.com/keeper-security/secrets-manager-go/core"
	"github.com/sirupsen/logrus"
	"keepersecurity.com/ksm-adsync/adsync"
)

func init() {
	// Register an HTTP function with the Functions Framework
	functions.HTTP("GcpAdSyncHttp", gcpAdSyncHttp)
	functions.CloudEvent("GcpAdSyncPubSub", gcpAdSyncPubSub)
}

const ksmConfigName = "KSM_CONFIG_BASE64"
const ksmRecordUid = "KSM_RECORD_UID"

func runAdSync(ctx context.Context) (syncStat *adsync.SyncStat, err error) {
	var logger = adsync.GetLogger()
	var configBase64 = os.Getenv(ksmConfigName)
	if len(configBase64) == 0 {
		err = fmt.Errorf("environment variable \"%s\" is not set", ksmConfigName)
		adsync.LogError(logger, "runAdSync", "read KSM configuration", nil, err)
		return
	}

	var config = ksm.NewMemoryKeyValueStorage(configBase64)
	var sm = ksm.NewSecretsManager(&ksm.ClientOptions{
		Config: config,
	})

	var filter []string
	var recordUid = os.Getenv(ksmRecordUid)
	if len(recordUid) > 0 {
		filter = append(filter, recordUid)
	}

	var records []*ksm.Record
	if records, err = sm.GetSecrets(filter); err != nil {
		adsync.LogError(logger, "runAdSync", "get secrets", filter, err)
		return
	}

	var adRecord *ksm.Record
	for _, r := range records {
		if r.Type() != "login" {
			continue
		}
		if len(r.GetCustomFieldsByLabel("Sync Field Map")) == 0 {
			continue
		}
		adRecord = r
		break
	}
	if adRecord == nil {
		err = errors.New("directory sync record was not found. Make sure the record has a \"Sync Field Map\" field and is shared to KSM application")
		adsync.LogError(logger, "runAdSync", "find record", filter, err)
		return
	}

	var params *adsync.SyncParameters
	if params, err = adsync.LoadSyncParametersFromRecord(adRecord); err != nil {
		adsync.LogError(logger, "runAdSync", "load parameters", adRecord.Uid, err)
		return
	}
	if err = params.Validate(); err != nil {
		adsync.LogError(logger, "runAdSync", "validate parameters", adRecord.Uid, err)
		return
	}
	if params.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	var directory adsync.IDirectory
	if directory, err = adsync.OpenDirectory(params); err != nil {
		adsync.LogError(logger, "runAdSync", "open directory", nil, err)
		return
	}
	defer func() { _ = adsync.CloseDirectory(directory) }()

	var sync = adsync.NewAdSync(directory, params)
	syncStat, err = sync.Sync(ctx)
	return
}

func printStatistics(w io.Writer, syncStat *adsync.SyncStat) {
	if syncStat == nil {
		return
	}
	var section = func(title string, lines []string) {
		if len(lines) > 0 {
			_, _ = fmt.Fprintf(w, "%s:\n", title)
			for _, txt := range lines {
				_, _ = fmt.Fprintf(w, "\t%s\n", txt)
			}
		}
	}
	section("Organizational Units Created", syncStat.CreatedOUs)
	section("Users Created", syncStat.CreatedUsers)
	section("Users Updated", syncStat.UpdatedUsers)
	section("Users Disabled", syncStat.DisabledUsers)
	section("Moves Skipped", syncStat.SkippedMoves)
	if len(syncStat.Failures) > 0 {
		_, _ = fmt.Fprintf(w, "Failures:\n")
		for _, f := range syncStat.Failures {
			_, _ = fmt.Fprintf(w, "\t%s %s: %v\n", f.Action, f.UniqueId, f.Err)
		}
	}
}

// Function gcpAdSyncHttp is an HTTP handler
func gcpAdSyncHttp(w http.ResponseWriter, r *http.Request) {
	var syncStat, err = runAdSync(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	printStatistics(w, syncStat)
}

// gcpAdSyncPubSub runs the synchronization on a Pub/Sub CloudEvent. The message content is ignored.
func gcpAdSyncPubSub(ctx context.Context, _ event.Event) (err error) {
	var syncStat *adsync.SyncStat
	if syncStat, err = runAdSync(ctx); err == nil {
		printStatistics(os.Stdout, syncStat)
	}
	return
}
