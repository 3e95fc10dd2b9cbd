// internal/lifecycle/notifier_test.go

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"ctp-notifications/internal/delivery"
	"ctp-notifications/internal/idempotency"
	"ctp-notifications/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reminderEvent(effects ...string) Event {
	return Event{
		Type:       "inspection_reminder",
		Collection: models.CollectionOffers,
		DocumentID: "o1",
		Identity:   "2026-03-10|10:00|Midrand",
		Key: idempotency.Key{
			Collection: models.CollectionOffers, DocumentID: "o1",
			EventType: "inspection_reminder", Identity: "2026-03-10|10:00|Midrand",
		},
		Effects: effects,
		Doc: models.Document{
			"offerStatus": "accepted", "dealerId": "d1", "vehicleId": "v1",
			"dealerSelectedInspectionDate":     "2026-03-10",
			"dealerSelectedInspectionTime":     "10:00",
			"dealerSelectedInspectionLocation": "Midrand",
		},
		Marker: models.MarkerPreInspectionReminder,
	}
}

func TestNotify_UnitKeysAreStable(t *testing.T) {
	env := createTestEnv(t, baseDocs())

	res, err := env.notifier.Notify(context.Background(), reminderEvent("inspection_reminder_dealer", "inspection_reminder_transporter"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Units)
	assert.Equal(t, 2, res.Report.Accepted)

	want := []string{
		"idem:offers:o1:inspection_reminder:2026-03-10|10:00|Midrand:inspection_reminder_dealer:push:d1",
		"idem:offers:o1:inspection_reminder:2026-03-10|10:00|Midrand:inspection_reminder_transporter:push:t1",
	}
	var got []string
	for _, u := range env.dispatcher.Units {
		got = append(got, u.Key)
		assert.Equal(t, "inspection_reminder", u.EventType)
		require.NoError(t, u.Validate())
	}
	assert.Equal(t, want, got)

	dealer := env.dispatcher.byDefinition("inspection_reminder_dealer")[0]
	assert.Equal(t, "Your inspection of Volvo FH is at 10:00 today at Midrand.", dealer.Push.Body)
}

func TestNotify_MarkerValueAndAppend(t *testing.T) {
	t.Run("explicit value", func(t *testing.T) {
		env := createTestEnv(t, baseDocs())
		ev := reminderEvent("inspection_reminder_dealer")
		ev.MarkerValue = "2026-03-10T08:00:00Z"

		_, err := env.notifier.Notify(context.Background(), ev)
		require.NoError(t, err)
		require.Len(t, env.markers.Writes, 1)
		assert.Equal(t, "2026-03-10T08:00:00Z", env.markers.Writes[0].Fields[models.MarkerPreInspectionReminder])
	})

	t.Run("append", func(t *testing.T) {
		env := createTestEnv(t, baseDocs())
		ev := reminderEvent("stalled_offer_admin")
		ev.Marker = models.MarkerStalledAlertKeys
		ev.AppendMarker = true
		ev.MarkerValue = "accepted@2026-03-01"

		_, err := env.notifier.Notify(context.Background(), ev)
		require.NoError(t, err)
		require.Len(t, env.markers.Writes, 1)
		assert.Equal(t, "accepted@2026-03-01", env.markers.Writes[0].Appended)
	})

	t.Run("write failure is not fatal", func(t *testing.T) {
		env := createTestEnv(t, baseDocs())
		env.markers.Err = errors.New("datastore down")

		res, err := env.notifier.Notify(context.Background(), reminderEvent("inspection_reminder_dealer"))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Report.Accepted)
	})
}

func TestNotify_VarsOverride(t *testing.T) {
	env := createTestEnv(t, baseDocs())
	ev := reminderEvent("stalled_offer_admin")
	ev.Vars = map[string]string{"lastActivity": "2026-03-01"}

	_, err := env.notifier.Notify(context.Background(), ev)
	require.NoError(t, err)

	units := env.dispatcher.byDefinition("stalled_offer_admin")
	require.NotEmpty(t, units)
	assert.Equal(t, "Offer o1 on Volvo FH has been accepted since 2026-03-01.", units[0].Push.Body)
}

func TestNotify_MissingDefinitionIsSkipped(t *testing.T) {
	env := createTestEnv(t, baseDocs())

	res, err := env.notifier.Notify(context.Background(), reminderEvent("no_such_definition", "inspection_reminder_dealer"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Units)
}

func TestNotify_NoRecipientsStillClaims(t *testing.T) {
	env := createTestEnv(t, map[string]models.Document{})

	res, err := env.notifier.Notify(context.Background(), reminderEvent("inspection_reminder_dealer"))
	require.NoError(t, err)
	assert.Zero(t, res.Units)
	assert.Zero(t, env.dispatcher.Calls)

	res, err = env.notifier.Notify(context.Background(), reminderEvent("inspection_reminder_dealer"))
	require.NoError(t, err)
	assert.Equal(t, ReasonDuplicate, res.Skipped)
}

func TestNotify_DealerMulticastBatches(t *testing.T) {
	docs := baseDocs()
	for i := 0; i < delivery.MaxMulticastTokens+20; i++ {
		docs[fmt.Sprintf("users/dealer%d", i)] = models.Document{"userRole": "dealer", "fcmToken": fmt.Sprintf("DT%d", i)}
	}
	docs["users/dup"] = models.Document{"userRole": "dealer", "fcmToken": "DT0"}
	env := createTestEnv(t, docs)

	ev := Event{
		Type:       EventVehicleStatus,
		Collection: models.CollectionVehicles,
		DocumentID: "v1",
		Identity:   "pending->approved@evt-2",
		Key:        idempotency.Key{Collection: "vehicles", DocumentID: "v1", EventType: EventVehicleStatus, Identity: "pending->approved@evt-2"},
		Effects:    []string{"vehicle_listed_dealers"},
		Doc:        docs["vehicles/v1"],
	}
	_, err := env.notifier.Notify(context.Background(), ev)
	require.NoError(t, err)

	var batches [][]string
	for _, u := range env.dispatcher.byDefinition("vehicle_listed_dealers") {
		if u.Channel == delivery.ChannelPush {
			batches = append(batches, u.Push.Tokens)
		}
	}
	require.Len(t, batches, 2)
	// d1 plus the generated dealers, with the duplicate token removed
	assert.Equal(t, delivery.MaxMulticastTokens+21, len(batches[0])+len(batches[1]))
	assert.Len(t, batches[0], delivery.MaxMulticastTokens)
}

func TestNotify_ClaimFailureIsRetryable(t *testing.T) {
	env := createTestEnv(t, baseDocs())
	env.redis.Close()

	_, err := env.notifier.Notify(context.Background(), reminderEvent("inspection_reminder_dealer"))
	require.Error(t, err)
	assert.Zero(t, env.dispatcher.Calls)
}
