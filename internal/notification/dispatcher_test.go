package notification

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coitrack/pkg/domain"
)

func Test_RecipientsFor_ExcludesActor(t *testing.T) {
	recipients := RecipientsFor(EventPoliciesUploaded, domain.PartyBroker)
	assert.ElementsMatch(t,
		[]domain.Party{domain.PartyGC, domain.PartySubcontractor, domain.PartyAdmin},
		recipients)
}

func Test_RecipientsFor_HoldHarmlessCompleted_ContractingPartiesOnly(t *testing.T) {
	recipients := RecipientsFor(EventHoldHarmlessCompleted, domain.PartyGC)
	assert.ElementsMatch(t,
		[]domain.Party{domain.PartyGC, domain.PartySubcontractor},
		recipients)
}

func Test_Dispatch_FillsRecipients(t *testing.T) {
	sink := NewMemorySink()
	d := NewDispatcher(sink, slog.New(slog.DiscardHandler))

	d.Dispatch(context.Background(), Notification{
		Event:      EventCOIApproved,
		COIID:      domain.NewCOIID(),
		ActorParty: domain.PartyAdmin,
	})

	delivered := sink.Delivered()
	require.Len(t, delivered, 1)
	assert.NotContains(t, delivered[0].Recipients, domain.PartyAdmin)
	assert.False(t, delivered[0].OccurredAt.IsZero())
}

func Test_Dispatch_DeliveryFailure_Swallowed(t *testing.T) {
	sink := NewMemorySink()
	sink.FailWith(errors.New("broker down"))
	d := NewDispatcher(sink, slog.New(slog.DiscardHandler))

	// Must not panic or propagate.
	d.Dispatch(context.Background(), Notification{
		Event:      EventCOIApproved,
		COIID:      domain.NewCOIID(),
		ActorParty: domain.PartyAdmin,
	})
	assert.Empty(t, sink.Delivered())
}

type fakeDeduper struct {
	seen map[string]bool
	err  error
}

func (f *fakeDeduper) FirstDelivery(_ context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func Test_Dispatch_Dedupe_CollapsesRepeats(t *testing.T) {
	sink := NewMemorySink()
	d := NewDispatcher(sink, slog.New(slog.DiscardHandler),
		WithDeduper(&fakeDeduper{seen: map[string]bool{}}))

	n := Notification{
		Event:      EventCOIDeficient,
		COIID:      domain.NewCOIID(),
		ActorParty: domain.PartyAdmin,
		DedupeKey:  "coi_deficient:abc:1",
	}
	d.Dispatch(context.Background(), n)
	d.Dispatch(context.Background(), n)
	assert.Len(t, sink.Delivered(), 1)

	// A later loop iteration carries a new key and goes out.
	n.DedupeKey = "coi_deficient:abc:2"
	d.Dispatch(context.Background(), n)
	assert.Len(t, sink.Delivered(), 2)
}

func Test_Dispatch_DedupeError_DeliversAnyway(t *testing.T) {
	sink := NewMemorySink()
	d := NewDispatcher(sink, slog.New(slog.DiscardHandler),
		WithDeduper(&fakeDeduper{err: errors.New("redis down")}))

	d.Dispatch(context.Background(), Notification{
		Event:      EventCOIApproved,
		COIID:      domain.NewCOIID(),
		ActorParty: domain.PartyAdmin,
		DedupeKey:  "coi_approved:abc:1",
	})
	assert.Len(t, sink.Delivered(), 1)
}
