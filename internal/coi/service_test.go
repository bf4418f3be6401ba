package coi

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coitrack/internal/contractor"
	"coitrack/internal/notification"
	"coitrack/internal/program"
	"coitrack/internal/project"
	"coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
	"coitrack/pkg/requestcontext"
)

type hookRecorder struct {
	approved []domain.COIID
	err      error
}

func (h *hookRecorder) COIApproved(_ context.Context, c *COI) error {
	h.approved = append(h.approved, c.ID)
	return h.err
}

type fixture struct {
	svc      *Service
	store    *InMemoryStore
	sink     *notification.MemorySink
	hook     *hookRecorder
	programs *program.Service

	adminCtx  context.Context
	gcCtx     context.Context
	subCtx    context.Context
	brokerCtx context.Context

	gcID      domain.ActorID
	subID     domain.ContractorID
	projectID domain.ProjectID
	programID domain.ProgramID
}

type fixtureOption func(*program.CreateProgramInput)

func withHoldHarmless() fixtureOption {
	return func(in *program.CreateProgramInput) { in.RequiresHoldHarmless = true }
}

func withMinimums(reqs program.RequirementSet) fixtureOption {
	return func(in *program.CreateProgramInput) { in.Minimums = reqs }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	baseCtx := requestcontext.WithTime(context.Background(), testNow)

	adminID := domain.NewContractorID().AsActor()
	gcID := domain.NewContractorID().AsActor()
	adminCtx := requestcontext.WithActor(baseCtx, domain.PartyAdmin, adminID)

	programSvc := program.NewService(program.NewInMemoryStore())
	programInput := program.CreateProgramInput{
		Name:     "standard program",
		Minimums: program.DefaultMinimums(),
	}
	for _, opt := range opts {
		opt(&programInput)
	}
	prog, err := programSvc.CreateProgram(adminCtx, programInput)
	require.NoError(t, err)

	projectSvc := project.NewService(project.NewInMemoryStore())
	proj, err := projectSvc.CreateProject(adminCtx, project.CreateProjectInput{
		Name:              "downtown tower",
		GCID:              gcID,
		ProgramID:         prog.ID,
		Location:          "100 Main St",
		AdditionalInsured: []string{"Owner LLC"},
	})
	require.NoError(t, err)

	contractorSvc := contractor.NewService(contractor.NewInMemoryStore())
	sub, err := contractorSvc.CreateContractor(adminCtx, contractor.CreateContractorInput{
		Name:   "Apex Roofing",
		Trades: []string{"Roofing", "Sheet Metal"},
	})
	require.NoError(t, err)

	sink := notification.NewMemorySink()
	dispatcher := notification.NewDispatcher(sink, logger)
	hook := &hookRecorder{}
	store := NewInMemoryStore()
	svc := NewService(store, programSvc, projectSvc, contractorSvc, dispatcher, logger,
		WithApprovalHook(hook))

	brokerID := domain.NewContractorID().AsActor()
	return &fixture{
		svc:       svc,
		store:     store,
		sink:      sink,
		hook:      hook,
		programs:  programSvc,
		adminCtx:  adminCtx,
		gcCtx:     requestcontext.WithActor(baseCtx, domain.PartyGC, gcID),
		subCtx:    requestcontext.WithActor(baseCtx, domain.PartySubcontractor, sub.ID.AsActor()),
		brokerCtx: requestcontext.WithActor(baseCtx, domain.PartyBroker, brokerID),
		gcID:      gcID,
		subID:     sub.ID,
		projectID: proj.ID,
		programID: prog.ID,
	}
}

// createCOI opens a COI and walks it to the requested status through the
// service operations.
func (f *fixture) createCOI(t *testing.T, target Status) *COI {
	t.Helper()
	c, err := f.svc.Create(f.gcCtx, f.projectID, f.subID)
	require.NoError(t, err)
	if target == StatusAwaitingBrokerInfo {
		return c
	}

	c, err = f.svc.SubmitBrokerInfo(f.subCtx, c.ID, globalBroker())
	require.NoError(t, err)
	if target == StatusAwaitingBrokerUpload {
		return c
	}

	c, err = f.svc.UploadPolicies(f.brokerCtx, c.ID, fullUploads(testNow.AddDate(1, 0, 0)))
	require.NoError(t, err)
	if target == StatusAwaitingBrokerSignature {
		return c
	}

	for _, pt := range AllPolicyTypes() {
		c, err = f.svc.SignPolicy(f.brokerCtx, c.ID, pt, Signature{
			SignatureRef: "sig/" + string(pt), SignedBy: "Jo Broker",
		})
		require.NoError(t, err)
		if c.Status == StatusAwaitingAdminReview {
			break
		}
	}
	require.Equal(t, StatusAwaitingAdminReview, c.Status)
	if target == StatusAwaitingAdminReview {
		return c
	}

	switch target {
	case StatusActive:
		c, err = f.svc.Review(f.adminCtx, c.ID, ReviewInput{Action: ReviewApprove})
	case StatusDeficiencyPending:
		c, err = f.svc.Review(f.adminCtx, c.ID, ReviewInput{Action: ReviewDeficient, Notes: "fix it"})
	default:
		t.Fatalf("createCOI does not support target %s", target)
	}
	require.NoError(t, err)
	require.Equal(t, target, c.Status)
	return c
}

func Test_Service_Create_SnapshotsTradeAndProjectFacts(t *testing.T) {
	f := newFixture(t)

	c, err := f.svc.Create(f.gcCtx, f.projectID, f.subID)
	require.NoError(t, err)

	assert.Equal(t, StatusAwaitingBrokerInfo, c.Status)
	assert.Equal(t, domain.Trade("roofing"), c.Trade, "primary trade drives resolution")
	assert.Equal(t, f.programID, c.ProgramID)
	assert.Equal(t, []string{"Owner LLC"}, c.AdditionalInsured)
	assert.Equal(t, "100 Main St", c.ProjectLocation)
	assert.Equal(t, HoldHarmlessNotRequired, c.HoldHarmless)
}

func Test_Service_Create_WrongGC_Forbidden(t *testing.T) {
	f := newFixture(t)
	otherGC := requestcontext.WithActor(
		requestcontext.WithTime(context.Background(), testNow),
		domain.PartyGC, domain.NewContractorID().AsActor())

	_, err := f.svc.Create(otherGC, f.projectID, f.subID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func Test_Service_SubmitBrokerInfo_OnlyOwningSubcontractor(t *testing.T) {
	f := newFixture(t)
	c := f.createCOI(t, StatusAwaitingBrokerInfo)

	otherSub := requestcontext.WithActor(
		requestcontext.WithTime(context.Background(), testNow),
		domain.PartySubcontractor, domain.NewContractorID().AsActor())
	_, err := f.svc.SubmitBrokerInfo(otherSub, c.ID, globalBroker())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	updated, err := f.svc.SubmitBrokerInfo(f.subCtx, c.ID, globalBroker())
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingBrokerUpload, updated.Status)
}

func Test_Service_FullLifecycle_Approval(t *testing.T) {
	f := newFixture(t, withHoldHarmless())

	c := f.createCOI(t, StatusActive)

	assert.Equal(t, StatusActive, c.Status)
	assert.Equal(t, testNow, c.ApprovedAt)
	assert.Equal(t, HoldHarmlessPending, c.HoldHarmless)
	require.Len(t, f.hook.approved, 1)
	assert.Equal(t, c.ID, f.hook.approved[0])

	events := f.sink.ByEvent(notification.EventCOIApproved)
	require.Len(t, events, 1)
	// The admin acted, so the admin is not notified.
	assert.NotContains(t, events[0].Recipients, domain.PartyAdmin)
	assert.Contains(t, events[0].Recipients, domain.PartyBroker)
}

func Test_Service_Approval_WithoutHoldHarmlessFlag(t *testing.T) {
	f := newFixture(t)

	c := f.createCOI(t, StatusActive)
	assert.Equal(t, HoldHarmlessNotRequired, c.HoldHarmless)
	assert.Empty(t, f.hook.approved)
}

func Test_Service_Review_CoverageGap_RequirementNotMet(t *testing.T) {
	reqs := program.DefaultMinimums()
	reqs.GLEachOccurrence = 5_000_000 // above the 2M the uploads carry
	f := newFixture(t, withMinimums(reqs))

	c := f.createCOI(t, StatusAwaitingAdminReview)

	_, err := f.svc.Review(f.adminCtx, c.ID, ReviewInput{Action: ReviewApprove})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRequirementNotMet))

	// The COI did not move.
	current, err := f.svc.Get(f.adminCtx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingAdminReview, current.Status)

	// An explicit override approves anyway and is recorded on the trail.
	approved, err := f.svc.Review(f.adminCtx, c.ID, ReviewInput{Action: ReviewApprove, Override: true})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, approved.Status)
	require.Len(t, approved.ReviewNotes, 1)
	assert.True(t, approved.ReviewNotes[0].Override)
}

func Test_Service_Review_DeficientWithoutNotes_Fails(t *testing.T) {
	f := newFixture(t)
	c := f.createCOI(t, StatusAwaitingAdminReview)

	_, err := f.svc.Review(f.adminCtx, c.ID, ReviewInput{Action: ReviewDeficient})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	current, err := f.svc.Get(f.adminCtx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingAdminReview, current.Status)
}

func Test_Service_Review_NonAdmin_Forbidden(t *testing.T) {
	f := newFixture(t)
	c := f.createCOI(t, StatusAwaitingAdminReview)

	for _, ctx := range []context.Context{f.gcCtx, f.subCtx, f.brokerCtx} {
		_, err := f.svc.Review(ctx, c.ID, ReviewInput{Action: ReviewApprove})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	}
}

func Test_Service_ConcurrentReview_SecondLoses(t *testing.T) {
	f := newFixture(t)
	c := f.createCOI(t, StatusAwaitingAdminReview)

	_, err := f.svc.Review(f.adminCtx, c.ID, ReviewInput{Action: ReviewApprove})
	require.NoError(t, err)

	// A second decision raced and lost; it must see a conflict carrying the
	// canonical current status, not silently double-apply.
	_, err = f.svc.Review(f.adminCtx, c.ID, ReviewInput{Action: ReviewReject, Notes: "no"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))
	assert.Equal(t, string(StatusActive), dErrors.DetailOf(err)["status"])

	current, err := f.svc.Get(f.adminCtx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, current.Status)
	assert.Len(t, current.ReviewNotes, 1)
}

func Test_Service_DeficiencyLoop_ResubmitAndReapprove(t *testing.T) {
	f := newFixture(t)
	c := f.createCOI(t, StatusDeficiencyPending)

	events := f.sink.ByEvent(notification.EventCOIDeficient)
	require.Len(t, events, 1)

	// Complete corrections jump straight to the signature step.
	c, err := f.svc.Resubmit(f.brokerCtx, c.ID, fullUploads(testNow.AddDate(2, 0, 0)))
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingBrokerSignature, c.Status)

	// The admin's deficiency note survives.
	require.Len(t, c.ReviewNotes, 1)
	assert.Equal(t, ReviewDeficient, c.ReviewNotes[0].Action)

	for _, pt := range AllPolicyTypes() {
		c, err = f.svc.SignPolicy(f.brokerCtx, c.ID, pt, Signature{SignatureRef: "sig2/" + string(pt)})
		require.NoError(t, err)
		if c.Status == StatusAwaitingAdminReview {
			break
		}
	}

	c, err = f.svc.Review(f.adminCtx, c.ID, ReviewInput{Action: ReviewApprove})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, c.Status)
	assert.Len(t, c.ReviewNotes, 2)
}

func Test_Service_Resubmit_OnlyWhenDeficient(t *testing.T) {
	f := newFixture(t)
	c := f.createCOI(t, StatusAwaitingBrokerUpload)

	_, err := f.svc.Resubmit(f.brokerCtx, c.ID, fullUploads(testNow.AddDate(1, 0, 0)))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))
}

func Test_Service_Renew(t *testing.T) {
	f := newFixture(t)
	c := f.createCOI(t, StatusActive)

	renewed, err := f.svc.Renew(f.gcCtx, c.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusAwaitingBrokerUpload, renewed.Status)
	assert.Equal(t, c.ID, renewed.RenewedFrom)
	assert.NotEqual(t, c.ID, renewed.ID)
	require.NotNil(t, renewed.Broker)
	for _, pt := range AllPolicyTypes() {
		assert.True(t, renewed.Policies[pt].Expiration.IsZero())
		assert.False(t, renewed.Policies[pt].Signed())
	}

	// Source stays ACTIVE and both are listed on the project.
	source, err := f.svc.Get(f.adminCtx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, source.Status)

	cois, err := f.svc.ListByProject(f.adminCtx, f.projectID)
	require.NoError(t, err)
	assert.Len(t, cois, 2)

	require.Len(t, f.sink.ByEvent(notification.EventCOIRenewed), 1)
}

func Test_Service_Renew_NonActive_Conflict(t *testing.T) {
	f := newFixture(t)
	c := f.createCOI(t, StatusAwaitingBrokerUpload)

	_, err := f.svc.Renew(f.adminCtx, c.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))
	assert.Equal(t, string(StatusAwaitingBrokerUpload), dErrors.DetailOf(err)["status"])
}

func Test_Service_HookFailure_DoesNotUndoApproval(t *testing.T) {
	f := newFixture(t, withHoldHarmless())
	f.hook.err = assert.AnError

	c := f.createCOI(t, StatusActive)

	assert.Equal(t, StatusActive, c.Status)
	assert.Equal(t, HoldHarmlessPending, c.HoldHarmless)
	assert.Len(t, f.hook.approved, 1)
}

func Test_Service_Notifications_FollowTheLifecycle(t *testing.T) {
	f := newFixture(t)
	f.createCOI(t, StatusActive)

	for _, event := range []notification.EventType{
		notification.EventBrokerInfoSubmitted,
		notification.EventPoliciesUploaded,
		notification.EventPoliciesSigned,
		notification.EventCOIApproved,
	} {
		assert.Len(t, f.sink.ByEvent(event), 1, "event %s", event)
	}
}

func Test_Service_DeliveryFailure_DoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.sink.FailWith(assert.AnError)

	c := f.createCOI(t, StatusAwaitingBrokerInfo)
	updated, err := f.svc.SubmitBrokerInfo(f.subCtx, c.ID, globalBroker())
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingBrokerUpload, updated.Status)
}

func Test_Service_Unauthenticated(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), f.projectID, f.subID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
