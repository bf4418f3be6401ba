package holdharmless

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coitrack/internal/coi"
	"coitrack/internal/notification"
	"coitrack/internal/project"
	"coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
	"coitrack/pkg/requestcontext"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingDocuments captures every merge call so tests can assert when the
// merger runs and what it was handed.
type recordingDocuments struct {
	merges   []*Agreement
	mergeErr error
}

func (d *recordingDocuments) Render(_ context.Context, coiID domain.COIID) (string, error) {
	return "hold-harmless/" + coiID.String() + "/agreement", nil
}

func (d *recordingDocuments) Merge(_ context.Context, a *Agreement) (string, error) {
	d.merges = append(d.merges, a)
	if d.mergeErr != nil {
		return "", d.mergeErr
	}
	return "hold-harmless/" + a.COIID.String() + "/completed", nil
}

type fixture struct {
	svc      *Service
	coiStore *coi.InMemoryStore
	sink     *notification.MemorySink
	docs     *recordingDocuments

	activeCOI *coi.COI

	adminCtx context.Context
	gcCtx    context.Context
	subCtx   context.Context

	gcID  domain.ActorID
	subID domain.ContractorID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	baseCtx := requestcontext.WithTime(context.Background(), testNow)
	adminCtx := requestcontext.WithActor(baseCtx, domain.PartyAdmin, domain.NewContractorID().AsActor())

	gcID := domain.NewContractorID().AsActor()
	projectSvc := project.NewService(project.NewInMemoryStore())
	proj, err := projectSvc.CreateProject(adminCtx, project.CreateProjectInput{
		Name: "downtown tower",
		GCID: gcID,
	})
	require.NoError(t, err)

	subID := domain.NewContractorID()
	coiStore := coi.NewInMemoryStore()
	c := coi.NewCOI(domain.NewCOIID(), proj.ID, subID, domain.ProgramID{}, "roofing", testNow)
	c.Status = coi.StatusActive
	c.HoldHarmless = coi.HoldHarmlessPending
	require.NoError(t, coiStore.Create(adminCtx, c))

	sink := notification.NewMemorySink()
	docs := &recordingDocuments{}
	svc := NewService(NewInMemoryStore(), coiStore, projectSvc, docs,
		notification.NewDispatcher(sink, logger), logger)

	return &fixture{
		svc:       svc,
		coiStore:  coiStore,
		sink:      sink,
		docs:      docs,
		activeCOI: c,
		adminCtx:  adminCtx,
		gcCtx:     requestcontext.WithActor(baseCtx, domain.PartyGC, gcID),
		subCtx:    requestcontext.WithActor(baseCtx, domain.PartySubcontractor, subID.AsActor()),
		gcID:      gcID,
		subID:     subID,
	}
}

func Test_Generate_CreatesPendingAgreement(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.Generate(f.adminCtx, f.activeCOI)
	require.NoError(t, err)

	assert.Equal(t, StatusPendingSubcontractor, a.Status)
	assert.Equal(t, f.activeCOI.ID, a.COIID)
	assert.Equal(t, f.subID, a.SubcontractorID)
	assert.Equal(t, f.gcID, a.GCID)
	assert.NotEmpty(t, a.DocumentRef)
	assert.Empty(t, a.MergedDocumentRef)
	require.Len(t, f.sink.ByEvent(notification.EventHoldHarmlessGenerated), 1)
}

func Test_Generate_Idempotent(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Generate(f.adminCtx, f.activeCOI)
	require.NoError(t, err)
	second, err := f.svc.Generate(f.adminCtx, f.activeCOI)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.sink.ByEvent(notification.EventHoldHarmlessGenerated), 1)
}

func Test_Generate_RequiresActiveCOI(t *testing.T) {
	f := newFixture(t)
	pending := coi.NewCOI(domain.NewCOIID(), f.activeCOI.ProjectID, f.subID,
		domain.ProgramID{}, "roofing", testNow)
	require.NoError(t, f.coiStore.Create(f.adminCtx, pending))

	_, err := f.svc.Generate(f.adminCtx, pending)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))
}

func Test_GenerateForCOI(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.GenerateForCOI(f.adminCtx, f.activeCOI.ID)
	require.NoError(t, err)

	// Repeat calls converge on the same agreement.
	again, err := f.svc.GenerateForCOI(f.adminCtx, f.activeCOI.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)

	_, err = f.svc.GenerateForCOI(f.gcCtx, f.activeCOI.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = f.svc.GenerateForCOI(f.adminCtx, domain.NewCOIID())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func Test_Sign_SubcontractorFirst_ThenGC(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.Generate(f.adminCtx, f.activeCOI)
	require.NoError(t, err)

	a, err = f.svc.SignSubcontractor(f.subCtx, a.ID, SignInput{SignatureRef: "sig/sub"})
	require.NoError(t, err)
	assert.Equal(t, StatusPendingGC, a.Status)
	require.NotNil(t, a.SubcontractorSignature)
	assert.Equal(t, testNow, a.SubcontractorSignature.SignedAt)

	a, err = f.svc.SignGC(f.gcCtx, a.ID, SignInput{SignatureRef: "sig/gc"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, a.Status)
	require.NotNil(t, a.GCSignature)
	assert.NotEmpty(t, a.MergedDocumentRef)

	// The merger only ever sees the fully signed agreement.
	require.Len(t, f.docs.merges, 1)
	assert.NotNil(t, f.docs.merges[0].SubcontractorSignature)
	assert.NotNil(t, f.docs.merges[0].GCSignature)
	assert.Equal(t, StatusCompleted, f.docs.merges[0].Status)

	// Completion mirrors onto the COI record.
	c, err := f.coiStore.FindByID(f.adminCtx, f.activeCOI.ID)
	require.NoError(t, err)
	assert.Equal(t, coi.HoldHarmlessComplete, c.HoldHarmless)

	// Completion notices go to the contracting parties only.
	completed := f.sink.ByEvent(notification.EventHoldHarmlessCompleted)
	require.Len(t, completed, 1)
	assert.ElementsMatch(t,
		[]domain.Party{domain.PartyGC, domain.PartySubcontractor},
		completed[0].Recipients)
}

func Test_Sign_GCBeforeSubcontractor_Conflict(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.Generate(f.adminCtx, f.activeCOI)
	require.NoError(t, err)

	_, err = f.svc.SignGC(f.gcCtx, a.ID, SignInput{SignatureRef: "sig/gc"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))
	assert.Equal(t, string(StatusPendingSubcontractor), dErrors.DetailOf(err)["status"])

	// A rejected attempt never reaches the merger.
	assert.Empty(t, f.docs.merges)
}

func Test_Sign_AdminForbiddenOnBothEndpoints(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.Generate(f.adminCtx, f.activeCOI)
	require.NoError(t, err)

	// Signatures bind to the contracting parties; an admin session holds
	// neither identity.
	_, err = f.svc.SignSubcontractor(f.adminCtx, a.ID, SignInput{SignatureRef: "sig/sub"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	a, err = f.svc.SignSubcontractor(f.subCtx, a.ID, SignInput{SignatureRef: "sig/sub"})
	require.NoError(t, err)

	_, err = f.svc.SignGC(f.adminCtx, a.ID, SignInput{SignatureRef: "sig/gc"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	current, err := f.svc.Get(f.adminCtx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingGC, current.Status)
	assert.Nil(t, current.GCSignature)
}

func Test_SignGC_MergeFailure_CompletionStands(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.Generate(f.adminCtx, f.activeCOI)
	require.NoError(t, err)
	_, err = f.svc.SignSubcontractor(f.subCtx, a.ID, SignInput{SignatureRef: "sig/sub"})
	require.NoError(t, err)

	f.docs.mergeErr = errors.New("renderer down")
	a, err = f.svc.SignGC(f.gcCtx, a.ID, SignInput{SignatureRef: "sig/gc"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, a.Status)
	assert.Empty(t, a.MergedDocumentRef)

	// The committed transition still mirrors onto the COI.
	c, err := f.coiStore.FindByID(f.adminCtx, f.activeCOI.ID)
	require.NoError(t, err)
	assert.Equal(t, coi.HoldHarmlessComplete, c.HoldHarmless)
}

func Test_Sign_WrongParty_Forbidden(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.Generate(f.adminCtx, f.activeCOI)
	require.NoError(t, err)

	baseCtx := requestcontext.WithTime(context.Background(), testNow)
	otherSub := requestcontext.WithActor(baseCtx, domain.PartySubcontractor, domain.NewContractorID().AsActor())
	_, err = f.svc.SignSubcontractor(otherSub, a.ID, SignInput{SignatureRef: "sig/sub"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	// The GC role alone is not enough; the identity must match the project's
	// GC reference.
	a, err = f.svc.SignSubcontractor(f.subCtx, a.ID, SignInput{SignatureRef: "sig/sub"})
	require.NoError(t, err)
	otherGC := requestcontext.WithActor(baseCtx, domain.PartyGC, domain.NewContractorID().AsActor())
	_, err = f.svc.SignGC(otherGC, a.ID, SignInput{SignatureRef: "sig/gc"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func Test_Sign_DoubleSubcontractorSignature_Conflict(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.Generate(f.adminCtx, f.activeCOI)
	require.NoError(t, err)

	_, err = f.svc.SignSubcontractor(f.subCtx, a.ID, SignInput{SignatureRef: "sig/sub"})
	require.NoError(t, err)
	_, err = f.svc.SignSubcontractor(f.subCtx, a.ID, SignInput{SignatureRef: "sig/sub-again"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))
}

func Test_GetByCOI(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetByCOI(f.adminCtx, f.activeCOI.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	a, err := f.svc.Generate(f.adminCtx, f.activeCOI)
	require.NoError(t, err)

	found, err := f.svc.GetByCOI(f.adminCtx, f.activeCOI.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)
}
