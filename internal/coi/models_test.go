package coi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coitrack/internal/program"
	"coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCOI(t *testing.T) *COI {
	t.Helper()
	return NewCOI(domain.NewCOIID(), domain.NewProjectID(), domain.NewContractorID(),
		domain.ProgramID{}, "roofing", testNow)
}

func globalBroker() BrokerInfo {
	return BrokerInfo{
		Type:   BrokerGlobal,
		Global: &BrokerContact{Name: "Acme Insurance", Email: "broker@acme.example"},
	}
}

func fullUploads(expiration time.Time) map[PolicyType]PolicyUpload {
	uploads := make(map[PolicyType]PolicyUpload, 4)
	for _, pt := range AllPolicyTypes() {
		uploads[pt] = PolicyUpload{
			DocumentRef:  "docs/" + string(pt),
			PolicyNumber: "P-" + string(pt),
			Expiration:   expiration,
			Limit:        2_000_000,
			Aggregate:    4_000_000,
		}
	}
	return uploads
}

// advance walks a fresh COI to the given status through the real guards.
func advance(t *testing.T, c *COI, target Status) {
	t.Helper()
	reqs := program.DefaultMinimums()

	if c.Status == StatusAwaitingBrokerInfo && target != StatusAwaitingBrokerInfo {
		require.NoError(t, c.CanSubmitBrokerInfo(globalBroker()))
		c.ApplySubmitBrokerInfo(globalBroker(), testNow)
	}
	if target == StatusAwaitingBrokerUpload {
		return
	}
	if c.Status == StatusAwaitingBrokerUpload {
		uploads := fullUploads(testNow.AddDate(1, 0, 0))
		require.NoError(t, c.CanUploadPolicies(uploads, testNow))
		c.ApplyUploadPolicies(uploads, testNow)
	}
	if target == StatusAwaitingBrokerSignature {
		return
	}
	if c.Status == StatusAwaitingBrokerSignature {
		for _, pt := range AllPolicyTypes() {
			sig := Signature{SignatureRef: "sig/" + string(pt), SignedBy: "Jo Broker"}
			require.NoError(t, c.CanSignPolicy(pt, sig))
			c.ApplySignPolicy(pt, sig, reqs, testNow)
		}
	}
	if target == StatusAwaitingAdminReview {
		require.Equal(t, StatusAwaitingAdminReview, c.Status)
		return
	}
	t.Fatalf("advance does not support target %s", target)
}

func Test_StatusTransitions(t *testing.T) {
	assert.True(t, StatusAwaitingBrokerInfo.CanTransitionTo(StatusAwaitingBrokerUpload))
	assert.True(t, StatusDeficiencyPending.CanTransitionTo(StatusAwaitingBrokerUpload))
	assert.True(t, StatusDeficiencyPending.CanTransitionTo(StatusAwaitingBrokerSignature))
	assert.False(t, StatusAwaitingBrokerInfo.CanTransitionTo(StatusActive))
	assert.False(t, StatusActive.CanTransitionTo(StatusAwaitingAdminReview))
	assert.True(t, StatusActive.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.False(t, StatusDeficiencyPending.Terminal())
}

func Test_NewCOI_HasAllFourPolicySlots(t *testing.T) {
	c := newTestCOI(t)
	assert.Equal(t, StatusAwaitingBrokerInfo, c.Status)
	assert.Len(t, c.Policies, 4)
	for _, pt := range AllPolicyTypes() {
		_, ok := c.Policies[pt]
		assert.True(t, ok, "missing policy slot %s", pt)
	}
}

func Test_BrokerInfo_Validate(t *testing.T) {
	perPolicy := func() BrokerInfo {
		info := BrokerInfo{Type: BrokerPerPolicy, PerPolicy: map[PolicyType]BrokerContact{}}
		for _, pt := range AllPolicyTypes() {
			info.PerPolicy[pt] = BrokerContact{Name: string(pt), Email: string(pt) + "@acme.example"}
		}
		return info
	}

	tests := []struct {
		name    string
		info    BrokerInfo
		wantErr bool
	}{
		{name: "valid global", info: globalBroker()},
		{name: "valid per-policy", info: perPolicy()},
		{name: "unknown type", info: BrokerInfo{Type: "SHARED"}, wantErr: true},
		{name: "global without contact", info: BrokerInfo{Type: BrokerGlobal}, wantErr: true},
		{
			name: "global with stray per-policy map",
			info: BrokerInfo{
				Type:      BrokerGlobal,
				Global:    &BrokerContact{Email: "a@b.example"},
				PerPolicy: map[PolicyType]BrokerContact{PolicyGL: {Email: "a@b.example"}},
			},
			wantErr: true,
		},
		{
			name: "per-policy missing one broker",
			info: func() BrokerInfo {
				info := perPolicy()
				delete(info.PerPolicy, PolicyWC)
				return info
			}(),
			wantErr: true,
		},
		{
			name: "bad email",
			info: BrokerInfo{Type: BrokerGlobal, Global: &BrokerContact{Email: "not-an-email"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func Test_CanSubmitBrokerInfo_WrongState(t *testing.T) {
	c := newTestCOI(t)
	advance(t, c, StatusAwaitingBrokerUpload)

	err := c.CanSubmitBrokerInfo(globalBroker())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))
	assert.Equal(t, string(StatusAwaitingBrokerUpload), dErrors.DetailOf(err)["status"])
}

func Test_CanUploadPolicies(t *testing.T) {
	future := testNow.AddDate(1, 0, 0)

	t.Run("complete upload passes", func(t *testing.T) {
		c := newTestCOI(t)
		advance(t, c, StatusAwaitingBrokerUpload)
		require.NoError(t, c.CanUploadPolicies(fullUploads(future), testNow))
	})

	t.Run("missing document fails", func(t *testing.T) {
		c := newTestCOI(t)
		advance(t, c, StatusAwaitingBrokerUpload)
		uploads := fullUploads(future)
		upload := uploads[PolicyWC]
		upload.DocumentRef = ""
		uploads[PolicyWC] = upload

		err := c.CanUploadPolicies(uploads, testNow)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Contains(t, err.Error(), "wc policy document")
	})

	t.Run("expired policy fails", func(t *testing.T) {
		c := newTestCOI(t)
		advance(t, c, StatusAwaitingBrokerUpload)
		uploads := fullUploads(future)
		upload := uploads[PolicyGL]
		upload.Expiration = testNow.AddDate(0, -1, 0)
		uploads[PolicyGL] = upload

		err := c.CanUploadPolicies(uploads, testNow)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("no coverage-amount check at upload", func(t *testing.T) {
		c := newTestCOI(t)
		advance(t, c, StatusAwaitingBrokerUpload)
		uploads := fullUploads(future)
		for pt, upload := range uploads {
			upload.Limit = 1 // far below any requirement
			uploads[pt] = upload
		}
		require.NoError(t, c.CanUploadPolicies(uploads, testNow))
	})
}

func Test_ApplyUploadPolicies_ClearsSignatures(t *testing.T) {
	c := newTestCOI(t)
	advance(t, c, StatusAwaitingBrokerSignature)

	sig := Signature{SignatureRef: "sig/gl", SignedBy: "Jo Broker"}
	c.ApplySignPolicy(PolicyGL, sig, program.DefaultMinimums(), testNow)
	require.True(t, c.Policies[PolicyGL].Signed())

	// A corrected document invalidates the signature that covered it.
	c.Status = StatusAwaitingBrokerUpload
	c.ApplyUploadPolicies(fullUploads(testNow.AddDate(1, 0, 0)), testNow)
	assert.False(t, c.Policies[PolicyGL].Signed())
	assert.Equal(t, StatusAwaitingBrokerSignature, c.Status)
}

func Test_SignPolicy_AdvancesWhenComplete(t *testing.T) {
	c := newTestCOI(t)
	advance(t, c, StatusAwaitingBrokerSignature)
	reqs := program.DefaultMinimums()
	require.False(t, reqs.UmbrellaRequired())

	// Umbrella is exempt when not required, so three signatures complete it.
	for _, pt := range []PolicyType{PolicyGL, PolicyAuto, PolicyWC} {
		sig := Signature{SignatureRef: "sig/" + string(pt)}
		require.NoError(t, c.CanSignPolicy(pt, sig))
		c.ApplySignPolicy(pt, sig, reqs, testNow)
	}
	assert.Equal(t, StatusAwaitingAdminReview, c.Status)
}

func Test_SignPolicy_UmbrellaRequired_BlocksUntilSigned(t *testing.T) {
	c := newTestCOI(t)
	advance(t, c, StatusAwaitingBrokerSignature)
	reqs := program.DefaultMinimums()
	reqs.Umbrella = 5_000_000

	for _, pt := range []PolicyType{PolicyGL, PolicyAuto, PolicyWC} {
		c.ApplySignPolicy(pt, Signature{SignatureRef: "sig/" + string(pt)}, reqs, testNow)
	}
	assert.Equal(t, StatusAwaitingBrokerSignature, c.Status)

	c.ApplySignPolicy(PolicyUmbrella, Signature{SignatureRef: "sig/umbrella"}, reqs, testNow)
	assert.Equal(t, StatusAwaitingAdminReview, c.Status)
}

func Test_CanSignPolicy_DoubleSign(t *testing.T) {
	c := newTestCOI(t)
	advance(t, c, StatusAwaitingBrokerSignature)

	sig := Signature{SignatureRef: "sig/gl"}
	c.ApplySignPolicy(PolicyGL, sig, program.DefaultMinimums(), testNow)

	err := c.CanSignPolicy(PolicyGL, sig)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func Test_CoverageGaps(t *testing.T) {
	c := newTestCOI(t)
	advance(t, c, StatusAwaitingAdminReview)
	reqs := program.RequirementSet{
		GLEachOccurrence: 2_000_000,
		GLAggregate:      4_000_000,
		WorkersComp:      1_000_000,
		Auto:             1_000_000,
		Umbrella:         5_000_000,
	}

	// Uploads carry 2M/4M on every policy; only umbrella falls short.
	gaps := c.CoverageGaps(reqs)
	require.Len(t, gaps, 1)
	assert.Contains(t, gaps[0], "umbrella")

	reqs.Umbrella = 0
	assert.Empty(t, c.CoverageGaps(reqs))

	reqs.GLEachOccurrence = 3_000_000
	reqs.Auto = 2_500_000
	gaps = c.CoverageGaps(reqs)
	assert.Len(t, gaps, 2)
}

func Test_CanReview_NotesRequired(t *testing.T) {
	c := newTestCOI(t)
	advance(t, c, StatusAwaitingAdminReview)

	for _, action := range []ReviewAction{ReviewDeficient, ReviewReject} {
		err := c.CanReview(action, "")
		require.Error(t, err, "action %s", action)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		// Validation failed before any state change.
		assert.Equal(t, StatusAwaitingAdminReview, c.Status)
	}
	require.NoError(t, c.CanReview(ReviewApprove, ""))
}

func Test_ApplyReview_AppendsToTrail(t *testing.T) {
	actorID := domain.NewContractorID().AsActor()

	c := newTestCOI(t)
	advance(t, c, StatusAwaitingAdminReview)
	c.ApplyReview(ReviewDeficient, "GL aggregate too low", actorID, false, testNow)
	require.Equal(t, StatusDeficiencyPending, c.Status)

	c.ApplyResubmit(fullUploads(testNow.AddDate(1, 0, 0)), testNow)
	require.Equal(t, StatusAwaitingBrokerSignature, c.Status)

	// The first review note survives the correction loop.
	require.Len(t, c.ReviewNotes, 1)
	assert.Equal(t, ReviewDeficient, c.ReviewNotes[0].Action)
	assert.Equal(t, "GL aggregate too low", c.ReviewNotes[0].Notes)
}

func Test_ApplyReview_Approve(t *testing.T) {
	c := newTestCOI(t)
	advance(t, c, StatusAwaitingAdminReview)
	actorID := domain.NewContractorID().AsActor()

	c.ApplyReview(ReviewApprove, "", actorID, true, testNow)
	assert.Equal(t, StatusActive, c.Status)
	assert.Equal(t, testNow, c.ApprovedAt)
	require.Len(t, c.ReviewNotes, 1)
	assert.True(t, c.ReviewNotes[0].Override)
}

func Test_ApplyResubmit_IncompleteCorrections_ReturnToUpload(t *testing.T) {
	c := newTestCOI(t)
	advance(t, c, StatusAwaitingAdminReview)
	c.ApplyReview(ReviewDeficient, "wc expired", domain.ActorID{}, false, testNow)

	// Simulate the deficient policy going stale; a partial correction that
	// leaves it stale lands back in the upload step.
	wc := c.Policies[PolicyWC]
	wc.Expiration = testNow.AddDate(0, -1, 0)
	c.Policies[PolicyWC] = wc

	c.ApplyResubmit(map[PolicyType]PolicyUpload{
		PolicyGL: {DocumentRef: "docs/gl-v2", Expiration: testNow.AddDate(1, 0, 0), Limit: 2_000_000},
	}, testNow)
	assert.Equal(t, StatusAwaitingBrokerUpload, c.Status)
}

func Test_NewRenewal(t *testing.T) {
	source := newTestCOI(t)
	advance(t, source, StatusAwaitingAdminReview)
	source.ApplyReview(ReviewApprove, "", domain.ActorID{}, false, testNow)
	require.Equal(t, StatusActive, source.Status)

	renewalTime := testNow.AddDate(1, 0, 0)
	renewed := NewRenewal(source, domain.NewCOIID(), []string{"New Owner LLC"}, "200 Main St", renewalTime)

	assert.Equal(t, StatusAwaitingBrokerUpload, renewed.Status)
	assert.Equal(t, source.ID, renewed.RenewedFrom)
	assert.Equal(t, source.ProjectID, renewed.ProjectID)
	assert.Equal(t, source.Trade, renewed.Trade)

	// Broker identity and policy metadata carry forward.
	require.NotNil(t, renewed.Broker)
	assert.Equal(t, source.Broker.Global.Email, renewed.Broker.Global.Email)
	assert.Equal(t, source.Policies[PolicyGL].PolicyNumber, renewed.Policies[PolicyGL].PolicyNumber)
	assert.Equal(t, source.Policies[PolicyGL].Limit, renewed.Policies[PolicyGL].Limit)

	// Expirations and signatures never carry forward.
	for _, pt := range AllPolicyTypes() {
		assert.True(t, renewed.Policies[pt].Expiration.IsZero(), "%s expiration copied", pt)
		assert.False(t, renewed.Policies[pt].Signed(), "%s signature copied", pt)
	}

	// Project facts are recomputed, not copied.
	assert.Equal(t, []string{"New Owner LLC"}, renewed.AdditionalInsured)
	assert.Equal(t, "200 Main St", renewed.ProjectLocation)

	// Review trail starts fresh; the source record is untouched.
	assert.Empty(t, renewed.ReviewNotes)
	assert.Equal(t, StatusActive, source.Status)

	// Mutating the renewal's broker must not reach back into the source.
	renewed.Broker.Global.Email = "other@acme.example"
	assert.NotEqual(t, renewed.Broker.Global.Email, source.Broker.Global.Email)
}
