package coi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"coitrack/internal/contractor"
	"coitrack/internal/notification"
	"coitrack/internal/platform/metrics"
	"coitrack/internal/program"
	"coitrack/internal/project"
	"coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
	"coitrack/pkg/platform/sentinel"
	"coitrack/pkg/requestcontext"
)

// ProgramDirectory resolves requirements and program flags. Satisfied by
// program.Service.
type ProgramDirectory interface {
	RequirementsFor(ctx context.Context, programID domain.ProgramID, trade domain.Trade) (program.RequirementSet, error)
	GetProgram(ctx context.Context, id domain.ProgramID) (*program.Program, error)
}

// ProjectDirectory loads project facts. Satisfied by project.Service.
type ProjectDirectory interface {
	GetProject(ctx context.Context, id domain.ProjectID) (*project.Project, error)
}

// ContractorDirectory loads subcontractor facts. Satisfied by
// contractor.Store implementations.
type ContractorDirectory interface {
	FindByID(ctx context.Context, id domain.ContractorID) (*contractor.Contractor, error)
}

// ApprovalHook runs after a COI approval commits. Used to generate the
// hold-harmless agreement; failures are logged, never rolled back into the
// committed approval, and the idempotent generate endpoint is the backstop.
type ApprovalHook interface {
	COIApproved(ctx context.Context, c *COI) error
}

// Service orchestrates the COI lifecycle. Every transition runs through the
// store's Execute so concurrent requests on one COI serialize; side effects
// (notifications, hold-harmless generation) run strictly after commit.
type Service struct {
	cois        Store
	programs    ProgramDirectory
	projects    ProjectDirectory
	contractors ContractorDirectory
	dispatcher  *notification.Dispatcher
	hook        ApprovalHook
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewService(
	cois Store,
	programs ProgramDirectory,
	projects ProjectDirectory,
	contractors ContractorDirectory,
	dispatcher *notification.Dispatcher,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		cois:        cois,
		programs:    programs,
		projects:    projects,
		contractors: contractors,
		dispatcher:  dispatcher,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Option func(*Service)

// WithApprovalHook installs the post-approval side effect.
func WithApprovalHook(hook ApprovalHook) Option {
	return func(s *Service) { s.hook = hook }
}

// WithMetrics enables workflow counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Create opens a new COI for a (project, subcontractor) pair in
// AWAITING_BROKER_INFO, snapshotting the primary trade and the project facts
// that appear on the certificate. Admin or the project's GC only.
func (s *Service) Create(ctx context.Context, projectID domain.ProjectID, subID domain.ContractorID) (*COI, error) {
	actor, err := requireActor(ctx, domain.PartyAdmin, domain.PartyGC)
	if err != nil {
		return nil, err
	}

	proj, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if actor.Party == domain.PartyGC && actor.ID != proj.GCID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the project's general contractor can open a COI")
	}
	sub, err := s.contractors.FindByID(ctx, subID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "contractor not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load contractor")
	}

	now := requestcontext.Now(ctx)
	c := NewCOI(domain.NewCOIID(), projectID, subID, proj.ProgramID, sub.PrimaryTrade(), now)
	c.AdditionalInsured = append([]string(nil), proj.AdditionalInsured...)
	c.ProjectLocation = proj.Location

	if err := s.cois.Create(ctx, c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create coi")
	}
	if s.metrics != nil {
		s.metrics.IncrementCOIsCreated()
	}
	return c, nil
}

// Get loads one COI.
func (s *Service) Get(ctx context.Context, id domain.COIID) (*COI, error) {
	c, err := s.cois.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "coi not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load coi")
	}
	return c, nil
}

// SubmitBrokerInfo records broker contacts and advances
// AWAITING_BROKER_INFO → AWAITING_BROKER_UPLOAD. The subcontractor tied to
// the COI (or an admin) performs this.
func (s *Service) SubmitBrokerInfo(ctx context.Context, id domain.COIID, info BrokerInfo) (*COI, error) {
	actor, err := requireActor(ctx, domain.PartyAdmin, domain.PartySubcontractor)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	updated, err := s.cois.Execute(ctx, id,
		func(c *COI) error {
			if actor.Party == domain.PartySubcontractor && actor.ID != c.SubcontractorID.AsActor() {
				return dErrors.New(dErrors.CodeForbidden, "only the COI's subcontractor can submit broker info")
			}
			return c.CanSubmitBrokerInfo(info)
		},
		func(c *COI) { c.ApplySubmitBrokerInfo(info, now) },
	)
	if err != nil {
		return nil, s.transitionErr(ctx, id, err)
	}

	s.notify(ctx, notification.EventBrokerInfoSubmitted, updated, actor.Party)
	return updated, nil
}

// UploadPolicies records the broker's documents and advances
// AWAITING_BROKER_UPLOAD → AWAITING_BROKER_SIGNATURE once all four policies
// carry a document and a usable expiration.
func (s *Service) UploadPolicies(ctx context.Context, id domain.COIID, uploads map[PolicyType]PolicyUpload) (*COI, error) {
	actor, err := requireActor(ctx, domain.PartyAdmin, domain.PartyBroker)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	updated, err := s.cois.Execute(ctx, id,
		func(c *COI) error {
			if c.Status != StatusAwaitingBrokerUpload {
				return c.stateConflict("upload policies for")
			}
			return c.CanUploadPolicies(uploads, now)
		},
		func(c *COI) { c.ApplyUploadPolicies(uploads, now) },
	)
	if err != nil {
		return nil, s.transitionErr(ctx, id, err)
	}

	s.notify(ctx, notification.EventPoliciesUploaded, updated, actor.Party)
	return updated, nil
}

// SignPolicy records a broker signature on one policy; the COI advances to
// AWAITING_ADMIN_REVIEW when every required policy is signed. Umbrella is
// exempt when the resolved requirements carry no umbrella minimum for this
// COI's trade.
func (s *Service) SignPolicy(ctx context.Context, id domain.COIID, pt PolicyType, sig Signature) (*COI, error) {
	actor, err := requireActor(ctx, domain.PartyAdmin, domain.PartyBroker)
	if err != nil {
		return nil, err
	}

	// Resolution is deterministic and read-only, so it runs outside the
	// record lock.
	reqs, err := s.requirementsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	updated, err := s.cois.Execute(ctx, id,
		func(c *COI) error { return c.CanSignPolicy(pt, sig) },
		func(c *COI) { c.ApplySignPolicy(pt, sig, reqs, now) },
	)
	if err != nil {
		return nil, s.transitionErr(ctx, id, err)
	}

	if updated.Status == StatusAwaitingAdminReview {
		s.notify(ctx, notification.EventPoliciesSigned, updated, actor.Party)
	}
	return updated, nil
}

// ReviewInput is the admin's decision. Override records a deliberate
// approval despite coverage gaps; it is part of the audit trail.
type ReviewInput struct {
	Action   ReviewAction
	Notes    string
	Override bool
}

// Review commits the admin decision on a COI in AWAITING_ADMIN_REVIEW.
// Approval validates each policy's limits against the resolved requirement
// set; gaps fail with RequirementNotMet unless the admin explicitly
// overrides. Deficient and reject both require notes.
func (s *Service) Review(ctx context.Context, id domain.COIID, input ReviewInput) (*COI, error) {
	actor, err := requireActor(ctx, domain.PartyAdmin)
	if err != nil {
		return nil, err
	}

	reqs, err := s.requirementsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	prog, err := s.programFor(ctx, id)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	updated, err := s.cois.Execute(ctx, id,
		func(c *COI) error {
			if err := c.CanReview(input.Action, input.Notes); err != nil {
				return err
			}
			if input.Action == ReviewApprove && !input.Override {
				if gaps := c.CoverageGaps(reqs); len(gaps) > 0 {
					return dErrors.Newf(dErrors.CodeRequirementNotMet,
						"coverage below resolved minimums: %v", gaps)
				}
			}
			return nil
		},
		func(c *COI) {
			c.ApplyReview(input.Action, input.Notes, actor.ID, input.Override, now)
			if input.Action == ReviewApprove {
				if prog != nil && prog.RequiresHoldHarmless {
					c.HoldHarmless = HoldHarmlessPending
				} else {
					c.HoldHarmless = HoldHarmlessNotRequired
				}
			}
		},
	)
	if err != nil {
		return nil, s.transitionErr(ctx, id, err)
	}

	switch input.Action {
	case ReviewApprove:
		if s.metrics != nil {
			s.metrics.IncrementCOIsApproved()
		}
		s.notify(ctx, notification.EventCOIApproved, updated, actor.Party)
		if s.hook != nil && updated.HoldHarmless == HoldHarmlessPending {
			if hookErr := s.hook.COIApproved(ctx, updated); hookErr != nil {
				// The approval is committed; generation can be retried via
				// the idempotent generate operation.
				s.logger.ErrorContext(ctx, "hold-harmless generation failed after approval",
					"coi_id", updated.ID.String(), "error", hookErr)
			}
		}
	case ReviewDeficient:
		if s.metrics != nil {
			s.metrics.IncrementCOIsDeficient()
		}
		s.notify(ctx, notification.EventCOIDeficient, updated, actor.Party)
	case ReviewReject:
		if s.metrics != nil {
			s.metrics.IncrementCOIsRejected()
		}
		s.notify(ctx, notification.EventCOIRejected, updated, actor.Party)
	}
	return updated, nil
}

// requirementsFor resolves the minimums for a COI's (program, trade) pair.
func (s *Service) requirementsFor(ctx context.Context, id domain.COIID) (program.RequirementSet, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return program.RequirementSet{}, err
	}
	return s.programs.RequirementsFor(ctx, c.ProgramID, c.Trade)
}

// programFor loads a COI's program, or nil when none is attached.
func (s *Service) programFor(ctx context.Context, id domain.COIID) (*program.Program, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.ProgramID.IsZero() {
		return nil, nil
	}
	return s.programs.GetProgram(ctx, c.ProgramID)
}

// transitionErr translates store-level facts into coded errors. A stale
// write means a concurrent writer won; the refreshed status rides along so
// the caller can resync without a second round trip.
func (s *Service) transitionErr(ctx context.Context, id domain.COIID, err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "coi not found")
	case errors.Is(err, sentinel.ErrStaleState):
		if s.metrics != nil {
			s.metrics.IncrementStateConflicts()
		}
		conflict := dErrors.New(dErrors.CodeStateConflict, "a concurrent update won; refresh and retry")
		if current, findErr := s.cois.FindByID(ctx, id); findErr == nil {
			conflict = conflict.WithDetail("status", string(current.Status))
		}
		return conflict
	case dErrors.HasCode(err, dErrors.CodeStateConflict):
		if s.metrics != nil {
			s.metrics.IncrementStateConflicts()
		}
		return err
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "transition failed")
}

// notify fans out a workflow event after the transition committed. The
// dedupe key pins one committed transition, so a redelivered request does
// not double-notify while later loop iterations still do.
func (s *Service) notify(ctx context.Context, event notification.EventType, c *COI, actor domain.Party) {
	s.dispatcher.Dispatch(ctx, notification.Notification{
		Event:      event,
		COIID:      c.ID,
		Status:     string(c.Status),
		ActorParty: actor,
		OccurredAt: c.UpdatedAt,
		DedupeKey:  fmt.Sprintf("%s:%s:%d", event, c.ID, c.UpdatedAt.UnixNano()),
	})
}

// requireActor enforces that an authenticated actor with one of the allowed
// parties is present.
func requireActor(ctx context.Context, allowed ...domain.Party) (requestcontext.Actor, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	for _, party := range allowed {
		if actor.Party == party {
			return actor, nil
		}
	}
	return requestcontext.Actor{}, dErrors.Newf(dErrors.CodeForbidden, "%s may not perform this action", actor.Party)
}
