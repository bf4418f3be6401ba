package holdharmless

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"coitrack/internal/coi"
	"coitrack/internal/notification"
	"coitrack/internal/platform/metrics"
	"coitrack/internal/project"
	"coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
	"coitrack/pkg/platform/sentinel"
	"coitrack/pkg/requestcontext"
)

// ProjectDirectory loads project facts. Satisfied by project.Service.
type ProjectDirectory interface {
	GetProject(ctx context.Context, id domain.ProjectID) (*project.Project, error)
}

// Service runs the dual-signature workflow. Generation is idempotent per
// COI; signing order is subcontractor first, GC second; completion merges
// the documents and mirrors the result onto the COI record.
type Service struct {
	agreements Store
	cois       coi.Store
	projects   ProjectDirectory
	documents  Documents
	dispatcher *notification.Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewService(
	agreements Store,
	cois coi.Store,
	projects ProjectDirectory,
	documents Documents,
	dispatcher *notification.Dispatcher,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		agreements: agreements,
		cois:       cois,
		projects:   projects,
		documents:  documents,
		dispatcher: dispatcher,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Option func(*Service)

// WithMetrics enables workflow counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// COIApproved generates the agreement for a freshly approved COI. It
// satisfies the coi package's approval hook.
func (s *Service) COIApproved(ctx context.Context, c *coi.COI) error {
	_, err := s.Generate(ctx, c)
	return err
}

// Generate creates the agreement for an approved COI, or returns the
// existing one. A lost create race resolves by reading back the winner, so
// retries and duplicate approvals converge on a single agreement.
func (s *Service) Generate(ctx context.Context, c *coi.COI) (*Agreement, error) {
	if existing, err := s.agreements.FindByCOI(ctx, c.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up agreement")
	}

	if c.Status != coi.StatusActive {
		return nil, dErrors.Newf(dErrors.CodeStateConflict,
			"cannot generate an agreement for a COI in %s", c.Status).
			WithDetail("status", string(c.Status))
	}

	proj, err := s.projects.GetProject(ctx, c.ProjectID)
	if err != nil {
		return nil, err
	}
	docRef, err := s.documents.Render(ctx, c.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render agreement")
	}

	now := requestcontext.Now(ctx)
	a := NewAgreement(domain.NewHoldHarmlessID(), c.ID, c.ProjectID, c.SubcontractorID, proj.GCID, docRef, now)
	if err := s.agreements.Create(ctx, a); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return s.GetByCOI(ctx, c.ID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create agreement")
	}

	if s.metrics != nil {
		s.metrics.IncrementHoldHarmlessGenerated()
	}
	s.notify(ctx, notification.EventHoldHarmlessGenerated, a, domain.PartyAdmin, nil)
	return a, nil
}

// GenerateForCOI loads the COI and generates (or returns) its agreement.
// Backstop for a lost approval hook; admin only.
func (s *Service) GenerateForCOI(ctx context.Context, coiID domain.COIID) (*Agreement, error) {
	if _, err := requireActor(ctx, domain.PartyAdmin); err != nil {
		return nil, err
	}
	c, err := s.cois.FindByID(ctx, coiID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "coi not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load coi")
	}
	return s.Generate(ctx, c)
}

// Get loads one agreement.
func (s *Service) Get(ctx context.Context, id domain.HoldHarmlessID) (*Agreement, error) {
	a, err := s.agreements.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "agreement not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load agreement")
	}
	return a, nil
}

// GetByCOI loads the agreement attached to a COI.
func (s *Service) GetByCOI(ctx context.Context, coiID domain.COIID) (*Agreement, error) {
	a, err := s.agreements.FindByCOI(ctx, coiID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no agreement exists for this coi")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load agreement")
	}
	return a, nil
}

// SignInput is one party's signature submission.
type SignInput struct {
	SignatureRef string
}

// SignSubcontractor records the first signature. The caller's identity is
// checked against the agreement's own subcontractor reference, not the
// token's role claim, so no other session can sign on their behalf.
func (s *Service) SignSubcontractor(ctx context.Context, id domain.HoldHarmlessID, input SignInput) (*Agreement, error) {
	actor, err := requireActor(ctx, domain.PartySubcontractor)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	sig := Signature{SignatureRef: input.SignatureRef, SignedBy: actor.ID}

	updated, err := s.agreements.Execute(ctx, id,
		func(a *Agreement) error {
			if actor.ID != a.SubcontractorID.AsActor() {
				return dErrors.New(dErrors.CodeForbidden, "only the agreement's subcontractor can sign")
			}
			return a.CanSignSubcontractor(sig)
		},
		func(a *Agreement) { a.ApplySignSubcontractor(sig, now) },
	)
	if err != nil {
		return nil, s.transitionErr(ctx, id, err)
	}

	s.notify(ctx, notification.EventHoldHarmlessSigned, updated, actor.Party, nil)
	return updated, nil
}

// SignGC records the second signature and completes the agreement. The
// caller's identity is checked against the project's GC reference, not the
// token's role claim. Signing before the subcontractor is a state conflict,
// not a forbidden: the order is workflow state, not permission. The document
// merge and the COI mirror run after the transition commits, so a rejected
// attempt never touches the merger.
func (s *Service) SignGC(ctx context.Context, id domain.HoldHarmlessID, input SignInput) (*Agreement, error) {
	actor, err := requireActor(ctx, domain.PartyGC)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	sig := Signature{SignatureRef: input.SignatureRef, SignedBy: actor.ID}

	updated, err := s.agreements.Execute(ctx, id,
		func(a *Agreement) error {
			if actor.ID != a.GCID {
				return dErrors.New(dErrors.CodeForbidden, "only the project's general contractor can countersign")
			}
			return a.CanSignGC(sig)
		},
		func(a *Agreement) { a.ApplySignGC(sig, now) },
	)
	if err != nil {
		return nil, s.transitionErr(ctx, id, err)
	}

	updated = s.mergeCompleted(ctx, updated)
	s.completeOnCOI(ctx, updated)
	if s.metrics != nil {
		s.metrics.IncrementHoldHarmlessCompleted()
	}
	// Completion notices go to the contracting parties only; brokers have no
	// stake in the indemnity agreement.
	s.notify(ctx, notification.EventHoldHarmlessCompleted, updated, actor.Party,
		[]domain.Party{domain.PartyGC, domain.PartySubcontractor})
	return updated, nil
}

// mergeCompleted combines the fully signed agreement into one document and
// records the reference. The committed transition is authoritative; a merge
// failure is logged and leaves the reference blank.
func (s *Service) mergeCompleted(ctx context.Context, a *Agreement) *Agreement {
	ref, err := s.documents.Merge(ctx, a)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to merge completed agreement",
			"agreement_id", a.ID.String(), "error", err)
		return a
	}
	merged, err := s.agreements.Execute(ctx, a.ID,
		func(*Agreement) error { return nil },
		func(stored *Agreement) { stored.AttachMergedDocument(ref) },
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record merged document reference",
			"agreement_id", a.ID.String(), "error", err)
		return a
	}
	return merged
}

// completeOnCOI mirrors agreement completion onto the owning COI record. The
// agreement is authoritative; a mirror failure is logged and the COI catches
// up on the next write.
func (s *Service) completeOnCOI(ctx context.Context, a *Agreement) {
	_, err := s.cois.Execute(ctx, a.COIID,
		func(c *coi.COI) error {
			if c.HoldHarmless == coi.HoldHarmlessComplete {
				return sentinel.ErrAlreadyUsed
			}
			return nil
		},
		func(c *coi.COI) { c.HoldHarmless = coi.HoldHarmlessComplete },
	)
	if err != nil && !errors.Is(err, sentinel.ErrAlreadyUsed) {
		s.logger.ErrorContext(ctx, "failed to mirror hold-harmless completion onto coi",
			"coi_id", a.COIID.String(), "agreement_id", a.ID.String(), "error", err)
	}
}

func (s *Service) transitionErr(ctx context.Context, id domain.HoldHarmlessID, err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "agreement not found")
	case errors.Is(err, sentinel.ErrStaleState):
		if s.metrics != nil {
			s.metrics.IncrementStateConflicts()
		}
		conflict := dErrors.New(dErrors.CodeStateConflict, "a concurrent update won; refresh and retry")
		if current, findErr := s.agreements.FindByID(ctx, id); findErr == nil {
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

func (s *Service) notify(ctx context.Context, event notification.EventType, a *Agreement, actor domain.Party, recipients []domain.Party) {
	s.dispatcher.Dispatch(ctx, notification.Notification{
		Event:          event,
		COIID:          a.COIID,
		HoldHarmlessID: a.ID,
		Status:         string(a.Status),
		ActorParty:     actor,
		Recipients:     recipients,
		OccurredAt:     a.UpdatedAt,
		DedupeKey:      fmt.Sprintf("%s:%s:%d", event, a.ID, a.UpdatedAt.UnixNano()),
	})
}

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
