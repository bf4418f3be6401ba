package coi

import (
	"context"
	"fmt"

	"coitrack/internal/notification"
	"coitrack/pkg/domain"
	dErrors "coitrack/pkg/domain-errors"
	"coitrack/pkg/requestcontext"
)

// Renew derives a fresh COI from an expiring one. The source must be ACTIVE;
// renewing anything mid-flight would fork the workflow. The new record starts
// in AWAITING_BROKER_UPLOAD with broker identity and policy metadata carried
// forward, expirations and signatures blanked, and project facts recomputed
// from the project as it stands today. The source COI is left untouched and
// stays ACTIVE until its own policies lapse.
func (s *Service) Renew(ctx context.Context, id domain.COIID) (*COI, error) {
	actor, err := requireActor(ctx, domain.PartyAdmin, domain.PartyGC)
	if err != nil {
		return nil, err
	}

	source, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if source.Status != StatusActive {
		return nil, source.stateConflict("renew")
	}

	proj, err := s.projects.GetProject(ctx, source.ProjectID)
	if err != nil {
		return nil, err
	}
	if actor.Party == domain.PartyGC && actor.ID != proj.GCID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the project's general contractor can renew this COI")
	}

	now := requestcontext.Now(ctx)
	renewed := NewRenewal(source, domain.NewCOIID(), proj.AdditionalInsured, proj.Location, now)
	if err := s.cois.Create(ctx, renewed); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create renewal")
	}

	if s.metrics != nil {
		s.metrics.IncrementCOIsRenewed()
	}
	s.dispatcher.Dispatch(ctx, notification.Notification{
		Event:      notification.EventCOIRenewed,
		COIID:      renewed.ID,
		Status:     string(renewed.Status),
		ActorParty: actor.Party,
		OccurredAt: renewed.CreatedAt,
		DedupeKey:  fmt.Sprintf("%s:%s:%s", notification.EventCOIRenewed, source.ID, renewed.ID),
	})
	return renewed, nil
}

// Resubmit applies the broker's corrections to a COI the admin marked
// deficient. Corrections touch policy sub-records only; the review trail is
// preserved. The upload-completeness guard re-runs on the merged result, so a
// complete resubmission jumps straight to the signature step.
func (s *Service) Resubmit(ctx context.Context, id domain.COIID, corrections map[PolicyType]PolicyUpload) (*COI, error) {
	actor, err := requireActor(ctx, domain.PartyAdmin, domain.PartyBroker)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	updated, err := s.cois.Execute(ctx, id,
		func(c *COI) error {
			if err := c.CanResubmit(); err != nil {
				return err
			}
			for pt := range corrections {
				if _, err := ParsePolicyType(string(pt)); err != nil {
					return err
				}
			}
			return nil
		},
		func(c *COI) { c.ApplyResubmit(corrections, now) },
	)
	if err != nil {
		return nil, s.transitionErr(ctx, id, err)
	}

	s.notify(ctx, notification.EventPoliciesUploaded, updated, actor.Party)
	return updated, nil
}

// ListByProject returns every COI on a project, oldest first.
func (s *Service) ListByProject(ctx context.Context, projectID domain.ProjectID) ([]*COI, error) {
	cois, err := s.cois.ListByProject(ctx, projectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cois")
	}
	return cois, nil
}
