package team

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/apperr"
	"github.com/courselab/courselab/pkg/eventbus"
	"github.com/courselab/courselab/pkg/locking"
	"github.com/courselab/courselab/pkg/metrics"
	"github.com/courselab/courselab/pkg/model"
	"github.com/courselab/courselab/pkg/store"
)

// TeamStore persists teams and their member associations.
type TeamStore interface {
	Create(ctx context.Context, team *model.Team) error
	Get(ctx context.Context, teamID uuid.UUID) (*model.Team, error)
	NameTaken(ctx context.Context, courseID uuid.UUID, name string) (bool, error)
	ActiveMemberIDs(ctx context.Context, courseID uuid.UUID) ([]string, error)
	Activate(ctx context.Context, teamID uuid.UUID) error
	Delete(ctx context.Context, teamID uuid.UUID) error
	ListForCourse(ctx context.Context, courseID uuid.UUID) ([]model.Team, error)
	ForStudent(ctx context.Context, courseID uuid.UUID, studentID string) (*model.Team, error)
}

// TokenStore owns confirmation tokens; the state machine only ever
// asks for sets keyed by team.
type TokenStore interface {
	CreateBatch(ctx context.Context, tokens []model.Token) error
	Get(ctx context.Context, tokenID string) (*model.Token, error)
	Delete(ctx context.Context, tokenID string) error
	DeleteForTeam(ctx context.Context, teamID uuid.UUID) error
	CountForTeam(ctx context.Context, teamID uuid.UUID) (int, error)
	ListExpired(ctx context.Context, now time.Time) ([]model.Token, error)
}

// Directory is the collaborator surface for identity and enrollment
// facts; the auth layer has already validated the caller.
type Directory interface {
	GetCourse(ctx context.Context, courseID uuid.UUID) (*model.Course, error)
	StudentExists(ctx context.Context, studentID string) (bool, error)
	IsEnrolled(ctx context.Context, studentID string, courseID uuid.UUID) (bool, error)
}

// Notifier delivers confirmation links. Fire and forget: a delivery
// failure never rolls back the proposal.
type Notifier interface {
	Notify(ctx context.Context, team *model.Team, course *model.Course, tokens []model.Token) error
}

type Service struct {
	teams    TeamStore
	tokens   TokenStore
	courses  Directory
	notifier Notifier
	audit    store.AuditStore
	bus      *eventbus.Bus
	logger   *zap.Logger
	locks    *locking.KeyedRWMutex
	now      func() time.Time
}

func NewService(teams TeamStore, tokens TokenStore, courses Directory, notifier Notifier, audit store.AuditStore, bus *eventbus.Bus, logger *zap.Logger) *Service {
	return &Service{
		teams:    teams,
		tokens:   tokens,
		courses:  courses,
		notifier: notifier,
		audit:    audit,
		bus:      bus,
		logger:   logger,
		locks:    locking.NewKeyedRWMutex(),
		now:      time.Now,
	}
}

type ProposeRequest struct {
	CourseID   uuid.UUID
	Name       string
	MemberIDs  []string
	ProposerID string
	ExpiresAt  time.Time
}

// Propose validates the request and persists a PENDING team with its
// full membership, one confirmation token per non-proposer member.
// The preconditions run in a fixed order so each violation surfaces
// its own failure.
func (s *Service) Propose(ctx context.Context, req ProposeRequest) (*model.Team, error) {
	if req.Name == "" {
		return nil, apperr.InvalidArgument("team name is required")
	}

	course, err := s.courses.GetCourse(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("course %s not found", req.CourseID)
		}
		return nil, apperr.Internal(err, "failed to load course")
	}

	courseKey := "course:" + req.CourseID.String()
	s.locks.Lock(courseKey)
	defer s.locks.Unlock(courseKey)

	taken, err := s.teams.NameTaken(ctx, req.CourseID, req.Name)
	if err != nil {
		return nil, apperr.Internal(err, "failed to check team name")
	}
	if taken {
		return nil, apperr.Conflict("team name %q already used in this course", req.Name)
	}

	for _, memberID := range req.MemberIDs {
		if memberID == "" {
			return nil, apperr.InvalidArgument("member id is required")
		}
		exists, err := s.courses.StudentExists(ctx, memberID)
		if err != nil {
			return nil, apperr.Internal(err, "failed to look up student")
		}
		if !exists {
			return nil, apperr.NotFound("student %s not found", memberID)
		}
	}

	seen := make(map[string]struct{}, len(req.MemberIDs))
	for _, memberID := range req.MemberIDs {
		if _, dup := seen[memberID]; dup {
			return nil, apperr.InvalidArgument("duplicate member %s", memberID)
		}
		seen[memberID] = struct{}{}
	}

	if !course.Enabled {
		return nil, apperr.PreconditionFailed("course %s is disabled", course.Name)
	}
	if len(req.MemberIDs) < course.MinMembers {
		return nil, apperr.PreconditionFailed("team needs at least %d members", course.MinMembers)
	}
	if len(req.MemberIDs) > course.MaxMembers {
		return nil, apperr.PreconditionFailed("team allows at most %d members", course.MaxMembers)
	}

	for _, memberID := range req.MemberIDs {
		enrolled, err := s.courses.IsEnrolled(ctx, memberID, req.CourseID)
		if err != nil {
			return nil, apperr.Internal(err, "failed to check enrollment")
		}
		if !enrolled {
			return nil, apperr.PreconditionFailed("student %s is not enrolled in %s", memberID, course.Name)
		}
	}

	activeMembers, err := s.teams.ActiveMemberIDs(ctx, req.CourseID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list active team members")
	}
	committed := make(map[string]struct{}, len(activeMembers))
	for _, id := range activeMembers {
		committed[id] = struct{}{}
	}
	for _, memberID := range req.MemberIDs {
		if _, inTeam := committed[memberID]; inTeam {
			return nil, apperr.Conflict("student %s already belongs to a team of this course", memberID)
		}
	}

	if _, ok := seen[req.ProposerID]; !ok {
		return nil, apperr.PreconditionFailed("proposer %s must be a member of the proposed team", req.ProposerID)
	}

	team := &model.Team{
		ID:         uuid.New(),
		CourseID:   req.CourseID,
		Name:       req.Name,
		Status:     model.TeamPending,
		ProposerID: req.ProposerID,
	}
	for _, memberID := range req.MemberIDs {
		team.Members = append(team.Members, model.TeamMember{TeamID: team.ID, StudentID: memberID})
	}

	if err := s.teams.Create(ctx, team); err != nil {
		metrics.ProposalsTotal.WithLabelValues(req.CourseID.String(), "error").Inc()
		return nil, apperr.Internal(err, "failed to persist team")
	}

	tokens := make([]model.Token, 0, len(req.MemberIDs)-1)
	for _, memberID := range req.MemberIDs {
		if memberID == req.ProposerID {
			continue
		}
		tokens = append(tokens, model.NewToken(team.ID, memberID, req.ExpiresAt))
	}
	if err := s.tokens.CreateBatch(ctx, tokens); err != nil {
		// Without tokens the proposal can never complete; take the
		// team row back out.
		if delErr := s.teams.Delete(ctx, team.ID); delErr != nil {
			s.logger.Error("failed to roll back team after token error",
				zap.Error(delErr), zap.String("team_id", team.ID.String()))
		}
		metrics.ProposalsTotal.WithLabelValues(req.CourseID.String(), "error").Inc()
		return nil, apperr.Internal(err, "failed to create confirmation tokens")
	}

	if err := s.notifier.Notify(ctx, team, course, tokens); err != nil {
		s.logger.Warn("failed to notify invitees",
			zap.Error(err), zap.String("team_id", team.ID.String()))
	}

	s.recordAudit(ctx, "team", team.ID.String(), "proposed", req.ProposerID, model.JSONB{
		"course_id": req.CourseID.String(),
		"members":   req.MemberIDs,
	})
	s.publishTeamEvent(ctx, eventbus.EventTeamProposed, team, "")
	metrics.ProposalsTotal.WithLabelValues(req.CourseID.String(), "accepted").Inc()

	return team, nil
}

type ConfirmResult struct {
	TeamID    uuid.UUID
	StudentID string
	Activated bool
}

// Confirm consumes a token. Deleting the last token of a team commits
// the proposal and flips the team to ACTIVE.
func (s *Service) Confirm(ctx context.Context, tokenID string) (ConfirmResult, error) {
	token, err := s.getToken(ctx, tokenID)
	if err != nil {
		return ConfirmResult{}, err
	}

	teamKey := "team:" + token.TeamID.String()
	s.locks.Lock(teamKey)
	defer s.locks.Unlock(teamKey)

	// Re-read under the team lock: a concurrent reject or sweep may
	// have consumed the token between lookup and lock.
	token, err = s.getToken(ctx, tokenID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if token.ExpiredAt(s.now()) {
		return ConfirmResult{}, apperr.Expired("confirmation token expired at %s", token.ExpiresAt.UTC().Format(time.RFC3339))
	}

	if err := s.tokens.Delete(ctx, token.ID); err != nil {
		return ConfirmResult{}, apperr.Internal(err, "failed to consume token")
	}

	remaining, err := s.tokens.CountForTeam(ctx, token.TeamID)
	if err != nil {
		return ConfirmResult{}, apperr.Internal(err, "failed to count outstanding tokens")
	}

	result := ConfirmResult{TeamID: token.TeamID, StudentID: token.StudentID}
	if remaining > 0 {
		s.recordAudit(ctx, "team", token.TeamID.String(), "confirmed", token.StudentID, model.JSONB{
			"remaining_tokens": remaining,
		})
		return result, nil
	}

	if err := s.teams.Activate(ctx, token.TeamID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ConfirmResult{}, apperr.NotFound("team %s no longer exists", token.TeamID)
		}
		return ConfirmResult{}, apperr.Internal(err, "failed to activate team")
	}
	result.Activated = true

	s.recordAudit(ctx, "team", token.TeamID.String(), "activated", token.StudentID, nil)
	if team, err := s.teams.Get(ctx, token.TeamID); err == nil {
		s.publishTeamEvent(ctx, eventbus.EventTeamActivated, team, "")
		metrics.TeamsActivatedTotal.WithLabelValues(team.CourseID.String()).Inc()
	}

	return result, nil
}

// Reject vetoes the proposal for everyone: all tokens of the team are
// destroyed and the team row is deleted.
func (s *Service) Reject(ctx context.Context, tokenID string) error {
	token, err := s.getToken(ctx, tokenID)
	if err != nil {
		return err
	}

	teamKey := "team:" + token.TeamID.String()
	s.locks.Lock(teamKey)
	defer s.locks.Unlock(teamKey)

	// Expiry is judged on the locked re-read so a token that lapses
	// while we wait for the lock is reported expired, not rejected.
	token, err = s.getToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.ExpiredAt(s.now()) {
		return apperr.Expired("confirmation token expired at %s", token.ExpiresAt.UTC().Format(time.RFC3339))
	}

	team, teamErr := s.teams.Get(ctx, token.TeamID)

	if err := s.tokens.DeleteForTeam(ctx, token.TeamID); err != nil {
		return apperr.Internal(err, "failed to delete team tokens")
	}
	if err := s.teams.Delete(ctx, token.TeamID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return apperr.Internal(err, "failed to evict team")
	}

	s.recordAudit(ctx, "team", token.TeamID.String(), "rejected", token.StudentID, nil)
	if teamErr == nil {
		s.publishTeamEvent(ctx, eventbus.EventTeamEvicted, team, "rejected by "+token.StudentID)
		metrics.TeamsEvictedTotal.WithLabelValues(team.CourseID.String(), "rejected").Inc()
	}

	return nil
}

func (s *Service) GetTeam(ctx context.Context, teamID uuid.UUID) (*model.Team, error) {
	team, err := s.teams.Get(ctx, teamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("team %s not found", teamID)
		}
		return nil, apperr.Internal(err, "failed to load team")
	}
	return team, nil
}

func (s *Service) ListTeamsForCourse(ctx context.Context, courseID uuid.UUID) ([]model.Team, error) {
	teams, err := s.teams.ListForCourse(ctx, courseID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list teams")
	}
	return teams, nil
}

// PendingProposalsFor lists the PENDING teams of the course the
// student has been proposed into.
func (s *Service) PendingProposalsFor(ctx context.Context, courseID uuid.UUID, studentID string) ([]model.Team, error) {
	teams, err := s.teams.ListForCourse(ctx, courseID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list teams")
	}

	var pending []model.Team
	for _, t := range teams {
		if t.Status == model.TeamPending && t.HasMember(studentID) {
			pending = append(pending, t)
		}
	}
	return pending, nil
}

func (s *Service) TeamForStudent(ctx context.Context, courseID uuid.UUID, studentID string) (*model.Team, error) {
	team, err := s.teams.ForStudent(ctx, courseID, studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("student %s has no team in this course", studentID)
		}
		return nil, apperr.Internal(err, "failed to load team")
	}
	return team, nil
}

func (s *Service) getToken(ctx context.Context, tokenID string) (*model.Token, error) {
	if tokenID == "" {
		return nil, apperr.NotFound("confirmation token not found")
	}
	token, err := s.tokens.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("confirmation token not found")
		}
		return nil, apperr.Internal(err, "failed to load token")
	}
	return token, nil
}

func (s *Service) recordAudit(ctx context.Context, entityType, entityID, action, actorID string, details model.JSONB) {
	if s.audit == nil {
		return
	}
	event := &model.AuditEvent{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actorID,
		Details:    details,
	}
	if err := s.audit.Append(ctx, event); err != nil {
		s.logger.Warn("failed to append audit event", zap.Error(err), zap.String("action", action))
	}
}

func (s *Service) publishTeamEvent(ctx context.Context, eventType string, team *model.Team, message string) {
	if s.bus == nil {
		return
	}
	payload := eventbus.TeamEvent{
		TeamID:   team.ID.String(),
		CourseID: team.CourseID.String(),
		Status:   string(team.Status),
		Message:  message,
	}
	if event, err := eventbus.NewEvent(eventType, payload); err == nil {
		_ = s.bus.Publish(ctx, eventbus.ChannelTeam, event)
	}
}
