package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/church-music-api/internal/models"
	"github.com/noah-isme/church-music-api/internal/repository"
	"github.com/noah-isme/church-music-api/pkg/config"
	"github.com/noah-isme/church-music-api/pkg/database"
	appErrors "github.com/noah-isme/church-music-api/pkg/errors"
	"github.com/noah-isme/church-music-api/pkg/invitelink"
	"github.com/noah-isme/church-music-api/pkg/mailer"
	"github.com/noah-isme/church-music-api/pkg/timezone"
)

const (
	usersEmailIndex = "users_email_church_key"
	maxBatchSize    = 500

	inviteModeSingle = "single"
	inviteModeBulk   = "bulk"
	inviteModeResend = "resend"
)

type invitationStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, invitation *models.Invitation) error
	FindPending(ctx context.Context, email, churchID string) (*models.Invitation, error)
	FindByToken(ctx context.Context, token string) (*models.Invitation, error)
	FindByID(ctx context.Context, id string) (*models.Invitation, error)
	ListByChurch(ctx context.Context, churchID string, status *models.InvitationStatus) ([]models.Invitation, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.InvitationStatus) error
	Refresh(ctx context.Context, exec sqlx.ExtContext, id, token string, expiresAt time.Time) error
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

type accountStore interface {
	ListByEmail(ctx context.Context, email string) ([]models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, exec sqlx.ExtContext, user *models.User) error
	MarkVerified(ctx context.Context, exec sqlx.ExtContext, id string) error
	UpdatePassword(ctx context.Context, exec sqlx.ExtContext, id, passwordHash string) error
}

type reservationStore interface {
	Reserve(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Holder(ctx context.Context, key string) (string, error)
	ReleaseReservation(ctx context.Context, key, owner string) error
}

type invitationTx interface {
	txRunner
	Ping(ctx context.Context) error
}

// InvitationOptions tunes invitation lifetime and delivery.
type InvitationOptions struct {
	TTL             time.Duration
	DispatchPolicy  string
	DispatchTimeout time.Duration
	BulkConcurrency int
	ReservationTTL  time.Duration
	HashCost        int
}

// AcceptInvitationRequest redeems an invitation. Expires and Signature are
// set when the token arrives through a signed link.
type AcceptInvitationRequest struct {
	Token     string `json:"token" validate:"required"`
	Expires   string `json:"exp"`
	Signature string `json:"sig"`
}

// InvitationService onboards musicians by email invitation.
type InvitationService struct {
	invitations  invitationStore
	users        accountStore
	churches     churchReader
	reservations reservationStore
	tx           invitationTx
	sender       mailer.Sender
	signer       *invitelink.Signer
	notifier     activityEmitter
	metrics      *MetricsService
	clock        timezone.Clock
	opts         InvitationOptions
	validator    *validator.Validate
	logger       *zap.Logger
}

// InvitationServiceDeps groups the collaborators of InvitationService.
type InvitationServiceDeps struct {
	Invitations  invitationStore
	Users        accountStore
	Churches     churchReader
	Reservations reservationStore
	Tx           invitationTx
	Sender       mailer.Sender
	Signer       *invitelink.Signer
	Notifier     activityEmitter
	Metrics      *MetricsService
	Clock        timezone.Clock
	Options      InvitationOptions
	Validator    *validator.Validate
	Logger       *zap.Logger
}

// NewInvitationService constructs the service.
func NewInvitationService(deps InvitationServiceDeps) *InvitationService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = timezone.SystemClock{}
	}
	opts := deps.Options
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 10 * time.Second
	}
	if opts.BulkConcurrency <= 0 {
		opts.BulkConcurrency = 4
	}
	if opts.ReservationTTL <= 0 {
		opts.ReservationTTL = 30 * time.Second
	}
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	if opts.DispatchPolicy != config.DispatchSimulateOnRestriction {
		opts.DispatchPolicy = config.DispatchStrict
	}
	return &InvitationService{
		invitations:  deps.Invitations,
		users:        deps.Users,
		churches:     deps.Churches,
		reservations: deps.Reservations,
		tx:           deps.Tx,
		sender:       deps.Sender,
		signer:       deps.Signer,
		notifier:     deps.Notifier,
		metrics:      deps.Metrics,
		clock:        deps.Clock,
		opts:         opts,
		validator:    deps.Validator,
		logger:       deps.Logger,
	}
}

// Invite sends one invitation. Any failure leaves no account or invitation.
func (s *InvitationService) Invite(ctx context.Context, actor Actor, record models.InviteRecord) (*models.InvitationResult, error) {
	record = trimRecord(record)
	if err := s.validator.Struct(record); err != nil {
		appErr := validationError(err)
		s.metrics.RecordInvitation(inviteModeSingle, appErr.Code, false)
		return nil, appErr
	}
	church, err := s.church(ctx, actor.ChurchID)
	if err != nil {
		return nil, err
	}
	result, err := s.invite(ctx, actor, church, record, uuid.NewString(), inviteModeSingle)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// InviteBulk processes each record independently and folds the outcomes.
// Only an unreachable database aborts the batch.
func (s *InvitationService) InviteBulk(ctx context.Context, actor Actor, records []models.InviteRecord) (*models.BatchResult, error) {
	if len(records) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one invitation record is required")
	}
	if len(records) > maxBatchSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a batch holds at most %d records", maxBatchSize))
	}
	if err := s.tx.Ping(ctx); err != nil {
		s.logger.Error("bulk invitation aborted, database unreachable", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "invitation storage is unavailable, no records were processed")
	}
	church, err := s.church(ctx, actor.ChurchID)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		result *models.InvitationResult
		err    error
	}
	outcomes := make([]outcome, len(records))
	trimmed := make([]models.InviteRecord, len(records))

	firstSeen := make(map[string]int, len(records))
	for i, record := range records {
		record = trimRecord(record)
		trimmed[i] = record
		if err := s.validator.Struct(record); err != nil {
			outcomes[i].err = validationError(err)
			continue
		}
		email := normalizeEmail(record.Email)
		if j, dup := firstSeen[email]; dup {
			outcomes[i].err = appErrors.Clone(appErrors.ErrInvitationPending, fmt.Sprintf("duplicate of record %d in this batch", j))
			continue
		}
		firstSeen[email] = i
	}

	batchID := uuid.NewString()
	sem := make(chan struct{}, s.opts.BulkConcurrency)
	var wg sync.WaitGroup
	for i := range records {
		if outcomes[i].err != nil {
			s.metrics.RecordInvitation(inviteModeBulk, appErrors.FromError(outcomes[i].err).Code, false)
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			owner := fmt.Sprintf("%s#%d", batchID, i)
			result, err := s.invite(ctx, actor, church, trimmed[i], owner, inviteModeBulk)
			outcomes[i] = outcome{result: result, err: err}
		}(i)
	}
	wg.Wait()

	batch := &models.BatchResult{Successful: []models.InvitationResult{}, Failed: []models.BatchFailure{}}
	for i, o := range outcomes {
		if o.err == nil {
			batch.Successful = append(batch.Successful, *o.result)
			continue
		}
		appErr := appErrors.FromError(o.err)
		batch.Failed = append(batch.Failed, models.BatchFailure{
			Index:  i,
			Email:  trimmed[i].Email,
			Code:   appErr.Code,
			Reason: appErr.Message,
		})
	}
	batch.SuccessfulCount = len(batch.Successful)
	batch.FailedCount = len(batch.Failed)

	s.logger.Info("bulk invitation processed",
		zap.String("church_id", church.ID),
		zap.Int("successful", batch.SuccessfulCount),
		zap.Int("failed", batch.FailedCount))
	return batch, nil
}

// ImportCSV reads email,first_name,last_name[,phone] rows with a header and
// invites them as one batch.
func (s *InvitationService) ImportCSV(ctx context.Context, actor Actor, r io.Reader) (*models.BatchResult, error) {
	records, err := parseInviteCSV(r)
	if err != nil {
		return nil, err
	}
	return s.InviteBulk(ctx, actor, records)
}

// Accept redeems a token, verifying the musician's account.
func (s *InvitationService) Accept(ctx context.Context, req AcceptInvitationRequest) (*models.Invitation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	now := s.clock.Now()
	if req.Signature != "" && s.signer != nil {
		if _, err := s.signer.Verify(req.Token, req.Expires, req.Signature, now); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invitation link is invalid or has expired")
		}
	}

	invitation, err := s.invitations.FindByToken(ctx, req.Token)
	if err != nil {
		return nil, lookupError(err, "invitation")
	}
	switch {
	case invitation.Status == models.InvitationAccepted:
		return invitation, nil
	case invitation.Status == models.InvitationExpired:
		return nil, appErrors.Clone(appErrors.ErrInvitationExpired, "")
	case invitation.IsExpired(now):
		s.markExpired(ctx, invitation)
		return nil, appErrors.Clone(appErrors.ErrInvitationExpired, "")
	}

	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if err := s.invitations.UpdateStatus(ctx, exec, invitation.ID, models.InvitationAccepted); err != nil {
			return err
		}
		if invitation.UserID != nil {
			return s.users.MarkVerified(ctx, exec, *invitation.UserID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "invitation is no longer pending")
		}
		return nil, wrapInternal(err, "failed to accept invitation")
	}
	invitation.Status = models.InvitationAccepted

	s.emit(ctx, Activity{ChurchID: invitation.ChurchID, ActorID: deref(invitation.UserID), Action: models.ActivityInvitationAccepted,
		Resource: "invitation", ResourceID: invitation.ID, Payload: map[string]interface{}{"email": invitation.Email}})
	return invitation, nil
}

// Resend issues a fresh token, credential and expiry for a pending
// invitation and mails it again.
func (s *InvitationService) Resend(ctx context.Context, actor Actor, id string) (*models.InvitationResult, error) {
	invitation, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if invitation.Status != models.InvitationPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only pending invitations can be resent")
	}
	church, err := s.church(ctx, actor.ChurchID)
	if err != nil {
		return nil, err
	}
	issue, err := s.issue()
	if err != nil {
		return nil, err
	}

	var result *models.InvitationResult
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if err := s.invitations.Refresh(ctx, exec, invitation.ID, issue.token, issue.expiresAt); err != nil {
			return err
		}
		if invitation.UserID != nil {
			if err := s.users.UpdatePassword(ctx, exec, *invitation.UserID, issue.hash); err != nil {
				return err
			}
		}
		invitation.Token = issue.token
		invitation.ExpiresAt = issue.expiresAt
		result, err = s.deliver(ctx, church, invitation, issue.credential)
		return err
	})
	if err != nil {
		appErr := inviteTxError(err, "failed to resend invitation")
		if errors.Is(err, sql.ErrNoRows) {
			appErr = appErrors.Clone(appErrors.ErrConflict, "invitation is no longer pending")
		}
		s.metrics.RecordInvitation(inviteModeResend, appErr.Code, false)
		return nil, appErr
	}

	s.metrics.RecordInvitation(inviteModeResend, string(result.Delivery), true)
	s.emit(ctx, Activity{ChurchID: invitation.ChurchID, ActorID: actor.UserID, Action: models.ActivityInvitationResent,
		Resource: "invitation", ResourceID: invitation.ID, Payload: map[string]interface{}{"email": invitation.Email, "delivery": string(result.Delivery)}})
	return result, nil
}

// Revoke expires a pending invitation.
func (s *InvitationService) Revoke(ctx context.Context, actor Actor, id string) error {
	invitation, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.invitations.UpdateStatus(ctx, nil, invitation.ID, models.InvitationExpired); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "invitation is no longer pending")
		}
		return wrapInternal(err, "failed to revoke invitation")
	}
	s.emit(ctx, Activity{ChurchID: invitation.ChurchID, ActorID: actor.UserID, Action: models.ActivityInvitationRevoked,
		Resource: "invitation", ResourceID: invitation.ID, Payload: map[string]interface{}{"email": invitation.Email}})
	return nil
}

// List returns the church's invitations, optionally filtered by status.
func (s *InvitationService) List(ctx context.Context, actor Actor, status string) ([]models.Invitation, error) {
	var filter *models.InvitationStatus
	if status != "" {
		st := models.InvitationStatus(strings.ToUpper(status))
		switch st {
		case models.InvitationPending, models.InvitationAccepted, models.InvitationExpired:
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "status must be one of PENDING, ACCEPTED, EXPIRED")
		}
		filter = &st
	}
	invitations, err := s.invitations.ListByChurch(ctx, actor.ChurchID, filter)
	if err != nil {
		return nil, wrapInternal(err, "failed to list invitations")
	}
	return invitations, nil
}

// ExpireStale marks every lapsed pending invitation as EXPIRED.
func (s *InvitationService) ExpireStale(ctx context.Context) (int, error) {
	expired, err := s.invitations.ExpireStale(ctx, s.clock.Now())
	if err != nil {
		return 0, wrapInternal(err, "failed to expire invitations")
	}
	if expired > 0 {
		s.logger.Info("expired stale invitations", zap.Int("count", expired))
	}
	return expired, nil
}

type issuedInvite struct {
	token      string
	credential string
	hash       string
	expiresAt  time.Time
}

func (s *InvitationService) issue() (*issuedInvite, error) {
	token, err := invitelink.GenerateToken()
	if err != nil {
		return nil, wrapInternal(err, "failed to generate invitation token")
	}
	credential, err := invitelink.GenerateCredential()
	if err != nil {
		return nil, wrapInternal(err, "failed to generate temporary password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), s.opts.HashCost)
	if err != nil {
		return nil, wrapInternal(err, "failed to hash temporary password")
	}
	return &issuedInvite{token: token, credential: credential, hash: string(hash), expiresAt: s.clock.Now().Add(s.opts.TTL)}, nil
}

// invite runs the dedupe checks, the reservation and the transactional
// create-and-dispatch for one validated record.
func (s *InvitationService) invite(ctx context.Context, actor Actor, church *models.Church, record models.InviteRecord, owner, mode string) (result *models.InvitationResult, err error) {
	email := normalizeEmail(record.Email)
	defer func() {
		if err != nil {
			s.metrics.RecordInvitation(mode, appErrors.FromError(err).Code, false)
			return
		}
		s.metrics.RecordInvitation(mode, string(result.Delivery), true)
	}()

	existing, err := s.checkDuplicates(ctx, church.ID, email)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("invite:%s:%s", church.ID, email)
	reserved, rerr := s.reservations.Reserve(ctx, key, owner, s.opts.ReservationTTL)
	switch {
	case rerr != nil:
		s.logger.Warn("invitation reservation unavailable, relying on unique index", zap.String("key", key), zap.Error(rerr))
	case !reserved:
		return nil, appErrors.Clone(appErrors.ErrInvitationPending, "another invitation for this email is being processed")
	default:
		defer func() {
			if err := s.reservations.ReleaseReservation(context.WithoutCancel(ctx), key, owner); err != nil {
				s.logger.Warn("release invitation reservation failed", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	issue, err := s.issue()
	if err != nil {
		return nil, err
	}

	invitation := &models.Invitation{
		Email:     email,
		FirstName: record.FirstName,
		LastName:  record.LastName,
		Phone:     record.Phone,
		ChurchID:  church.ID,
		InvitedBy: actor.UserID,
		Token:     issue.token,
		ExpiresAt: issue.expiresAt,
		Status:    models.InvitationPending,
	}

	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if existing != nil {
			if err := s.users.UpdatePassword(ctx, exec, existing.ID, issue.hash); err != nil {
				return err
			}
			invitation.UserID = &existing.ID
		} else {
			user := &models.User{
				ChurchID:     church.ID,
				Email:        email,
				PasswordHash: issue.hash,
				FirstName:    invitation.FirstName,
				LastName:     invitation.LastName,
				Role:         models.RoleMusician,
				Phone:        record.Phone,
			}
			if err := s.users.Create(ctx, exec, user); err != nil {
				return err
			}
			invitation.UserID = &user.ID
		}
		if err := s.invitations.Create(ctx, exec, invitation); err != nil {
			return err
		}
		result, err = s.deliver(ctx, church, invitation, issue.credential)
		return err
	})
	if err != nil {
		if database.IsUniqueViolation(err, usersEmailIndex) {
			if _, dupErr := s.checkDuplicates(ctx, church.ID, email); dupErr != nil {
				return nil, dupErr
			}
			return nil, appErrors.Clone(appErrors.ErrInvitationPending, "this email was invited concurrently")
		}
		return nil, inviteTxError(err, "failed to create invitation")
	}

	s.emit(ctx, Activity{ChurchID: church.ID, ActorID: actor.UserID, Action: models.ActivityInvitationSent,
		Resource: "invitation", ResourceID: invitation.ID, Payload: map[string]interface{}{"email": email, "mode": mode, "delivery": string(result.Delivery)}})
	return result, nil
}

// checkDuplicates classifies an email against existing accounts and pending
// invitations. Unverified accounts of other churches do not block; an
// unverified account of this church without a live invitation is returned
// for re-invitation.
func (s *InvitationService) checkDuplicates(ctx context.Context, churchID, email string) (*models.User, error) {
	accounts, err := s.users.ListByEmail(ctx, email)
	if err != nil {
		return nil, wrapInternal(err, "failed to look up musician by email")
	}
	var local *models.User
	for i := range accounts {
		account := accounts[i]
		switch {
		case account.ChurchID == churchID && account.IsVerified:
			return nil, appErrors.Clone(appErrors.ErrAlreadyMember, "")
		case account.ChurchID == churchID:
			local = &account
		case account.IsVerified:
			return nil, appErrors.Clone(appErrors.ErrAlreadyElsewhere, "")
		}
	}

	pending, err := s.invitations.FindPending(ctx, email, churchID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, wrapInternal(err, "failed to look up pending invitations")
	case pending.IsExpired(s.clock.Now()):
		s.markExpired(ctx, pending)
	default:
		return nil, appErrors.Clone(appErrors.ErrInvitationPending, fmt.Sprintf("a pending invitation for this email expires %s", pending.ExpiresAt.UTC().Format(time.RFC3339)))
	}
	return local, nil
}

// deliver mails the invitation under the dispatch policy. It runs inside the
// invitation transaction so a failed send rolls the invitation back.
func (s *InvitationService) deliver(ctx context.Context, church *models.Church, invitation *models.Invitation, credential string) (*models.InvitationResult, error) {
	link := ""
	if s.signer != nil {
		var err error
		if link, err = s.signer.Link(invitation.Token, invitation.ExpiresAt); err != nil {
			return nil, err
		}
	}

	msg := mailer.Message{
		ToName:    strings.TrimSpace(invitation.FirstName + " " + invitation.LastName),
		ToAddress: invitation.Email,
		Subject:   fmt.Sprintf("You're invited to join %s", church.Name),
		Text: fmt.Sprintf("Hello %s,\n\nYou have been invited to join the music team at %s.\nSign in with %s and the temporary password %s, or follow %s.\nThis invitation expires on %s.\n",
			invitation.FirstName, church.Name, invitation.Email, credential, link, invitation.ExpiresAt.UTC().Format("2006-01-02 15:04 MST")),
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.opts.DispatchTimeout)
	defer cancel()

	delivery := models.DeliverySent
	if err := s.sender.Send(sendCtx, msg); err != nil {
		switch {
		case errors.Is(err, mailer.ErrSendingRestricted) && s.opts.DispatchPolicy == config.DispatchSimulateOnRestriction:
			s.logger.Info("invitation email simulated, sending is restricted", zap.String("invitation_id", invitation.ID))
			delivery = models.DeliverySimulated
		case errors.Is(err, context.DeadlineExceeded):
			return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "invitation email timed out")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "invitation email could not be delivered")
		}
	}

	return &models.InvitationResult{
		Invitation:  *invitation,
		Credentials: models.InvitationCredentials{Email: invitation.Email, TemporaryPassword: credential, InviteLink: link},
		Delivery:    delivery,
	}, nil
}

func (s *InvitationService) markExpired(ctx context.Context, invitation *models.Invitation) {
	if err := s.invitations.UpdateStatus(ctx, nil, invitation.ID, models.InvitationExpired); err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("failed to mark invitation expired", zap.String("invitation_id", invitation.ID), zap.Error(err))
		return
	}
	invitation.Status = models.InvitationExpired
}

func (s *InvitationService) owned(ctx context.Context, actor Actor, id string) (*models.Invitation, error) {
	invitation, err := s.invitations.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "invitation")
	}
	if invitation.ChurchID != actor.ChurchID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "invitation not found")
	}
	return invitation, nil
}

func (s *InvitationService) church(ctx context.Context, id string) (*models.Church, error) {
	church, err := s.churches.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "church")
	}
	return church, nil
}

func (s *InvitationService) emit(ctx context.Context, activity Activity) {
	if s.notifier != nil {
		s.notifier.Emit(ctx, activity)
	}
}

func inviteTxError(err error, message string) *appErrors.Error {
	if errors.Is(err, repository.ErrPendingInvitationExists) {
		return appErrors.Clone(appErrors.ErrInvitationPending, "a pending invitation for this email was created concurrently")
	}
	return txError(err, message)
}

func trimRecord(record models.InviteRecord) models.InviteRecord {
	record.Email = strings.TrimSpace(record.Email)
	record.FirstName = strings.TrimSpace(record.FirstName)
	record.LastName = strings.TrimSpace(record.LastName)
	return record
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var csvColumns = []string{"email", "first_name", "last_name", "phone"}

func parseInviteCSV(r io.Reader) ([]models.InviteRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "csv file is empty")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "csv header could not be read")
	}
	index := map[string]int{}
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, required := range csvColumns[:3] {
		if _, ok := index[required]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("csv header must include %s", strings.Join(csvColumns[:3], ",")))
		}
	}

	field := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []models.InviteRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("csv line %d could not be parsed", line))
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		record := models.InviteRecord{
			Email:     field(row, "email"),
			FirstName: field(row, "first_name"),
			LastName:  field(row, "last_name"),
		}
		if phone := field(row, "phone"); phone != "" {
			record.Phone = &phone
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "csv file has no invitation rows")
	}
	return records, nil
}
