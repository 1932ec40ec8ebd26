package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"borerelay/internal/core/domain"
	"borerelay/internal/core/ports"
	apperrors "borerelay/pkg/errors"
	"borerelay/pkg/tracing"
	"borerelay/pkg/validation"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DefaultIssuer is recorded as bannedBy/mutedBy when the request names nobody.
const DefaultIssuer = "Dashboard"

// adminService persists a moderation change and then broadcasts the matching
// command. The two steps are not atomic: a crash between them leaves the row
// stored but never relayed, and the game process picks it up on its next poll
// of the read endpoints. A failed persist never broadcasts.
type adminService struct {
	players    ports.PlayerRepository
	bans       ports.BanRepository
	mutes      ports.MuteRepository
	relay      ports.Broadcaster
	stats      *CommandStats
	logger     *zap.SugaredLogger
	now        func() time.Time
	bcryptCost int
}

func NewAdminService(
	players ports.PlayerRepository,
	bans ports.BanRepository,
	mutes ports.MuteRepository,
	relay ports.Broadcaster,
	stats *CommandStats,
	logger *zap.SugaredLogger,
) ports.AdminService {
	return &adminService{
		players:    players,
		bans:       bans,
		mutes:      mutes,
		relay:      relay,
		stats:      stats,
		logger:     logger,
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
	}
}

func (s *adminService) ListPlayers(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Player], error) {
	page, err := s.players.List(ctx, q.Normalize())
	if err != nil {
		return domain.Page[domain.Player]{}, s.mapError(err, "list players")
	}
	return page, nil
}

func (s *adminService) GetPlayer(ctx context.Context, id int64) (*domain.Player, error) {
	ctx, span := tracing.TracePlayerOperation(ctx, "get_player", id)
	defer span.End()

	if id <= 0 {
		return nil, apperrors.NewInvalidInputError("invalid player id")
	}
	player, err := s.players.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err, "get player")
	}
	return player, nil
}

func (s *adminService) ListBans(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Ban], error) {
	page, err := s.bans.List(ctx, q.Normalize())
	if err != nil {
		return domain.Page[domain.Ban]{}, s.mapError(err, "list bans")
	}
	return page, nil
}

func (s *adminService) ListMutes(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Mute], error) {
	page, err := s.mutes.List(ctx, q.Normalize())
	if err != nil {
		return domain.Page[domain.Mute]{}, s.mapError(err, "list mutes")
	}
	return page, nil
}

func (s *adminService) CreateBan(ctx context.Context, ban domain.Ban) error {
	if ban.BannedBy == "" {
		ban.BannedBy = DefaultIssuer
	}
	if ban.Time.IsZero() {
		ban.Time = s.now().UTC()
	}
	if err := validateSanction(ban.Sanction); err != nil {
		return err
	}

	if err := s.bans.Create(ctx, &ban); err != nil {
		return s.mapError(err, "create ban")
	}

	s.broadcast(ctx, domain.BanCommand{
		Name:     ban.Name,
		BannedBy: ban.BannedBy,
		Reason:   ban.Reason,
		Conn:     ban.Conn,
		IPv4:     ban.IPv4,
		Auth:     ban.Auth,
		Time:     ban.Time,
		Room:     ban.Room,
	})
	return nil
}

func (s *adminService) Unban(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperrors.NewInvalidInputError("invalid ban id")
	}
	if err := s.bans.Delete(ctx, id); err != nil {
		return s.mapError(err, "delete ban")
	}
	s.broadcast(ctx, domain.UnbanCommand{ID: id})
	return nil
}

func (s *adminService) CreateMute(ctx context.Context, mute domain.Mute) error {
	if mute.MutedBy == "" {
		mute.MutedBy = DefaultIssuer
	}
	if mute.Time.IsZero() {
		mute.Time = s.now().UTC()
	}
	if err := validateSanction(mute.Sanction); err != nil {
		return err
	}

	if err := s.mutes.Create(ctx, &mute); err != nil {
		return s.mapError(err, "create mute")
	}

	s.broadcast(ctx, domain.MuteCommand{
		Name:    mute.Name,
		MutedBy: mute.MutedBy,
		Reason:  mute.Reason,
		Conn:    mute.Conn,
		IPv4:    mute.IPv4,
		Auth:    mute.Auth,
		Time:    mute.Time,
		Room:    mute.Room,
	})
	return nil
}

func (s *adminService) Unmute(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperrors.NewInvalidInputError("invalid mute id")
	}
	if err := s.mutes.Delete(ctx, id); err != nil {
		return s.mapError(err, "delete mute")
	}
	s.broadcast(ctx, domain.UnmuteCommand{ID: id})
	return nil
}

func (s *adminService) SetLegend(ctx context.Context, playerID int64, level int, expiresAt time.Time) error {
	ctx, span := tracing.TracePlayerOperation(ctx, "set_legend", playerID)
	defer span.End()

	var fields []apperrors.FieldError
	if err := validation.ValidateVipLevel(level); err != nil {
		fields = append(fields, apperrors.FieldError{Field: "vipLevel", Message: err.Error()})
	}
	if err := validation.ValidateExpiration(expiresAt, s.now()); err != nil {
		fields = append(fields, apperrors.FieldError{Field: "expirationDate", Message: err.Error()})
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError(fields)
	}

	expiresAt = expiresAt.UTC()
	if err := s.players.SetLegend(ctx, playerID, level, expiresAt); err != nil {
		return s.mapError(err, "set legend")
	}
	s.broadcast(ctx, domain.SetLegendCommand{PlayerID: playerID, VipLevel: level, ExpirationDate: expiresAt})
	return nil
}

func (s *adminService) RemoveLegend(ctx context.Context, playerID int64) error {
	ctx, span := tracing.TracePlayerOperation(ctx, "remove_legend", playerID)
	defer span.End()

	if err := s.players.RemoveLegend(ctx, playerID); err != nil {
		return s.mapError(err, "remove legend")
	}
	s.broadcast(ctx, domain.RemoveLegendCommand{PlayerID: playerID})
	return nil
}

func (s *adminService) SetMod(ctx context.Context, playerID int64, rooms []int) error {
	ctx, span := tracing.TracePlayerOperation(ctx, "set_mod", playerID)
	defer span.End()

	if err := validation.ValidateRooms(rooms); err != nil {
		return apperrors.NewValidationError([]apperrors.FieldError{{Field: "rooms", Message: err.Error()}})
	}
	if err := s.players.SetMod(ctx, playerID, rooms); err != nil {
		return s.mapError(err, "set mod")
	}
	s.broadcast(ctx, domain.SetModCommand{PlayerID: playerID, Rooms: rooms})
	return nil
}

func (s *adminService) RemoveMod(ctx context.Context, playerID int64) error {
	ctx, span := tracing.TracePlayerOperation(ctx, "remove_mod", playerID)
	defer span.End()

	if err := s.players.RemoveMod(ctx, playerID); err != nil {
		return s.mapError(err, "remove mod")
	}
	s.broadcast(ctx, domain.RemoveModCommand{PlayerID: playerID})
	return nil
}

func (s *adminService) ChangePassword(ctx context.Context, playerID int64, password string) error {
	ctx, span := tracing.TracePlayerOperation(ctx, "change_password", playerID)
	defer span.End()

	if err := validation.ValidatePassword(password); err != nil {
		return apperrors.NewValidationError([]apperrors.FieldError{{Field: "password", Message: err.Error()}})
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(fmt.Errorf("hash password: %w", err))
	}

	if err := s.players.SetPassword(ctx, playerID, string(hash)); err != nil {
		return s.mapError(err, "set password")
	}
	s.broadcast(ctx, domain.ChangePasswordCommand{PlayerID: playerID, HashedPassword: string(hash)})
	return nil
}

func (s *adminService) ResetAllVip(ctx context.Context) error {
	n, err := s.players.ResetAllVip(ctx)
	if err != nil {
		return s.mapError(err, "reset vip")
	}
	s.logger.Infow("Legend grants reset", "players", n)
	s.broadcast(ctx, domain.ResetAllVipCommand{})
	return nil
}

func (s *adminService) broadcast(ctx context.Context, cmd domain.Command) {
	err := s.relay.Broadcast(ctx, cmd)
	switch {
	case err == nil:
		s.stats.RecordBroadcast(cmd.EventName())
	case errors.Is(err, domain.ErrNoPeers):
		s.stats.RecordUndelivered(cmd.EventName())
		s.logger.Debugw("No relay peers connected", "event", cmd.EventName())
	default:
		s.stats.RecordUndelivered(cmd.EventName())
		s.logger.Warnw("Broadcast failed", "event", cmd.EventName(), "error", err)
	}
}

func (s *adminService) mapError(err error, op string) error {
	switch {
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, domain.ErrPlayerNotFound):
		return apperrors.NewNotFoundError("Player")
	case errors.Is(err, domain.ErrBanNotFound):
		return apperrors.NewNotFoundError("Ban")
	case errors.Is(err, domain.ErrMuteNotFound):
		return apperrors.NewNotFoundError("Mute")
	case errors.Is(err, domain.ErrConflict):
		return apperrors.NewConflictError("Registro já existe")
	}
	s.logger.Errorw("Repository call failed", "op", op, "error", err)
	return apperrors.NewInternalError(fmt.Errorf("%s: %w", op, err))
}

func validateSanction(sanction domain.Sanction) error {
	var fields []apperrors.FieldError
	add := func(field string, err error) {
		if err != nil {
			fields = append(fields, apperrors.FieldError{Field: field, Message: err.Error()})
		}
	}
	add("name", validation.ValidatePlayerName(sanction.Name))
	add("reason", validation.ValidateReason(sanction.Reason))
	add("conn", validation.ValidateConn(sanction.Conn))
	add("ipv4", validation.ValidateIPv4(sanction.IPv4))
	if sanction.Room < 0 {
		add("room", errors.New("room must be >= 0"))
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError(fields)
	}
	return nil
}
