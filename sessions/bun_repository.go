// Package sessions persists login sessions created after a successful
// authentication.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-identity/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Config wires the Bun-backed session manager.
type Config struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
	IDGen      types.IDGenerator
	// TTL applies when a session is created without ExpiresAt.
	TTL time.Duration
}

// Manager implements types.SessionManager.
type Manager struct {
	store repository.Repository[*Record]
	db    *bun.DB
	clock types.Clock
	idGen types.IDGenerator
	ttl   time.Duration
}

// NewManager constructs the session manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("sessions: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = repository.NewRepository(cfg.DB, repository.ModelHandlers[*Record]{
			NewRecord: func() *Record { return &Record{} },
			GetID: func(rec *Record) uuid.UUID {
				if rec == nil {
					return uuid.Nil
				}
				return rec.ID
			},
			SetID: func(rec *Record, id uuid.UUID) {
				if rec != nil {
					rec.ID = id
				}
			},
		})
	}
	db := cfg.DB
	if db == nil {
		if withDB, ok := repo.(interface{ DB() *bun.DB }); ok {
			db = withDB.DB()
		}
	}
	m := &Manager{store: repo, db: db, clock: cfg.Clock, idGen: cfg.IDGen, ttl: cfg.TTL}
	if m.clock == nil {
		m.clock = types.SystemClock{}
	}
	if m.idGen == nil {
		m.idGen = types.UUIDGenerator{}
	}
	if m.ttl <= 0 {
		m.ttl = 24 * time.Hour
	}
	return m, nil
}

var _ types.SessionManager = (*Manager)(nil)

// CreateSession stores a new session for the user.
func (m *Manager) CreateSession(ctx context.Context, session types.Session) (*types.Session, error) {
	if session.UserID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	now := m.clock.Now()
	if session.ID == uuid.Nil {
		session.ID = m.idGen.UUID()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = session.CreatedAt.Add(m.ttl)
	}
	created, err := m.store.Create(ctx, fromDomain(session))
	if err != nil {
		return nil, err
	}
	return toDomain(created), nil
}

// GetSession returns a session that has not expired yet, or nil.
func (m *Manager) GetSession(ctx context.Context, id uuid.UUID) (*types.Session, error) {
	rec, err := m.store.Get(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("id = ?", id).Where("expires_at > ?", m.clock.Now())
	})
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(rec), nil
}

// EndSessionsForUser deletes every session of the user.
func (m *Manager) EndSessionsForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	if m.db == nil {
		return 0, errors.New("sessions: db required for deletes")
	}
	res, err := m.db.NewDelete().Model((*Record)(nil)).Where("user_id = ?", userID).Exec(ctx)
	if err != nil {
		return 0, repository.MapDatabaseError(err, repository.DetectDriver(m.db))
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func fromDomain(session types.Session) *Record {
	methods := session.AuthMethods
	if methods == nil {
		methods = []string{}
	}
	return &Record{
		ID:          session.ID,
		UserID:      session.UserID,
		ClientID:    session.ClientID,
		IP:          session.IP,
		UserAgent:   session.UserAgent,
		AuthMethods: methods,
		CreatedAt:   session.CreatedAt,
		ExpiresAt:   session.ExpiresAt,
	}
}

func toDomain(rec *Record) *types.Session {
	if rec == nil {
		return nil
	}
	return &types.Session{
		ID:          rec.ID,
		UserID:      rec.UserID,
		ClientID:    rec.ClientID,
		IP:          rec.IP,
		UserAgent:   rec.UserAgent,
		AuthMethods: append([]string(nil), rec.AuthMethods...),
		CreatedAt:   rec.CreatedAt,
		ExpiresAt:   rec.ExpiresAt,
	}
}
