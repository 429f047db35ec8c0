package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/label"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type UserRepository interface {
	GetByID(id int64) (*models.User, error)
	GetByClientID(clientID string) (*models.User, error)
	Create(clientID string) (*models.User, error)
	UpdateClientType(id int64, clientType label.Role) error
	Leaderboard(limit int) ([]models.User, error)
}

type userRepository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewUserRepository(db *sqlx.DB, log *zap.Logger) UserRepository {
	return &userRepository{db: db, log: log}
}

func (r *userRepository) GetByID(id int64) (*models.User, error) {
	var user models.User
	query := `SELECT id, client_id, client_type, score, raw_score, password_hash, register_time FROM users WHERE id = $1`
	err := r.db.Get(&user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByClientID(clientID string) (*models.User, error) {
	var user models.User
	query := `SELECT id, client_id, client_type, score, raw_score, password_hash, register_time FROM users WHERE client_id = $1`
	err := r.db.Get(&user, query, clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Create(clientID string) (*models.User, error) {
	user := &models.User{
		ClientID:     clientID,
		ClientType:   label.RoleLayperson,
		RegisterTime: time.Now().Unix(),
	}
	query := `INSERT INTO users (client_id, client_type, score, raw_score, register_time) VALUES ($1, $2, 0, 0, $3) RETURNING id`
	if err := r.db.QueryRowx(query, user.ClientID, user.ClientType, user.RegisterTime).Scan(&user.ID); err != nil {
		return nil, err
	}
	r.log.Info("Created user", zap.Int64("user_id", user.ID), zap.String("client_id", clientID))
	return user, nil
}

func (r *userRepository) UpdateClientType(id int64, clientType label.Role) error {
	res, err := r.db.Exec(`UPDATE users SET client_type = $1 WHERE id = $2`, clientType, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) Leaderboard(limit int) ([]models.User, error) {
	var users []models.User
	query := `SELECT id, client_id, client_type, score, raw_score, password_hash, register_time
		FROM users WHERE client_type != $1 ORDER BY score DESC, raw_score DESC LIMIT $2`
	if err := r.db.Select(&users, query, label.RoleResearcher, limit); err != nil {
		return nil, err
	}
	return users, nil
}

type ConnectionRepository interface {
	Create(userID int64, clientType label.Role) (*models.Connection, error)
}

type connectionRepository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewConnectionRepository(db *sqlx.DB, log *zap.Logger) ConnectionRepository {
	return &connectionRepository{db: db, log: log}
}

func (r *connectionRepository) Create(userID int64, clientType label.Role) (*models.Connection, error) {
	conn := &models.Connection{
		UserID:     userID,
		ClientType: clientType,
		Time:       time.Now().Unix(),
	}
	query := `INSERT INTO connections (user_id, client_type, time) VALUES ($1, $2, $3) RETURNING id`
	if err := r.db.QueryRowx(query, conn.UserID, conn.ClientType, conn.Time).Scan(&conn.ID); err != nil {
		return nil, err
	}
	return conn, nil
}
