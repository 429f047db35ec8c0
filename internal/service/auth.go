package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"

	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/label"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/models"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/repository"
)

var ( // Define custom errors
	ErrUserBanned         = errors.New("user is banned")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUnknownClientType  = errors.New("unknown client type")
)

const userTokenTTL = time.Hour

type AuthService interface {
	// Login resolves a front-end client id to a user, creating one on first
	// sight, records a connection, and issues the user JWT. Accounts with a
	// password set (researchers) must supply it. Banned users get no token.
	Login(clientID, password string) (string, *models.User, error)
	// EncodeBatchToken signs the item id set of an issued batch. The
	// not-before cooldown stops clients from returning a batch instantly.
	EncodeBatchToken(userID, batchID int64, itemIDs []int64, cooldown time.Duration) (string, error)
	ParseUserToken(tokenString string) (*models.UserClaims, error)
	ParseBatchToken(tokenString string) (*models.BatchClaims, error)
	// SetClientType promotes or demotes an account, banning included.
	// Outstanding user tokens keep their old role until they expire.
	SetClientType(userID int64, clientType label.Role) (*models.User, error)
}

type authService struct {
	users       repository.UserRepository
	connections repository.ConnectionRepository
	secret      []byte
	logger      *zap.Logger
}

func NewAuthService(users repository.UserRepository, connections repository.ConnectionRepository, secret string, logger *zap.Logger) AuthService {
	return &authService{
		users:       users,
		connections: connections,
		secret:      []byte(secret),
		logger:      logger,
	}
}

func (s *authService) Login(clientID, password string) (string, *models.User, error) {
	user, err := s.users.GetByClientID(clientID)
	if errors.Is(err, repository.ErrNotFound) {
		user, err = s.users.Create(clientID)
	}
	if err != nil {
		s.logger.Error("Failed to resolve user by client id", zap.Error(err))
		return "", nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	if user.ClientType == label.RoleBanned {
		return "", nil, ErrUserBanned
	}
	if user.PasswordHash.Valid && !verifyPassword(user.PasswordHash.String, password) {
		return "", nil, ErrInvalidCredentials
	}

	conn, err := s.connections.Create(user.ID, user.ClientType)
	if err != nil {
		s.logger.Error("Failed to create connection", zap.Error(err))
		return "", nil, fmt.Errorf("failed to create connection: %w", err)
	}

	now := time.Now()
	claims := &models.UserClaims{
		UserID:       user.ID,
		ClientType:   user.ClientType,
		ConnectionID: conn.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(userTokenTTL)),
		},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		s.logger.Error("Failed to sign user token", zap.Error(err))
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.logger.Info("User logged in",
		zap.Int64("user_id", user.ID),
		zap.Int("client_type", int(user.ClientType)),
		zap.Int64("connection_id", conn.ID))

	return tokenString, user, nil
}

func (s *authService) SetClientType(userID int64, clientType label.Role) (*models.User, error) {
	switch clientType {
	case label.RoleResearcher, label.RoleExpert, label.RoleAmateur, label.RoleLayperson, label.RoleBanned:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownClientType, int(clientType))
	}

	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateClientType(userID, clientType); err != nil {
		return nil, err
	}

	s.logger.Info("Changed client type",
		zap.Int64("user_id", userID),
		zap.Int("from", int(user.ClientType)),
		zap.Int("to", int(clientType)))

	user.ClientType = clientType
	return user, nil
}

func (s *authService) EncodeBatchToken(userID, batchID int64, itemIDs []int64, cooldown time.Duration) (string, error) {
	now := time.Now()
	claims := &models.BatchClaims{
		UserID:  userID,
		BatchID: batchID,
		ItemIDs: itemIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(cooldown)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *authService) ParseUserToken(tokenString string) (*models.UserClaims, error) {
	claims := &models.UserClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *authService) ParseBatchToken(tokenString string) (*models.BatchClaims, error) {
	claims := &models.BatchClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *authService) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// HashPassword uses Argon2id to hash a researcher password. The salt and the
// parameters travel inside the encoded string,
// e.g. $argon2id$v=19$m=65536,t=1,p=4$BASE64_SALT$BASE64_HASH.
func HashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, uint8(4), 32)

	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedHash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s", argon2.Version, 64*1024, 1, 4, encodedSalt, encodedHash), nil
}

// verifyPassword compares a plaintext password with a hashed password.
func verifyPassword(hashedPassword, password string) bool {
	// Expected format: ["argon2id", "v=19", "m=65536,t=1,p=4", "salt", "hash"]
	sections := strings.Split(strings.TrimPrefix(hashedPassword, "$"), "$")
	if len(sections) != 5 || sections[0] != "argon2id" {
		return false
	}

	var m, t, p uint32
	if _, err := fmt.Sscanf(sections[2], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false
	}

	decodedSalt, err := base64.RawStdEncoding.DecodeString(sections[3])
	if err != nil {
		return false
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(sections[4])
	if err != nil {
		return false
	}

	comparisonHash := argon2.IDKey([]byte(password), decodedSalt, t, m, uint8(p), uint32(len(decodedHash)))

	return subtle.ConstantTimeCompare(comparisonHash, decodedHash) == 1
}
