package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/authgate/authgate"
)

// UserModel is the GORM mapping for account records. OTP sub-records are
// flattened into prefixed columns so one row update persists everything the
// engine mutates.
type UserModel struct {
	ID           string `gorm:"primaryKey;size:36"`
	Email        string `gorm:"size:254;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:128;not null"`
	Role         string `gorm:"size:32;not null"`

	LoginAttempts int
	LockUntil     *time.Time

	LoginOTPHash      string `gorm:"size:128"`
	LoginOTPExpiresAt *time.Time
	LoginOTPAttempts  int

	ResetOTPHash      string `gorm:"size:128"`
	ResetOTPExpiresAt *time.Time
	ResetOTPAttempts  int
	ResetOTPVerified  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName describes the tablename operation and its observable behavior.
//
// TableName may return an error when input validation, dependency calls, or security checks fail.
// TableName does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (UserModel) TableName() string { return "users" }

// RefreshTokenModel is the GORM mapping for ledger records.
type RefreshTokenModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"size:36;index;not null"`
	TokenHash string `gorm:"size:128;not null"`
	ExpiresAt time.Time
	Revoked   bool `gorm:"not null;default:false"`
	CreatedAt time.Time
}

// TableName describes the tablename operation and its observable behavior.
//
// TableName may return an error when input validation, dependency calls, or security checks fail.
// TableName does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (RefreshTokenModel) TableName() string { return "refresh_tokens" }

// Gorm implements both [authgate.UserStore] and [authgate.RefreshTokenStore]
// on one *gorm.DB handle.
type Gorm struct {
	db *gorm.DB
}

// NewGorm describes the newgorm operation and its observable behavior.
//
// NewGorm may return an error when input validation, dependency calls, or security checks fail.
// NewGorm does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if db == nil {
		return nil, errors.New("nil gorm handle")
	}
	return &Gorm{db: db}, nil
}

// Migrate creates or updates the backing tables.
func (s *Gorm) Migrate() error {
	return s.db.AutoMigrate(&UserModel{}, &RefreshTokenModel{})
}

// FindByEmail describes the findbyemail operation and its observable behavior.
//
// FindByEmail may return an error when input validation, dependency calls, or security checks fail.
// FindByEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Gorm) FindByEmail(ctx context.Context, email string) (*authgate.User, error) {
	var model UserModel
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authgate.ErrUserNotFound
		}
		return nil, wrapGormErr(err)
	}
	return modelToUser(&model), nil
}

// FindByID describes the findbyid operation and its observable behavior.
//
// FindByID may return an error when input validation, dependency calls, or security checks fail.
// FindByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Gorm) FindByID(ctx context.Context, id string) (*authgate.User, error) {
	var model UserModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authgate.ErrUserNotFound
		}
		return nil, wrapGormErr(err)
	}
	return modelToUser(&model), nil
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Gorm) Create(ctx context.Context, user *authgate.User) error {
	model := userToModel(user)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return authgate.ErrUserExists
		}
		return wrapGormErr(err)
	}
	return nil
}

// Save describes the save operation and its observable behavior.
//
// Save may return an error when input validation, dependency calls, or security checks fail.
// Save does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Gorm) Save(ctx context.Context, user *authgate.User) error {
	model := userToModel(user)
	result := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ?", user.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return wrapGormErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return authgate.ErrUserNotFound
	}
	return nil
}

// Tokens returns the ledger half of the store. The user and token
// interfaces both declare a Create method with different signatures, so they
// cannot share one receiver.
func (s *Gorm) Tokens() *GormTokenStore {
	return &GormTokenStore{db: s.db}
}

// GormTokenStore implements [authgate.RefreshTokenStore] on the same
// database as [Gorm].
type GormTokenStore struct {
	db *gorm.DB
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *GormTokenStore) Create(ctx context.Context, record authgate.RefreshTokenRecord) error {
	model := RefreshTokenModel{
		ID:        record.ID,
		UserID:    record.UserID,
		TokenHash: record.TokenHash,
		ExpiresAt: record.ExpiresAt,
		Revoked:   record.Revoked,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapGormErr(err)
	}
	return nil
}

// FindLive describes the findlive operation and its observable behavior.
//
// FindLive may return an error when input validation, dependency calls, or security checks fail.
// FindLive does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *GormTokenStore) FindLive(ctx context.Context, userID string) ([]authgate.RefreshTokenRecord, error) {
	var models []RefreshTokenModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND revoked = ? AND expires_at > ?", userID, false, time.Now()).
		Find(&models).Error
	if err != nil {
		return nil, wrapGormErr(err)
	}

	records := make([]authgate.RefreshTokenRecord, 0, len(models))
	for _, m := range models {
		records = append(records, authgate.RefreshTokenRecord{
			ID:        m.ID,
			UserID:    m.UserID,
			TokenHash: m.TokenHash,
			ExpiresAt: m.ExpiresAt,
			Revoked:   m.Revoked,
		})
	}
	return records, nil
}

// Revoke relies on the conditional UPDATE to make the transition atomic:
// only the caller whose statement matched the un-revoked row sees
// performed=true.
func (s *GormTokenStore) Revoke(ctx context.Context, recordID string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&RefreshTokenModel{}).
		Where("id = ? AND revoked = ?", recordID, false).
		Update("revoked", true)
	if result.Error != nil {
		return false, wrapGormErr(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// RevokeAll describes the revokeall operation and its observable behavior.
//
// RevokeAll may return an error when input validation, dependency calls, or security checks fail.
// RevokeAll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *GormTokenStore) RevokeAll(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).Model(&RefreshTokenModel{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
	return wrapGormErr(err)
}

// DeleteAll describes the deleteall operation and its observable behavior.
//
// DeleteAll may return an error when input validation, dependency calls, or security checks fail.
// DeleteAll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *GormTokenStore) DeleteAll(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&RefreshTokenModel{}).Error
	return wrapGormErr(err)
}

func modelToUser(m *UserModel) *authgate.User {
	user := &authgate.User{
		ID:            m.ID,
		Email:         m.Email,
		PasswordHash:  m.PasswordHash,
		Role:          authgate.Role(m.Role),
		LoginAttempts: m.LoginAttempts,
		LoginOTP: authgate.OTPState{
			Hash:     m.LoginOTPHash,
			Attempts: m.LoginOTPAttempts,
		},
		ResetOTP: authgate.OTPState{
			Hash:     m.ResetOTPHash,
			Attempts: m.ResetOTPAttempts,
			Verified: m.ResetOTPVerified,
		},
	}
	if m.LockUntil != nil {
		user.LockUntil = *m.LockUntil
	}
	if m.LoginOTPExpiresAt != nil {
		user.LoginOTP.ExpiresAt = *m.LoginOTPExpiresAt
	}
	if m.ResetOTPExpiresAt != nil {
		user.ResetOTP.ExpiresAt = *m.ResetOTPExpiresAt
	}
	return user
}

func userToModel(u *authgate.User) *UserModel {
	model := &UserModel{
		ID:               u.ID,
		Email:            u.Email,
		PasswordHash:     u.PasswordHash,
		Role:             string(u.Role),
		LoginAttempts:    u.LoginAttempts,
		LoginOTPHash:     u.LoginOTP.Hash,
		LoginOTPAttempts: u.LoginOTP.Attempts,
		ResetOTPHash:     u.ResetOTP.Hash,
		ResetOTPAttempts: u.ResetOTP.Attempts,
		ResetOTPVerified: u.ResetOTP.Verified,
	}
	if !u.LockUntil.IsZero() {
		t := u.LockUntil
		model.LockUntil = &t
	}
	if !u.LoginOTP.ExpiresAt.IsZero() {
		t := u.LoginOTP.ExpiresAt
		model.LoginOTPExpiresAt = &t
	}
	if !u.ResetOTP.ExpiresAt.IsZero() {
		t := u.ResetOTP.ExpiresAt
		model.ResetOTPExpiresAt = &t
	}
	return model
}

func wrapGormErr(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(authgate.ErrStoreUnavailable, err)
}
