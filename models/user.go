package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	BusinessId   string    `gorm:"index;not null" json:"business_id"`
	Username     string    `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Name         string    `gorm:"size:100" json:"name"`
	PasswordHash string    `gorm:"size:100;not null" json:"-"`
	Role         UserRole  `gorm:"type:enum('admin','operator');default:'operator'" json:"role"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	BusinessId string   `json:"business_id" validate:"required"`
	Username   string   `json:"username" validate:"required"`
	Name       string   `json:"name"`
	Password   string   `json:"password" validate:"required,min=8"`
	Role       UserRole `json:"role" validate:"omitempty,oneof=admin operator"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = UserRoleOperator
	}

	user := User{
		BusinessId:   input.BusinessId,
		Username:     strings.ToLower(strings.TrimSpace(input.Username)),
		Name:         input.Name,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     utils.NewTrue(),
	}
	if err := config.GetDB().WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate checks credentials and returns a signed JWT on success.
func Authenticate(ctx context.Context, username string, password string) (string, *User, error) {
	db := config.GetDB()
	if db == nil {
		return "", nil, errors.New("db is nil")
	}

	var user User
	err := db.WithContext(ctx).
		Where("username = ?", strings.ToLower(strings.TrimSpace(username))).
		Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, errors.New("invalid credentials")
		}
		return "", nil, err
	}
	if user.IsActive != nil && !*user.IsActive {
		return "", nil, errors.New("invalid credentials")
	}
	if err := utils.ComparePassword(user.PasswordHash, password); err != nil {
		return "", nil, errors.New("invalid credentials")
	}

	token, err := utils.JwtGenerate(user.ID, user.Username, string(user.Role))
	if err != nil {
		return "", nil, err
	}

	// Cache for auth middleware lookups.
	_ = config.SetRedisObject("User:"+user.Username, user, 15*time.Minute)

	return token, &user, nil
}

// GetUserByUsername resolves a user via the Redis cache first, then the DB.
func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if exists {
		return &user, nil
	}

	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := db.WithContext(ctx).Where("username = ?", username).Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
